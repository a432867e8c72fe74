// Package routes はアプリケーション内のルートパスを定義する。
package routes

import "net/url"

// 画面ルート
const (
	Home   = "/"
	SignIn = "/sign-in"
	SignUp = "/sign-up"
	Logout = "/logout"
)

// Question は質問詳細ページのパスを返す。
func Question(id string) string {
	return "/questions/" + url.PathEscape(id)
}

// QuestionVotes は質問への投票エンドポイントのパスを返す。
func QuestionVotes(id string) string {
	return Question(id) + "/votes"
}

// QuestionSave は質問保存エンドポイントのパスを返す。
func QuestionSave(id string) string {
	return Question(id) + "/save"
}

// AnswerVotes は回答への投票エンドポイントのパスを返す。
func AnswerVotes(id string) string {
	return "/answers/" + url.PathEscape(id) + "/votes"
}
