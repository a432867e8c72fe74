package model

import "time"

// Question はユーザーが投稿した質問を表す。
// Contentは投稿時のHTMLで、表示前に必ずサニタイズする。
type Question struct {
	ID        string
	Title     string
	Content   string
	AuthorID  string
	Upvotes   int
	Downvotes int
	Answers   int
	Views     int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Answer は質問への回答を表す。
type Answer struct {
	ID         string
	QuestionID string
	AuthorID   string
	Content    string
	Upvotes    int
	Downvotes  int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Collection はユーザーが保存した質問を表す。
type Collection struct {
	ID         string
	UserID     string
	QuestionID string
	CreatedAt  time.Time
}
