// Package form はスキーマ駆動の汎用フォーム（サインイン/サインアップ）を提供する。
//
// フォームは明示的な順序付きフィールド記述子のリストから入力欄を生成し、
// 送信時にスキーマで検証した上で、呼び出し側が渡した送信関数に処理を委譲する。
// 送信結果は通知（トースト）と画面遷移として出力される。
package form

import (
	"unicode"
	"unicode/utf8"
)

// FieldKind は入力欄の種別を表す。
type FieldKind string

const (
	// FieldText は通常のテキスト入力。
	FieldText FieldKind = "text"
	// FieldEmail はメールアドレス入力。
	FieldEmail FieldKind = "email"
	// FieldPassword はパスワード入力。既定でマスク表示される。
	FieldPassword FieldKind = "password"
)

// Field は1つの入力欄の記述子。
// Labelが空の場合はNameから表示ラベルを導出する。
type Field struct {
	Name  string
	Label string
	Kind  FieldKind
}

// DisplayLabel は表示用のラベルを返す。
func (f Field) DisplayLabel() string {
	if f.Label != "" {
		return f.Label
	}
	return DeriveLabel(f.Name)
}

// DeriveLabel はフィールド名から表示ラベルを導出する。
// "email" は "Email Address"、それ以外は先頭1文字のみ大文字化する。
func DeriveLabel(name string) string {
	if name == "email" {
		return "Email Address"
	}
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return name
	}
	return string(unicode.ToUpper(r)) + name[size:]
}

// inputType はレンダリング時のinput要素のtype属性を返す。
// パスワード欄は表示トグルがオンの場合のみ平文表示になり、それ以外の欄はすべてtextになる。
// メールアドレスの形式はブラウザではなくスキーマで検証する。
func (f Field) inputType(showPassword bool) string {
	if f.Kind == FieldPassword && !showPassword {
		return "password"
	}
	return "text"
}
