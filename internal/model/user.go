// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
type User struct {
	ID        string
	Name      string
	Username  string
	Email     string
	Image     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// 認証プロバイダー名
const (
	ProviderCredentials = "credentials"
	ProviderGoogle      = "google"
)

// Account はユーザーの認証手段を表す。
// credentialsプロバイダーの場合はProviderAccountIDにメールアドレス、
// PasswordHashにbcryptハッシュを保持する。
type Account struct {
	ID                string
	UserID            string
	Provider          string
	ProviderAccountID string
	PasswordHash      string
	CreatedAt         time.Time
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// SessionUser はセッションから参照できるユーザー情報。
type SessionUser struct {
	ID string
}

// Identity はウィジェットやフォームに明示的に渡される認証状態のスナップショット。
// ライフサイクルはセッション管理側が所有し、受け取った側は読み取りのみ行う。
type Identity struct {
	User *SessionUser
}

// Anonymous は未ログイン状態のIdentityを返す。
func Anonymous() Identity {
	return Identity{}
}

// IdentityFor は指定ユーザーIDのIdentityを返す。空文字の場合は未ログイン扱い。
func IdentityFor(userID string) Identity {
	if userID == "" {
		return Identity{}
	}
	return Identity{User: &SessionUser{ID: userID}}
}

// UserID はログインユーザーのIDを返す。未ログインの場合は空文字。
func (i Identity) UserID() string {
	if i.User == nil {
		return ""
	}
	return i.User.ID
}

// SignedIn はログイン済みかどうかを返す。
func (i Identity) SignedIn() bool {
	return i.UserID() != ""
}
