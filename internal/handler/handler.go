// Package handler はHTTPハンドラーを提供する。
//
// 画面はサーバーでレンダリングし、フォーム送信後は303リダイレクトと
// フラッシュCookieで通知を運ぶ。Accept: application/json のリクエストには
// 通知と最新状態をJSONで返す。
package handler

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/hitoshi/devflow/internal/middleware"
	"github.com/hitoshi/devflow/internal/model"
	"github.com/hitoshi/devflow/internal/notify"
)

// CookieConfig はセッションCookieとフラッシュCookieの設定。
type CookieConfig struct {
	BaseURL       string
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

func (c CookieConfig) flash() notify.FlashConfig {
	return notify.FlashConfig{CookieSecure: c.CookieSecure, CookieDomain: c.CookieDomain}
}

// setSessionCookie はセッションCookieを設定する（HTTP Only）。
func setSessionCookie(w http.ResponseWriter, config CookieConfig, session *model.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    session.ID,
		Path:     "/",
		Domain:   config.CookieDomain,
		MaxAge:   config.SessionMaxAge,
		HttpOnly: true,
		Secure:   config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessionCookie はセッションCookieを削除する。
func clearSessionCookie(w http.ResponseWriter, config CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// wantsJSON はクライアントがJSONレスポンスを求めているかを返す。
func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// redirectWithFlash は通知をフラッシュCookieに積んで303リダイレクトする。
func redirectWithFlash(w http.ResponseWriter, r *http.Request, config CookieConfig, to string, notifications []notify.Notification) {
	notify.WriteFlash(w, config.flash(), notifications)
	http.Redirect(w, r, to, http.StatusSeeOther)
}

// returnTarget は処理後の戻り先を決める。
// フォームのreturn_to、同一ホストのReferer、fallbackの順に採用する。
// オープンリダイレクトを防ぐため、サイト内の絶対パスのみ許可する。
func returnTarget(r *http.Request, fallback string) string {
	if to := r.PostFormValue("return_to"); isLocalPath(to) {
		return to
	}
	if ref := r.Referer(); ref != "" {
		if u, err := url.Parse(ref); err == nil && (u.Host == "" || u.Host == r.Host) {
			path := u.EscapedPath()
			if u.RawQuery != "" {
				path += "?" + u.RawQuery
			}
			if isLocalPath(path) {
				return path
			}
		}
	}
	return fallback
}

func isLocalPath(p string) bool {
	return strings.HasPrefix(p, "/") && !strings.HasPrefix(p, "//") && !strings.HasPrefix(p, "/\\")
}

// clientKey はコンポーネントのインスタンスを束ねるキーを返す。
// ログイン中はセッションID、未ログインはCSRFトークンCookieで区別する。
// どちらもない場合は空文字を返し、呼び出し側は使い捨てのインスタンスを使う。
func clientKey(r *http.Request) string {
	if sid := middleware.SessionIDFromContext(r.Context()); sid != "" {
		return "s:" + sid
	}
	if token := middleware.CSRFTokenFromContext(r.Context()); token != "" {
		return "a:" + token
	}
	return ""
}
