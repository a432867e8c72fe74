package notify

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
)

// flashCookieName はリダイレクトをまたいで通知を運ぶCookieの名前。
const flashCookieName = "flash"

// maxFlashNotifications は1つのCookieに保持する通知の上限。
const maxFlashNotifications = 5

// FlashConfig はフラッシュCookieの設定。
type FlashConfig struct {
	CookieSecure bool
	CookieDomain string
}

// WriteFlash は通知をフラッシュCookieに書き込む。
// 通知が空の場合は何もしない。
func WriteFlash(w http.ResponseWriter, config FlashConfig, notifications []Notification) {
	if len(notifications) == 0 {
		return
	}
	if len(notifications) > maxFlashNotifications {
		notifications = notifications[len(notifications)-maxFlashNotifications:]
	}

	raw, err := json.Marshal(notifications)
	if err != nil {
		slog.Error("failed to encode flash notifications", slog.String("error", err.Error()))
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    base64.RawURLEncoding.EncodeToString(raw),
		Path:     "/",
		Domain:   config.CookieDomain,
		MaxAge:   60,
		HttpOnly: true,
		Secure:   config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ReadFlash はフラッシュCookieから通知を読み出し、Cookieを削除する。
// Cookieが存在しない、または壊れている場合は空のスライスを返す。
func ReadFlash(w http.ResponseWriter, r *http.Request, config FlashConfig) []Notification {
	cookie, err := r.Cookie(flashCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}

	// 一度表示したら消す
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    "",
		Path:     "/",
		Domain:   config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	raw, err := base64.RawURLEncoding.DecodeString(cookie.Value)
	if err != nil {
		slog.Warn("invalid flash cookie", slog.String("error", err.Error()))
		return nil
	}

	var notifications []Notification
	if err := json.Unmarshal(raw, &notifications); err != nil {
		slog.Warn("invalid flash cookie payload", slog.String("error", err.Error()))
		return nil
	}
	return notifications
}
