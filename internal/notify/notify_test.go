package notify

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRecorder_RecordsInOrder(t *testing.T) {
	r := NewRecorder()
	r.Success("first")
	r.Error("second")
	r.Push("/")

	got := r.Notifications()
	if len(got) != 2 {
		t.Fatalf("notifications length = %d, want 2", len(got))
	}
	if got[0] != (Notification{Kind: KindSuccess, Message: "first"}) {
		t.Errorf("notifications[0] = %+v", got[0])
	}
	if got[1] != (Notification{Kind: KindError, Message: "second"}) {
		t.Errorf("notifications[1] = %+v", got[1])
	}

	route, ok := r.LastRoute()
	if !ok || route != "/" {
		t.Errorf("LastRoute = %q, %v, want %q, true", route, ok, "/")
	}
}

func TestRecorder_LastRouteEmpty(t *testing.T) {
	if _, ok := NewRecorder().LastRoute(); ok {
		t.Error("expected no route on empty recorder")
	}
}

func TestTee_DeliversToAllSinks(t *testing.T) {
	a := NewRecorder()
	b := NewRecorder()
	sink := Tee(a, nil, b)

	sink.Success("ok")
	sink.Error("ng")

	for i, r := range []*Recorder{a, b} {
		if n := len(r.Notifications()); n != 2 {
			t.Errorf("recorder %d: notifications length = %d, want 2", i, n)
		}
	}
}

func TestFlash_RoundTrip(t *testing.T) {
	config := FlashConfig{}
	w := httptest.NewRecorder()
	WriteFlash(w, config, []Notification{
		{Kind: KindSuccess, Message: "Upvote added"},
	})

	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != flashCookieName {
		t.Fatalf("expected flash cookie, got %v", cookies)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	w2 := httptest.NewRecorder()

	got := ReadFlash(w2, req, config)
	if len(got) != 1 || got[0].Message != "Upvote added" || got[0].Kind != KindSuccess {
		t.Errorf("ReadFlash = %+v", got)
	}

	// 読み出し後はCookieが削除される
	cleared := w2.Result().Cookies()
	if len(cleared) != 1 || cleared[0].MaxAge != -1 {
		t.Errorf("expected flash cookie to be cleared, got %v", cleared)
	}
}

func TestFlash_EmptyWritesNothing(t *testing.T) {
	w := httptest.NewRecorder()
	WriteFlash(w, FlashConfig{}, nil)
	if len(w.Result().Cookies()) != 0 {
		t.Error("expected no cookie for empty notifications")
	}
}

func TestFlash_InvalidCookieIgnored(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: flashCookieName, Value: "%%%not-base64"})
	w := httptest.NewRecorder()

	if got := ReadFlash(w, req, FlashConfig{}); got != nil {
		t.Errorf("ReadFlash = %+v, want nil", got)
	}
}
