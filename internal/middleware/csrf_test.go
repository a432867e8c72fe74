package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func newCSRFHandler(t *testing.T, called *bool, token *string) http.Handler {
	t.Helper()
	mw := NewCSRFMiddleware(CSRFConfig{})
	return mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		if token != nil {
			*token = CSRFTokenFromContext(r.Context())
		}
		w.WriteHeader(http.StatusOK)
	}))
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestCSRFMiddleware_SafeMethods_PassThroughAndIssueToken(t *testing.T) {
	for _, method := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
		t.Run(method, func(t *testing.T) {
			var called bool
			var token string
			handler := newCSRFHandler(t, &called, &token)

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(method, "/sign-in", nil))

			if !called {
				t.Fatalf("handler should have been called for %s request", method)
			}
			cookie := findCookie(w.Result(), csrfCookieName)
			if cookie == nil {
				t.Fatal("expected csrf_token cookie to be set")
			}
			if len(cookie.Value) != 64 {
				t.Errorf("token length = %d, want 64 hex chars", len(cookie.Value))
			}
			if cookie.HttpOnly {
				t.Error("csrf cookie should not be HttpOnly")
			}
			// 初回表示のフォームにも同じトークンを埋め込めること
			if token != cookie.Value {
				t.Errorf("context token = %q, want cookie value %q", token, cookie.Value)
			}
		})
	}
}

func TestCSRFMiddleware_GET_ExistingCookie_Reused(t *testing.T) {
	var called bool
	var token string
	handler := newCSRFHandler(t, &called, &token)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "existing-token"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if findCookie(w.Result(), csrfCookieName) != nil {
		t.Error("cookie should not be reissued when already present")
	}
	if token != "existing-token" {
		t.Errorf("context token = %q, want %q", token, "existing-token")
	}
}

func TestCSRFMiddleware_StateChanging_Validation(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		cookie     string
		header     string
		formToken  string
		wantStatus int
	}{
		{"Cookieなし", http.MethodPost, "", "token", "", http.StatusForbidden},
		{"リクエストトークンなし", http.MethodPost, "token", "", "", http.StatusForbidden},
		{"ヘッダー不一致", http.MethodPost, "token", "other", "", http.StatusForbidden},
		{"フォーム不一致", http.MethodPost, "token", "", "other", http.StatusForbidden},
		{"ヘッダー一致", http.MethodPost, "token", "token", "", http.StatusOK},
		{"フォームフィールド一致", http.MethodPost, "token", "", "token", http.StatusOK},
		{"DELETEでヘッダー一致", http.MethodDelete, "token", "token", "", http.StatusOK},
		{"PUTでトークンなし", http.MethodPut, "token", "", "", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var called bool
			var token string
			handler := newCSRFHandler(t, &called, &token)

			var req *http.Request
			if tt.formToken != "" {
				form := url.Values{CSRFFormField: {tt.formToken}, "vote_type": {"upvote"}}
				req = httptest.NewRequest(tt.method, "/questions/1/votes", strings.NewReader(form.Encode()))
				req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			} else {
				req = httptest.NewRequest(tt.method, "/questions/1/votes", nil)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: tt.cookie})
			}
			if tt.header != "" {
				req.Header.Set(csrfHeaderName, tt.header)
			}

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if called != (tt.wantStatus == http.StatusOK) {
				t.Errorf("handler called = %v", called)
			}
			if called && token != tt.cookie {
				t.Errorf("context token = %q, want %q", token, tt.cookie)
			}
		})
	}
}

func TestCSRFMiddleware_FormBodyStillReadable(t *testing.T) {
	mw := NewCSRFMiddleware(CSRFConfig{})
	var voteType string
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		voteType = r.PostFormValue("vote_type")
	}))

	form := url.Values{CSRFFormField: {"t"}, "vote_type": {"downvote"}}
	req := httptest.NewRequest(http.MethodPost, "/answers/1/votes", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "t"})
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if voteType != "downvote" {
		t.Errorf("vote_type = %q, want %q", voteType, "downvote")
	}
}

func TestCSRFTokenHandler_ReturnsToken(t *testing.T) {
	t.Run("Cookieなしは新規発行", func(t *testing.T) {
		w := httptest.NewRecorder()
		NewCSRFTokenHandler(CSRFConfig{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil))

		var body map[string]string
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode body: %v", err)
		}
		cookie := findCookie(w.Result(), csrfCookieName)
		if cookie == nil || body["token"] != cookie.Value {
			t.Errorf("token = %q, cookie = %v", body["token"], cookie)
		}
	})

	t.Run("既存Cookieを返す", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil)
		req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "existing"})
		w := httptest.NewRecorder()
		NewCSRFTokenHandler(CSRFConfig{}).ServeHTTP(w, req)

		var body map[string]string
		json.NewDecoder(w.Body).Decode(&body)
		if body["token"] != "existing" {
			t.Errorf("token = %q, want %q", body["token"], "existing")
		}
		if ct := w.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
	})
}
