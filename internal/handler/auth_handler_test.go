package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/hitoshi/devflow/internal/auth"
	"github.com/hitoshi/devflow/internal/form"
	"github.com/hitoshi/devflow/internal/middleware"
	"github.com/hitoshi/devflow/internal/model"
	"github.com/hitoshi/devflow/internal/notify"
	"github.com/hitoshi/devflow/internal/routes"
)

// --- モック定義 ---

// mockAuthService はAuthServiceInterfaceのモック実装。
type mockAuthService struct {
	signInFn         func(ctx context.Context, email, password string) (*model.Session, error)
	signUpFn         func(ctx context.Context, in auth.SignUpInput) (*model.Session, error)
	oauthEnabled     bool
	getLoginURLFn    func(state string) (string, error)
	handleCallbackFn func(ctx context.Context, code string) (*model.Session, error)
	logoutFn         func(ctx context.Context, sessionID string) error
}

func (m *mockAuthService) SignIn(ctx context.Context, email, password string) (*model.Session, error) {
	if m.signInFn != nil {
		return m.signInFn(ctx, email, password)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAuthService) SignUp(ctx context.Context, in auth.SignUpInput) (*model.Session, error) {
	if m.signUpFn != nil {
		return m.signUpFn(ctx, in)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAuthService) OAuthEnabled() bool { return m.oauthEnabled }

func (m *mockAuthService) GetLoginURL(state string) (string, error) {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(state)
	}
	return "https://accounts.google.com/o/oauth2/v2/auth?state=" + state, nil
}

func (m *mockAuthService) HandleCallback(ctx context.Context, code string) (*model.Session, error) {
	if m.handleCallbackFn != nil {
		return m.handleCallbackFn(ctx, code)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

func newTestAuthHandler(svc *mockAuthService) *AuthHandler {
	return NewAuthHandler(svc, testCookies, newTestRegistries(), nil)
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	return string(b)
}

// --- GET /sign-in, /sign-up ---

func TestAuthHandler_SignInPage(t *testing.T) {
	h := newTestAuthHandler(&mockAuthService{})

	req := withCSRF(httptest.NewRequest(http.MethodGet, routes.SignIn, nil), "tok-1")
	w := httptest.NewRecorder()
	h.SignInPage(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body := readBody(t, resp)

	// 入力欄は記述子の順序どおり
	emailAt := strings.Index(body, `name="email"`)
	passwordAt := strings.Index(body, `name="password"`)
	if emailAt < 0 || passwordAt < 0 || emailAt > passwordAt {
		t.Errorf("fields out of order or missing: email=%d password=%d", emailAt, passwordAt)
	}
	if !strings.Contains(body, `value="tok-1"`) {
		t.Error("CSRFトークンがフォームに埋め込まれていない")
	}
	if !strings.Contains(body, "Sign In") {
		t.Error("ボタン文言 Sign In がない")
	}
	if strings.Contains(body, "/auth/google/login") {
		t.Error("OAuth無効時にGoogleログインのリンクが表示された")
	}
}

func TestAuthHandler_SignUpPage_ShowsGoogleLoginWhenEnabled(t *testing.T) {
	h := newTestAuthHandler(&mockAuthService{oauthEnabled: true})

	req := withCSRF(httptest.NewRequest(http.MethodGet, routes.SignUp, nil), "tok-1")
	w := httptest.NewRecorder()
	h.SignUpPage(w, req)

	body := readBody(t, w.Result())
	for _, want := range []string{`name="username"`, `name="name"`, "Create your account", "/auth/google/login"} {
		if !strings.Contains(body, want) {
			t.Errorf("body should contain %q", want)
		}
	}
}

func TestAuthHandler_SignInPage_SignedInRedirectsHome(t *testing.T) {
	h := newTestAuthHandler(&mockAuthService{})

	req := withSession(httptest.NewRequest(http.MethodGet, routes.SignIn, nil), "sess-1", "user-1")
	w := httptest.NewRecorder()
	h.SignInPage(w, req)

	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != routes.Home {
		t.Errorf("status = %d, location = %q", w.Code, w.Header().Get("Location"))
	}
}

// --- POST /sign-in ---

func TestAuthHandler_SignIn_Success(t *testing.T) {
	var gotEmail, gotPassword string
	svc := &mockAuthService{
		signInFn: func(ctx context.Context, email, password string) (*model.Session, error) {
			gotEmail, gotPassword = email, password
			return &model.Session{ID: "new-session", UserID: "user-1"}, nil
		},
	}
	h := newTestAuthHandler(svc)

	req := withCSRF(postForm(routes.SignIn, url.Values{
		"email":    {"ada@example.com"},
		"password": {"secret1"},
	}), "tok-1")
	w := httptest.NewRecorder()
	h.SignIn(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != routes.Home {
		t.Errorf("Location = %q, want %q", loc, routes.Home)
	}
	if gotEmail != "ada@example.com" || gotPassword != "secret1" {
		t.Errorf("SignIn called with %q/%q", gotEmail, gotPassword)
	}

	session := findCookie(resp, middleware.SessionCookieName)
	if session == nil || session.Value != "new-session" || !session.HttpOnly {
		t.Fatalf("session cookie = %+v", session)
	}

	flash := flashFrom(t, resp)
	if len(flash) != 1 || flash[0] != (notify.Notification{Kind: notify.KindSuccess, Message: form.MsgSignedIn}) {
		t.Errorf("flash = %+v", flash)
	}

	// 成功したフォームのインスタンスは破棄される
	if h.forms.Forms.Len() != 0 {
		t.Errorf("Forms.Len() = %d, want 0", h.forms.Forms.Len())
	}
}

func TestAuthHandler_SignIn_InvalidInput_DoesNotCallService(t *testing.T) {
	called := false
	svc := &mockAuthService{
		signInFn: func(ctx context.Context, email, password string) (*model.Session, error) {
			called = true
			return nil, nil
		},
	}
	h := newTestAuthHandler(svc)

	req := withCSRF(postForm(routes.SignIn, url.Values{
		"email":    {"not-an-email"},
		"password": {"123"},
	}), "tok-1")
	w := httptest.NewRecorder()
	h.SignIn(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", resp.StatusCode)
	}
	if called {
		t.Error("検証エラー時にSignInが呼ばれた")
	}
	body := readBody(t, resp)
	for _, want := range []string{
		"Please provide a valid email address.",
		"Password must be at least 6 characters long.",
		`value="not-an-email"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body should contain %q", want)
		}
	}
	if findCookie(resp, middleware.SessionCookieName) != nil {
		t.Error("検証エラー時にセッションCookieが設定された")
	}
}

func TestAuthHandler_SignIn_Failures(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantToast  string
	}{
		{
			name:       "認証情報が誤っている場合はメッセージを通知する",
			err:        model.NewInvalidCredentialsError(),
			wantStatus: http.StatusUnauthorized,
			wantToast:  "Invalid email or password.",
		},
		{
			name:       "予期しないエラーは汎用メッセージを通知する",
			err:        errors.New("db down"),
			wantStatus: http.StatusInternalServerError,
			wantToast:  form.MsgGenericFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestAuthHandler(&mockAuthService{
				signInFn: func(ctx context.Context, email, password string) (*model.Session, error) {
					return nil, tt.err
				},
			})

			req := withCSRF(postForm(routes.SignIn, url.Values{
				"email":    {"ada@example.com"},
				"password": {"secret1"},
			}), "tok-1")
			w := httptest.NewRecorder()
			h.SignIn(w, req)

			resp := w.Result()
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			body := readBody(t, resp)
			if !strings.Contains(body, `data-kind="error"`) || !strings.Contains(body, tt.wantToast) {
				t.Errorf("error toast %q not rendered", tt.wantToast)
			}
			if findCookie(resp, middleware.SessionCookieName) != nil {
				t.Error("失敗時にセッションCookieが設定された")
			}
		})
	}
}

func TestAuthHandler_SignIn_TogglePassword(t *testing.T) {
	called := false
	h := newTestAuthHandler(&mockAuthService{
		signInFn: func(ctx context.Context, email, password string) (*model.Session, error) {
			called = true
			return nil, nil
		},
	})

	req := withCSRF(postForm(routes.SignIn, url.Values{
		"email":           {"ada@example.com"},
		"password":        {"secret1"},
		"show_password":   {"0"},
		"toggle_password": {"1"},
	}), "tok-1")
	w := httptest.NewRecorder()
	h.SignIn(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if called {
		t.Error("表示切り替えで送信された")
	}
	body := readBody(t, resp)
	if !strings.Contains(body, `name="password" type="text" value=""`) {
		t.Error("パスワード欄が平文表示になっていない")
	}
	if strings.Contains(body, "secret1") {
		t.Error("パスワードがHTMLに書き戻された")
	}
	if !strings.Contains(body, `value="ada@example.com"`) {
		t.Error("メールアドレスが保持されていない")
	}
	if h.forms.Forms.Len() != 0 {
		t.Errorf("表示切り替えでフォームが登録された: Forms.Len() = %d", h.forms.Forms.Len())
	}
	if !strings.Contains(body, "Hide password") {
		t.Error("トグルの文言が切り替わっていない")
	}
}

func TestAuthHandler_SignIn_FailedAttemptLeavesNoPassword(t *testing.T) {
	h := newTestAuthHandler(&mockAuthService{
		signInFn: func(ctx context.Context, email, password string) (*model.Session, error) {
			return nil, model.NewInvalidCredentialsError()
		},
	})

	req := withCSRF(postForm(routes.SignIn, url.Values{
		"email":    {"ada@example.com"},
		"password": {"S3cret!pass"},
	}), "tok-1")
	w := httptest.NewRecorder()
	h.SignIn(w, req)

	if body := readBody(t, w.Result()); strings.Contains(body, "S3cret!pass") {
		t.Error("失敗時のフォームにパスワードが書き戻された")
	}
	if h.forms.Forms.Len() != 0 {
		t.Errorf("送信完了後もフォームが残っている: Forms.Len() = %d", h.forms.Forms.Len())
	}

	// 同じクライアントの次の表示は空のフォーム
	get := withCSRF(httptest.NewRequest(http.MethodGet, routes.SignIn, nil), "tok-1")
	w = httptest.NewRecorder()
	h.SignInPage(w, get)

	body := readBody(t, w.Result())
	if strings.Contains(body, "S3cret!pass") || strings.Contains(body, "ada@example.com") {
		t.Error("新しい表示に前回の入力が残っている")
	}
	if !strings.Contains(body, `name="email" type="text" value=""`) {
		t.Error("メールアドレス欄が空で表示されていない")
	}
}

func TestAuthHandler_SignInPage_DoesNotRegisterForms(t *testing.T) {
	h := newTestAuthHandler(&mockAuthService{})

	for i := 0; i < 50; i++ {
		req := withCSRF(httptest.NewRequest(http.MethodGet, routes.SignIn, nil), fmt.Sprintf("tok-%d", i))
		h.SignInPage(httptest.NewRecorder(), req)
	}
	if n := h.forms.Forms.Len(); n != 0 {
		t.Errorf("Forms.Len() = %d, want 0", n)
	}
}

func TestAuthHandler_SignIn_ConcurrentSubmitCallsServiceOnce(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	h := newTestAuthHandler(&mockAuthService{
		signInFn: func(ctx context.Context, email, password string) (*model.Session, error) {
			calls.Add(1)
			close(entered)
			<-release
			return nil, model.NewInvalidCredentialsError()
		},
	})

	newReq := func() *http.Request {
		return withCSRF(postForm(routes.SignIn, url.Values{
			"email":    {"ada@example.com"},
			"password": {"secret1"},
		}), "tok-1")
	}

	first := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		h.SignIn(first, newReq())
		close(done)
	}()
	<-entered

	second := httptest.NewRecorder()
	h.SignIn(second, newReq())
	if second.Code != http.StatusConflict {
		t.Errorf("二重送信のstatus = %d, want 409", second.Code)
	}

	close(release)
	<-done

	if first.Code != http.StatusUnauthorized {
		t.Errorf("最初の送信のstatus = %d, want 401", first.Code)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("SignIn calls = %d, want 1", n)
	}
	if n := h.forms.Forms.Len(); n != 0 {
		t.Errorf("Forms.Len() = %d, want 0", n)
	}
}

// --- POST /sign-up ---

func TestAuthHandler_SignUp_Success(t *testing.T) {
	var got auth.SignUpInput
	h := newTestAuthHandler(&mockAuthService{
		signUpFn: func(ctx context.Context, in auth.SignUpInput) (*model.Session, error) {
			got = in
			return &model.Session{ID: "s-2", UserID: "u-2"}, nil
		},
	})

	req := withCSRF(postForm(routes.SignUp, url.Values{
		"email":    {"grace@example.com"},
		"password": {"Secret1!"},
		"name":     {"Grace Hopper"},
		"username": {"grace_h"},
	}), "tok-1")
	w := httptest.NewRecorder()
	h.SignUp(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", resp.StatusCode)
	}
	want := auth.SignUpInput{Name: "Grace Hopper", Username: "grace_h", Email: "grace@example.com", Password: "Secret1!"}
	if got != want {
		t.Errorf("SignUp input = %+v, want %+v", got, want)
	}
	flash := flashFrom(t, resp)
	if len(flash) != 1 || flash[0].Message != form.MsgSignedUp {
		t.Errorf("flash = %+v", flash)
	}
}

func TestAuthHandler_SignUp_EmailTaken(t *testing.T) {
	h := newTestAuthHandler(&mockAuthService{
		signUpFn: func(ctx context.Context, in auth.SignUpInput) (*model.Session, error) {
			return nil, model.NewEmailTakenError()
		},
	})

	req := withCSRF(postForm(routes.SignUp, url.Values{
		"email":    {"grace@example.com"},
		"password": {"Secret1!"},
		"name":     {"Grace Hopper"},
		"username": {"grace_h"},
	}), "tok-1")
	w := httptest.NewRecorder()
	h.SignUp(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
	if body := readBody(t, resp); !strings.Contains(body, "An account with this email already exists.") {
		t.Error("エラー通知が表示されていない")
	}
}

// --- OAuth ---

func TestAuthHandler_GoogleLogin(t *testing.T) {
	t.Run("OAuth無効時は404", func(t *testing.T) {
		h := newTestAuthHandler(&mockAuthService{})
		w := httptest.NewRecorder()
		h.GoogleLogin(w, httptest.NewRequest(http.MethodGet, "/auth/google/login", nil))
		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", w.Code)
		}
	})

	t.Run("stateをCookieに保存してリダイレクトする", func(t *testing.T) {
		var gotState string
		h := newTestAuthHandler(&mockAuthService{
			oauthEnabled: true,
			getLoginURLFn: func(state string) (string, error) {
				gotState = state
				return "https://accounts.google.com/o/oauth2/v2/auth?state=" + state, nil
			},
		})
		w := httptest.NewRecorder()
		h.GoogleLogin(w, httptest.NewRequest(http.MethodGet, "/auth/google/login", nil))

		resp := w.Result()
		if resp.StatusCode != http.StatusTemporaryRedirect {
			t.Fatalf("status = %d, want 307", resp.StatusCode)
		}
		c := findCookie(resp, oauthStateCookie)
		if c == nil || c.Value == "" || c.Value != gotState {
			t.Errorf("state cookie = %+v, state = %q", c, gotState)
		}
		if !strings.Contains(resp.Header.Get("Location"), "state="+gotState) {
			t.Errorf("Location = %q", resp.Header.Get("Location"))
		}
	})
}

func TestAuthHandler_GoogleCallback(t *testing.T) {
	t.Run("stateが一致しない場合は400", func(t *testing.T) {
		h := newTestAuthHandler(&mockAuthService{oauthEnabled: true})
		req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=c&state=a", nil)
		req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "b"})
		w := httptest.NewRecorder()
		h.GoogleCallback(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})

	t.Run("成功時はセッションCookieを設定してトップへ", func(t *testing.T) {
		h := newTestAuthHandler(&mockAuthService{
			oauthEnabled: true,
			handleCallbackFn: func(ctx context.Context, code string) (*model.Session, error) {
				if code != "auth-code" {
					t.Errorf("code = %q", code)
				}
				return &model.Session{ID: "oauth-session", UserID: "u-1"}, nil
			},
		})
		req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=auth-code&state=st", nil)
		req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "st"})
		w := httptest.NewRecorder()
		h.GoogleCallback(w, req)

		resp := w.Result()
		if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != routes.Home {
			t.Fatalf("status = %d, location = %q", resp.StatusCode, resp.Header.Get("Location"))
		}
		if c := findCookie(resp, middleware.SessionCookieName); c == nil || c.Value != "oauth-session" {
			t.Errorf("session cookie = %+v", c)
		}
		if flash := flashFrom(t, resp); len(flash) != 1 || flash[0].Message != form.MsgSignedIn {
			t.Errorf("flash = %+v", flash)
		}
	})

	t.Run("失敗時はサインイン画面へ戻してエラーを通知する", func(t *testing.T) {
		h := newTestAuthHandler(&mockAuthService{
			oauthEnabled: true,
			handleCallbackFn: func(ctx context.Context, code string) (*model.Session, error) {
				return nil, errors.New("exchange failed")
			},
		})
		req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=c&state=st", nil)
		req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "st"})
		w := httptest.NewRecorder()
		h.GoogleCallback(w, req)

		resp := w.Result()
		if resp.Header.Get("Location") != routes.SignIn {
			t.Errorf("Location = %q, want %q", resp.Header.Get("Location"), routes.SignIn)
		}
		if flash := flashFrom(t, resp); len(flash) != 1 || flash[0].Kind != notify.KindError {
			t.Errorf("flash = %+v", flash)
		}
	})
}

// --- POST /logout ---

func TestAuthHandler_Logout(t *testing.T) {
	var loggedOut string
	h := newTestAuthHandler(&mockAuthService{
		logoutFn: func(ctx context.Context, sessionID string) error {
			loggedOut = sessionID
			return errors.New("already gone")
		},
	})

	req := withSession(httptest.NewRequest(http.MethodPost, routes.Logout, nil), "sess-9", "user-9")
	w := httptest.NewRecorder()
	h.Logout(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusSeeOther {
		t.Errorf("status = %d, want 303", resp.StatusCode)
	}
	if loggedOut != "sess-9" {
		t.Errorf("Logout called with %q", loggedOut)
	}
	// 削除に失敗してもCookieはクリアする
	c := findCookie(resp, middleware.SessionCookieName)
	if c == nil || c.MaxAge >= 0 {
		t.Errorf("session cookie not cleared: %+v", c)
	}
}
