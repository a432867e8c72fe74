package handler

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/hitoshi/devflow/internal/auth"
	"github.com/hitoshi/devflow/internal/form"
	"github.com/hitoshi/devflow/internal/metrics"
	"github.com/hitoshi/devflow/internal/middleware"
	"github.com/hitoshi/devflow/internal/model"
	"github.com/hitoshi/devflow/internal/notify"
	"github.com/hitoshi/devflow/internal/routes"
)

const oauthStateCookie = "oauth_state"

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	SignIn(ctx context.Context, email, password string) (*model.Session, error)
	SignUp(ctx context.Context, in auth.SignUpInput) (*model.Session, error)
	OAuthEnabled() bool
	GetLoginURL(state string) (string, error)
	HandleCallback(ctx context.Context, code string) (*model.Session, error)
	Logout(ctx context.Context, sessionID string) error
}

// AuthHandler はサインイン・サインアップ・OAuth・ログアウトのHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  CookieConfig
	forms   *Registries
	metrics metrics.MetricsCollector
	pages   pageRenderer
}

// NewAuthHandler はAuthHandlerを生成する。collectorはnilでもよい。
func NewAuthHandler(service AuthServiceInterface, config CookieConfig, registries *Registries, collector metrics.MetricsCollector) *AuthHandler {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &AuthHandler{
		service: service,
		config:  config,
		forms:   registries,
		metrics: collector,
		pages:   pageRenderer{cookies: config},
	}
}

type authPage struct {
	Heading     string
	Subheading  string
	Form        template.HTML
	GoogleLogin string
}

// SignInPage はサインインフォームを表示する。
// GET /sign-in
func (h *AuthHandler) SignInPage(w http.ResponseWriter, r *http.Request) {
	h.showForm(w, r, form.KindSignIn)
}

// SignUpPage はサインアップフォームを表示する。
// GET /sign-up
func (h *AuthHandler) SignUpPage(w http.ResponseWriter, r *http.Request) {
	h.showForm(w, r, form.KindSignUp)
}

// SignIn はサインインフォームの送信を処理する。
// POST /sign-in
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	h.submitForm(w, r, form.KindSignIn)
}

// SignUp はサインアップフォームの送信を処理する。
// POST /sign-up
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	h.submitForm(w, r, form.KindSignUp)
}

func (h *AuthHandler) showForm(w http.ResponseWriter, r *http.Request, kind form.Kind) {
	if middleware.IdentityFromContext(r.Context()).SignedIn() {
		http.Redirect(w, r, routes.Home, http.StatusSeeOther)
		return
	}
	f, err := h.peekForm(r, kind)
	if err != nil {
		h.renderBuildError(w, r, err)
		return
	}
	h.renderForm(w, r, http.StatusOK, f, nil)
}

func (h *AuthHandler) submitForm(w http.ResponseWriter, r *http.Request, kind form.Kind) {
	if err := r.ParseForm(); err != nil {
		f, err := h.peekForm(r, kind)
		if err != nil {
			h.renderBuildError(w, r, err)
			return
		}
		h.renderForm(w, r, http.StatusBadRequest, f, nil)
		return
	}

	// パスワード表示の切り替えは送信しない
	if r.PostFormValue("toggle_password") != "" {
		f, err := h.newForm(kind)
		if err != nil {
			h.renderBuildError(w, r, err)
			return
		}
		f.SetValues(formInput(r, f))
		f.SetShowPassword(r.PostFormValue("show_password") == "1")
		f.TogglePassword()
		h.renderForm(w, r, http.StatusOK, f, nil)
		return
	}

	// 送信中だけ登録し、同じクライアントの同時送信を1つのインスタンスに集約する
	key := formKey(r, kind)
	f, err := lookup(h.forms.Forms, key, func() (*form.Form, error) {
		return h.newForm(kind)
	})
	if err != nil {
		h.renderBuildError(w, r, err)
		return
	}
	input := formInput(r, f)
	f.SetShowPassword(r.PostFormValue("show_password") == "1")

	rec := notify.NewRecorder()
	result := f.Submit(r.Context(), input, notify.Tee(rec, metrics.NotificationSink(h.metrics)), rec)
	h.metrics.RecordFormSubmission(string(kind), result.Outcome.String())
	if key != "" && result.Outcome != form.OutcomeIgnored {
		h.forms.Forms.DeleteIdle(key)
	}

	switch result.Outcome {
	case form.OutcomeSucceeded:
		session, ok := result.Response.Data.(*model.Session)
		if !ok || session == nil {
			slog.Error("auth form succeeded without a session", slog.String("form_kind", string(kind)))
			h.pages.renderError(w, r, http.StatusInternalServerError, "Something went wrong", "Please try again later.")
			return
		}
		setSessionCookie(w, h.config, session)
		to, ok := rec.LastRoute()
		if !ok {
			to = routes.Home
		}
		redirectWithFlash(w, r, h.config, to, rec.Notifications())
	case form.OutcomeIgnored:
		h.renderForm(w, r, http.StatusConflict, f, nil)
	case form.OutcomeInvalid:
		h.renderForm(w, r, http.StatusUnprocessableEntity, f, nil)
	default:
		status := result.Response.Status
		if status == 0 {
			status = http.StatusInternalServerError
		}
		h.renderForm(w, r, status, f, rec.Notifications())
	}
}

func (h *AuthHandler) renderForm(w http.ResponseWriter, r *http.Request, status int, f *form.Form, toasts []notify.Notification) {
	var buf bytes.Buffer
	if err := f.Render(&buf, form.RenderOptions{CSRFToken: middleware.CSRFTokenFromContext(r.Context())}); err != nil {
		slog.Error("failed to render auth form", slog.String("error", err.Error()))
		h.pages.renderError(w, r, http.StatusInternalServerError, "Something went wrong", "Please try again later.")
		return
	}

	page := authPage{Form: template.HTML(buf.String())}
	title := "Sign In"
	if f.Kind() == form.KindSignIn {
		page.Heading = "Sign In"
		page.Subheading = "to continue to DevFlow"
	} else {
		title = "Sign Up"
		page.Heading = "Create your account"
		page.Subheading = "to continue to DevFlow"
	}
	if h.service.OAuthEnabled() {
		page.GoogleLogin = "/auth/google/login"
	}
	h.pages.render(w, r, status, title, "auth", page, toasts)
}

func (h *AuthHandler) newForm(kind form.Kind) (*form.Form, error) {
	return form.New(h.descriptor(kind))
}

// peekForm は送信中のフォームがあればそれを、なければ登録せずに新しいフォームを返す。
func (h *AuthHandler) peekForm(r *http.Request, kind form.Kind) (*form.Form, error) {
	if key := formKey(r, kind); key != "" {
		if f, ok := h.forms.Forms.Get(key); ok {
			return f, nil
		}
	}
	return h.newForm(kind)
}

func (h *AuthHandler) renderBuildError(w http.ResponseWriter, r *http.Request, err error) {
	slog.Error("failed to build auth form", slog.String("error", err.Error()))
	h.pages.renderError(w, r, http.StatusInternalServerError, "Something went wrong", "Please try again later.")
}

func formKey(r *http.Request, kind form.Kind) string {
	key := clientKey(r)
	if key == "" {
		return ""
	}
	return key + ":" + string(kind)
}

// descriptor はフォーム種別ごとのスキーマ・入力欄・送信関数を組み立てる。
func (h *AuthHandler) descriptor(kind form.Kind) form.Descriptor {
	if kind == form.KindSignIn {
		return form.Descriptor{
			Kind:          form.KindSignIn,
			Schema:        form.SignInSchema(),
			Fields:        form.SignInFields,
			DefaultValues: form.DefaultsFor(form.SignInFields),
			Submit: func(ctx context.Context, values form.Values) (form.SubmissionResult, error) {
				return sessionResult(h.service.SignIn(ctx, values["email"], values["password"]))
			},
		}
	}
	return form.Descriptor{
		Kind:          form.KindSignUp,
		Schema:        form.SignUpSchema(),
		Fields:        form.SignUpFields,
		DefaultValues: form.DefaultsFor(form.SignUpFields),
		Submit: func(ctx context.Context, values form.Values) (form.SubmissionResult, error) {
			return sessionResult(h.service.SignUp(ctx, auth.SignUpInput{
				Name:     values["name"],
				Username: values["username"],
				Email:    values["email"],
				Password: values["password"],
			}))
		},
	}
}

// sessionResult は認証サービスの戻り値をフォームの送信結果に変換する。
// APIErrorはユーザーに表示する失敗、それ以外のエラーは予期しないエラーとして返す。
func sessionResult(session *model.Session, err error) (form.SubmissionResult, error) {
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			return model.Failed(middleware.StatusForAPIError(apiErr), apiErr.Message), nil
		}
		return form.SubmissionResult{}, err
	}
	return model.Succeeded(session), nil
}

// formInput はリクエストからフォームの入力欄に対応する値だけを取り出す。
func formInput(r *http.Request, f *form.Form) form.Values {
	values := form.Values{}
	for _, field := range f.Fields() {
		if _, ok := r.PostForm[field.Name]; ok {
			values[field.Name] = r.PostForm.Get(field.Name)
		}
	}
	return values
}

// GoogleLogin はGoogle OAuthフローを開始する。
// GET /auth/google/login
func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	if !h.service.OAuthEnabled() {
		http.NotFound(w, r)
		return
	}

	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	url, err := h.service.GetLoginURL(state)
	if err != nil {
		slog.Error("failed to build oauth login url", slog.String("error", err.Error()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	// stateをCookieに保存（CSRF対策）
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10分
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

// GoogleCallback はOAuthコールバックを処理する。
// GET /auth/google/callback?code=xxx&state=yyy
func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	// 1. stateの検証（CSRF対策）
	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || state == "" || stateCookie.Value != state {
		slog.Warn("oauth state mismatch",
			slog.String("query_state", state),
		)
		http.Error(w, "invalid state parameter", http.StatusBadRequest)
		return
	}

	// stateクッキーを削除
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	// 2. 認可コードの取得
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing authorization code", http.StatusBadRequest)
		return
	}

	// 3. 認証処理
	session, err := h.service.HandleCallback(r.Context(), code)
	if err != nil {
		slog.Error("oauth callback failed", slog.String("error", err.Error()))
		h.metrics.RecordFormSubmission("OAUTH", "failed")
		redirectWithFlash(w, r, h.config, routes.SignIn, []notify.Notification{
			{Kind: notify.KindError, Message: form.MsgGenericFailed},
		})
		return
	}
	h.metrics.RecordFormSubmission("OAUTH", "succeeded")

	// 4. セッションCookieを設定してトップへ
	setSessionCookie(w, h.config, session)
	redirectWithFlash(w, r, h.config, routes.Home, []notify.Notification{
		{Kind: notify.KindSuccess, Message: form.MsgSignedIn},
	})
}

// Logout はセッションを破棄する。
// POST /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if sessionID := middleware.SessionIDFromContext(r.Context()); sessionID != "" {
		if err := h.service.Logout(r.Context(), sessionID); err != nil {
			slog.Error("failed to logout", slog.String("error", err.Error()))
			// ログアウト失敗してもCookieはクリアする
		}
	}

	clearSessionCookie(w, h.config)
	http.Redirect(w, r, routes.Home, http.StatusSeeOther)
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
