package handler

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/devflow/internal/metrics"
	"github.com/hitoshi/devflow/internal/middleware"
	"github.com/hitoshi/devflow/internal/model"
	"github.com/hitoshi/devflow/internal/notify"
	"github.com/hitoshi/devflow/internal/question"
	"github.com/hitoshi/devflow/internal/routes"
	"github.com/hitoshi/devflow/internal/user"
	"github.com/hitoshi/devflow/internal/widget"
)

// QuestionServiceInterface は質問ハンドラーが必要とするサービスインターフェース。
type QuestionServiceInterface interface {
	ListRecent(ctx context.Context, limit int) ([]question.Summary, error)
	Get(ctx context.Context, id, viewerID string) (*question.Detail, error)
	VoteState(ctx context.Context, viewerID string, target model.VoteTarget) (model.VoteState, error)
}

// SavedLookup は閲覧者の保存状況を参照するインターフェース。
type SavedLookup interface {
	HasSaved(ctx context.Context, userID, questionID string) (bool, error)
}

// ProfileLookup はトップページのあいさつに使うプロフィールの参照インターフェース。
type ProfileLookup interface {
	GetProfile(ctx context.Context, userID string) (*user.Profile, error)
}

// QuestionHandlerDeps はQuestionHandlerの依存関係。
type QuestionHandlerDeps struct {
	Questions  QuestionServiceInterface
	Saved      SavedLookup
	Profiles   ProfileLookup
	VoteAction widget.VoteAction
	SaveAction widget.SaveAction
	Registries *Registries
	Metrics    metrics.MetricsCollector
	Cookies    CookieConfig
}

// QuestionHandler は質問の一覧・詳細と投票・保存ウィジェットのHTTPハンドラー。
type QuestionHandler struct {
	questions  QuestionServiceInterface
	saved      SavedLookup
	profiles   ProfileLookup
	voteAction widget.VoteAction
	saveAction widget.SaveAction
	registries *Registries
	metrics    metrics.MetricsCollector
	cookies    CookieConfig
	pages      pageRenderer
}

// NewQuestionHandler はQuestionHandlerを生成する。
func NewQuestionHandler(deps QuestionHandlerDeps) *QuestionHandler {
	collector := deps.Metrics
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &QuestionHandler{
		questions:  deps.Questions,
		saved:      deps.Saved,
		profiles:   deps.Profiles,
		voteAction: deps.VoteAction,
		saveAction: deps.SaveAction,
		registries: deps.Registries,
		metrics:    collector,
		cookies:    deps.Cookies,
		pages:      pageRenderer{cookies: deps.Cookies},
	}
}

type homePage struct {
	Name      string
	Questions []question.Summary
}

// Home はトップページを表示する。
// GET /
func (h *QuestionHandler) Home(w http.ResponseWriter, r *http.Request) {
	page := homePage{}

	identity := middleware.IdentityFromContext(r.Context())
	if identity.SignedIn() && h.profiles != nil {
		profile, err := h.profiles.GetProfile(r.Context(), identity.UserID())
		if err != nil {
			// あいさつが出せないだけなので一覧は表示する
			slog.Warn("failed to load profile",
				slog.String("user_id", identity.UserID()),
				slog.String("error", err.Error()),
			)
		} else {
			page.Name = profile.Name
		}
	}

	questions, err := h.questions.ListRecent(r.Context(), question.DefaultListLimit)
	if err != nil {
		slog.Error("failed to list questions", slog.String("error", err.Error()))
		h.pages.renderError(w, r, http.StatusInternalServerError, "Something went wrong", "Please try again later.")
		return
	}
	page.Questions = questions

	h.pages.render(w, r, http.StatusOK, "Home", "home", page, nil)
}

type answerView struct {
	ID        string
	Content   template.HTML
	Votes     template.HTML
	CreatedAt time.Time
}

type questionPage struct {
	Title     string
	Content   template.HTML
	Votes     template.HTML
	Save      template.HTML
	Views     int
	CreatedAt time.Time
	Answers   []answerView
}

// Question は質問の詳細ページを表示する。
// GET /questions/{id}
func (h *QuestionHandler) Question(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	identity := middleware.IdentityFromContext(r.Context())

	detail, err := h.questions.Get(r.Context(), id, identity.UserID())
	if err != nil {
		h.renderServiceError(w, r, err)
		return
	}

	opts := widget.RenderOptions{
		CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
		ReturnTo:  routes.Question(detail.ID),
	}

	page := questionPage{
		Title:     detail.Title,
		Content:   template.HTML(detail.ContentHTML), // サニタイズ済み
		Views:     detail.Views,
		CreatedAt: detail.CreatedAt,
		Answers:   make([]answerView, 0, len(detail.Answers)),
	}

	target := model.VoteTarget{TargetID: detail.ID, TargetKind: model.TargetQuestion}
	if page.Votes, err = renderHTML(func(buf *bytes.Buffer) error {
		return h.peekVotes(r, target).Render(buf, detail.Votes, opts)
	}); err != nil {
		h.renderFailure(w, r, err)
		return
	}
	if page.Save, err = renderHTML(func(buf *bytes.Buffer) error {
		return h.peekSave(r, detail.ID).Render(buf, detail.Saved, opts)
	}); err != nil {
		h.renderFailure(w, r, err)
		return
	}

	for _, a := range detail.Answers {
		answerTarget := model.VoteTarget{TargetID: a.ID, TargetKind: model.TargetAnswer}
		votes, err := renderHTML(func(buf *bytes.Buffer) error {
			return h.peekVotes(r, answerTarget).Render(buf, a.Votes, opts)
		})
		if err != nil {
			h.renderFailure(w, r, err)
			return
		}
		page.Answers = append(page.Answers, answerView{
			ID:        a.ID,
			Content:   template.HTML(a.ContentHTML), // サニタイズ済み
			Votes:     votes,
			CreatedAt: a.CreatedAt,
		})
	}

	h.pages.render(w, r, http.StatusOK, detail.Title, "question", page, nil)
}

// VoteQuestion は質問への投票を処理する。
// POST /questions/{id}/votes
func (h *QuestionHandler) VoteQuestion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.vote(w, r, model.VoteTarget{TargetID: id, TargetKind: model.TargetQuestion}, routes.Question(id))
}

// VoteAnswer は回答への投票を処理する。
// POST /answers/{id}/votes
func (h *QuestionHandler) VoteAnswer(w http.ResponseWriter, r *http.Request) {
	h.vote(w, r, model.VoteTarget{TargetID: chi.URLParam(r, "id"), TargetKind: model.TargetAnswer}, routes.Home)
}

type voteResponse struct {
	Outcome       string                `json:"outcome"`
	Notifications []notify.Notification `json:"notifications"`
	State         model.VoteState       `json:"state"`
}

func (h *QuestionHandler) vote(w http.ResponseWriter, r *http.Request, target model.VoteTarget, fallback string) {
	direction := model.VoteDirection(r.PostFormValue("vote_type"))
	if !direction.Valid() {
		h.respondError(w, r, model.NewInvalidVoteError("unknown vote type"), fallback)
		return
	}

	identity := middleware.IdentityFromContext(r.Context())

	// 通知文言はクリック時点の投票状況で決まる
	state, err := h.questions.VoteState(r.Context(), identity.UserID(), target)
	if err != nil {
		h.respondError(w, r, err, fallback)
		return
	}

	votes, err := lookup(h.registries.Votes, widgetKey(r, "vote", string(target.TargetKind), target.TargetID), func() (*widget.Votes, error) {
		return widget.NewVotes(target, identity, h.voteAction), nil
	})
	if err != nil {
		h.respondError(w, r, err, fallback)
		return
	}

	rec := notify.NewRecorder()
	start := time.Now()
	result := votes.Vote(r.Context(), notify.Tee(rec, metrics.NotificationSink(h.metrics)), direction, state)
	h.metrics.RecordActionLatency("vote", time.Since(start))
	h.metrics.RecordVote(string(direction), result.Outcome.String())

	if next, ok := result.Response.Data.(model.VoteState); ok && result.Outcome == widget.OutcomeSucceeded {
		state = next
	}

	if !wantsJSON(r) {
		redirectWithFlash(w, r, h.cookies, returnTarget(r, fallback), rec.Notifications())
		return
	}
	writeJSON(w, outcomeStatus(result.Outcome), voteResponse{
		Outcome:       result.Outcome.String(),
		Notifications: rec.Notifications(),
		State:         state,
	})
}

type saveState struct {
	Saved bool `json:"saved"`
}

type saveResponse struct {
	Outcome       string                `json:"outcome"`
	Notifications []notify.Notification `json:"notifications"`
	State         saveState             `json:"state"`
}

// SaveQuestion は質問の保存・解除を処理する。
// POST /questions/{id}/save
func (h *QuestionHandler) SaveQuestion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	fallback := routes.Question(id)
	identity := middleware.IdentityFromContext(r.Context())

	hasSaved, err := h.saved.HasSaved(r.Context(), identity.UserID(), id)
	if err != nil {
		h.respondError(w, r, err, fallback)
		return
	}

	saver, err := lookup(h.registries.Saves, widgetKey(r, "save", id), func() (*widget.SaveQuestion, error) {
		return widget.NewSaveQuestion(id, identity, h.saveAction), nil
	})
	if err != nil {
		h.respondError(w, r, err, fallback)
		return
	}

	rec := notify.NewRecorder()
	start := time.Now()
	result := saver.Toggle(r.Context(), notify.Tee(rec, metrics.NotificationSink(h.metrics)), hasSaved)
	h.metrics.RecordActionLatency("save", time.Since(start))
	h.metrics.RecordSave(result.Outcome.String())

	saved := hasSaved
	if result.Outcome == widget.OutcomeSucceeded {
		if next, ok := result.Response.Data.(bool); ok {
			saved = next
		} else {
			saved = !hasSaved
		}
	}

	if !wantsJSON(r) {
		redirectWithFlash(w, r, h.cookies, returnTarget(r, fallback), rec.Notifications())
		return
	}
	writeJSON(w, outcomeStatus(result.Outcome), saveResponse{
		Outcome:       result.Outcome.String(),
		Notifications: rec.Notifications(),
		State:         saveState{Saved: saved},
	})
}

func (h *QuestionHandler) peekVotes(r *http.Request, target model.VoteTarget) *widget.Votes {
	return peek(h.registries.Votes, widgetKey(r, "vote", string(target.TargetKind), target.TargetID), func() *widget.Votes {
		return widget.NewVotes(target, middleware.IdentityFromContext(r.Context()), h.voteAction)
	})
}

func (h *QuestionHandler) peekSave(r *http.Request, questionID string) *widget.SaveQuestion {
	return peek(h.registries.Saves, widgetKey(r, "save", questionID), func() *widget.SaveQuestion {
		return widget.NewSaveQuestion(questionID, middleware.IdentityFromContext(r.Context()), h.saveAction)
	})
}

// respondError はウィジェット操作の前段で起きたエラーを返す。
// JSONの場合はAPIエラー、それ以外はエラー通知を積んで戻り先へリダイレクトする。
func (h *QuestionHandler) respondError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	if wantsJSON(r) {
		middleware.WriteServiceError(w, r, err)
		return
	}

	message := widget.MsgVoteUnexpected
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		message = apiErr.Message
	} else {
		slog.Error("widget request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	redirectWithFlash(w, r, h.cookies, returnTarget(r, fallback), []notify.Notification{
		{Kind: notify.KindError, Message: message},
	})
}

// renderServiceError はページ表示時のサービスエラーをエラーページとして返す。
func (h *QuestionHandler) renderServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		status := middleware.StatusForAPIError(apiErr)
		if status != http.StatusInternalServerError {
			h.pages.renderError(w, r, status, http.StatusText(status), apiErr.Message)
			return
		}
	}
	h.renderFailure(w, r, err)
}

func (h *QuestionHandler) renderFailure(w http.ResponseWriter, r *http.Request, err error) {
	slog.Error("failed to render question page",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	h.pages.renderError(w, r, http.StatusInternalServerError, "Something went wrong", "Please try again later.")
}

// widgetKey はクライアントと対象ごとのウィジェットのキーを返す。
func widgetKey(r *http.Request, parts ...string) string {
	key := clientKey(r)
	if key == "" {
		return ""
	}
	for _, p := range parts {
		key += ":" + p
	}
	return key
}

// outcomeStatus はウィジェットの結果をJSONレスポンスのステータスに変換する。
func outcomeStatus(o widget.Outcome) int {
	switch o {
	case widget.OutcomeUnauthorized:
		return http.StatusUnauthorized
	case widget.OutcomeIgnored:
		return http.StatusConflict
	default:
		return http.StatusOK
	}
}

func renderHTML(fn func(buf *bytes.Buffer) error) (template.HTML, error) {
	var buf bytes.Buffer
	if err := fn(&buf); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}
