package widget

import (
	"context"
	"html/template"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/hitoshi/devflow/internal/model"
	"github.com/hitoshi/devflow/internal/notify"
	"github.com/hitoshi/devflow/internal/routes"
)

// 質問保存ウィジェットの通知メッセージ
const (
	MsgLoginToSave   = "You need to be logged in to save a question"
	MsgQuestionSaved = "Question saved to your collection"
	MsgQuestionUnset = "Question removed from your collection"
	MsgSaveFailed    = "Something went wrong"
)

// SaveParams は質問保存アクションへの入力。
type SaveParams struct {
	UserID     string
	QuestionID string
}

// SaveAction はコレクションへの質問の保存・解除を切り替える外部アクション。
// 成功時のDataには切り替え後の保存状態（bool）が入ることがある。
type SaveAction interface {
	ToggleSaveQuestion(ctx context.Context, params SaveParams) (model.ActionResponse, error)
}

// SaveActionFunc は関数をSaveActionとして扱うためのアダプター。
type SaveActionFunc func(ctx context.Context, params SaveParams) (model.ActionResponse, error)

// ToggleSaveQuestion はf(ctx, params)を呼び出す。
func (f SaveActionFunc) ToggleSaveQuestion(ctx context.Context, params SaveParams) (model.ActionResponse, error) {
	return f(ctx, params)
}

// SaveQuestion は1つの質問に対する保存ウィジェット。
type SaveQuestion struct {
	questionID string
	identity   model.Identity
	action     SaveAction
	logger     *slog.Logger

	submitting atomic.Bool
}

// NewSaveQuestion は質問保存ウィジェットを生成する。
func NewSaveQuestion(questionID string, identity model.Identity, action SaveAction) *SaveQuestion {
	return &SaveQuestion{
		questionID: questionID,
		identity:   identity,
		action:     action,
		logger:     slog.Default(),
	}
}

// IsSubmitting は保存リクエストの処理中かどうかを返す。
func (s *SaveQuestion) IsSubmitting() bool {
	return s.submitting.Load()
}

// Toggle は保存ボタンのクリックを処理する。
// 投票ウィジェットとは逆に、送信中の判定を未ログインの判定より先に行う。
// hasSavedはクリック時点の保存状態で、通知文言の決定にのみ使う。
func (s *SaveQuestion) Toggle(ctx context.Context, sink notify.Sink, hasSaved bool) Result {
	if s.submitting.Load() {
		return Result{Outcome: OutcomeIgnored}
	}
	if !s.identity.SignedIn() {
		sink.Error(MsgLoginToSave)
		return Result{Outcome: OutcomeUnauthorized}
	}
	if !s.submitting.CompareAndSwap(false, true) {
		return Result{Outcome: OutcomeIgnored}
	}
	defer s.submitting.Store(false)

	resp, err := s.action.ToggleSaveQuestion(ctx, SaveParams{
		UserID:     s.identity.UserID(),
		QuestionID: s.questionID,
	})
	if err != nil {
		s.logger.Error("save question action failed",
			slog.String("question_id", s.questionID),
			slog.String("error", err.Error()),
		)
		sink.Error(MsgSaveFailed)
		return Result{Outcome: OutcomeFailed}
	}

	if !resp.Success {
		msg := resp.ErrorMessage()
		if msg == "" {
			msg = MsgSaveFailed
		}
		sink.Error(msg)
		return Result{Outcome: OutcomeFailed, Response: resp}
	}

	if hasSaved {
		sink.Success(MsgQuestionUnset)
	} else {
		sink.Success(MsgQuestionSaved)
	}
	return Result{Outcome: OutcomeSucceeded, Response: resp}
}

var saveTemplate = template.Must(template.New("save").Parse(`<form method="post" action="{{.Action}}" class="{{if .Submitting}}opacity-50{{end}}" data-save-question>
<input type="hidden" name="csrf_token" value="{{.CSRFToken}}">
<input type="hidden" name="saved" value="{{if .Saved}}1{{else}}0{{end}}">
{{- if .ReturnTo}}
<input type="hidden" name="return_to" value="{{.ReturnTo}}">
{{- end}}
<button type="submit" class="cursor-pointer" aria-label="Save question"><img src="{{.Icon}}" width="18" height="18" alt="save"></button>
</form>
`))

// Render は保存ボタンをHTMLとして書き出す。
func (s *SaveQuestion) Render(w io.Writer, hasSaved bool, opts RenderOptions) error {
	icon := "/icons/star-red.svg"
	if hasSaved {
		icon = "/icons/star-filled.svg"
	}
	return saveTemplate.Execute(w, struct {
		Action     string
		CSRFToken  string
		ReturnTo   string
		Saved      bool
		Submitting bool
		Icon       string
	}{
		Action:     routes.QuestionSave(s.questionID),
		CSRFToken:  opts.CSRFToken,
		ReturnTo:   opts.ReturnTo,
		Saved:      hasSaved,
		Submitting: s.IsSubmitting(),
		Icon:       icon,
	})
}
