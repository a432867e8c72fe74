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

// 投票ウィジェットの通知メッセージ
const (
	MsgLoginToVote     = "Please login to vote"
	MsgVoteFailed      = "Failed to vote"
	MsgVoteUnexpected  = "Something went wrong. Please try again."
	MsgUpvoteAdded     = "Upvote added"
	MsgUpvoteRemoved   = "Upvote removed"
	MsgDownvoteAdded   = "Downvote added"
	MsgDownvoteRemoved = "Downvote removed"
)

// VoteParams は投票アクションへの入力。
type VoteParams struct {
	AuthorID   string
	TargetID   string
	TargetKind model.TargetKind
	VoteType   model.VoteDirection
}

// VoteAction は投票を作成・切り替え・取り消しする外部アクション。
// 成功時のDataには更新後のmodel.VoteStateが入ることがある。
type VoteAction interface {
	CreateVote(ctx context.Context, params VoteParams) (model.ActionResponse, error)
}

// VoteActionFunc は関数をVoteActionとして扱うためのアダプター。
type VoteActionFunc func(ctx context.Context, params VoteParams) (model.ActionResponse, error)

// CreateVote はf(ctx, params)を呼び出す。
func (f VoteActionFunc) CreateVote(ctx context.Context, params VoteParams) (model.ActionResponse, error) {
	return f(ctx, params)
}

// Votes は1つの投票対象に対する投票ウィジェット。
// 表示用の件数と投票状況は呼び出し側が毎回スナップショットとして渡し、
// ウィジェット自身は送信中フラグのみを保持する。
type Votes struct {
	target   model.VoteTarget
	identity model.Identity
	action   VoteAction
	logger   *slog.Logger

	submitting atomic.Bool
}

// NewVotes は投票ウィジェットを生成する。
func NewVotes(target model.VoteTarget, identity model.Identity, action VoteAction) *Votes {
	return &Votes{
		target:   target,
		identity: identity,
		action:   action,
		logger:   slog.Default(),
	}
}

// Target は投票対象を返す。
func (v *Votes) Target() model.VoteTarget {
	return v.target
}

// IsSubmitting は投票リクエストの処理中かどうかを返す。
func (v *Votes) IsSubmitting() bool {
	return v.submitting.Load()
}

// Vote は投票ボタンのクリックを処理する。
//
// 未ログインの場合はエラー通知のみ行い、送信中の場合は何もしない。
// それ以外は投票アクションをちょうど1回呼び出し、結果を通知する。
// stateはクリック時点の表示状態で、通知文言の決定にのみ使う。
func (v *Votes) Vote(ctx context.Context, sink notify.Sink, direction model.VoteDirection, state model.VoteState) Result {
	if !v.identity.SignedIn() {
		sink.Error(MsgLoginToVote)
		return Result{Outcome: OutcomeUnauthorized}
	}
	if !v.submitting.CompareAndSwap(false, true) {
		return Result{Outcome: OutcomeIgnored}
	}
	defer v.submitting.Store(false)

	resp, err := v.action.CreateVote(ctx, VoteParams{
		AuthorID:   v.identity.UserID(),
		TargetID:   v.target.TargetID,
		TargetKind: v.target.TargetKind,
		VoteType:   direction,
	})
	if err != nil {
		v.logger.Error("vote action failed",
			slog.String("target_id", v.target.TargetID),
			slog.String("target_kind", string(v.target.TargetKind)),
			slog.String("vote_type", string(direction)),
			slog.String("error", err.Error()),
		)
		sink.Error(MsgVoteUnexpected)
		return Result{Outcome: OutcomeFailed}
	}

	if !resp.Success {
		msg := resp.ErrorMessage()
		if msg == "" {
			msg = MsgVoteFailed
		}
		sink.Error(msg)
		return Result{Outcome: OutcomeFailed, Response: resp}
	}

	sink.Success(voteMessage(direction, state))
	return Result{Outcome: OutcomeSucceeded, Response: resp}
}

// voteMessage はクリック前の投票状況から成功通知の文言を決める。
func voteMessage(direction model.VoteDirection, state model.VoteState) string {
	if direction == model.VoteUp {
		if state.Upvoted() {
			return MsgUpvoteRemoved
		}
		return MsgUpvoteAdded
	}
	if state.Downvoted() {
		return MsgDownvoteRemoved
	}
	return MsgDownvoteAdded
}

// RenderOptions はウィジェットのレンダリング時にリクエストごとに変わる値。
type RenderOptions struct {
	CSRFToken string
	// ReturnTo は処理後のリダイレクト先。空の場合はリファラーに戻る。
	ReturnTo string
}

type voteButtonView struct {
	VoteType string
	Icon     string
	Alt      string
	Count    string
}

type votesView struct {
	Action     string
	CSRFToken  string
	ReturnTo   string
	Submitting bool
	Buttons    []voteButtonView
}

var votesTemplate = template.Must(template.New("votes").Parse(`<div class="flex-center gap-2.5{{if .Submitting}} opacity-50{{end}}" data-votes>
{{- range .Buttons}}
<form method="post" action="{{$.Action}}" class="flex-center gap-1.5">
<input type="hidden" name="csrf_token" value="{{$.CSRFToken}}">
<input type="hidden" name="vote_type" value="{{.VoteType}}">
{{- if $.ReturnTo}}
<input type="hidden" name="return_to" value="{{$.ReturnTo}}">
{{- end}}
<button type="submit" class="cursor-pointer" aria-label="{{.Alt}}"><img src="{{.Icon}}" width="18" height="18" alt="{{.Alt}}"></button>
<div class="flex-center background-light700_dark400 min-w-5 rounded-sm p-1">
<p class="subtle-medium text-dark400_light900" data-count="{{.VoteType}}">{{.Count}}</p>
</div>
</form>
{{- end}}
</div>
`))

// Render は投票ウィジェットをHTMLとして書き出す。
// 送信中は全体が半透明になるが、ボタン自体は無効化しない。
func (v *Votes) Render(w io.Writer, state model.VoteState, opts RenderOptions) error {
	upIcon, downIcon := "/icons/upvote.svg", "/icons/downvote.svg"
	if state.Upvoted() {
		upIcon = "/icons/upvoted.svg"
	}
	if state.Downvoted() {
		downIcon = "/icons/downvoted.svg"
	}

	view := votesView{
		Action:     voteRoute(v.target),
		CSRFToken:  opts.CSRFToken,
		ReturnTo:   opts.ReturnTo,
		Submitting: v.IsSubmitting(),
		Buttons: []voteButtonView{
			{VoteType: string(model.VoteUp), Icon: upIcon, Alt: "upvote", Count: FormatNumber(state.Upvotes)},
			{VoteType: string(model.VoteDown), Icon: downIcon, Alt: "downvote", Count: FormatNumber(state.Downvotes)},
		},
	}
	return votesTemplate.Execute(w, view)
}

func voteRoute(target model.VoteTarget) string {
	if target.TargetKind == model.TargetAnswer {
		return routes.AnswerVotes(target.TargetID)
	}
	return routes.QuestionVotes(target.TargetID)
}
