package handler

import (
	"context"
	"errors"

	"github.com/hitoshi/devflow/internal/middleware"
	"github.com/hitoshi/devflow/internal/model"
	"github.com/hitoshi/devflow/internal/vote"
	"github.com/hitoshi/devflow/internal/widget"
)

// VoteCreator は投票ウィジェットのアクションが必要とする投票サービスのインターフェース。
type VoteCreator interface {
	CreateVote(ctx context.Context, authorID string, target model.VoteTarget, direction model.VoteDirection) (*vote.Result, error)
}

// VoteActionAdapter は vote.Service を widget.VoteAction に適合させるアダプタ。
// 成功時のDataには投票後のmodel.VoteStateを入れる。
type VoteActionAdapter struct {
	svc VoteCreator
}

// NewVoteActionAdapter はVoteActionAdapterを生成する。
func NewVoteActionAdapter(svc VoteCreator) *VoteActionAdapter {
	return &VoteActionAdapter{svc: svc}
}

// CreateVote は投票を適用する。
func (a *VoteActionAdapter) CreateVote(ctx context.Context, params widget.VoteParams) (model.ActionResponse, error) {
	result, err := a.svc.CreateVote(ctx, params.AuthorID, model.VoteTarget{
		TargetID:   params.TargetID,
		TargetKind: params.TargetKind,
	}, params.VoteType)
	if err != nil {
		return actionFailure(err)
	}
	return model.Succeeded(result.State), nil
}

// SaveToggler は保存ウィジェットのアクションが必要とするコレクションサービスのインターフェース。
type SaveToggler interface {
	ToggleSaveQuestion(ctx context.Context, userID, questionID string) (bool, error)
}

// SaveActionAdapter は collection.Service を widget.SaveAction に適合させるアダプタ。
// 成功時のDataには切り替え後の保存状態（bool）を入れる。
type SaveActionAdapter struct {
	svc SaveToggler
}

// NewSaveActionAdapter はSaveActionAdapterを生成する。
func NewSaveActionAdapter(svc SaveToggler) *SaveActionAdapter {
	return &SaveActionAdapter{svc: svc}
}

// ToggleSaveQuestion は質問の保存状態を切り替える。
func (a *SaveActionAdapter) ToggleSaveQuestion(ctx context.Context, params widget.SaveParams) (model.ActionResponse, error) {
	saved, err := a.svc.ToggleSaveQuestion(ctx, params.UserID, params.QuestionID)
	if err != nil {
		return actionFailure(err)
	}
	return model.Succeeded(saved), nil
}

// actionFailure はサービスのエラーをアクションの戻り値に変換する。
// APIErrorは失敗レスポンス、それ以外は予期しないエラーとしてそのまま返す。
func actionFailure(err error) (model.ActionResponse, error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return model.Failed(middleware.StatusForAPIError(apiErr), apiErr.Message), nil
	}
	return model.ActionResponse{}, err
}

// --- compile-time interface checks ---

var _ widget.VoteAction = (*VoteActionAdapter)(nil)
var _ widget.SaveAction = (*SaveActionAdapter)(nil)
