// Package vote は質問・回答への投票のドメインロジックを提供する。
package vote

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/hitoshi/devflow/internal/model"
	"github.com/hitoshi/devflow/internal/repository"
)

// Result は投票適用の結果。Stateは投票後の件数と投票者本人の投票状況。
type Result struct {
	Change model.VoteChange
	State  model.VoteState
}

// Service は投票のサービス層。
type Service struct {
	votes repository.VoteRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(votes repository.VoteRepository) *Service {
	return &Service{votes: votes}
}

// CreateVote は投票を作成・切り替え・取り消しする。
// 同じ方向への再投票は取り消し、逆方向への投票は切り替えとして扱う。
func (s *Service) CreateVote(ctx context.Context, authorID string, target model.VoteTarget, direction model.VoteDirection) (*Result, error) {
	if authorID == "" {
		return nil, model.NewUnauthorizedError()
	}
	if !target.TargetKind.Valid() {
		return nil, model.NewInvalidVoteError(fmt.Sprintf("unknown target type %q", target.TargetKind))
	}
	if !direction.Valid() {
		return nil, model.NewInvalidVoteError(fmt.Sprintf("unknown vote type %q", direction))
	}
	if _, err := uuid.Parse(target.TargetID); err != nil {
		return nil, notFound(target)
	}

	change, counts, err := s.votes.Apply(ctx, authorID, target, direction)
	if err != nil {
		return nil, fmt.Errorf("投票の適用に失敗しました: %w", err)
	}
	if counts == nil {
		return nil, notFound(target)
	}

	slog.Info("投票を適用しました",
		slog.String("user_id", authorID),
		slog.String("target_id", target.TargetID),
		slog.String("target_kind", string(target.TargetKind)),
		slog.String("vote_type", string(direction)),
		slog.String("change", string(change.Kind)),
	)

	hasVoted := &model.HasVoted{}
	if change.FinalDirection != nil {
		hasVoted.HasUpvoted = *change.FinalDirection == model.VoteUp
		hasVoted.HasDownvoted = *change.FinalDirection == model.VoteDown
	}

	return &Result{
		Change: change,
		State: model.VoteState{
			Upvotes:   counts.Upvotes,
			Downvotes: counts.Downvotes,
			HasVoted:  hasVoted,
		},
	}, nil
}

// HasVoted はユーザーの対象への投票状況を返す。
// 未ログイン（userIDが空）の場合はnilを返す。
func (s *Service) HasVoted(ctx context.Context, userID string, target model.VoteTarget) (*model.HasVoted, error) {
	if userID == "" {
		return nil, nil
	}
	if _, err := uuid.Parse(target.TargetID); err != nil {
		return &model.HasVoted{}, nil
	}

	v, err := s.votes.FindByAuthorAndTarget(ctx, userID, target)
	if err != nil {
		return nil, fmt.Errorf("投票状況の取得に失敗しました: %w", err)
	}
	if v == nil {
		return &model.HasVoted{}, nil
	}
	return &model.HasVoted{
		HasUpvoted:   v.Direction == model.VoteUp,
		HasDownvoted: v.Direction == model.VoteDown,
	}, nil
}

func notFound(target model.VoteTarget) error {
	if target.TargetKind == model.TargetAnswer {
		return model.NewAnswerNotFoundError(target.TargetID)
	}
	return model.NewQuestionNotFoundError(target.TargetID)
}
