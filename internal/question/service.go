// Package question は質問の一覧・詳細表示のドメインロジックを提供する。
package question

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/devflow/internal/model"
	"github.com/hitoshi/devflow/internal/repository"
	"github.com/hitoshi/devflow/internal/security"
)

const (
	// excerptLength は一覧に表示する抜粋の最大文字数。
	excerptLength = 160
	// DefaultListLimit は一覧の既定件数。
	DefaultListLimit = 20
)

// VoteLookup はログインユーザーの投票状況の参照インターフェース。
type VoteLookup interface {
	HasVoted(ctx context.Context, userID string, target model.VoteTarget) (*model.HasVoted, error)
}

// SaveLookup はログインユーザーの保存状況の参照インターフェース。
type SaveLookup interface {
	HasSaved(ctx context.Context, userID, questionID string) (bool, error)
}

// Summary は一覧表示用の質問。
type Summary struct {
	ID        string
	Title     string
	Excerpt   string
	Upvotes   int
	Answers   int
	Views     int
	CreatedAt time.Time
}

// AnswerDetail はサニタイズ済み本文と投票状態を持つ回答。
type AnswerDetail struct {
	ID          string
	AuthorID    string
	ContentHTML string
	Votes       model.VoteState
	CreatedAt   time.Time
}

// Detail はサニタイズ済み本文と閲覧者の状態を持つ質問。
type Detail struct {
	ID          string
	Title       string
	AuthorID    string
	ContentHTML string
	Views       int
	Votes       model.VoteState
	Saved       bool
	Answers     []AnswerDetail
	CreatedAt   time.Time
}

// Service は質問表示のサービス層。
type Service struct {
	questions repository.QuestionRepository
	answers   repository.AnswerRepository
	votes     VoteLookup
	saves     SaveLookup
	sanitizer security.ContentSanitizer
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	questions repository.QuestionRepository,
	answers repository.AnswerRepository,
	votes VoteLookup,
	saves SaveLookup,
	sanitizer security.ContentSanitizer,
) *Service {
	return &Service{
		questions: questions,
		answers:   answers,
		votes:     votes,
		saves:     saves,
		sanitizer: sanitizer,
	}
}

// ListRecent は新しい順に質問の一覧を返す。
func (s *Service) ListRecent(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	questions, err := s.questions.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("質問一覧の取得に失敗しました: %w", err)
	}

	summaries := make([]Summary, len(questions))
	for i, q := range questions {
		summaries[i] = Summary{
			ID:        q.ID,
			Title:     q.Title,
			Excerpt:   security.Excerpt(s.sanitizer.Sanitize(q.Content), excerptLength),
			Upvotes:   q.Upvotes,
			Answers:   q.Answers,
			Views:     q.Views,
			CreatedAt: q.CreatedAt,
		}
	}
	return summaries, nil
}

// Get は質問の詳細を返し、閲覧数を1増やす。
// viewerIDが空の場合、投票状況と保存状況は未投票・未保存として返す。
func (s *Service) Get(ctx context.Context, id, viewerID string) (*Detail, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.NewQuestionNotFoundError(id)
	}

	q, err := s.questions.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("質問の取得に失敗しました: %w", err)
	}
	if q == nil {
		return nil, model.NewQuestionNotFoundError(id)
	}

	// 閲覧数の更新失敗は表示を妨げない
	if err := s.questions.IncrementViews(ctx, id); err != nil {
		slog.Warn("閲覧数の更新に失敗しました",
			slog.String("question_id", id),
			slog.String("error", err.Error()),
		)
	} else {
		q.Views++
	}

	qVotes, err := s.voteState(ctx, viewerID, model.TargetQuestion, q.ID, q.Upvotes, q.Downvotes)
	if err != nil {
		return nil, err
	}
	saved, err := s.saves.HasSaved(ctx, viewerID, q.ID)
	if err != nil {
		return nil, err
	}

	answers, err := s.answers.ListByQuestion(ctx, q.ID)
	if err != nil {
		return nil, fmt.Errorf("回答一覧の取得に失敗しました: %w", err)
	}

	detail := &Detail{
		ID:          q.ID,
		Title:       q.Title,
		AuthorID:    q.AuthorID,
		ContentHTML: s.sanitizer.Sanitize(q.Content),
		Views:       q.Views,
		Votes:       qVotes,
		Saved:       saved,
		Answers:     make([]AnswerDetail, 0, len(answers)),
		CreatedAt:   q.CreatedAt,
	}
	for _, a := range answers {
		aVotes, err := s.voteState(ctx, viewerID, model.TargetAnswer, a.ID, a.Upvotes, a.Downvotes)
		if err != nil {
			return nil, err
		}
		detail.Answers = append(detail.Answers, AnswerDetail{
			ID:          a.ID,
			AuthorID:    a.AuthorID,
			ContentHTML: s.sanitizer.Sanitize(a.Content),
			Votes:       aVotes,
			CreatedAt:   a.CreatedAt,
		})
	}
	return detail, nil
}

// VoteState は対象の現在の件数と閲覧者の投票状況を返す。
func (s *Service) VoteState(ctx context.Context, viewerID string, target model.VoteTarget) (model.VoteState, error) {
	switch target.TargetKind {
	case model.TargetQuestion:
		if _, err := uuid.Parse(target.TargetID); err != nil {
			return model.VoteState{}, model.NewQuestionNotFoundError(target.TargetID)
		}
		q, err := s.questions.FindByID(ctx, target.TargetID)
		if err != nil {
			return model.VoteState{}, fmt.Errorf("質問の取得に失敗しました: %w", err)
		}
		if q == nil {
			return model.VoteState{}, model.NewQuestionNotFoundError(target.TargetID)
		}
		return s.voteState(ctx, viewerID, target.TargetKind, q.ID, q.Upvotes, q.Downvotes)
	case model.TargetAnswer:
		if _, err := uuid.Parse(target.TargetID); err != nil {
			return model.VoteState{}, model.NewAnswerNotFoundError(target.TargetID)
		}
		a, err := s.answers.FindByID(ctx, target.TargetID)
		if err != nil {
			return model.VoteState{}, fmt.Errorf("回答の取得に失敗しました: %w", err)
		}
		if a == nil {
			return model.VoteState{}, model.NewAnswerNotFoundError(target.TargetID)
		}
		return s.voteState(ctx, viewerID, target.TargetKind, a.ID, a.Upvotes, a.Downvotes)
	default:
		return model.VoteState{}, model.NewInvalidVoteError(fmt.Sprintf("unknown target type %q", target.TargetKind))
	}
}

func (s *Service) voteState(ctx context.Context, viewerID string, kind model.TargetKind, id string, up, down int) (model.VoteState, error) {
	hasVoted, err := s.votes.HasVoted(ctx, viewerID, model.VoteTarget{TargetID: id, TargetKind: kind})
	if err != nil {
		return model.VoteState{}, err
	}
	return model.VoteState{Upvotes: up, Downvotes: down, HasVoted: hasVoted}, nil
}
