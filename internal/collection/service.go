// Package collection はユーザーの質問コレクション（保存した質問）のドメインロジックを提供する。
package collection

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/hitoshi/devflow/internal/model"
	"github.com/hitoshi/devflow/internal/repository"
)

// QuestionFinder は質問の存在確認に使うインターフェース。
type QuestionFinder interface {
	FindByID(ctx context.Context, id string) (*model.Question, error)
}

// Service はコレクションのサービス層。
type Service struct {
	collections repository.CollectionRepository
	questions   QuestionFinder
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(collections repository.CollectionRepository, questions QuestionFinder) *Service {
	return &Service{collections: collections, questions: questions}
}

// ToggleSaveQuestion は質問の保存状態を反転し、反転後に保存済みかどうかを返す。
func (s *Service) ToggleSaveQuestion(ctx context.Context, userID, questionID string) (bool, error) {
	if userID == "" {
		return false, model.NewUnauthorizedError()
	}
	if _, err := uuid.Parse(questionID); err != nil {
		return false, model.NewQuestionNotFoundError(questionID)
	}

	q, err := s.questions.FindByID(ctx, questionID)
	if err != nil {
		return false, fmt.Errorf("質問の取得に失敗しました: %w", err)
	}
	if q == nil {
		return false, model.NewQuestionNotFoundError(questionID)
	}

	saved, err := s.collections.Toggle(ctx, userID, questionID)
	if err != nil {
		return false, fmt.Errorf("コレクションの更新に失敗しました: %w", err)
	}

	slog.Info("コレクションを更新しました",
		slog.String("user_id", userID),
		slog.String("question_id", questionID),
		slog.Bool("saved", saved),
	)
	return saved, nil
}

// HasSaved はユーザーが質問を保存済みかどうかを返す。未ログインの場合はfalse。
func (s *Service) HasSaved(ctx context.Context, userID, questionID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	saved, err := s.collections.Exists(ctx, userID, questionID)
	if err != nil {
		return false, fmt.Errorf("コレクションの取得に失敗しました: %w", err)
	}
	return saved, nil
}
