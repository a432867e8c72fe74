// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/devflow/internal/model"
	"github.com/hitoshi/devflow/internal/repository"
)

// VoteRetractor はユーザーの投票を一括で取り消すインターフェース。
type VoteRetractor interface {
	RetractByAuthor(ctx context.Context, authorID string) (int64, error)
}

// Profile は画面に表示するユーザー情報。
type Profile struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Image    string `json:"image,omitempty"`
}

// Service はユーザー管理のサービス層。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	votes       VoteRetractor
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	votes VoteRetractor,
) *Service {
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		votes:       votes,
	}
}

// GetProfile は指定ユーザーのプロフィールを返す。
func (s *Service) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	if userID == "" {
		return nil, model.NewUnauthorizedError()
	}
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return &Profile{
		ID:       user.ID,
		Name:     user.Name,
		Username: user.Username,
		Image:    user.Image,
	}, nil
}

// Withdraw はユーザーの退会処理を実行する。
// 削除順序: votes（件数を差し引く） → sessions → user（+ CASCADE: accounts, collections, questions, answers）
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	slog.Info("退会処理を開始します",
		slog.String("user_id", userID),
	)

	// 1. 投票を取り消す
	if s.votes != nil {
		n, err := s.votes.RetractByAuthor(ctx, userID)
		if err != nil {
			return fmt.Errorf("投票の取り消しに失敗しました: %w", err)
		}
		slog.Info("投票を取り消しました",
			slog.String("user_id", userID),
			slog.Int64("count", n),
		)
	}

	// 2. セッションを削除
	if s.sessionRepo != nil {
		if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
			return fmt.Errorf("セッションの削除に失敗しました: %w", err)
		}
	}

	// 3. ユーザーを削除
	if err := s.userRepo.DeleteByID(ctx, userID); err != nil {
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	slog.Info("退会処理が完了しました",
		slog.String("user_id", userID),
	)

	return nil
}
