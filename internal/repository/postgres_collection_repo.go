package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PostgresCollectionRepo はPostgreSQLを使用したコレクションリポジトリ。
type PostgresCollectionRepo struct {
	db *sql.DB
}

// NewPostgresCollectionRepo はPostgresCollectionRepoを生成する。
func NewPostgresCollectionRepo(db *sql.DB) *PostgresCollectionRepo {
	return &PostgresCollectionRepo{db: db}
}

// Exists はユーザーが質問を保存済みかどうかを返す。
func (r *PostgresCollectionRepo) Exists(ctx context.Context, userID, questionID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM collections WHERE user_id = $1 AND question_id = $2)`,
		userID, questionID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check collection: %w", err)
	}
	return exists, nil
}

// Toggle は保存状態を反転し、反転後に保存済みかどうかを返す。
// 保存済みなら削除し、未保存ならUNIQUE(user_id, question_id)制約を利用して冪等に作成する。
func (r *PostgresCollectionRepo) Toggle(ctx context.Context, userID, questionID string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`DELETE FROM collections WHERE user_id = $1 AND question_id = $2`,
		userID, questionID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete collection: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	saved := false
	if removed == 0 {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO collections (id, user_id, question_id, created_at)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (user_id, question_id) DO NOTHING`,
			uuid.New().String(), userID, questionID, time.Now().UTC(),
		)
		if err != nil {
			return false, fmt.Errorf("failed to insert collection: %w", err)
		}
		saved = true
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return saved, nil
}

// compile-time interface check
var _ CollectionRepository = (*PostgresCollectionRepo)(nil)
