package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/devflow/internal/model"
)

// PostgresAnswerRepo はPostgreSQLを使用した回答リポジトリ。
type PostgresAnswerRepo struct {
	db *sql.DB
}

// NewPostgresAnswerRepo はPostgresAnswerRepoを生成する。
func NewPostgresAnswerRepo(db *sql.DB) *PostgresAnswerRepo {
	return &PostgresAnswerRepo{db: db}
}

const answerColumns = `id, question_id, author_id, content, upvotes, downvotes, created_at, updated_at`

func scanAnswer(row rowScanner) (*model.Answer, error) {
	a := &model.Answer{}
	err := row.Scan(
		&a.ID, &a.QuestionID, &a.AuthorID, &a.Content,
		&a.Upvotes, &a.Downvotes, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// FindByID は指定IDの回答を取得する。見つからない場合はnilを返す。
func (r *PostgresAnswerRepo) FindByID(ctx context.Context, id string) (*model.Answer, error) {
	a, err := scanAnswer(r.db.QueryRowContext(ctx,
		`SELECT `+answerColumns+` FROM answers WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find answer: %w", err)
	}
	return a, nil
}

// ListByQuestion は質問への回答を作成日時の昇順で取得する。
func (r *PostgresAnswerRepo) ListByQuestion(ctx context.Context, questionID string) ([]*model.Answer, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+answerColumns+` FROM answers WHERE question_id = $1 ORDER BY created_at ASC`, questionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list answers: %w", err)
	}
	defer rows.Close()

	var answers []*model.Answer
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan answer: %w", err)
		}
		answers = append(answers, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate answers: %w", err)
	}
	return answers, nil
}

// Create は回答を作成し、質問の回答数を1増やす。
func (r *PostgresAnswerRepo) Create(ctx context.Context, a *model.Answer) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO answers (id, question_id, author_id, content, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.QuestionID, a.AuthorID, a.Content, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert answer: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE questions SET answers = answers + 1 WHERE id = $1`, a.QuestionID)
	if err != nil {
		return fmt.Errorf("failed to update answer count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// compile-time interface check
var _ AnswerRepository = (*PostgresAnswerRepo)(nil)
