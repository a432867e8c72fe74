package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/devflow/internal/model"
)

// PostgresQuestionRepo はPostgreSQLを使用した質問リポジトリ。
type PostgresQuestionRepo struct {
	db *sql.DB
}

// NewPostgresQuestionRepo はPostgresQuestionRepoを生成する。
func NewPostgresQuestionRepo(db *sql.DB) *PostgresQuestionRepo {
	return &PostgresQuestionRepo{db: db}
}

const questionColumns = `id, title, content, author_id, upvotes, downvotes, answers, views, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuestion(row rowScanner) (*model.Question, error) {
	q := &model.Question{}
	err := row.Scan(
		&q.ID, &q.Title, &q.Content, &q.AuthorID,
		&q.Upvotes, &q.Downvotes, &q.Answers, &q.Views,
		&q.CreatedAt, &q.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return q, nil
}

// FindByID は指定IDの質問を取得する。見つからない場合はnilを返す。
func (r *PostgresQuestionRepo) FindByID(ctx context.Context, id string) (*model.Question, error) {
	q, err := scanQuestion(r.db.QueryRowContext(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find question: %w", err)
	}
	return q, nil
}

// ListRecent は作成日時の降順で質問を取得する。
func (r *PostgresQuestionRepo) ListRecent(ctx context.Context, limit int) ([]*model.Question, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+questionColumns+` FROM questions ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}
	defer rows.Close()

	var questions []*model.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate questions: %w", err)
	}
	return questions, nil
}

// Create は質問を作成する。
func (r *PostgresQuestionRepo) Create(ctx context.Context, q *model.Question) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO questions (id, title, content, author_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		q.ID, q.Title, q.Content, q.AuthorID, q.CreatedAt, q.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create question: %w", err)
	}
	return nil
}

// IncrementViews は閲覧数を1増やす。
func (r *PostgresQuestionRepo) IncrementViews(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE questions SET views = views + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to increment views: %w", err)
	}
	return nil
}

// compile-time interface check
var _ QuestionRepository = (*PostgresQuestionRepo)(nil)
