package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/devflow/internal/model"
)

// PostgresVoteRepo はPostgreSQLを使用した投票リポジトリ。
type PostgresVoteRepo struct {
	db *sql.DB
}

// NewPostgresVoteRepo はPostgresVoteRepoを生成する。
func NewPostgresVoteRepo(db *sql.DB) *PostgresVoteRepo {
	return &PostgresVoteRepo{db: db}
}

// targetTable は対象種別に対応するテーブル名を返す。
func targetTable(kind model.TargetKind) (string, error) {
	switch kind {
	case model.TargetQuestion:
		return "questions", nil
	case model.TargetAnswer:
		return "answers", nil
	default:
		return "", fmt.Errorf("unknown vote target kind: %q", kind)
	}
}

// FindByAuthorAndTarget はユーザーの対象への投票を取得する。見つからない場合はnilを返す。
func (r *PostgresVoteRepo) FindByAuthorAndTarget(ctx context.Context, authorID string, target model.VoteTarget) (*model.Vote, error) {
	v := &model.Vote{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, author_id, target_id, target_kind, vote_type, created_at, updated_at
		 FROM votes
		 WHERE author_id = $1 AND target_id = $2 AND target_kind = $3`,
		authorID, target.TargetID, string(target.TargetKind),
	).Scan(&v.ID, &v.AuthorID, &v.TargetID, &v.TargetKind, &v.Direction, &v.CreatedAt, &v.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find vote: %w", err)
	}
	return v, nil
}

// Apply は投票要求を同一トランザクションで適用する。
// 対象行をFOR UPDATEでロックするため、同一対象への同時投票は直列化される。
func (r *PostgresVoteRepo) Apply(
	ctx context.Context,
	authorID string,
	target model.VoteTarget,
	direction model.VoteDirection,
) (model.VoteChange, *VoteCounts, error) {
	table, err := targetTable(target.TargetKind)
	if err != nil {
		return model.VoteChange{}, nil, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.VoteChange{}, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// 対象の存在確認とロック
	var lockedID string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM `+table+` WHERE id = $1 FOR UPDATE`, target.TargetID,
	).Scan(&lockedID)
	if err == sql.ErrNoRows {
		return model.VoteChange{}, nil, nil
	}
	if err != nil {
		return model.VoteChange{}, nil, fmt.Errorf("failed to lock vote target: %w", err)
	}

	// 既存の投票
	var existing *model.VoteDirection
	var voteID string
	var current model.VoteDirection
	err = tx.QueryRowContext(ctx,
		`SELECT id, vote_type FROM votes
		 WHERE author_id = $1 AND target_id = $2 AND target_kind = $3
		 FOR UPDATE`,
		authorID, target.TargetID, string(target.TargetKind),
	).Scan(&voteID, &current)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return model.VoteChange{}, nil, fmt.Errorf("failed to find existing vote: %w", err)
	default:
		existing = &current
	}

	change := model.ResolveVote(existing, direction)
	now := time.Now().UTC()

	switch change.Kind {
	case model.VoteCreated:
		_, err = tx.ExecContext(ctx,
			`INSERT INTO votes (id, author_id, target_id, target_kind, vote_type, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $6)`,
			uuid.New().String(), authorID, target.TargetID, string(target.TargetKind), string(direction), now,
		)
	case model.VoteRemoved:
		_, err = tx.ExecContext(ctx, `DELETE FROM votes WHERE id = $1`, voteID)
	case model.VoteSwitched:
		_, err = tx.ExecContext(ctx,
			`UPDATE votes SET vote_type = $1, updated_at = $2 WHERE id = $3`,
			string(direction), now, voteID,
		)
	}
	if err != nil {
		return model.VoteChange{}, nil, fmt.Errorf("failed to write vote: %w", err)
	}

	counts := &VoteCounts{}
	err = tx.QueryRowContext(ctx,
		`UPDATE `+table+`
		 SET upvotes = upvotes + $1, downvotes = downvotes + $2, updated_at = $3
		 WHERE id = $4
		 RETURNING upvotes, downvotes`,
		change.UpvoteDelta, change.DownvoteDelta, now, target.TargetID,
	).Scan(&counts.Upvotes, &counts.Downvotes)
	if err != nil {
		return model.VoteChange{}, nil, fmt.Errorf("failed to update vote counts: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.VoteChange{}, nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return change, counts, nil
}

// RetractByAuthor はユーザーの全投票を削除し、対象の件数から差し引く。
func (r *PostgresVoteRepo) RetractByAuthor(ctx context.Context, authorID string) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, kind := range []model.TargetKind{model.TargetQuestion, model.TargetAnswer} {
		table, _ := targetTable(kind)
		_, err := tx.ExecContext(ctx,
			`UPDATE `+table+` t
			 SET upvotes = t.upvotes - v.up, downvotes = t.downvotes - v.down
			 FROM (
			     SELECT target_id,
			            COUNT(*) FILTER (WHERE vote_type = 'upvote') AS up,
			            COUNT(*) FILTER (WHERE vote_type = 'downvote') AS down
			     FROM votes
			     WHERE author_id = $1 AND target_kind = $2
			     GROUP BY target_id
			 ) v
			 WHERE t.id = v.target_id`,
			authorID, string(kind),
		)
		if err != nil {
			return 0, fmt.Errorf("failed to retract %s vote counts: %w", kind, err)
		}
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM votes WHERE author_id = $1`, authorID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete votes: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return n, nil
}

// compile-time interface check
var _ VoteRepository = (*PostgresVoteRepo)(nil)
