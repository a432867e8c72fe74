package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/devflow/internal/model"
)

// PostgresAccountRepo はPostgreSQLを使用したアカウントリポジトリ。
type PostgresAccountRepo struct {
	db *sql.DB
}

// NewPostgresAccountRepo はPostgresAccountRepoを生成する。
func NewPostgresAccountRepo(db *sql.DB) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db}
}

// FindByProviderAndAccountID はproviderとprovider_account_idでアカウントを検索する。
// 見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByProviderAndAccountID(ctx context.Context, provider, providerAccountID string) (*model.Account, error) {
	account := &model.Account{}
	var passwordHash sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, provider, provider_account_id, password_hash, created_at
		 FROM accounts
		 WHERE provider = $1 AND provider_account_id = $2`,
		provider, providerAccountID,
	).Scan(&account.ID, &account.UserID, &account.Provider, &account.ProviderAccountID, &passwordHash, &account.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}

	account.PasswordHash = passwordHash.String
	return account, nil
}

// Create は既存ユーザーにアカウントを追加する。
func (r *PostgresAccountRepo) Create(ctx context.Context, account *model.Account) error {
	var passwordHash sql.NullString
	if account.PasswordHash != "" {
		passwordHash = sql.NullString{String: account.PasswordHash, Valid: true}
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (id, user_id, provider, provider_account_id, password_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		account.ID, account.UserID, account.Provider, account.ProviderAccountID, passwordHash, account.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// compile-time interface check
var _ AccountRepository = (*PostgresAccountRepo)(nil)
