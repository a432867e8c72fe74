// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/devflow/internal/model"
)

// 一意制約違反を表すエラー。サービス層でAPIErrorへ変換する。
var (
	ErrDuplicateEmail    = errors.New("duplicate email")
	ErrDuplicateUsername = errors.New("duplicate username")
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// FindByUsername はユーザー名でユーザーを検索する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.User, error)

	// CreateWithAccount はユーザーとアカウントを同一トランザクションで作成する。
	// メールアドレスまたはユーザー名が重複する場合はErrDuplicateEmail/ErrDuplicateUsernameを返す。
	CreateWithAccount(ctx context.Context, user *model.User, account *model.Account) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するaccounts、sessions、votes、collectionsはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// AccountRepository は認証手段の永続化インターフェース。
type AccountRepository interface {
	// FindByProviderAndAccountID はproviderとprovider_account_idでアカウントを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndAccountID(ctx context.Context, provider, providerAccountID string) (*model.Account, error)

	// Create は既存ユーザーにアカウントを追加する。
	Create(ctx context.Context, account *model.Account) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
	// DeleteExpired は期限切れのセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// QuestionRepository は質問データの永続化インターフェース。
type QuestionRepository interface {
	// FindByID は指定IDの質問を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Question, error)
	// ListRecent は作成日時の降順で質問を取得する。
	ListRecent(ctx context.Context, limit int) ([]*model.Question, error)
	// Create は質問を作成する。
	Create(ctx context.Context, question *model.Question) error
	// IncrementViews は閲覧数を1増やす。
	IncrementViews(ctx context.Context, id string) error
}

// AnswerRepository は回答データの永続化インターフェース。
type AnswerRepository interface {
	// FindByID は指定IDの回答を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Answer, error)
	// ListByQuestion は質問への回答を作成日時の昇順で取得する。
	ListByQuestion(ctx context.Context, questionID string) ([]*model.Answer, error)
	// Create は回答を作成し、質問の回答数を1増やす。
	Create(ctx context.Context, answer *model.Answer) error
}

// VoteCounts は投票適用後の対象の件数。
type VoteCounts struct {
	Upvotes   int
	Downvotes int
}

// VoteRepository は投票データの永続化インターフェース。
type VoteRepository interface {
	// FindByAuthorAndTarget はユーザーの対象への投票を取得する。見つからない場合はnilを返す。
	FindByAuthorAndTarget(ctx context.Context, authorID string, target model.VoteTarget) (*model.Vote, error)

	// Apply は投票要求を同一トランザクションで適用する。
	// 既存の投票を行ロックで取得し、model.ResolveVoteの結果に従って投票行と
	// 対象（質問または回答）の件数を更新する。対象が存在しない場合はnilのVoteCountsを返す。
	Apply(ctx context.Context, authorID string, target model.VoteTarget, direction model.VoteDirection) (model.VoteChange, *VoteCounts, error)

	// RetractByAuthor はユーザーの全投票を削除し、対象の件数から差し引く。削除件数を返す。
	RetractByAuthor(ctx context.Context, authorID string) (int64, error)
}

// CollectionRepository は保存した質問の永続化インターフェース。
type CollectionRepository interface {
	// Exists はユーザーが質問を保存済みかどうかを返す。
	Exists(ctx context.Context, userID, questionID string) (bool, error)
	// Toggle は保存状態を反転し、反転後に保存済みかどうかを返す。
	Toggle(ctx context.Context, userID, questionID string) (bool, error)
}
