// Package auth は認証情報（メールアドレスとパスワード）およびOAuthによる
// サインアップ・サインイン、セッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/devflow/internal/model"
	"github.com/hitoshi/devflow/internal/repository"
)

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	ProviderUserID string
	Email          string
	Name           string
	Image          string
	Provider       string
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// ErrOAuthNotConfigured はOAuthプロバイダーが設定されていない場合のエラー。
var ErrOAuthNotConfigured = errors.New("oauth provider is not configured")

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
	BcryptCost    int
}

// SignUpInput はサインアップの入力。値は検証済みであること。
type SignUpInput struct {
	Name     string
	Username string
	Email    string
	Password string
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	oauth       OAuthProvider
	userRepo    repository.UserRepository
	accountRepo repository.AccountRepository
	sessionRepo repository.SessionRepository
	hasher      *PasswordHasher
	config      ServiceConfig
}

// NewService はServiceを生成する。oauthはnilでもよい（OAuthログイン無効）。
func NewService(
	oauth OAuthProvider,
	userRepo repository.UserRepository,
	accountRepo repository.AccountRepository,
	sessionRepo repository.SessionRepository,
	config ServiceConfig,
) *Service {
	return &Service{
		oauth:       oauth,
		userRepo:    userRepo,
		accountRepo: accountRepo,
		sessionRepo: sessionRepo,
		hasher:      NewPasswordHasher(config.BcryptCost),
		config:      config,
	}
}

// OAuthEnabled はOAuthログインが利用可能かどうかを返す。
func (s *Service) OAuthEnabled() bool {
	return s.oauth != nil
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) (string, error) {
	if s.oauth == nil {
		return "", ErrOAuthNotConfigured
	}
	return s.oauth.GetLoginURL(state), nil
}

// SignUp はユーザーとcredentialsアカウントを作成し、セッションを発行する。
// メールアドレスまたはユーザー名が登録済みの場合はAPIErrorを返す。
func (s *Service) SignUp(ctx context.Context, in SignUpInput) (*model.Session, error) {
	email := normalizeEmail(in.Email)

	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if existing != nil {
		return nil, model.NewEmailTakenError()
	}
	existing, err = s.userRepo.FindByUsername(ctx, in.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by username: %w", err)
	}
	if existing != nil {
		return nil, model.NewUsernameTakenError()
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	user := &model.User{
		ID:        uuid.New().String(),
		Name:      strings.TrimSpace(in.Name),
		Username:  in.Username,
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	account := &model.Account{
		ID:                uuid.New().String(),
		UserID:            user.ID,
		Provider:          model.ProviderCredentials,
		ProviderAccountID: email,
		PasswordHash:      hash,
		CreatedAt:         now,
	}

	if err := s.userRepo.CreateWithAccount(ctx, user, account); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateEmail):
			return nil, model.NewEmailTakenError()
		case errors.Is(err, repository.ErrDuplicateUsername):
			return nil, model.NewUsernameTakenError()
		}
		return nil, fmt.Errorf("failed to create user and account: %w", err)
	}

	slog.Info("new user signed up",
		slog.String("user_id", user.ID),
		slog.String("provider", model.ProviderCredentials),
	)

	return s.createSession(ctx, user.ID)
}

// SignIn はメールアドレスとパスワードを照合し、セッションを発行する。
// アカウントが存在しない場合とパスワード不一致の場合は同じエラーを返す。
func (s *Service) SignIn(ctx context.Context, email, password string) (*model.Session, error) {
	account, err := s.accountRepo.FindByProviderAndAccountID(ctx, model.ProviderCredentials, normalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil || account.PasswordHash == "" {
		return nil, model.NewInvalidCredentialsError()
	}

	ok, err := s.hasher.Verify(account.PasswordHash, password)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, model.NewInvalidCredentialsError()
	}

	slog.Info("user signed in",
		slog.String("user_id", account.UserID),
		slog.String("provider", model.ProviderCredentials),
	)

	return s.createSession(ctx, account.UserID)
}

// HandleCallback はOAuthコールバックを処理し、セッションを発行する。
// 未登録ユーザーの場合はusersレコードとaccountsレコードを同時に作成する。
// 同じメールアドレスのユーザーが既に存在する場合はそのユーザーにアカウントを追加する。
func (s *Service) HandleCallback(ctx context.Context, code string) (*model.Session, error) {
	if s.oauth == nil {
		return nil, ErrOAuthNotConfigured
	}

	userInfo, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	account, err := s.accountRepo.FindByProviderAndAccountID(ctx, userInfo.Provider, userInfo.ProviderUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}

	var userID string
	switch {
	case account != nil:
		userID = account.UserID
		slog.Info("existing user logged in",
			slog.String("user_id", userID),
			slog.String("provider", userInfo.Provider),
		)
	default:
		userID, err = s.registerOAuthUser(ctx, userInfo)
		if err != nil {
			return nil, err
		}
	}

	return s.createSession(ctx, userID)
}

// registerOAuthUser はOAuthユーザーを登録し、ユーザーIDを返す。
func (s *Service) registerOAuthUser(ctx context.Context, info *OAuthUserInfo) (string, error) {
	now := time.Now().UTC()
	email := normalizeEmail(info.Email)
	account := &model.Account{
		ID:                uuid.New().String(),
		Provider:          info.Provider,
		ProviderAccountID: info.ProviderUserID,
		CreatedAt:         now,
	}

	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("failed to find user by email: %w", err)
	}
	if existing != nil {
		account.UserID = existing.ID
		if err := s.accountRepo.Create(ctx, account); err != nil {
			return "", fmt.Errorf("failed to link account: %w", err)
		}
		slog.Info("oauth account linked",
			slog.String("user_id", existing.ID),
			slog.String("provider", info.Provider),
		)
		return existing.ID, nil
	}

	username, err := s.availableUsername(ctx, email)
	if err != nil {
		return "", err
	}

	name := strings.TrimSpace(info.Name)
	if name == "" {
		name = username
	}
	user := &model.User{
		ID:        uuid.New().String(),
		Name:      name,
		Username:  username,
		Email:     email,
		Image:     info.Image,
		CreatedAt: now,
		UpdatedAt: now,
	}
	account.UserID = user.ID

	if err := s.userRepo.CreateWithAccount(ctx, user, account); err != nil {
		return "", fmt.Errorf("failed to create user and account: %w", err)
	}

	slog.Info("new user created",
		slog.String("user_id", user.ID),
		slog.String("provider", info.Provider),
	)
	return user.ID, nil
}

// 許可されないユーザー名の文字
var usernameDisallowed = regexp.MustCompile(`[^a-zA-Z0-9_]`)

const (
	maxUsernameLength = 30
	usernameAttempts  = 5
)

// availableUsername はメールアドレスのローカル部から未使用のユーザー名を生成する。
// 使用済みの場合はランダムな接尾辞を付けて再試行する。
func (s *Service) availableUsername(ctx context.Context, email string) (string, error) {
	base := usernameDisallowed.ReplaceAllString(strings.SplitN(email, "@", 2)[0], "_")
	if len(base) < 3 {
		base = "user_" + base
	}
	if len(base) > maxUsernameLength-5 {
		base = base[:maxUsernameLength-5]
	}

	candidate := base
	for i := 0; i < usernameAttempts; i++ {
		existing, err := s.userRepo.FindByUsername(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("failed to find user by username: %w", err)
		}
		if existing == nil {
			return candidate, nil
		}
		suffix, err := randomHex(2)
		if err != nil {
			return "", err
		}
		candidate = base + "_" + suffix
	}
	return "", fmt.Errorf("could not find an available username for %q", base)
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out", slog.String("session_id", sessionID))
	return nil
}

// GetCurrentUser はセッションから現在のユーザーを取得する。
func (s *Service) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session ID is required")
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("session not found or expired")
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user not found")
	}

	return user, nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := randomHex(32)
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := time.Now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// randomHex は暗号的に安全な乱数をnバイト分の16進文字列で返す。
func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
