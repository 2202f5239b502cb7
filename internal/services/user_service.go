// internal/services/user_service.go
package services

import (
	"context"
	stderrors "errors"
	"net/mail"
	"strings"
	"time"

	"github.com/Corphon/DeepDetect/internal/errors"
	"github.com/Corphon/DeepDetect/internal/models"
	"github.com/Corphon/DeepDetect/internal/storage"
	"github.com/Corphon/DeepDetect/internal/utils"
	"github.com/google/uuid"
)

const (
	MinPasswordLength = 8
	// 与 accounts.email 列宽一致
	MaxEmailLength = 254
)

// AccountRepository 账户存储
type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) error
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
}

// TokenIssuer 签发访问令牌
type TokenIssuer interface {
	GenerateToken(userID string) (string, time.Time, error)
}

// UserService 处理注册与登录
type UserService struct {
	state  storage.State
	repo   AccountRepository
	tokens TokenIssuer
}

func NewUserService(state storage.State, repo AccountRepository, tokens TokenIssuer) *UserService {
	return &UserService{state: state, repo: repo, tokens: tokens}
}

// Register 创建账户并返回令牌
func (s *UserService) Register(ctx context.Context, name, email, password string) (*models.AuthSession, error) {
	if !s.state.Online() {
		return nil, errors.NewUnavailableError("存储不可用，暂时无法注册", nil)
	}

	name = strings.TrimSpace(metadataPolicy.Sanitize(name))
	if name == "" {
		return nil, errors.NewValidationError("name is required", nil)
	}
	address, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil {
		return nil, errors.NewValidationError("invalid email address", err)
	}
	if len(address.Address) > MaxEmailLength {
		return nil, errors.NewValidationError("email address is too long", nil)
	}
	if len(password) < MinPasswordLength {
		return nil, errors.NewValidationError("password must be at least 8 characters", nil)
	}

	account := &models.Account{
		ID:        uuid.NewString(),
		Name:      name,
		Email:     strings.ToLower(address.Address),
		CreatedAt: time.Now().UTC(),
	}
	if err := account.SetPassword(password); err != nil {
		return nil, errors.NewAppError(errors.ErrorTypeValidation, "password cannot be hashed", err)
	}

	if err := s.repo.Create(ctx, account); err != nil {
		if stderrors.Is(err, storage.ErrDuplicateEmail) {
			return nil, errors.NewConflictError("User already exists", err)
		}
		return nil, errors.NewStorageError("创建账户失败", err)
	}

	utils.GetLogger().Info("新用户注册", map[string]interface{}{"user_id": account.ID})
	return s.session(account)
}

// Login 校验密码并返回令牌
func (s *UserService) Login(ctx context.Context, email, password string) (*models.AuthSession, error) {
	if !s.state.Online() {
		return nil, errors.NewUnavailableError("存储不可用，暂时无法登录", nil)
	}

	account, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if stderrors.Is(err, storage.ErrAccountNotFound) {
			return nil, errors.NewUnauthorizedError("Invalid credentials", nil)
		}
		return nil, errors.NewStorageError("查询账户失败", err)
	}

	if !account.CheckPassword(password) {
		return nil, errors.NewUnauthorizedError("Invalid credentials", nil)
	}

	return s.session(account)
}

func (s *UserService) session(account *models.Account) (*models.AuthSession, error) {
	token, expiresAt, err := s.tokens.GenerateToken(account.ID)
	if err != nil {
		return nil, errors.NewAppError("internal_error", "签发令牌失败", err)
	}

	return &models.AuthSession{
		ID:        account.ID,
		Name:      account.Name,
		Email:     account.Email,
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}
