// internal/storage/account_store.go
package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Corphon/DeepDetect/internal/models"
	"gorm.io/gorm"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrDuplicateEmail  = errors.New("email already registered")
)

// AccountRecord 用户账户表
type AccountRecord struct {
	ID           string    `gorm:"primaryKey;size:64"`
	Name         string    `gorm:"type:text;not null"`
	Email        string    `gorm:"size:255;not null;uniqueIndex"`
	PasswordHash string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
}

func (AccountRecord) TableName() string { return "accounts" }

type AccountStore struct {
	db *Database
}

func NewAccountStore(db *Database) *AccountStore {
	return &AccountStore{db: db}
}

func (s *AccountStore) Create(ctx context.Context, account *models.Account) error {
	db := s.db.DB()
	if db == nil {
		return ErrNotConnected
	}

	record := AccountRecord{
		ID:           account.ID,
		Name:         account.Name,
		Email:        normalizeEmail(account.Email),
		PasswordHash: account.PasswordHash,
		CreatedAt:    account.CreatedAt,
	}
	if err := db.WithContext(ctx).Create(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateEmail
		}
		return err
	}
	return nil
}

func (s *AccountStore) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	return s.findOne(ctx, "email = ?", normalizeEmail(email))
}

func (s *AccountStore) FindByID(ctx context.Context, id string) (*models.Account, error) {
	return s.findOne(ctx, "id = ?", id)
}

func (s *AccountStore) findOne(ctx context.Context, query string, arg string) (*models.Account, error) {
	db := s.db.DB()
	if db == nil {
		return nil, ErrNotConnected
	}

	var record AccountRecord
	if err := db.WithContext(ctx).Where(query, arg).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	return &models.Account{
		ID:           record.ID,
		Name:         record.Name,
		Email:        record.Email,
		PasswordHash: record.PasswordHash,
		CreatedAt:    record.CreatedAt,
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
