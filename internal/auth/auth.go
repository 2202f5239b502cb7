// internal/auth/auth.go
package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	DefaultExpiration = 24 * time.Hour
	issuer            = "deepdetect"
)

var (
	ErrMissingSecret = errors.New("secret key is required")
	ErrInvalidToken  = errors.New("invalid token")
)

// TokenConfig holds the configuration for token generation
type TokenConfig struct {
	Secret     []byte
	Expiration time.Duration
}

// Token represents an authenticated caller
type Token struct {
	UserID    string
	ExpiresAt time.Time
	IssuedAt  time.Time
}

// NewTokenConfig 使用给定密钥；为空时生成进程内随机密钥（重启后已签发的令牌失效）
func NewTokenConfig(secret string, expiration time.Duration) (*TokenConfig, bool, error) {
	if expiration <= 0 {
		expiration = DefaultExpiration
	}
	if secret != "" {
		return &TokenConfig{Secret: []byte(secret), Expiration: expiration}, false, nil
	}

	key, err := GenerateSecureKey(32)
	if err != nil {
		return nil, false, err
	}
	return &TokenConfig{Secret: key, Expiration: expiration}, true, nil
}

// GenerateToken signs an HS256 JWT whose subject is the user id
func GenerateToken(userID string, config *TokenConfig) (string, time.Time, error) {
	if config == nil || len(config.Secret) == 0 {
		return "", time.Time{}, ErrMissingSecret
	}

	now := time.Now()
	expiresAt := now.Add(config.Expiration)
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(config.Secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ParseToken parses and validates a token
func ParseToken(tokenString string, config *TokenConfig) (*Token, error) {
	if config == nil || len(config.Secret) == 0 {
		return nil, ErrMissingSecret
	}

	claims := &jwt.RegisteredClaims{}
	tok, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return config.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !tok.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	token := &Token{UserID: claims.Subject}
	if claims.ExpiresAt != nil {
		token.ExpiresAt = claims.ExpiresAt.Time
	}
	if claims.IssuedAt != nil {
		token.IssuedAt = claims.IssuedAt.Time
	}
	return token, nil
}

// Issuer 绑定配置，供账户服务签发令牌
type Issuer struct {
	config *TokenConfig
}

func NewIssuer(config *TokenConfig) *Issuer {
	return &Issuer{config: config}
}

func (i *Issuer) GenerateToken(userID string) (string, time.Time, error) {
	return GenerateToken(userID, i.config)
}

func (i *Issuer) ParseToken(tokenString string) (*Token, error) {
	return ParseToken(tokenString, i.config)
}

// GenerateSecureKey generates a secure random key for token signing
func GenerateSecureKey(length int) ([]byte, error) {
	if length <= 0 {
		length = 32 // Default to 256 bits
	}

	key := make([]byte, length)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}
