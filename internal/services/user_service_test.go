package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/Corphon/DeepDetect/internal/auth"
	"github.com/Corphon/DeepDetect/internal/errors"
	"github.com/Corphon/DeepDetect/internal/storage"
)

func newTestUserService(t *testing.T) (*UserService, *auth.Issuer) {
	t.Helper()
	db := onlineDatabase(t)
	issuer := auth.NewIssuer(&auth.TokenConfig{Secret: []byte("test-secret"), Expiration: time.Hour})
	return NewUserService(db.State(), storage.NewAccountStore(db), issuer), issuer
}

func TestRegisterAndLogin(t *testing.T) {
	svc, issuer := newTestUserService(t)
	ctx := context.Background()

	session, err := svc.Register(ctx, "Ada", "Ada@Example.com", "password123")
	if err != nil {
		t.Fatalf("注册失败: %v", err)
	}
	if session.ID == "" || session.Email != "ada@example.com" || session.Token == "" {
		t.Fatalf("注册返回不正确: %+v", session)
	}

	token, err := issuer.ParseToken(session.Token)
	if err != nil || token.UserID != session.ID {
		t.Fatalf("令牌主体应为用户ID: %v %v", token, err)
	}

	login, err := svc.Login(ctx, "ada@example.com", "password123")
	if err != nil {
		t.Fatalf("登录失败: %v", err)
	}
	if login.ID != session.ID {
		t.Errorf("登录用户不一致: %s vs %s", login.ID, session.ID)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newTestUserService(t)
	ctx := context.Background()

	cases := []struct{ name, email, password string }{
		{"", "a@b.com", "password123"},
		{"Ada", "not-an-email", "password123"},
		{"Ada", "a@b.com", "short"},
		{"Ada", strings.Repeat("a", 250) + "@example.com", "password123"},
	}
	for _, tc := range cases {
		if _, err := svc.Register(ctx, tc.name, tc.email, tc.password); !errors.IsValidationError(err) {
			t.Errorf("%+v: 期望验证错误, 实际 %v", tc, err)
		}
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _ := newTestUserService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "Ada", "ada@example.com", "password123"); err != nil {
		t.Fatalf("注册失败: %v", err)
	}
	if _, err := svc.Register(ctx, "Ada Again", "ADA@example.com", "password456"); !errors.IsConflictError(err) {
		t.Fatalf("期望冲突错误, 实际 %v", err)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc, _ := newTestUserService(t)
	ctx := context.Background()
	svc.Register(ctx, "Ada", "ada@example.com", "password123")

	if _, err := svc.Login(ctx, "ada@example.com", "wrong-password"); !errors.IsUnauthorizedError(err) {
		t.Errorf("错误密码应返回未授权, 实际 %v", err)
	}
	if _, err := svc.Login(ctx, "nobody@example.com", "password123"); !errors.IsUnauthorizedError(err) {
		t.Errorf("未知邮箱应返回未授权, 实际 %v", err)
	}
}

func TestAccountsUnavailableOffline(t *testing.T) {
	db := storage.Open(context.Background(), "", false)
	issuer := auth.NewIssuer(&auth.TokenConfig{Secret: []byte("x"), Expiration: time.Hour})
	svc := NewUserService(db.State(), storage.NewAccountStore(db), issuer)

	if _, err := svc.Register(context.Background(), "Ada", "ada@example.com", "password123"); !errors.IsUnavailableError(err) {
		t.Errorf("离线注册应返回不可用, 实际 %v", err)
	}
	if _, err := svc.Login(context.Background(), "ada@example.com", "password123"); !errors.IsUnavailableError(err) {
		t.Errorf("离线登录应返回不可用, 实际 %v", err)
	}
}
