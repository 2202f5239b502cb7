// internal/errors/errors_test.go
package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestAppErrorCodes(t *testing.T) {
	cases := []struct {
		err  *AppError
		code string
	}{
		{NewValidationError("bad", nil), "VALIDATION_ERROR"},
		{NewConflictError("dup", nil), "CONFLICT"},
		{NewNotFoundError("missing", nil), "NOT_FOUND"},
		{NewForbiddenError("other user", nil), "FORBIDDEN"},
		{NewStorageError("insert", nil), "STORAGE_FAILURE"},
		{NewUnavailableError("offline", nil), "STORAGE_UNAVAILABLE"},
		{NewAppError("mystery", "x", nil), "UNKNOWN_ERROR"},
	}

	for _, tc := range cases {
		if tc.err.Code != tc.code {
			t.Errorf("%s: 期望错误代码 %s, 实际 %s", tc.err.Message, tc.code, tc.err.Code)
		}
	}
}

func TestPredicatesSeeThroughWrapping(t *testing.T) {
	root := errors.New("connection reset")
	err := fmt.Errorf("save scan: %w", NewStorageError("写入扫描记录失败", root))

	if !IsStorageError(err) {
		t.Fatal("包装后的存储错误应被识别")
	}
	if IsValidationError(err) {
		t.Fatal("存储错误不应被识别为验证错误")
	}
	if !errors.Is(err, root) {
		t.Fatal("应保留原始错误链")
	}
}

func TestWrapErrorKeepsType(t *testing.T) {
	if WrapError(nil, "ignored", ErrorTypeStorage) != nil {
		t.Fatal("nil 错误应保持为 nil")
	}

	inner := NewConflictError("邮箱已注册", nil)
	wrapped := WrapError(inner, "注册失败", ErrorTypeStorage)
	if !IsConflictError(wrapped) {
		t.Errorf("包装 AppError 时应保留原类型, 实际 %s", TypeOf(wrapped))
	}

	plain := WrapError(errors.New("boom"), "查询失败", ErrorTypeStorage)
	if !IsStorageError(plain) {
		t.Errorf("普通错误应使用给定类型, 实际 %s", TypeOf(plain))
	}
	if plain.Error() != "查询失败: boom" {
		t.Errorf("错误消息不正确: %s", plain.Error())
	}
}

func TestPredicatesMatchOnlyTheirType(t *testing.T) {
	forbidden := fmt.Errorf("history: %w", NewForbiddenError("other user", nil))
	notFound := fmt.Errorf("route: %w", NewNotFoundError("missing", nil))

	if !IsForbiddenError(forbidden) || IsNotFoundError(forbidden) {
		t.Errorf("禁止访问错误识别不正确: %s", TypeOf(forbidden))
	}
	if !IsNotFoundError(notFound) || IsForbiddenError(notFound) {
		t.Errorf("未找到错误识别不正确: %s", TypeOf(notFound))
	}
}
