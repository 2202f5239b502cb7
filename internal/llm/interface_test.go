package llm

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

type stubProvider struct {
	initialized map[string]string
}

func (s *stubProvider) Initialize(config map[string]string) error {
	if config["api_key"] == "" {
		return ErrMissingAPIKey
	}
	s.initialized = config
	return nil
}
func (s *stubProvider) GetName() string              { return "stub" }
func (s *stubProvider) GetSupportedModels() []string { return []string{"stub-1"} }
func (s *stubProvider) DefaultModel() string         { return "stub-1" }
func (s *stubProvider) CompleteText(context.Context, CompletionRequest) (*CompletionResponse, error) {
	return &CompletionResponse{Text: "ok"}, nil
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register("zeta", func() Provider { return &stubProvider{} })
	r.Register("alpha", func() Provider { return &stubProvider{} })

	if got := r.ListProviders(); !reflect.DeepEqual(got, []string{"alpha", "zeta"}) {
		t.Errorf("提供者列表应排序: %v", got)
	}

	p, err := r.GetProvider("alpha", map[string]string{"api_key": "k"})
	if err != nil {
		t.Fatalf("获取提供者失败: %v", err)
	}
	if p.(*stubProvider).initialized["api_key"] != "k" {
		t.Error("提供者未被初始化")
	}

	if _, err := r.GetProvider("alpha", nil); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("期望初始化错误, 实际 %v", err)
	}
	if _, err := r.GetProvider("missing", nil); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("期望 ErrUnknownProvider, 实际 %v", err)
	}

	if got := r.SupportedModels("zeta"); len(got) != 1 || got[0] != "stub-1" {
		t.Errorf("模型列表不正确: %v", got)
	}
	if got := r.SupportedModels("missing"); len(got) != 0 {
		t.Errorf("未知提供者应返回空列表: %v", got)
	}
}
