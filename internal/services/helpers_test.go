package services

import (
	"context"
	"sync"
	"testing"

	"github.com/Corphon/DeepDetect/internal/llm"
	"github.com/Corphon/DeepDetect/internal/models"
	"github.com/Corphon/DeepDetect/internal/storage"
)

// fakeProvider 返回固定文本或错误，并记录收到的请求
type fakeProvider struct {
	mu       sync.Mutex
	text     string
	err      error
	requests []llm.CompletionRequest
}

func (f *fakeProvider) Initialize(map[string]string) error { return nil }
func (f *fakeProvider) GetName() string                     { return "fake" }
func (f *fakeProvider) GetSupportedModels() []string        { return []string{"fake-1"} }
func (f *fakeProvider) DefaultModel() string                { return "fake-1" }

func (f *fakeProvider) CompleteText(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &llm.CompletionResponse{Text: f.text}, nil
}

func (f *fakeProvider) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// sequenceSource 按顺序返回预设值（对 n 取模）
type sequenceSource struct {
	values []int
	i      int
}

func (s *sequenceSource) Intn(n int) int {
	v := s.values[s.i%len(s.values)]
	s.i++
	return v % n
}

// failingRepo 所有操作都返回给定错误
type failingRepo struct {
	err error
}

func (r failingRepo) Insert(context.Context, models.ScanResult) error { return r.err }
func (r failingRepo) ListByUser(context.Context, string) ([]models.ScanResult, error) {
	return nil, r.err
}

func onlineDatabase(t *testing.T) *storage.Database {
	t.Helper()
	db := storage.Open(context.Background(), "sqlite::memory:", false)
	if !db.State().Online() {
		t.Fatal("内存数据库应处于在线状态")
	}
	t.Cleanup(func() { db.Close() })
	return db
}

const validClassification = `{
  "result": "fake",
  "confidenceScore": 93.5,
  "analysis": {"perplexity": 12, "burstiness": 8, "similarityScore": 71, "aiProbability": 93.5},
  "comparative_analysis": [
    {"metric": "Edge Coherence", "observed": "Smooth", "benchmark": "Noisy", "status": "anomaly"},
    {"metric": "Lighting", "observed": "Consistent", "benchmark": "Consistent", "status": "Normal"}
  ],
  "details": "Diffusion artifacts in the background."
}`

// blockingRepo 第一次 ListByUser 读完后暂停，直到 release 被关闭
type blockingRepo struct {
	ScanRepository
	once    sync.Once
	read    chan struct{}
	release chan struct{}
}

func newBlockingRepo(inner ScanRepository) *blockingRepo {
	return &blockingRepo{ScanRepository: inner, read: make(chan struct{}), release: make(chan struct{})}
}

func (r *blockingRepo) ListByUser(ctx context.Context, userID string) ([]models.ScanResult, error) {
	results, err := r.ScanRepository.ListByUser(ctx, userID)
	r.once.Do(func() {
		close(r.read)
		<-r.release
	})
	return results, err
}

// brokenCache 所有操作都失败
type brokenCache struct{ err error }

func (c brokenCache) Get(context.Context, string) ([]models.ScanResult, bool, error) {
	return nil, false, c.err
}
func (c brokenCache) Generation(context.Context, string) (int64, error) { return 0, c.err }
func (c brokenCache) Set(context.Context, string, int64, []models.ScanResult) error {
	return c.err
}
func (c brokenCache) Invalidate(context.Context, string) error { return c.err }
func (c brokenCache) Name() string                             { return "broken" }
