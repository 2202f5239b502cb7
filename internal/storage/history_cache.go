// internal/storage/history_cache.go
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Corphon/DeepDetect/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultHistoryTTL     = 5 * time.Minute
	defaultMemoryCacheMax = 1000
	historyKeyPrefix      = "deepdetect:history:"
	historyGenKeyPrefix   = "deepdetect:history:gen:"
	historyGenTTL         = 24 * time.Hour
)

// HistoryCache 用户历史记录的读穿缓存，写入新记录时失效。
// 每个用户有一个代数，Invalidate 使其递增；Set 只在代数未变化时写入，
// 这样查询期间发生的新写入不会被旧列表覆盖。
type HistoryCache interface {
	Get(ctx context.Context, userID string) ([]models.ScanResult, bool, error)
	// Generation 在读取存储之前调用，返回值传给 Set
	Generation(ctx context.Context, userID string) (int64, error)
	Set(ctx context.Context, userID string, generation int64, results []models.ScanResult) error
	Invalidate(ctx context.Context, userID string) error
	Name() string
}

// NewHistoryCache 配置了 Redis 时使用 Redis，否则退回进程内缓存
func NewHistoryCache(redisURL string, ttl time.Duration) (HistoryCache, error) {
	if redisURL == "" {
		return NewMemoryHistoryCache(defaultMemoryCacheMax, ttl), nil
	}
	return NewRedisHistoryCache(redisURL, ttl)
}

// ---------------- Redis ----------------

type RedisHistoryCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisHistoryCache(url string, ttl time.Duration) (*RedisHistoryCache, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultHistoryTTL
	}
	return &RedisHistoryCache{rdb: redis.NewClient(opt), ttl: ttl}, nil
}

func (c *RedisHistoryCache) Name() string { return "redis" }

func (c *RedisHistoryCache) Get(ctx context.Context, userID string) ([]models.ScanResult, bool, error) {
	raw, err := c.rdb.Get(ctx, historyKeyPrefix+userID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var results []models.ScanResult
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, false, fmt.Errorf("解析缓存失败: %w", err)
	}
	return results, true, nil
}

func (c *RedisHistoryCache) Generation(ctx context.Context, userID string) (int64, error) {
	gen, err := c.rdb.Get(ctx, historyGenKeyPrefix+userID).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// Set 通过 WATCH 代数键实现比较后写入，代数已变化时放弃写入
func (c *RedisHistoryCache) Set(ctx context.Context, userID string, generation int64, results []models.ScanResult) error {
	raw, err := json.Marshal(results)
	if err != nil {
		return err
	}

	genKey := historyGenKeyPrefix + userID
	err = c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != generation {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, historyKeyPrefix+userID, raw, c.ttl)
			return nil
		})
		return err
	}, genKey)

	if errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	return err
}

func (c *RedisHistoryCache) Invalidate(ctx context.Context, userID string) error {
	genKey := historyGenKeyPrefix + userID
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey)
		pipe.Expire(ctx, genKey, historyGenTTL)
		pipe.Del(ctx, historyKeyPrefix+userID)
		return nil
	})
	return err
}

// Ping 供健康检查使用
func (c *RedisHistoryCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *RedisHistoryCache) Close() error {
	return c.rdb.Close()
}

// ---------------- 内存 ----------------

// MemoryHistoryCache 进程内缓存，超出容量时清理最少使用的条目
type MemoryHistoryCache struct {
	cache map[string]*historyEntry
	// 代数只增不删，清理缓存条目时保留
	generations map[string]int64
	sequence    int64
	mutex       sync.Mutex
	maxSize    int
	expiration time.Duration
	now        func() time.Time
}

type historyEntry struct {
	results   []models.ScanResult
	createdAt time.Time
	lastRead  time.Time
}

func NewMemoryHistoryCache(maxSize int, expiration time.Duration) *MemoryHistoryCache {
	if maxSize <= 0 {
		maxSize = defaultMemoryCacheMax
	}
	if expiration <= 0 {
		expiration = DefaultHistoryTTL
	}

	return &MemoryHistoryCache{
		cache:       make(map[string]*historyEntry),
		generations: make(map[string]int64),
		maxSize:     maxSize,
		expiration:  expiration,
		now:         time.Now,
	}
}

func (c *MemoryHistoryCache) Name() string { return "memory" }

func (c *MemoryHistoryCache) Get(_ context.Context, userID string) ([]models.ScanResult, bool, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	entry, exists := c.cache[userID]
	if !exists {
		return nil, false, nil
	}
	if c.now().Sub(entry.createdAt) > c.expiration {
		delete(c.cache, userID)
		return nil, false, nil
	}

	entry.lastRead = c.now()
	return cloneResults(entry.results), true, nil
}

func (c *MemoryHistoryCache) Generation(_ context.Context, userID string) (int64, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.generations[userID], nil
}

func (c *MemoryHistoryCache) Set(_ context.Context, userID string, generation int64, results []models.ScanResult) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.generations[userID] != generation {
		return nil
	}

	now := c.now()
	c.cache[userID] = &historyEntry{
		results:   cloneResults(results),
		createdAt: now,
		lastRead:  now,
	}

	if len(c.cache) > c.maxSize {
		c.cleanupLRU(max(1, c.maxSize/5)) // 清理20%
	}
	return nil
}

func (c *MemoryHistoryCache) Invalidate(_ context.Context, userID string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.sequence++
	c.generations[userID] = c.sequence
	delete(c.cache, userID)
	return nil
}

// Len 当前缓存条目数
func (c *MemoryHistoryCache) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.cache)
}

// 清理最少使用的条目，调用方需持有锁
func (c *MemoryHistoryCache) cleanupLRU(count int) {
	type keyAge struct {
		key  string
		time time.Time
	}

	entries := make([]keyAge, 0, len(c.cache))
	for k, v := range c.cache {
		entries = append(entries, keyAge{k, v.lastRead})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].time.Before(entries[j].time)
	})

	for i := 0; i < min(count, len(entries)); i++ {
		delete(c.cache, entries[i].key)
	}
}

func cloneResults(in []models.ScanResult) []models.ScanResult {
	out := make([]models.ScanResult, len(in))
	for i, r := range in {
		comparative := make([]models.ComparativeMetric, len(r.ComparativeAnalysis))
		copy(comparative, r.ComparativeAnalysis)
		r.ComparativeAnalysis = comparative
		out[i] = r
	}
	return out
}
