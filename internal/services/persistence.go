// internal/services/persistence.go
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/Corphon/DeepDetect/internal/errors"
	"github.com/Corphon/DeepDetect/internal/models"
	"github.com/Corphon/DeepDetect/internal/storage"
	"github.com/Corphon/DeepDetect/internal/utils"
	"github.com/google/uuid"
)

// ScanRepository 扫描结果的持久化后端
type ScanRepository interface {
	Insert(ctx context.Context, result models.ScanResult) error
	ListByUser(ctx context.Context, userID string) ([]models.ScanResult, error)
}

// PersistenceAdapter 在线时写入存储，离线时生成临时ID直接返回
type PersistenceAdapter struct {
	state storage.State
	repo  ScanRepository

	now   func() time.Time
	newID func() string
}

func NewPersistenceAdapter(state storage.State, repo ScanRepository) *PersistenceAdapter {
	return &PersistenceAdapter{
		state: state,
		repo:  repo,
		now:   func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		newID: uuid.NewString,
	}
}

// Save 合并请求与结果。在线状态下的写入失败是请求级错误。
func (p *PersistenceAdapter) Save(ctx context.Context, req models.ScanRequest, outcome models.ScanOutcome) (models.ScanResult, error) {
	now := p.now()

	if !p.state.Online() {
		// 同一毫秒内的多次离线扫描靠随机后缀区分
		id := fmt.Sprintf("%s%d_%s", models.OfflineIDPrefix, now.UnixMilli(), p.newID()[:8])
		return models.NewScanResult(id, req, outcome, now), nil
	}

	result := models.NewScanResult(p.newID(), req, outcome, now)
	if err := p.repo.Insert(ctx, result); err != nil {
		return models.ScanResult{}, errors.NewStorageError("Error processing scan", err)
	}
	return result, nil
}

// HistoryQuery 读取用户历史记录，按扫描时间倒序
type HistoryQuery struct {
	state storage.State
	repo  ScanRepository
	cache storage.HistoryCache
}

// NewHistoryQuery cache 可以为 nil
func NewHistoryQuery(state storage.State, repo ScanRepository, cache storage.HistoryCache) *HistoryQuery {
	return &HistoryQuery{state: state, repo: repo, cache: cache}
}

// History 离线时返回空列表；在线时的查询错误作为读取失败返回
func (h *HistoryQuery) History(ctx context.Context, userID string) ([]models.ScanResult, error) {
	if !h.state.Online() {
		return []models.ScanResult{}, nil
	}

	if h.cache != nil {
		results, hit, err := h.cache.Get(ctx, userID)
		if err != nil {
			utils.GetLogger().Warn("读取历史缓存失败", map[string]interface{}{
				"user_id": userID,
				"cache":   h.cache.Name(),
				"error":   err.Error(),
			})
		} else if hit {
			return results, nil
		}
	}

	// 先取代数再读存储，读取期间被 Invalidate 时不回填
	generation, cacheable := int64(0), false
	if h.cache != nil {
		gen, err := h.cache.Generation(ctx, userID)
		if err != nil {
			utils.GetLogger().Warn("读取缓存代数失败", map[string]interface{}{
				"user_id": userID,
				"error":   err.Error(),
			})
		} else {
			generation, cacheable = gen, true
		}
	}

	results, err := h.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, errors.NewStorageError("Error fetching history", err)
	}
	if results == nil {
		results = []models.ScanResult{}
	}

	if cacheable {
		if err := h.cache.Set(ctx, userID, generation, results); err != nil {
			utils.GetLogger().Warn("写入历史缓存失败", map[string]interface{}{
				"user_id": userID,
				"error":   err.Error(),
			})
		}
	}
	return results, nil
}

// Invalidate 新记录写入后使缓存失效
func (h *HistoryQuery) Invalidate(ctx context.Context, userID string) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Invalidate(ctx, userID); err != nil {
		utils.GetLogger().Warn("清除历史缓存失败", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
	}
}
