// internal/storage/scan_store.go
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/Corphon/DeepDetect/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotConnected 数据库尚未连接
var ErrNotConnected = errors.New("database not connected")

// ScanRecord 扫描结果表。用户输入和分类服务返回的文本列不限长度。
type ScanRecord struct {
	ID              string    `gorm:"primaryKey;size:64"`
	UserID          string    `gorm:"size:255;not null;index:idx_scan_user_date,priority:1"`
	FileName        string    `gorm:"type:text"`
	FileType        string    `gorm:"size:32;not null"`
	Result          string    `gorm:"size:16;not null"`
	ConfidenceScore float64   `gorm:"not null"`
	Title           string    `gorm:"type:text"`
	Author          string    `gorm:"type:text"`
	Language        string    `gorm:"type:text"`
	Perplexity      float64   `gorm:"not null"`
	Burstiness      float64   `gorm:"not null"`
	SimilarityScore float64   `gorm:"not null"`
	AIProbability   float64   `gorm:"column:ai_probability;not null"`
	Details         string    `gorm:"type:text"`
	ScanDate        time.Time `gorm:"not null;index:idx_scan_user_date,priority:2"`

	Comparative []ComparativeMetricRecord `gorm:"foreignKey:ScanID;constraint:OnDelete:CASCADE"`
}

func (ScanRecord) TableName() string { return "scan_results" }

// ComparativeMetricRecord 对比分析条目，Position 保存原始顺序
type ComparativeMetricRecord struct {
	ID        uint   `gorm:"primaryKey"`
	ScanID    string `gorm:"size:64;not null;index"`
	Position  int    `gorm:"not null"`
	Metric    string `gorm:"type:text"`
	Observed  string `gorm:"type:text"`
	Benchmark string `gorm:"type:text"`
	Status    string `gorm:"size:16"`
}

func (ComparativeMetricRecord) TableName() string { return "scan_comparative_metrics" }

// ScanStore 扫描结果的持久化
type ScanStore struct {
	db *Database
}

func NewScanStore(db *Database) *ScanStore {
	return &ScanStore{db: db}
}

// Insert 在一个事务中写入扫描结果及其对比指标
func (s *ScanStore) Insert(ctx context.Context, result models.ScanResult) error {
	db := s.db.DB()
	if db == nil {
		return ErrNotConnected
	}

	record := toScanRecord(result)
	rows := record.Comparative

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(&record).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
}

// ListByUser 按扫描时间倒序返回用户的历史记录
func (s *ScanStore) ListByUser(ctx context.Context, userID string) ([]models.ScanResult, error) {
	db := s.db.DB()
	if db == nil {
		return nil, ErrNotConnected
	}

	var records []ScanRecord
	err := db.WithContext(ctx).
		Preload("Comparative", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("position ASC")
		}).
		Where("user_id = ?", userID).
		Order("scan_date DESC").
		Order("id DESC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	results := make([]models.ScanResult, 0, len(records))
	for _, r := range records {
		results = append(results, r.toModel())
	}
	return results, nil
}

func toScanRecord(r models.ScanResult) ScanRecord {
	record := ScanRecord{
		ID:              r.ID,
		UserID:          r.UserID,
		FileName:        r.FileName,
		FileType:        string(r.FileType),
		Result:          string(r.Result),
		ConfidenceScore: r.ConfidenceScore,
		Title:           r.Title,
		Author:          r.Author,
		Language:        r.Language,
		Perplexity:      r.Analysis.Perplexity,
		Burstiness:      r.Analysis.Burstiness,
		SimilarityScore: r.Analysis.SimilarityScore,
		AIProbability:   r.Analysis.AIProbability,
		Details:         r.Details,
		ScanDate:        r.ScanDate,
	}

	for i, m := range r.ComparativeAnalysis {
		record.Comparative = append(record.Comparative, ComparativeMetricRecord{
			ScanID:    r.ID,
			Position:  i,
			Metric:    m.Metric,
			Observed:  m.Observed,
			Benchmark: m.Benchmark,
			Status:    string(m.Status),
		})
	}
	return record
}

func (r ScanRecord) toModel() models.ScanResult {
	comparative := make([]models.ComparativeMetric, 0, len(r.Comparative))
	for _, c := range r.Comparative {
		comparative = append(comparative, models.ComparativeMetric{
			Metric:    c.Metric,
			Observed:  c.Observed,
			Benchmark: c.Benchmark,
			Status:    models.MetricStatus(c.Status),
		})
	}

	return models.ScanResult{
		ID:              r.ID,
		UserID:          r.UserID,
		FileName:        r.FileName,
		FileType:        models.FileType(r.FileType),
		Result:          models.Verdict(r.Result),
		ConfidenceScore: r.ConfidenceScore,
		Title:           r.Title,
		Author:          r.Author,
		Language:        r.Language,
		Analysis: models.AnalysisMetrics{
			Perplexity:      r.Perplexity,
			Burstiness:      r.Burstiness,
			SimilarityScore: r.SimilarityScore,
			AIProbability:   r.AIProbability,
		},
		ComparativeAnalysis: comparative,
		Details:             r.Details,
		ScanDate:            r.ScanDate,
	}
}
