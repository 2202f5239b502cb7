// internal/services/scan_service.go
package services

import (
	"context"
	"time"

	"github.com/Corphon/DeepDetect/internal/models"
	"github.com/Corphon/DeepDetect/internal/utils"
)

// AnalysisFailedNote 分类失败并退回模拟结果时追加到 details
const AnalysisFailedNote = " (Analysis failed, reverting to simulation)"

// ScanEventPublisher 推送扫描完成事件
type ScanEventPublisher interface {
	PublishScan(userID string, result models.ScanResult)
}

// ScanService 检测流水线: 分类 -> (失败时)模拟 -> 持久化 -> 通知
type ScanService struct {
	classifier  Classifier
	simulator   *Simulator
	persistence *PersistenceAdapter
	history     *HistoryQuery
	events      ScanEventPublisher
	metrics     *utils.MetricsCollector
}

func NewScanService(classifier Classifier, simulator *Simulator, persistence *PersistenceAdapter, history *HistoryQuery, metrics *utils.MetricsCollector) *ScanService {
	if simulator == nil {
		simulator = NewSimulator(nil)
	}
	if metrics == nil {
		metrics = utils.GetMetricsCollector()
	}
	return &ScanService{
		classifier:  classifier,
		simulator:   simulator,
		persistence: persistence,
		history:     history,
		metrics:     metrics,
	}
}

// SetEventPublisher 设置事件推送（WebSocket 管理器在路由创建时才可用）
func (s *ScanService) SetEventPublisher(events ScanEventPublisher) {
	s.events = events
}

// Detect 执行一次检测。只有在线状态下的存储失败会返回错误。
func (s *ScanService) Detect(ctx context.Context, req models.ScanRequest) (models.ScanResult, error) {
	start := time.Now()
	logger := utils.GetLogger()

	outcome := s.classify(ctx, req)

	result, err := s.persistence.Save(ctx, req, outcome)
	if err != nil {
		s.metrics.IncrementCounter(utils.MetricStorageFailures)
		logger.Error("保存扫描结果失败", map[string]interface{}{
			"user_id": req.UserID,
			"error":   err.Error(),
		})
		return models.ScanResult{}, err
	}

	s.metrics.IncrementCounter(utils.MetricScansTotal)
	if result.Result == models.VerdictFake {
		s.metrics.IncrementCounter(utils.MetricScansFake)
	} else {
		s.metrics.IncrementCounter(utils.MetricScansReal)
	}

	if result.IsEphemeral() {
		s.metrics.IncrementCounter(utils.MetricOfflineSaves)
	} else if s.history != nil {
		s.history.Invalidate(ctx, result.UserID)
	}

	if s.events != nil && result.UserID != "" {
		s.events.PublishScan(result.UserID, result)
	}

	logger.Info("扫描完成", map[string]interface{}{
		"scan_id":    result.ID,
		"user_id":    result.UserID,
		"file_type":  result.FileType,
		"result":     result.Result,
		"source":     result.Source,
		"confidence": result.ConfidenceScore,
		"duration":   time.Since(start).String(),
	})
	return result, nil
}

// classify 分类失败一律退回模拟结果
func (s *ScanService) classify(ctx context.Context, req models.ScanRequest) models.ScanOutcome {
	var err error
	if s.classifier != nil {
		var outcome models.ScanOutcome
		outcome, err = s.classifier.Classify(ctx, req)
		if err == nil {
			return outcome
		}
	}

	outcome := s.simulator.Simulate()
	s.metrics.IncrementCounter(utils.MetricSimulatedScans)

	kind, _ := FailureKindOf(err)
	if s.classifier == nil || kind == FailureUnavailable {
		// 未配置凭据不是错误
		return outcome
	}

	s.metrics.IncrementCounter(utils.MetricGatewayFailures)
	s.metrics.IncrementCounter(utils.MetricGatewayFailures + "_" + string(kind))
	utils.GetLogger().Warn("分类服务调用失败，使用模拟结果", map[string]interface{}{
		"user_id":   req.UserID,
		"file_type": req.FileType,
		"kind":      kind,
		"error":     err.Error(),
	})

	outcome.Details += AnalysisFailedNote
	return outcome
}

// History 用户历史记录
func (s *ScanService) History(ctx context.Context, userID string) ([]models.ScanResult, error) {
	return s.history.History(ctx, userID)
}
