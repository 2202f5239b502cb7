// internal/models/scan.go
package models

import (
	"strings"
	"time"
)

// FileType 扫描内容类型
type FileType string

const (
	FileTypeUpload   FileType = "upload"
	FileTypeVideo    FileType = "video"
	FileTypeAudio    FileType = "audio"
	FileTypeText     FileType = "text"
	FileTypeIDVerify FileType = "id_verify"
)

// ParseFileType 识别五种类型之一（不区分大小写）
func ParseFileType(raw string) (FileType, bool) {
	switch ft := FileType(strings.ToLower(strings.TrimSpace(raw))); ft {
	case FileTypeUpload, FileTypeVideo, FileTypeAudio, FileTypeText, FileTypeIDVerify:
		return ft, true
	default:
		return "", false
	}
}

// Verdict 真实性判定
type Verdict string

const (
	VerdictReal Verdict = "Real"
	VerdictFake Verdict = "Fake"
)

// MetricStatus 对比指标状态
type MetricStatus string

const (
	StatusNormal  MetricStatus = "Normal"
	StatusAnomaly MetricStatus = "Anomaly"
)

// OutcomeSource 结果来源
type OutcomeSource string

const (
	SourceGateway   OutcomeSource = "gateway"
	SourceSimulator OutcomeSource = "simulator"
)

// OfflineIDPrefix 离线模式下临时ID的前缀
const OfflineIDPrefix = "offline_"

// Payload 上传的二进制内容
type Payload struct {
	Data      []byte
	MediaType string
	FileName  string
}

// ScanRequest 规范化后的检测请求
type ScanRequest struct {
	UserID   string
	FileType FileType
	FileName string // 展示用文件名
	Title    string
	Author   string
	Language string

	Payload *Payload
	Text    string
}

func (r ScanRequest) HasPayload() bool {
	return r.Payload != nil && len(r.Payload.Data) > 0
}

func (r ScanRequest) HasText() bool {
	return strings.TrimSpace(r.Text) != ""
}

// AnalysisMetrics 分析指标，取值范围 0-100
type AnalysisMetrics struct {
	Perplexity      float64 `json:"perplexity"`
	Burstiness      float64 `json:"burstiness"`
	SimilarityScore float64 `json:"similarityScore"`
	AIProbability   float64 `json:"aiProbability"`
}

// ComparativeMetric 对比分析条目，顺序即展示顺序
type ComparativeMetric struct {
	Metric    string       `json:"metric"`
	Observed  string       `json:"observed"`
	Benchmark string       `json:"benchmark"`
	Status    MetricStatus `json:"status"`
}

// ScanOutcome 判定结果，无论来自分类服务还是模拟器都必须满足同一结构
type ScanOutcome struct {
	Result              Verdict             `json:"result"`
	ConfidenceScore     float64             `json:"confidenceScore"`
	Analysis            AnalysisMetrics     `json:"analysis"`
	ComparativeAnalysis []ComparativeMetric `json:"comparative_analysis"`
	Details             string              `json:"details"`
	Source              OutcomeSource       `json:"-"`
}

// ScanResult 最终返回给调用方的扫描记录，创建后不再修改
type ScanResult struct {
	ID                  string              `json:"_id"`
	UserID              string              `json:"userId"`
	FileName            string              `json:"fileName"`
	FileType            FileType            `json:"fileType"`
	Result              Verdict             `json:"result"`
	ConfidenceScore     float64             `json:"confidenceScore"`
	Title               string              `json:"title"`
	Author              string              `json:"author"`
	Language            string              `json:"language"`
	Analysis            AnalysisMetrics     `json:"analysis"`
	ComparativeAnalysis []ComparativeMetric `json:"comparative_analysis"`
	Details             string              `json:"details"`
	ScanDate            time.Time           `json:"scanDate"`

	Source OutcomeSource `json:"-"`
}

// NewScanResult 合并请求与判定结果
func NewScanResult(id string, req ScanRequest, outcome ScanOutcome, scanDate time.Time) ScanResult {
	comparative := make([]ComparativeMetric, len(outcome.ComparativeAnalysis))
	copy(comparative, outcome.ComparativeAnalysis)

	return ScanResult{
		ID:                  id,
		UserID:              req.UserID,
		FileName:            req.FileName,
		FileType:            req.FileType,
		Result:              outcome.Result,
		ConfidenceScore:     outcome.ConfidenceScore,
		Title:               req.Title,
		Author:              req.Author,
		Language:            req.Language,
		Analysis:            outcome.Analysis,
		ComparativeAnalysis: comparative,
		Details:             outcome.Details,
		ScanDate:            scanDate,
		Source:              outcome.Source,
	}
}

// IsEphemeral 离线模式生成的记录未被持久化
func (r ScanResult) IsEphemeral() bool {
	return strings.HasPrefix(r.ID, OfflineIDPrefix)
}

// ScanEvent WebSocket 推送的扫描事件
type ScanEvent struct {
	Type      string     `json:"type"`
	Scan      ScanResult `json:"scan"`
	Timestamp time.Time  `json:"timestamp"`
}

const EventScanCompleted = "scan_completed"
