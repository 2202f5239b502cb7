// internal/services/classifier.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Corphon/DeepDetect/internal/llm"
	"github.com/Corphon/DeepDetect/internal/models"
	"github.com/Corphon/DeepDetect/internal/utils"
)

// DefaultDetails 分类服务未给出说明时使用
const DefaultDetails = "No detailed analysis available."

// GatewayFailureKind 分类失败的类别
type GatewayFailureKind string

const (
	// 未配置凭据或提供者，不发起网络请求
	FailureUnavailable GatewayFailureKind = "unavailable"
	// 网络错误或非 2xx 响应
	FailureTransport GatewayFailureKind = "transport"
	// 去掉代码块后仍不是 JSON
	FailureMalformed GatewayFailureKind = "malformed"
	// JSON 结构或取值不符合 ScanOutcome
	FailureNonconforming GatewayFailureKind = "nonconforming"
)

// GatewayFailure 分类失败。它总是被本地恢复，不会作为请求错误返回给调用方。
type GatewayFailure struct {
	Kind GatewayFailureKind
	Err  error
}

func (f *GatewayFailure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("classification %s: %v", f.Kind, f.Err)
	}
	return "classification " + string(f.Kind)
}

func (f *GatewayFailure) Unwrap() error {
	return f.Err
}

// FailureKindOf 返回错误链中的失败类别
func FailureKindOf(err error) (GatewayFailureKind, bool) {
	var failure *GatewayFailure
	if errors.As(err, &failure) {
		return failure.Kind, true
	}
	return "", false
}

func failure(kind GatewayFailureKind, err error) *GatewayFailure {
	return &GatewayFailure{Kind: kind, Err: err}
}

// Classifier 真实性分类
type Classifier interface {
	Classify(ctx context.Context, req models.ScanRequest) (models.ScanOutcome, error)
}

// ClassificationGateway 调用外部分类服务
type ClassificationGateway struct {
	llm     *LLMService
	metrics *utils.MetricsCollector
}

func NewClassificationGateway(llmService *LLMService, metrics *utils.MetricsCollector) *ClassificationGateway {
	if metrics == nil {
		metrics = utils.GetMetricsCollector()
	}
	return &ClassificationGateway{llm: llmService, metrics: metrics}
}

// Available 是否配置了可用的分类服务
func (g *ClassificationGateway) Available() bool {
	return g != nil && g.llm.IsReady()
}

// Classify 同步调用一次，不重试
func (g *ClassificationGateway) Classify(ctx context.Context, req models.ScanRequest) (models.ScanOutcome, error) {
	if !g.Available() {
		return models.ScanOutcome{}, failure(FailureUnavailable, ErrLLMNotReady)
	}

	prompt, attachments := BuildClassificationPrompt(req)

	start := time.Now()
	resp, err := g.llm.Complete(ctx, llm.CompletionRequest{
		Prompt:      prompt,
		Attachments: attachments,
		Temperature: 0.2,
		JSONOutput:  true,
	})
	g.metrics.RecordDuration(utils.MetricGatewayLatencyMs, time.Since(start))

	if err != nil {
		if errors.Is(err, llm.ErrEmptyResponse) {
			return models.ScanOutcome{}, failure(FailureMalformed, err)
		}
		return models.ScanOutcome{}, failure(FailureTransport, err)
	}

	return ParseClassification(resp.Text)
}

// BuildClassificationPrompt 构建分类指令并决定附带的内容
func BuildClassificationPrompt(req models.ScanRequest) (string, []llm.Attachment) {
	var b strings.Builder

	b.WriteString("Act as a specialized Forensic AI Detector.\n")
	fmt.Fprintf(&b, "Analyze the provided content (%s).\n\n", req.FileType)

	b.WriteString("METADATA:\n")
	fmt.Fprintf(&b, "- Title: %s\n", req.Title)
	fmt.Fprintf(&b, "- Author: %s\n", req.Author)
	fmt.Fprintf(&b, "- Language: %s\n", req.Language)
	fmt.Fprintf(&b, "- Content kind: %s\n\n", req.FileType)

	b.WriteString(`TASK:
Determine if this content is REAL (Authentic) or FAKE (AI-Generated/Deepfake).
Provide a "confidenceScore" (0-100) representing how sure you are.
Provide "comparative_analysis" comparing observed features to natural baselines.

REQUIRED JSON OUTPUT (No Markdown):
{
  "result": "Real" or "Fake",
  "confidenceScore": number,
  "analysis": { "perplexity": number, "burstiness": number, "similarityScore": number, "aiProbability": number },
  "comparative_analysis": [ { "metric": string, "observed": string, "benchmark": string, "status": "Normal" | "Anomaly" } ],
  "details": "string summary"
}
All numbers are between 0 and 100.`)

	var attachments []llm.Attachment
	switch {
	case req.HasPayload() && (isImageMediaType(req.Payload.MediaType) || req.FileType == models.FileTypeIDVerify):
		attachments = append(attachments, llm.Attachment{
			MediaType: attachmentMediaType(req.Payload.MediaType),
			Data:      req.Payload.Data,
		})
	case req.HasText():
		fmt.Fprintf(&b, "\n\nCONTENT TO ANALYZE:\n%q", req.Text)
	default:
		// 视频/音频无法直接提交，只能根据元数据判断
		fmt.Fprintf(&b, "\n\n[NOTE: Analyzing Metadata and Context only for Video/Audio in this specific mode. Assume content pattern: %s]", req.FileName)
	}

	return b.String(), attachments
}

func isImageMediaType(mediaType string) bool {
	return strings.HasPrefix(strings.ToLower(mediaType), "image/")
}

func attachmentMediaType(mediaType string) string {
	if mediaType == "" {
		return "application/octet-stream"
	}
	return mediaType
}

// classificationPayload 分类服务返回的原始结构，指针字段用于检查是否缺失
type classificationPayload struct {
	Result          *string  `json:"result"`
	ConfidenceScore *float64 `json:"confidenceScore"`
	Analysis        *struct {
		Perplexity      *float64 `json:"perplexity"`
		Burstiness      *float64 `json:"burstiness"`
		SimilarityScore *float64 `json:"similarityScore"`
		AIProbability   *float64 `json:"aiProbability"`
	} `json:"analysis"`
	ComparativeAnalysis []struct {
		Metric    string `json:"metric"`
		Observed  string `json:"observed"`
		Benchmark string `json:"benchmark"`
		Status    string `json:"status"`
	} `json:"comparative_analysis"`
	Details *string `json:"details"`
}

// ParseClassification 去掉代码块标记后严格解析并校验分类结果
func ParseClassification(raw string) (models.ScanOutcome, error) {
	cleaned := SanitizeLLMJSONResponse(raw)
	if cleaned == "" || !json.Valid([]byte(cleaned)) {
		return models.ScanOutcome{}, failure(FailureMalformed, fmt.Errorf("response is not JSON: %.80q", cleaned))
	}

	var payload classificationPayload
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return models.ScanOutcome{}, failure(FailureNonconforming, err)
	}

	outcome, err := payload.toOutcome()
	if err != nil {
		return models.ScanOutcome{}, failure(FailureNonconforming, err)
	}
	return outcome, nil
}

func (p classificationPayload) toOutcome() (models.ScanOutcome, error) {
	if p.Result == nil {
		return models.ScanOutcome{}, errors.New("missing result")
	}
	verdict, ok := parseVerdict(*p.Result)
	if !ok {
		return models.ScanOutcome{}, fmt.Errorf("invalid result %q", *p.Result)
	}

	if p.ConfidenceScore == nil {
		return models.ScanOutcome{}, errors.New("missing confidenceScore")
	}
	if err := checkScore("confidenceScore", *p.ConfidenceScore); err != nil {
		return models.ScanOutcome{}, err
	}

	if p.Analysis == nil {
		return models.ScanOutcome{}, errors.New("missing analysis")
	}
	scores := []struct {
		name  string
		value *float64
	}{
		{"perplexity", p.Analysis.Perplexity},
		{"burstiness", p.Analysis.Burstiness},
		{"similarityScore", p.Analysis.SimilarityScore},
		{"aiProbability", p.Analysis.AIProbability},
	}
	for _, s := range scores {
		if s.value == nil {
			return models.ScanOutcome{}, fmt.Errorf("missing analysis.%s", s.name)
		}
		if err := checkScore("analysis."+s.name, *s.value); err != nil {
			return models.ScanOutcome{}, err
		}
	}

	comparative := make([]models.ComparativeMetric, 0, len(p.ComparativeAnalysis))
	for i, c := range p.ComparativeAnalysis {
		if strings.TrimSpace(c.Metric) == "" {
			return models.ScanOutcome{}, fmt.Errorf("comparative_analysis[%d]: missing metric", i)
		}
		status, ok := parseStatus(c.Status)
		if !ok {
			return models.ScanOutcome{}, fmt.Errorf("comparative_analysis[%d]: invalid status %q", i, c.Status)
		}
		comparative = append(comparative, models.ComparativeMetric{
			Metric:    c.Metric,
			Observed:  c.Observed,
			Benchmark: c.Benchmark,
			Status:    status,
		})
	}

	details := DefaultDetails
	if p.Details != nil && strings.TrimSpace(*p.Details) != "" {
		details = strings.TrimSpace(*p.Details)
	}

	return models.ScanOutcome{
		Result:          verdict,
		ConfidenceScore: *p.ConfidenceScore,
		Analysis: models.AnalysisMetrics{
			Perplexity:      *p.Analysis.Perplexity,
			Burstiness:      *p.Analysis.Burstiness,
			SimilarityScore: *p.Analysis.SimilarityScore,
			AIProbability:   *p.Analysis.AIProbability,
		},
		ComparativeAnalysis: comparative,
		Details:             details,
		Source:              models.SourceGateway,
	}, nil
}

func checkScore(name string, v float64) error {
	if v < 0 || v > 100 {
		return fmt.Errorf("%s out of range: %v", name, v)
	}
	return nil
}

func parseVerdict(raw string) (models.Verdict, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "real":
		return models.VerdictReal, true
	case "fake":
		return models.VerdictFake, true
	default:
		return "", false
	}
}

func parseStatus(raw string) (models.MetricStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "normal":
		return models.StatusNormal, true
	case "anomaly":
		return models.StatusAnomaly, true
	default:
		return "", false
	}
}
