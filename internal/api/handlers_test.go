package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Corphon/DeepDetect/internal/auth"
	"github.com/Corphon/DeepDetect/internal/models"
	"github.com/Corphon/DeepDetect/internal/services"
	"github.com/Corphon/DeepDetect/internal/storage"
	"github.com/Corphon/DeepDetect/internal/utils"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router  *gin.Engine
	handler *Handler
	issuer  *auth.Issuer
	db      *storage.Database
	metrics *utils.MetricsCollector
}

// newTestServer 组装完整的路由。dsn 为空时以离线模式运行。
func newTestServer(t *testing.T, dsn string) *testServer {
	t.Helper()

	db := storage.Open(context.Background(), dsn, false)
	t.Cleanup(func() { db.Close() })

	metrics := utils.NewMetricsCollector()
	issuer := auth.NewIssuer(&auth.TokenConfig{Secret: []byte("api-test-secret"), Expiration: time.Hour})

	scanStore := storage.NewScanStore(db)
	llmService := services.NewEmptyLLMService()
	gateway := services.NewClassificationGateway(llmService, metrics)
	scanService := services.NewScanService(
		gateway,
		services.NewSimulator(nil),
		services.NewPersistenceAdapter(db.State(), scanStore),
		services.NewHistoryQuery(db.State(), scanStore, storage.NewMemoryHistoryCache(100, time.Minute)),
		metrics,
	)
	userService := services.NewUserService(db.State(), storage.NewAccountStore(db), issuer)

	handler := NewHandler(HandlerConfig{
		ScanService:    scanService,
		UserService:    userService,
		LLMService:     llmService,
		Gateway:        gateway,
		Database:       db,
		Metrics:        metrics,
		CacheName:      "memory",
		MaxUploadBytes: 1 << 20,
	})
	scanService.SetEventPublisher(handler.Hub())

	return &testServer{
		router:  NewRouter(handler, issuer, nil, RouterConfig{}),
		handler: handler,
		issuer:  issuer,
		db:      db,
		metrics: metrics,
	}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) token(t *testing.T, userID string) string {
	t.Helper()
	token, _, err := s.issuer.GenerateToken(userID)
	if err != nil {
		t.Fatalf("生成令牌失败: %v", err)
	}
	return token
}

// multipartRequest 构造检测请求，file 为空时不附带文件
func multipartRequest(t *testing.T, fields map[string]string, fileName, mediaType string, file []byte) *http.Request {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for k, v := range fields {
		writer.WriteField(k, v)
	}
	if file != nil {
		header := make(map[string][]string)
		header["Content-Disposition"] = []string{`form-data; name="file"; filename="` + fileName + `"`}
		header["Content-Type"] = []string{mediaType}
		part, err := writer.CreatePart(header)
		if err != nil {
			t.Fatalf("创建文件字段失败: %v", err)
		}
		part.Write(file)
	}
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/scan/detect", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func decodeScan(t *testing.T, w *httptest.ResponseRecorder) models.ScanResult {
	t.Helper()
	var result models.ScanResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("解析扫描结果失败: %v\n%s", err, w.Body.String())
	}
	return result
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("解析错误响应失败: %v\n%s", err, w.Body.String())
	}
	if resp.Success || resp.Error == nil {
		t.Fatalf("应为错误信封: %s", w.Body.String())
	}
	return resp
}

func TestDetectTextOffline(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do(multipartRequest(t, map[string]string{
		"userId":   "u1",
		"fileType": "text",
		"text":     "Hello world",
	}, "", "", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("期望 200, 实际 %d: %s", w.Code, w.Body.String())
	}
	result := decodeScan(t, w)
	if !strings.HasPrefix(result.ID, models.OfflineIDPrefix) {
		t.Errorf("离线ID格式不正确: %s", result.ID)
	}
	if result.FileName != services.TextSampleName || result.Title != services.DefaultTitle || result.Language != services.DefaultLanguage {
		t.Errorf("默认字段不正确: %+v", result)
	}
	if result.ConfidenceScore < 80 || result.ConfidenceScore > 99 {
		t.Errorf("置信度越界: %v", result.ConfidenceScore)
	}

	var raw map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &raw)
	for _, key := range []string{"_id", "userId", "fileName", "fileType", "result", "confidenceScore", "analysis", "comparative_analysis", "details", "scanDate"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("响应缺少字段 %s", key)
		}
	}
}

func TestDetectVideoUpload(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do(multipartRequest(t, map[string]string{"userId": "u1", "fileType": "video"}, "clip.mp4", "video/mp4", make([]byte, 1024)))
	if w.Code != http.StatusOK {
		t.Fatalf("期望 200, 实际 %d: %s", w.Code, w.Body.String())
	}
	result := decodeScan(t, w)
	if result.FileName != "clip.mp4" || result.FileType != models.FileTypeVideo {
		t.Errorf("文件信息不正确: %+v", result)
	}
}

func TestDetectJSONBody(t *testing.T) {
	s := newTestServer(t, "")

	req := httptest.NewRequest(http.MethodPost, "/api/scan/detect", strings.NewReader(`{"userId":"u1","fileType":"text","text":"hi","title":"Essay"}`))
	req.Header.Set("Content-Type", "application/json")
	w := s.do(req)

	if w.Code != http.StatusOK {
		t.Fatalf("期望 200, 实际 %d: %s", w.Code, w.Body.String())
	}
	if result := decodeScan(t, w); result.Title != "Essay" || result.UserID != "u1" {
		t.Errorf("JSON 字段未生效: %+v", result)
	}
}

func TestDetectUnparseableBody(t *testing.T) {
	s := newTestServer(t, "")

	req := httptest.NewRequest(http.MethodPost, "/api/scan/detect", strings.NewReader("--broken\r\nnot a part"))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=other")
	w := s.do(req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("期望 400, 实际 %d", w.Code)
	}
	if resp := decodeError(t, w); resp.Error.Code != ErrorInvalidScanForm {
		t.Errorf("错误代码不正确: %s", resp.Error.Code)
	}
}

func TestDetectUploadTooLarge(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do(multipartRequest(t, map[string]string{"fileType": "upload"}, "big.png", "image/png", make([]byte, 2<<20)))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("期望 400, 实际 %d", w.Code)
	}
	if resp := decodeError(t, w); resp.Error.Code != ErrorFileTooLarge {
		t.Errorf("错误代码不正确: %s", resp.Error.Code)
	}
}

func TestHistoryOfflineIsEmptyArray(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do(httptest.NewRequest(http.MethodGet, "/api/scan/history/u1", nil))
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != "[]" {
		t.Fatalf("离线历史应为 [], 实际 %d %s", w.Code, w.Body.String())
	}
}

func TestDetectOnlineThenHistory(t *testing.T) {
	s := newTestServer(t, "sqlite::memory:")

	for i := 0; i < 2; i++ {
		w := s.do(multipartRequest(t, map[string]string{"userId": "u1", "fileType": "text", "text": "sample"}, "", "", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("期望 200, 实际 %d: %s", w.Code, w.Body.String())
		}
		if result := decodeScan(t, w); result.IsEphemeral() {
			t.Fatalf("在线时不应返回临时ID: %s", result.ID)
		}
	}

	w := s.do(httptest.NewRequest(http.MethodGet, "/api/scan/history/u1", nil))
	var history []models.ScanResult
	if err := json.Unmarshal(w.Body.Bytes(), &history); err != nil || len(history) != 2 {
		t.Fatalf("历史记录不正确: %v %s", err, w.Body.String())
	}
	if history[0].ScanDate.Before(history[1].ScanDate) {
		t.Error("历史记录应按时间倒序")
	}

	other := s.do(httptest.NewRequest(http.MethodGet, "/api/scan/history/u2", nil))
	if strings.TrimSpace(other.Body.String()) != "[]" {
		t.Errorf("其他用户不应看到记录: %s", other.Body.String())
	}
}

func TestDetectOnlineStorageFailure(t *testing.T) {
	s := newTestServer(t, "sqlite::memory:")
	if err := s.db.DB().Migrator().DropTable(&storage.ComparativeMetricRecord{}, &storage.ScanRecord{}); err != nil {
		t.Fatalf("删除表失败: %v", err)
	}

	w := s.do(multipartRequest(t, map[string]string{"userId": "u1", "fileType": "text", "text": "x"}, "", "", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("期望 500, 实际 %d: %s", w.Code, w.Body.String())
	}
	resp := decodeError(t, w)
	if resp.Error.Message != "Error processing scan" {
		t.Errorf("错误消息不正确: %+v", resp.Error)
	}

	h := s.do(httptest.NewRequest(http.MethodGet, "/api/scan/history/u1", nil))
	if h.Code != http.StatusInternalServerError {
		t.Fatalf("期望 500, 实际 %d", h.Code)
	}
	if resp := decodeError(t, h); resp.Error.Message != "Error fetching history" {
		t.Errorf("错误消息不正确: %+v", resp.Error)
	}
}

func TestTokenOverridesFormUser(t *testing.T) {
	s := newTestServer(t, "")

	req := multipartRequest(t, map[string]string{"userId": "someone-else", "fileType": "text", "text": "x"}, "", "", nil)
	req.Header.Set("Authorization", "Bearer "+s.token(t, "owner"))
	w := s.do(req)

	if w.Code != http.StatusOK {
		t.Fatalf("期望 200, 实际 %d", w.Code)
	}
	if result := decodeScan(t, w); result.UserID != "owner" {
		t.Errorf("应使用令牌中的用户ID, 实际 %q", result.UserID)
	}
}

func TestUnknownPathReturnsNotFoundEnvelope(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do(httptest.NewRequest(http.MethodGet, "/api/scan/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("未知路径应返回 404, 实际 %d", w.Code)
	}
	if resp := decodeError(t, w); resp.Error.Code != "NOT_FOUND" {
		t.Errorf("错误代码应为 NOT_FOUND, 实际 %s", resp.Error.Code)
	}
}

func TestHistoryAccessControl(t *testing.T) {
	s := newTestServer(t, "")

	req := httptest.NewRequest(http.MethodGet, "/api/scan/history/u2", nil)
	req.Header.Set("Authorization", "Bearer "+s.token(t, "u1"))
	if w := s.do(req); w.Code != http.StatusForbidden {
		t.Errorf("访问他人历史应返回 403, 实际 %d", w.Code)
	} else if resp := decodeError(t, w); resp.Error.Code != "FORBIDDEN" {
		t.Errorf("错误代码应为 FORBIDDEN, 实际 %s", resp.Error.Code)
	}

	own := httptest.NewRequest(http.MethodGet, "/api/scan/history/u1", nil)
	own.Header.Set("Authorization", "Bearer "+s.token(t, "u1"))
	if w := s.do(own); w.Code != http.StatusOK {
		t.Errorf("访问自己的历史应返回 200, 实际 %d", w.Code)
	}

	bad := httptest.NewRequest(http.MethodGet, "/api/scan/history/u1", nil)
	bad.Header.Set("Authorization", "Bearer not-a-token")
	w := s.do(bad)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("无效令牌应返回 401, 实际 %d", w.Code)
	}
	if resp := decodeError(t, w); resp.Error.Code != ErrorInvalidToken {
		t.Errorf("错误代码不正确: %s", resp.Error.Code)
	}
}

func TestRegisterAndLoginEndpoints(t *testing.T) {
	s := newTestServer(t, "sqlite::memory:")

	post := func(path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		return s.do(req)
	}

	w := post("/api/auth/register", `{"name":"Ada","email":"ada@example.com","password":"password123"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("注册期望 201, 实际 %d: %s", w.Code, w.Body.String())
	}
	var session models.AuthSession
	json.Unmarshal(w.Body.Bytes(), &session)
	if session.ID == "" || session.Token == "" || session.Email != "ada@example.com" {
		t.Fatalf("注册返回不正确: %s", w.Body.String())
	}

	if w := post("/api/auth/register", `{"name":"Ada","email":"ada@example.com","password":"password123"}`); w.Code != http.StatusConflict {
		t.Errorf("重复注册期望 409, 实际 %d", w.Code)
	}
	if w := post("/api/auth/register", `{"name":"Ada","email":"b@example.com","password":"short"}`); w.Code != http.StatusBadRequest {
		t.Errorf("密码过短期望 400, 实际 %d", w.Code)
	}
	if w := post("/api/auth/login", `{"email":"ada@example.com","password":"password123"}`); w.Code != http.StatusOK {
		t.Errorf("登录期望 200, 实际 %d", w.Code)
	}
	if w := post("/api/auth/login", `{"email":"ada@example.com","password":"wrong-pass"}`); w.Code != http.StatusUnauthorized {
		t.Errorf("错误密码期望 401, 实际 %d", w.Code)
	}
	if w := post("/api/auth/login", `not json`); w.Code != http.StatusBadRequest {
		t.Errorf("无效请求体期望 400, 实际 %d", w.Code)
	}

	// 注册得到的令牌可用于访问自己的历史
	req := httptest.NewRequest(http.MethodGet, "/api/scan/history/"+session.ID, nil)
	req.Header.Set("Authorization", "Bearer "+session.Token)
	if w := s.do(req); w.Code != http.StatusOK {
		t.Errorf("期望 200, 实际 %d", w.Code)
	}
}

func TestAuthUnavailableOffline(t *testing.T) {
	s := newTestServer(t, "")

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"a@b.com","password":"password123"}`))
	req.Header.Set("Content-Type", "application/json")
	w := s.do(req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("离线登录期望 503, 实际 %d", w.Code)
	}
	if resp := decodeError(t, w); resp.Error.Code != "STORAGE_UNAVAILABLE" {
		t.Errorf("错误代码不正确: %s", resp.Error.Code)
	}
}

func TestReconnectRequiresAuthentication(t *testing.T) {
	s := newTestServer(t, "sqlite::memory:")

	if w := s.do(httptest.NewRequest(http.MethodPost, "/api/storage/reconnect", nil)); w.Code != http.StatusUnauthorized {
		t.Fatalf("未认证期望 401, 实际 %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/storage/reconnect", nil)
	req.Header.Set("Authorization", "Bearer "+s.token(t, "admin"))
	w := s.do(req)
	if w.Code != http.StatusOK {
		t.Fatalf("期望 200, 实际 %d: %s", w.Code, w.Body.String())
	}
	if !s.db.State().Online() {
		t.Error("重连后应处于在线状态")
	}
}

func TestReconnectWithoutDSNFails(t *testing.T) {
	s := newTestServer(t, "")

	req := httptest.NewRequest(http.MethodPost, "/api/storage/reconnect", nil)
	req.Header.Set("Authorization", "Bearer "+s.token(t, "admin"))
	w := s.do(req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("期望 503, 实际 %d", w.Code)
	}
	if resp := decodeError(t, w); resp.Error.Code != ErrorReconnectFailed {
		t.Errorf("错误代码不正确: %s", resp.Error.Code)
	}
}

func TestSystemEndpoints(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do(httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("health 期望 200, 实际 %d", w.Code)
	}
	var health struct {
		Success bool                   `json:"success"`
		Data    map[string]interface{} `json:"data"`
	}
	json.Unmarshal(w.Body.Bytes(), &health)
	if !health.Success || health.Data["storage"] != "offline" || health.Data["gateway_available"] != false {
		t.Errorf("health 内容不正确: %s", w.Body.String())
	}
	if w.Header().Get(requestIDHeader) == "" {
		t.Error("响应应包含请求ID")
	}

	if w := s.do(httptest.NewRequest(http.MethodGet, "/api/llm/status", nil)); w.Code != http.StatusOK {
		t.Errorf("llm status 期望 200, 实际 %d", w.Code)
	}

	s.do(multipartRequest(t, map[string]string{"fileType": "text", "text": "x"}, "", "", nil))
	m := s.do(httptest.NewRequest(http.MethodGet, "/api/metrics", nil))
	if m.Code != http.StatusOK || !strings.Contains(m.Body.String(), utils.MetricScansTotal) {
		t.Errorf("metrics 应包含扫描计数: %s", m.Body.String())
	}

	if w := s.do(httptest.NewRequest(http.MethodGet, "/", nil)); !strings.Contains(w.Body.String(), "running") {
		t.Errorf("根路径响应不正确: %s", w.Body.String())
	}
}

func TestRequestIDIsPropagated(t *testing.T) {
	s := newTestServer(t, "")

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set(requestIDHeader, "trace-123")
	if w := s.do(req); w.Header().Get(requestIDHeader) != "trace-123" {
		t.Errorf("应沿用客户端请求ID, 实际 %q", w.Header().Get(requestIDHeader))
	}
}
