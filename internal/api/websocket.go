// internal/api/websocket.go
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Corphon/DeepDetect/internal/models"
	"github.com/Corphon/DeepDetect/internal/utils"
	"github.com/gorilla/websocket"
)

const (
	wsSendBuffer   = 32
	wsWriteTimeout = 10 * time.Second
	wsPongTimeout  = 60 * time.Second
	wsPingInterval = 54 * time.Second
)

// WebSocket 升级器配置
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 跨域限制由 CORS 配置负责
		return true
	},
}

// WebSocketConnection 定义 WebSocket 连接的接口
type WebSocketConnection interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
}

// ScanClient 订阅某个用户扫描事件的连接
type ScanClient struct {
	conn      WebSocketConnection
	userID    string
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	lastPing  atomic.Int64
	createdAt time.Time
}

func newScanClient(conn WebSocketConnection, userID string) *ScanClient {
	client := &ScanClient{
		conn:      conn,
		userID:    userID,
		send:      make(chan []byte, wsSendBuffer),
		done:      make(chan struct{}),
		createdAt: time.Now(),
	}
	client.UpdatePing()
	return client
}

// Close 安全关闭客户端连接，可重复调用
func (client *ScanClient) Close() {
	client.closeOnce.Do(func() {
		close(client.done)
		client.conn.Close()
	})
}

// IsClosed 检查连接是否已关闭
func (client *ScanClient) IsClosed() bool {
	select {
	case <-client.done:
		return true
	default:
		return false
	}
}

// UpdatePing 更新最后活跃时间
func (client *ScanClient) UpdatePing() {
	client.lastPing.Store(time.Now().UnixNano())
}

// IsExpired 检查连接是否超时
func (client *ScanClient) IsExpired(timeout time.Duration) bool {
	return time.Since(time.Unix(0, client.lastPing.Load())) > timeout
}

// enqueue 非阻塞写入发送队列，队列满时返回 false
func (client *ScanClient) enqueue(message []byte) bool {
	if client.IsClosed() {
		return false
	}
	select {
	case client.send <- message:
		return true
	default:
		return false
	}
}

// SendMessage 序列化并发送消息
func (client *ScanClient) SendMessage(message interface{}) bool {
	msgBytes, err := json.Marshal(message)
	if err != nil {
		return false
	}
	return client.enqueue(msgBytes)
}

// ScanHub 按用户分组管理扫描事件订阅
type ScanHub struct {
	clients     map[string]map[*ScanClient]struct{} // userID -> clients
	mutex       sync.RWMutex
	pingTimeout time.Duration
	metrics     *utils.MetricsCollector
}

// NewScanHub 创建事件中心
func NewScanHub(metrics *utils.MetricsCollector) *ScanHub {
	if metrics == nil {
		metrics = utils.GetMetricsCollector()
	}
	return &ScanHub{
		clients:     make(map[string]map[*ScanClient]struct{}),
		pingTimeout: 2 * wsPongTimeout,
		metrics:     metrics,
	}
}

// Run 定期清理过期连接，ctx 结束时关闭所有连接
func (hub *ScanHub) Run(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			hub.shutdown()
			return
		case <-ticker.C:
			hub.cleanupExpiredConnections()
		}
	}
}

func (hub *ScanHub) register(client *ScanClient) {
	hub.mutex.Lock()
	if hub.clients[client.userID] == nil {
		hub.clients[client.userID] = make(map[*ScanClient]struct{})
	}
	hub.clients[client.userID][client] = struct{}{}
	hub.mutex.Unlock()

	hub.metrics.IncGauge(utils.MetricWebSocketClients)
	utils.GetLogger().Info("WebSocket 客户端已连接", map[string]interface{}{"user_id": client.userID})
}

func (hub *ScanHub) unregister(client *ScanClient) {
	hub.mutex.Lock()
	removed := false
	if clients, exists := hub.clients[client.userID]; exists {
		if _, ok := clients[client]; ok {
			delete(clients, client)
			removed = true
		}
		if len(clients) == 0 {
			delete(hub.clients, client.userID)
		}
	}
	hub.mutex.Unlock()

	client.Close()
	if removed {
		hub.metrics.DecGauge(utils.MetricWebSocketClients)
		utils.GetLogger().Info("WebSocket 客户端已断开", map[string]interface{}{"user_id": client.userID})
	}
}

// cleanupExpiredConnections 清理过期和已关闭的连接
func (hub *ScanHub) cleanupExpiredConnections() {
	var expired []*ScanClient

	hub.mutex.RLock()
	for _, clients := range hub.clients {
		for client := range clients {
			if client.IsClosed() || client.IsExpired(hub.pingTimeout) {
				expired = append(expired, client)
			}
		}
	}
	hub.mutex.RUnlock()

	for _, client := range expired {
		hub.unregister(client)
	}
}

// PublishScan 推送扫描完成事件，发送队列已满的客户端会被断开
func (hub *ScanHub) PublishScan(userID string, result models.ScanResult) {
	msgBytes, err := json.Marshal(models.ScanEvent{
		Type:      models.EventScanCompleted,
		Scan:      result,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		utils.GetLogger().Error("序列化扫描事件失败", map[string]interface{}{"error": err.Error()})
		return
	}

	hub.mutex.RLock()
	targets := make([]*ScanClient, 0, len(hub.clients[userID]))
	for client := range hub.clients[userID] {
		targets = append(targets, client)
	}
	hub.mutex.RUnlock()

	for _, client := range targets {
		if !client.enqueue(msgBytes) {
			utils.GetLogger().Warn("客户端消息队列已满，断开连接", map[string]interface{}{"user_id": userID})
			hub.unregister(client)
		}
	}
}

// ClientCount 返回某个用户当前的连接数
func (hub *ScanHub) ClientCount(userID string) int {
	hub.mutex.RLock()
	defer hub.mutex.RUnlock()
	return len(hub.clients[userID])
}

// GetStatus 获取连接状态
func (hub *ScanHub) GetStatus() map[string]interface{} {
	hub.mutex.RLock()
	defer hub.mutex.RUnlock()

	total := 0
	for _, clients := range hub.clients {
		total += len(clients)
	}
	return map[string]interface{}{
		"total_users":       len(hub.clients),
		"total_connections": total,
	}
}

// shutdown 关闭所有连接
func (hub *ScanHub) shutdown() {
	hub.mutex.Lock()
	all := hub.clients
	hub.clients = make(map[string]map[*ScanClient]struct{})
	hub.mutex.Unlock()

	count := 0
	for _, clients := range all {
		for client := range clients {
			client.Close()
			count++
		}
	}
	hub.metrics.SetGauge(utils.MetricWebSocketClients, 0)
	utils.GetLogger().Info("WebSocket 事件中心已关闭", map[string]interface{}{"closed": count})
}
