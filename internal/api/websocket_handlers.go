// internal/api/websocket_handlers.go
package api

import (
	"encoding/json"
	"time"

	"github.com/Corphon/DeepDetect/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// ScanWebSocket GET /ws/scans/:userId
func (h *Handler) ScanWebSocket(c *gin.Context) {
	userID := c.Param("userId")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 已经写入了错误响应
		utils.GetLogger().Warn("WebSocket 升级失败", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
		return
	}

	client := newScanClient(conn, userID)
	h.hub.register(client)
	defer h.hub.unregister(client)

	go handleWebSocketWrites(client)

	client.SendMessage(map[string]interface{}{
		"type":      "connected",
		"user_id":   userID,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})

	handleWebSocketReads(client)
}

// handleWebSocketReads 读取客户端消息直到连接断开
func handleWebSocketReads(client *ScanClient) {
	client.conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	client.conn.SetPongHandler(func(string) error {
		client.UpdatePing()
		return client.conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	})

	for {
		_, messageBytes, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				utils.GetLogger().Debug("WebSocket 读取错误", map[string]interface{}{
					"user_id": client.userID,
					"error":   err.Error(),
				})
			}
			return
		}

		client.UpdatePing()
		client.conn.SetReadDeadline(time.Now().Add(wsPongTimeout))

		var message struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(messageBytes, &message); err != nil {
			continue
		}
		if message.Type == "ping" {
			client.SendMessage(map[string]interface{}{
				"type":      "pong",
				"timestamp": time.Now().Unix(),
			})
		}
	}
}

// handleWebSocketWrites 独占连接的写入，定期发送 ping
func handleWebSocketWrites(client *ScanClient) {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		client.Close()
	}()

	for {
		select {
		case <-client.done:
			return

		case message := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
