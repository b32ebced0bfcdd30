package web

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"hashbid/logger"
	"hashbid/storage"
)

const (
	writeWait      = 10 * time.Second
	clientSendSize = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 看板只监听内网地址
	},
}

// keyed 同一标签下按子键保留最新消息（例如按盘口）
type keyed interface {
	BroadcastKey() string
}

type wsClient struct {
	conn  *websocket.Conn
	send  chan []byte
	ready chan struct{} // Run 分配好 send 并完成回放后关闭
}

// WebSocketHub WebSocket 中心，保留每个键的最新消息，新连接先收到全部这些消息
type WebSocketHub struct {
	clients    map[*wsClient]bool
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *wsClient
	done       chan struct{}

	mu     sync.RWMutex
	latest map[string][]byte
	keys   []string
}

// NewWebSocketHub 创建中心，需要调用 Run
func NewWebSocketHub() *WebSocketHub {
	return &WebSocketHub{
		clients:    make(map[*wsClient]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		done:       make(chan struct{}),
		latest:     make(map[string][]byte),
	}
}

// Run 运行中心直到 ctx 取消
func (h *WebSocketHub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		h.mu.Lock()
		for c := range h.clients {
			delete(h.clients, c)
			close(c.send)
		}
		h.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.mu.Lock()
			// 缓冲按当前键数分配，回放不会丢消息
			c.send = make(chan []byte, len(h.keys)+clientSendSize)
			for _, k := range h.keys {
				c.send <- h.latest[k]
			}
			h.clients[c] = true
			h.mu.Unlock()
			close(c.ready)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()

		case data := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- data:
				default:
					// 客户端太慢，断开
					delete(h.clients, c)
					close(c.send)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast 以 [tag, payload] 格式推送；最新消息先同步记录，推送队列满时只丢弃实时推送
func (h *WebSocketHub) Broadcast(tag string, payload interface{}) {
	data, err := json.Marshal([]interface{}{tag, payload})
	if err != nil {
		logger.Warn("⚠️ 序列化 %s 消息失败: %v", tag, err)
		return
	}
	key := tag
	if k, ok := payload.(keyed); ok {
		key = tag + ":" + k.BroadcastKey()
	}

	h.mu.Lock()
	if _, ok := h.latest[key]; !ok {
		h.keys = append(h.keys, key)
	}
	h.latest[key] = data
	h.mu.Unlock()

	select {
	case h.broadcast <- data:
	default:
		// Channel 满了，丢弃实时推送，新连接仍能从 latest 拿到
	}
}

// Latest 当前缓存的最新消息数
func (h *WebSocketHub) Latest() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.latest)
}

// ClientCount 当前连接数
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *WebSocketHub) handleWebSocket(logs LogProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}

		client := &wsClient{conn: conn, ready: make(chan struct{})}
		select {
		case h.register <- client:
		case <-h.done:
			conn.Close()
			return
		}
		<-client.ready

		// 检查是否订阅日志
		var logCh <-chan *storage.LogRecord
		if logs != nil && c.Query("subscribe_logs") == "true" {
			logCh = logs.Subscribe()
			defer logs.Unsubscribe(logCh)
		}

		go client.writePump(logCh)

		// 保持连接
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
		select {
		case h.unregister <- client:
		case <-h.done:
		}
	}
}

// writePump 连接上唯一的写协程
func (c *wsClient) writePump(logCh <-chan *storage.LogRecord) {
	defer c.conn.Close()
	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.write(data); err != nil {
				return
			}
		case rec, ok := <-logCh:
			if !ok {
				logCh = nil
				continue
			}
			data, err := json.Marshal([]interface{}{"log", rec})
			if err != nil {
				continue
			}
			if err := c.write(data); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) write(data []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}
