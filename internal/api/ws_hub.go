package api

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"stockdash/server/internal/services"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsSendBuffer = 64
)

// wsClient одно WebSocket соединение окна диалога
type wsClient struct {
	conn     *websocket.Conn
	dialogID string
	send     chan []byte
	mu       sync.Mutex
	closed   bool
}

func newWSClient(conn *websocket.Conn, dialogID string) *wsClient {
	return &wsClient{
		conn:     conn,
		dialogID: dialogID,
		send:     make(chan []byte, wsSendBuffer),
	}
}

// enqueue ставит сообщение в очередь клиента; медленный клиент теряет сообщения
func (c *wsClient) enqueue(message []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- message:
	default:
		log.Printf("⚠️ WS клиент диалога %s не успевает читать, сообщение пропущено", c.dialogID)
	}
}

func (c *wsClient) sendJSON(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("⚠️ Ошибка маршалинга WS сообщения: %v", err)
		return
	}
	c.enqueue(data)
}

func (c *wsClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// writePump единственный писатель в соединение
func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type roomMessage struct {
	dialogID string
	payload  []byte
}

// Hub управляет WebSocket соединениями открытых диалогов, сгруппированными по ID диалога
type Hub struct {
	rooms     map[string]map[*wsClient]bool
	broadcast chan roomMessage
	mutex     sync.RWMutex
}

// NewHub создает хаб диалогов
func NewHub() *Hub {
	return &Hub{
		rooms:     make(map[string]map[*wsClient]bool),
		broadcast: make(chan roomMessage, 256),
	}
}

// Run раздает сообщения клиентам комнат
func (h *Hub) Run() {
	for msg := range h.broadcast {
		h.mutex.RLock()
		for client := range h.rooms[msg.dialogID] {
			client.enqueue(msg.payload)
		}
		h.mutex.RUnlock()
	}
}

// AddClient добавляет клиента в комнату диалога
func (h *Hub) AddClient(client *wsClient) {
	h.mutex.Lock()
	room, ok := h.rooms[client.dialogID]
	if !ok {
		room = make(map[*wsClient]bool)
		h.rooms[client.dialogID] = room
	}
	room[client] = true
	h.mutex.Unlock()
}

// RemoveClient удаляет клиента и закрывает его очередь
func (h *Hub) RemoveClient(client *wsClient) {
	h.mutex.Lock()
	if room, ok := h.rooms[client.dialogID]; ok {
		delete(room, client)
		if len(room) == 0 {
			delete(h.rooms, client.dialogID)
		}
	}
	h.mutex.Unlock()
	client.close()
}

// CloseRoom отключает всех клиентов закрытого диалога
func (h *Hub) CloseRoom(dialogID string) {
	h.mutex.Lock()
	room := h.rooms[dialogID]
	delete(h.rooms, dialogID)
	h.mutex.Unlock()

	for client := range room {
		client.close()
	}
}

// BroadcastJSON отправляет сообщение всем окнам диалога, не блокируя вызывающего
func (h *Hub) BroadcastJSON(dialogID string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("⚠️ Ошибка маршалинга WS сообщения: %v", err)
		return
	}
	select {
	case h.broadcast <- roomMessage{dialogID: dialogID, payload: data}:
	default:
		// Канал переполнен, сообщение пропускаем
	}
}

// GetClientsCount возвращает количество подключенных клиентов
func (h *Hub) GetClientsCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	count := 0
	for _, room := range h.rooms {
		count += len(room)
	}
	return count
}

// Notifier уведомления для всех окон диалога; без подключений пишет в лог
func (h *Hub) Notifier(dialogID string) services.Notifier {
	return services.NotifierFunc(func(level services.NotificationLevel, message string) {
		h.mutex.RLock()
		connected := len(h.rooms[dialogID]) > 0
		h.mutex.RUnlock()
		if !connected {
			services.LogNotifier{}.Notify(level, message)
			return
		}
		h.BroadcastJSON(dialogID, notificationMessage(level, message))
	})
}

// wsServerMessage сообщение сервера окну диалога
type wsServerMessage struct {
	Type     string                  `json:"type"`
	ItemID   string                  `json:"item_id,omitempty"`
	State    *services.ResolverState `json:"state,omitempty"`
	Supplier interface{}             `json:"supplier,omitempty"`
	Level    string                  `json:"level,omitempty"`
	Message  string                  `json:"message,omitempty"`
}

func notificationMessage(level services.NotificationLevel, message string) wsServerMessage {
	return wsServerMessage{Type: "notification", Level: string(level), Message: message}
}
