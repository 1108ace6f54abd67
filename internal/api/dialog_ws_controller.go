package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"stockdash/server/internal/models"
	"stockdash/server/internal/services"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Страница диалога отдается этим же сервером
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// wsClientMessage действие пользователя в комбобоксе поставщика
type wsClientMessage struct {
	Type   string `json:"type"` // open | type | key | hover | choose | clear | blur
	ItemID string `json:"item_id"`
	Query  string `json:"query"`
	Key    string `json:"key"`
	Index  int    `json:"index"`
}

// DialogWSController комбобоксы поставщиков окна диалога поверх WebSocket
type DialogWSController struct {
	dialogs  *DialogController
	search   services.SupplierSearcher
	debounce time.Duration
}

// NewDialogWSController создает новый контроллер
func NewDialogWSController(dialogs *DialogController, search services.SupplierSearcher, debounce time.Duration) *DialogWSController {
	return &DialogWSController{
		dialogs:  dialogs,
		search:   search,
		debounce: debounce,
	}
}

// dialogSession резолверы одного соединения, по одному на лист
type dialogSession struct {
	controller *DialogWSController
	dialog     *services.ShortageDialog
	client     *wsClient
	resolvers  map[string]*services.SupplierResolver
}

func (s *dialogSession) notify(level services.NotificationLevel, message string) {
	s.client.sendJSON(notificationMessage(level, message))
}

func (s *dialogSession) resolver(itemID string) (*services.SupplierResolver, error) {
	if r, ok := s.resolvers[itemID]; ok {
		return r, nil
	}
	initial, err := s.dialog.Selection(itemID)
	if err != nil {
		return nil, err
	}

	client := s.client
	r := services.NewSupplierResolver(itemID, s.controller.search, services.ResolverOptions{
		Debounce: s.controller.debounce,
		Initial:  initial,
		Notifier: services.NotifierFunc(s.notify),
		OnSelect: func(itemID string, supplier *models.Supplier) {
			if err := s.controller.dialogs.applySelection(s.dialog, itemID, supplier); err != nil {
				log.Printf("⚠️ Не удалось применить выбор поставщика для %s: %v", itemID, err)
			}
		},
		OnChange: func(state services.ResolverState) {
			client.sendJSON(wsServerMessage{Type: "candidates", ItemID: state.ItemID, State: &state})
		},
	})
	s.resolvers[itemID] = r
	return r, nil
}

func (s *dialogSession) handle(msg wsClientMessage) error {
	r, err := s.resolver(msg.ItemID)
	if err != nil {
		return err
	}

	switch msg.Type {
	case "open":
		r.Open()
	case "type":
		r.Type(msg.Query)
	case "key":
		r.Key(services.ResolverKey(msg.Key))
	case "hover":
		r.Hover(msg.Index)
	case "choose":
		return r.Choose(msg.Index)
	case "clear":
		r.Clear()
	case "blur":
		r.Blur()
	default:
		return errors.New("неизвестный тип сообщения: " + msg.Type)
	}
	return nil
}

func (s *dialogSession) close() {
	for _, r := range s.resolvers {
		r.Close()
	}
}

// ServeDialogWS GET /ws/dialogs/:id
func (c *DialogWSController) ServeDialogWS(ctx *gin.Context) {
	dialog, err := c.dialogs.store.Get(ctx.Param("id"))
	if err != nil {
		respondError(ctx, err)
		return
	}

	conn, err := upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		log.Printf("⚠️ Ошибка обновления WebSocket соединения: %v", err)
		return
	}

	hub := c.dialogs.hub
	client := newWSClient(conn, dialog.ID)
	hub.AddClient(client)
	go client.writePump()
	log.Printf("📡 Окно диалога %s подключено. Всего подключений: %d", dialog.ID, hub.GetClientsCount())

	session := &dialogSession{
		controller: c,
		dialog:     dialog,
		client:     client,
		resolvers:  make(map[string]*services.SupplierResolver),
	}

	defer func() {
		session.close()
		hub.RemoveClient(client)
		log.Printf("📡 Окно диалога %s отключено. Осталось подключений: %d", dialog.ID, hub.GetClientsCount())
	}()

	conn.SetReadLimit(4096)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("⚠️ WebSocket ошибка: %v", err)
			}
			break
		}

		var msg wsClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			session.notify(services.NotificationError, "Invalid message")
			continue
		}
		if err := session.handle(msg); err != nil {
			log.Printf("⚠️ WS диалога %s: %s/%s: %v", dialog.ID, msg.Type, msg.ItemID, err)
			if errors.Is(err, services.ErrUnknownLeaf) {
				session.notify(services.NotificationError, "Unknown ingredient")
			}
		}
	}
}
