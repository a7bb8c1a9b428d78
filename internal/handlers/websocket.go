package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"pointsarcade/internal/logger"
	"pointsarcade/internal/models"
	"pointsarcade/internal/services"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	clientSendSize = 16
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Message struct {
	Type   string      `json:"type"`
	UserID string      `json:"-"`
	Data   interface{} `json:"data"`
}

type Client struct {
	UserID string
	conn   *websocket.Conn
	send   chan *Message
}

// WebSocketHub fans round results out to each user's open connections. It
// implements services.Broadcaster.
type WebSocketHub struct {
	clients    map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message
	done       chan struct{}
}

var _ services.Broadcaster = (*WebSocketHub)(nil)

func NewWebSocketHub() *WebSocketHub {
	return &WebSocketHub{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, 256),
		done:       make(chan struct{}),
	}
}

// Run owns the client map until ctx is done, then closes every connection.
func (hub *WebSocketHub) Run(ctx context.Context) {
	defer close(hub.done)

	for {
		select {
		case <-ctx.Done():
			for _, conns := range hub.clients {
				for client := range conns {
					client.conn.Close()
				}
			}
			return

		case client := <-hub.register:
			conns, ok := hub.clients[client.UserID]
			if !ok {
				conns = make(map[*Client]struct{})
				hub.clients[client.UserID] = conns
			}
			conns[client] = struct{}{}
			logger.Debug(ctx).Str("user_id", client.UserID).Msg("websocket client registered")

		case client := <-hub.unregister:
			conns := hub.clients[client.UserID]
			if _, ok := conns[client]; ok {
				delete(conns, client)
				close(client.send)
				if len(conns) == 0 {
					delete(hub.clients, client.UserID)
				}
				logger.Debug(ctx).Str("user_id", client.UserID).Msg("websocket client unregistered")
			}

		case message := <-hub.broadcast:
			for client := range hub.clients[message.UserID] {
				select {
				case client.send <- message:
				default:
					logger.Warn(ctx).Str("user_id", client.UserID).Str("type", message.Type).Msg("websocket client too slow, message dropped")
				}
			}
		}
	}
}

func (hub *WebSocketHub) publish(message *Message) {
	select {
	case hub.broadcast <- message:
	default:
		logger.Warn(context.Background()).Str("user_id", message.UserID).Str("type", message.Type).Msg("websocket broadcast queue full")
	}
}

func (hub *WebSocketHub) BroadcastBalance(userID string, balance int64) {
	hub.publish(&Message{
		Type:   "BALANCE_UPDATE",
		UserID: userID,
		Data:   gin.H{"balance": balance},
	})
}

func (hub *WebSocketHub) BroadcastRound(round *models.GameRound) {
	hub.publish(&Message{
		Type:   "ROUND_RESULT",
		UserID: round.UserID,
		Data:   round,
	})
}

type WebSocketHandler struct {
	hub    *WebSocketHub
	ledger *services.Ledger
}

func NewWebSocketHandler(hub *WebSocketHub, ledger *services.Ledger) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, ledger: ledger}
}

func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	ctx := c.Request.Context()
	userID := c.GetString("user_id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn(ctx).Err(err).Msg("failed to upgrade to websocket")
		return
	}

	client := &Client{
		UserID: userID,
		conn:   conn,
		send:   make(chan *Message, clientSendSize),
	}
	select {
	case h.hub.register <- client:
	case <-h.hub.done:
		conn.Close()
		return
	}
	go client.writePump()

	defer func() {
		select {
		case h.hub.unregister <- client:
		case <-h.hub.done:
		}
	}()

	if balance, err := h.ledger.Balance(ctx, userID); err != nil {
		logger.Warn(ctx).Err(err).Str("user_id", userID).Msg("failed to read balance for websocket")
	} else {
		client.send <- &Message{Type: "BALANCE_UPDATE", UserID: userID, Data: gin.H{"balance": balance}}
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn(ctx).Err(err).Str("user_id", userID).Msg("websocket read failed")
			}
			return
		}

		if msg.Type == "PING" {
			select {
			case client.send <- &Message{Type: "PONG", Data: gin.H{"timestamp": time.Now().Unix()}}:
			default:
			}
		}
	}
}

// writePump is the only writer on the connection. It exits when the hub
// closes the send channel.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
