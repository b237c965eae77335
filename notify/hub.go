// Package notify é o canal de push: conexões WebSocket autenticadas por ticket
// e fan-out de eventos (local ou via Redis Pub/Sub).
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"ephemeral-core/internal/logging"
	"ephemeral-core/internal/respond"
	"ephemeral-core/ticket/domain"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
)

// Message é o envelope de tudo que vai para o cliente.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Redeemer é a única coisa que o hub precisa do broker de tickets.
type Redeemer interface {
	Redeem(id string) (domain.Ticket, bool)
}

// Publisher entrega um evento para os clientes conectados.
type Publisher interface {
	Publish(ctx context.Context, kind string, data any) error
}

type client struct {
	conn     *websocket.Conn
	send     chan []byte
	username string
	roles    []string
}

type Hub struct {
	redeemer Redeemer
	upgrader websocket.Upgrader
	log      *slog.Logger

	pingEvery  time.Duration
	sendBuffer int
	welcome    string

	mu      sync.Mutex
	clients map[*client]struct{}
	users   map[string]int
}

var _ Publisher = (*Hub)(nil)

type HubOption func(*Hub)

func WithLogger(lg *slog.Logger) HubOption {
	return func(h *Hub) { h.log = logging.Or(lg) }
}

func WithPingInterval(d time.Duration) HubOption {
	return func(h *Hub) { h.pingEvery = d }
}

func WithSendBuffer(n int) HubOption {
	return func(h *Hub) { h.sendBuffer = n }
}

func WithCheckOrigin(fn func(r *http.Request) bool) HubOption {
	return func(h *Hub) { h.upgrader.CheckOrigin = fn }
}

func WithWelcome(msg string) HubOption {
	return func(h *Hub) { h.welcome = msg }
}

func NewHub(r Redeemer, opts ...HubOption) *Hub {
	h := &Hub{
		redeemer:   r,
		log:        slog.Default(),
		pingEvery:  30 * time.Second,
		sendBuffer: 64,
		welcome:    "Conectado ao WebSocket de regionais. Voce sera notificado sobre sincronizacoes.",
		clients:    make(map[*client]struct{}),
		users:      make(map[string]int),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeWS troca ?ticket= por uma conexão. Sem ticket válido não há upgrade.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("ticket"))
	if id == "" {
		h.log.Warn("websocket rejected: missing ticket", "remote", r.RemoteAddr)
		respond.Error(w, http.StatusUnauthorized, "Ticket ausente. Use POST /api/v1/ws/ticket para obter um ticket.")
		return
	}

	// o ticket é consumido aqui, antes do upgrade: se o handshake falhar
	// (ex.: GET sem headers de upgrade) ele não volta e o cliente pede outro
	t, ok := h.redeemer.Redeem(id)
	if !ok {
		h.log.Warn("websocket rejected: invalid ticket", "remote", r.RemoteAddr, "ticket", logging.ShortID(id))
		respond.Error(w, http.StatusUnauthorized, "Ticket invalido, expirado ou ja utilizado.")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade já respondeu ao cliente
		h.log.Warn("websocket upgrade failed", "username", t.Identity, "err", err)
		return
	}

	c := &client{
		conn:     conn,
		send:     make(chan []byte, max(1, h.sendBuffer)),
		username: t.Identity,
		roles:    t.Capabilities,
	}
	total := h.register(c)
	h.log.Info("websocket connected", "username", c.username, "connections", total)

	h.enqueue(c, Message{Type: "CONNECTED", Data: map[string]any{
		"username": c.username,
		"roles":    nonNil(c.roles),
		"message":  h.welcome,
	}})

	go h.writeLoop(c)
	go h.readLoop(c)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func (h *Hub) register(c *client) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	h.users[c.username]++
	return len(h.clients)
}

// unregister fecha o send do cliente; só a primeira chamada tem efeito.
func (h *Hub) unregister(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.unregisterLocked(c)
}

func (h *Hub) unregisterLocked(c *client) bool {
	if _, ok := h.clients[c]; !ok {
		return false
	}
	delete(h.clients, c)
	close(c.send)
	if h.users[c.username]--; h.users[c.username] <= 0 {
		delete(h.users, c.username)
	}
	return true
}

func (h *Hub) enqueue(c *client, m Message) {
	b, err := json.Marshal(m)
	if err != nil {
		h.log.Error("websocket message encode failed", "type", m.Type, "err", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- b:
	default:
		h.unregisterLocked(c)
	}
}

func (h *Hub) readLoop(c *client) {
	defer func() {
		if h.unregister(c) {
			h.log.Info("websocket disconnected", "username", c.username, "connections", h.Connections())
		}
		c.conn.Close()
	}()

	pongWait := 2 * h.pingEvery
	c.conn.SetReadLimit(maxMessageSize)
	if pongWait > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.conn.SetPongHandler(func(string) error {
			return c.conn.SetReadDeadline(time.Now().Add(pongWait))
		})
	}

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("websocket read error", "username", c.username, "err", err)
			}
			return
		}
		if pongWait > 0 {
			_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		}
		// heartbeat de aplicação
		if strings.EqualFold(strings.TrimSpace(string(msg)), "ping") {
			h.enqueue(c, Message{Type: "pong"})
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	var tick <-chan time.Time
	if h.pingEvery > 0 {
		ticker := time.NewTicker(h.pingEvery)
		defer ticker.Stop()
		tick = ticker.C
	}
	defer c.conn.Close()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.unregister(c)
				return
			}
		case <-tick:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.unregister(c)
				return
			}
		}
	}
}

// Publish entrega o evento para todas as conexões deste processo.
func (h *Hub) Publish(ctx context.Context, kind string, data any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(Message{Type: kind, Data: data})
	if err != nil {
		return err
	}
	h.broadcast(b)
	return nil
}

// broadcast devolve quantos clientes receberam. Cliente com buffer cheio é desconectado.
func (h *Hub) broadcast(b []byte) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	delivered := 0
	for c := range h.clients {
		select {
		case c.send <- b:
			delivered++
		default:
			h.log.Warn("websocket client too slow, dropping", "username", c.username)
			h.unregisterLocked(c)
		}
	}
	return delivered
}

// Close desconecta todo mundo (shutdown).
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.unregisterLocked(c)
	}
}

func (h *Hub) Connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) UniqueUsers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.users)
}
