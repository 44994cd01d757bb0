package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/flowmill/flowmill/pkg/eventbus"
	"github.com/flowmill/flowmill/pkg/logger"
)

const (
	defaultWSMaxConnections = 100
	defaultPingInterval     = 30 * time.Second
	defaultPongTimeout      = 10 * time.Second
	defaultWriteTimeout     = 10 * time.Second
	defaultSendBuffer       = 32
)

// WebSocketConfig configures the event stream endpoint.
type WebSocketConfig struct {
	AllowedOrigins []string
	MaxConnections int
	PingInterval   time.Duration
	PongTimeout    time.Duration
}

// EventMessage is the websocket event format.
type EventMessage struct {
	Type       string    `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	WorkflowID string    `json:"workflow_id,omitempty"`
	StepID     string    `json:"step_id,omitempty"`
	Payload    any       `json:"payload,omitempty"`
}

// incomingMessage is a client control frame: subscribe/unsubscribe to a
// workflow ID. A client with no subscriptions receives everything.
type incomingMessage struct {
	Type       string `json:"type"`
	WorkflowID string `json:"workflow_id,omitempty"`
}

type wsClient struct {
	conn          *websocket.Conn
	send          chan []byte
	mu            sync.RWMutex
	subscriptions map[string]struct{}
	closeOnce     sync.Once
}

func newWSClient(conn *websocket.Conn) *wsClient {
	return &wsClient{
		conn:          conn,
		send:          make(chan []byte, defaultSendBuffer),
		subscriptions: make(map[string]struct{}),
	}
}

func (c *wsClient) close() {
	c.closeOnce.Do(func() {
		close(c.send)
		_ = c.conn.Close()
	})
}

func (c *wsClient) subscribe(workflowID string) {
	if workflowID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscriptions[workflowID] = struct{}{}
}

func (c *wsClient) unsubscribe(workflowID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subscriptions, workflowID)
}

func (c *wsClient) wants(workflowID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.subscriptions) == 0 {
		return true
	}
	_, ok := c.subscriptions[workflowID]
	return ok
}

// connectionSet tracks active websocket clients under a capacity limit.
type connectionSet struct {
	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	limit   int
}

func newConnectionSet(limit int) *connectionSet {
	if limit <= 0 {
		limit = defaultWSMaxConnections
	}
	return &connectionSet{
		clients: make(map[*wsClient]struct{}),
		limit:   limit,
	}
}

func (s *connectionSet) add(client *wsClient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.clients) >= s.limit {
		return errors.New("websocket connection limit reached")
	}
	s.clients[client] = struct{}{}
	return nil
}

func (s *connectionSet) remove(client *wsClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[client]; !ok {
		return
	}
	delete(s.clients, client)
	client.close()
}

func (s *connectionSet) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *connectionSet) hasCapacity() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients) < s.limit
}

func (s *connectionSet) snapshot() []*wsClient {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clients := make([]*wsClient, 0, len(s.clients))
	for client := range s.clients {
		clients = append(clients, client)
	}
	return clients
}

func (s *connectionSet) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for client := range s.clients {
		client.close()
		delete(s.clients, client)
	}
}

// WebSocketHandler serves GET /ws/events, streaming workflow lifecycle
// events to connected clients.
type WebSocketHandler struct {
	log          logger.Logger
	conns        *connectionSet
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	pongTimeout  time.Duration
	writeTimeout time.Duration
}

// NewWebSocketHandler creates a websocket handler.
func NewWebSocketHandler(log logger.Logger, cfg WebSocketConfig) *WebSocketHandler {
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = defaultWSMaxConnections
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = defaultPongTimeout
	}

	h := &WebSocketHandler{
		log:          log,
		conns:        newConnectionSet(cfg.MaxConnections),
		pingInterval: cfg.PingInterval,
		pongTimeout:  cfg.PongTimeout,
		writeTimeout: defaultWriteTimeout,
	}

	allowedOrigins := append([]string(nil), cfg.AllowedOrigins...)
	h.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return isWebSocketOriginAllowed(r, allowedOrigins)
		},
	}
	return h
}

// ServeHTTP upgrades the connection and runs the client pumps.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "websocket upgrade required", http.StatusBadRequest)
		return
	}
	if !h.conns.hasCapacity() {
		http.Error(w, "websocket connection limit reached", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := newWSClient(conn)
	if err := h.conns.add(client); err != nil {
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too many websocket connections"),
			time.Now().Add(h.writeTimeout),
		)
		_ = conn.Close()
		return
	}

	go h.writePump(client)
	h.readPump(client)
}

// StartEventBridge forwards lifecycle events from the bus to connected
// clients until the context is cancelled. It blocks and is meant to run
// in its own goroutine.
func (h *WebSocketHandler) StartEventBridge(ctx context.Context, bus *eventbus.Bus) error {
	sub, err := bus.Subscribe(eventbus.AllSubjects(), 256)
	if err != nil {
		return err
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-sub.C():
			if !ok {
				return nil
			}
			var env eventbus.Envelope
			if err := json.Unmarshal(msg.Payload, &env); err != nil {
				h.log.Warn("undecodable lifecycle event", "subject", msg.Subject, "error", err)
				continue
			}
			h.Broadcast(EventMessage{
				Type:       env.EventType,
				Timestamp:  env.Timestamp,
				WorkflowID: env.WorkflowID,
				StepID:     env.StepID,
				Payload:    json.RawMessage(env.Payload),
			})
		}
	}
}

// Broadcast sends an event to every client subscribed to its workflow.
// Clients that cannot keep up are disconnected.
func (h *WebSocketHandler) Broadcast(event EventMessage) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		h.log.Warn("websocket event not serializable", "type", event.Type, "error", err)
		return
	}

	for _, client := range h.conns.snapshot() {
		if !client.wants(event.WorkflowID) {
			continue
		}
		select {
		case client.send <- payload:
		default:
			h.conns.remove(client)
		}
	}
}

// ConnectionCount returns the number of connected clients.
func (h *WebSocketHandler) ConnectionCount() int {
	return h.conns.count()
}

// Close disconnects every client.
func (h *WebSocketHandler) Close() {
	h.conns.closeAll()
}

func (h *WebSocketHandler) readPump(client *wsClient) {
	defer h.conns.remove(client)

	readDeadline := h.pingInterval + h.pongTimeout
	client.conn.SetReadLimit(1 << 20)
	_ = client.conn.SetReadDeadline(time.Now().Add(readDeadline))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Warn("websocket read error", "error", err)
			}
			return
		}
		h.handleControlMessage(client, data)
	}
}

func (h *WebSocketHandler) writePump(client *wsClient) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		h.conns.remove(client)
	}()

	for {
		select {
		case message, ok := <-client.send:
			if !ok {
				_ = client.conn.WriteControl(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(h.writeTimeout),
				)
				return
			}
			_ = client.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := client.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(h.writeTimeout)); err != nil {
				return
			}
		}
	}
}

func (h *WebSocketHandler) handleControlMessage(client *wsClient, raw []byte) {
	var message incomingMessage
	if err := json.Unmarshal(raw, &message); err != nil {
		return
	}

	workflowID := strings.TrimSpace(message.WorkflowID)
	switch strings.ToLower(strings.TrimSpace(message.Type)) {
	case "subscribe":
		client.subscribe(workflowID)
	case "unsubscribe":
		client.unsubscribe(workflowID)
	}
}

func isWebSocketOriginAllowed(r *http.Request, allowedOrigins []string) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}

	for _, allowed := range allowedOrigins {
		if allowed == "*" || strings.EqualFold(strings.TrimSpace(allowed), origin) {
			return true
		}
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(originURL.Host, r.Host)
}
