package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"SignalCoord/internal/domain/models"
	domrepo "SignalCoord/internal/domain/repository"
	applogger "SignalCoord/pkg/logger"
)

const (
	wsWriteWait  = 5 * time.Second
	wsMaxMessage = 512
)

// ErrHubClosed is returned by Publish after Close.
var ErrHubClosed = errors.New("decision hub closed")

// DecisionEnvelope is the frame pushed to WebSocket subscribers.
type DecisionEnvelope struct {
	Topic   string                 `json:"topic"`
	Payload models.DecisionPayload `json:"payload"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// DecisionHub streams published decisions to WebSocket subscribers. A
// subscriber whose send buffer is full is disconnected rather than slowing
// down the coordinator.
type DecisionHub struct {
	upgrader     websocket.Upgrader
	sendBuffer   int
	pingInterval time.Duration
	log          *applogger.Logger

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	closed  bool
}

// HubOption configures DecisionHub.
type HubOption func(*DecisionHub)

func WithHubSendBuffer(n int) HubOption {
	return func(h *DecisionHub) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

func WithHubPingInterval(d time.Duration) HubOption {
	return func(h *DecisionHub) {
		if d > 0 {
			h.pingInterval = d
		}
	}
}

func NewDecisionHub(log *applogger.Logger, opts ...HubOption) *DecisionHub {
	if log == nil {
		log = applogger.NewNop()
	}
	h := &DecisionHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		sendBuffer:   32,
		pingInterval: 30 * time.Second,
		log:          log,
		clients:      make(map[*wsClient]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Clients returns the number of connected subscribers.
func (h *DecisionHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeWS upgrades the request and streams decisions until the peer leaves.
func (h *DecisionHub) ServeWS(w http.ResponseWriter, r *http.Request) error {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return ErrHubClosed
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("websocket upgrade: %w", err)
	}
	c := &wsClient{conn: conn, send: make(chan []byte, h.sendBuffer)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.log.Debug("decision subscriber connected", applogger.String("remote", r.RemoteAddr))

	go h.writeLoop(c)
	h.readLoop(c)
	return nil
}

// readLoop discards client frames; it exists to process control frames and
// notice disconnects.
func (h *DecisionHub) readLoop(c *wsClient) {
	defer h.remove(c)
	c.conn.SetReadLimit(wsMaxMessage)
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * h.pingInterval))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(2 * h.pingInterval))
	})
	for {
		if _, _, err := c.conn.NextReader(); err != nil {
			return
		}
	}
}

func (h *DecisionHub) writeLoop(c *wsClient) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *DecisionHub) remove(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// Publish broadcasts the decision to every subscriber. It never blocks on a
// slow subscriber.
func (h *DecisionHub) Publish(_ context.Context, topic string, payload models.DecisionPayload) error {
	msg, err := json.Marshal(DecisionEnvelope{Topic: topic, Payload: payload})
	if err != nil {
		return fmt.Errorf("marshal decision: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHubClosed
	}
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			// drop on backpressure
			delete(h.clients, c)
			close(c.send)
			h.log.Warn("decision subscriber too slow, disconnected")
		}
	}
	return nil
}

// Close disconnects every subscriber.
func (h *DecisionHub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	return nil
}

var _ domrepo.DecisionBus = (*DecisionHub)(nil)
