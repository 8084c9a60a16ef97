package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/ashureev/dayreview/internal/domain"
)

const streamWriteTimeout = 5 * time.Second

// streamMessage is one frame on the report stream.
type streamMessage struct {
	Type   string         `json:"type"`
	Report *domain.Report `json:"report,omitempty"`
}

// ReportHub fans ready reports out to websocket subscribers. It is a
// notify.Sink.
type ReportHub struct {
	mu     sync.RWMutex
	conns  map[*websocket.Conn]struct{}
	logger *slog.Logger
}

// NewReportHub creates an empty hub.
func NewReportHub(logger *slog.Logger) *ReportHub {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportHub{conns: make(map[*websocket.Conn]struct{}), logger: logger}
}

// Len returns the number of connected subscribers.
func (h *ReportHub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *ReportHub) register(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn] = struct{}{}
	h.logger.Debug("report stream subscriber registered", "subscribers", len(h.conns))
}

func (h *ReportHub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[conn]; ok {
		delete(h.conns, conn)
		h.logger.Debug("report stream subscriber unregistered", "subscribers", len(h.conns))
	}
}

// OnReportReady sends report to every subscriber. Subscribers that cannot
// keep up are dropped; they never fail delivery to the other sinks.
func (h *ReportHub) OnReportReady(ctx context.Context, report domain.Report) error {
	data, err := json.Marshal(streamMessage{Type: "report", Report: &report})
	if err != nil {
		return err
	}

	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		writeCtx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
		err := c.Write(writeCtx, websocket.MessageText, data)
		cancel()
		if err != nil {
			h.logger.Debug("dropping report stream subscriber", "error", err)
			h.unregister(c)
			_ = c.Close(websocket.StatusPolicyViolation, "write failed")
		}
	}
	return nil
}

// Close disconnects every subscriber.
func (h *ReportHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns {
		_ = c.Close(websocket.StatusGoingAway, "server shutting down")
		delete(h.conns, c)
	}
}

// ServeHTTP upgrades the request and keeps the subscriber registered until
// it disconnects. Clients may send {"type":"ping"} and get a pong back.
func (h *ReportHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to accept WebSocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			h.logger.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	h.register(ws)
	defer h.unregister(ws)

	ctx := r.Context()
	for {
		_, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				h.logger.Debug("report stream read error", "error", err)
			}
			return
		}
		var msg streamMessage
		if json.Unmarshal(message, &msg) != nil || msg.Type != "ping" {
			continue
		}
		data, _ := json.Marshal(streamMessage{Type: "pong"})
		writeCtx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
		err = ws.Write(writeCtx, websocket.MessageText, data)
		cancel()
		if err != nil {
			return
		}
	}
}
