package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ============================================================================
// State WebSocket: hub + per-client pumps + broadcaster
// ============================================================================
//
// This file implements:
//   - A Hub that tracks connected WebSocket clients
//   - Per-client write pumps so one slow client doesn't block others
//   - A broadcaster loop that fans daemon-emitted state broadcasts out
//
// Design constraints:
//   - Processor/pipeline state stays daemon-owned; the initial snapshot on
//     connect goes through the event loop (RequestStateSnapshot).
//   - Slow clients are disconnected when their send buffer fills.
//   - Messages are JSON text frames with an envelope: {type, ts, data}.
//   - The initial message on connect is "state_init" with StateSnapshot.
//
// ============================================================================

// wire payloads

type wsStateChangedData struct {
	State  string `json:"state"`
	Action string `json:"action"`
}

type wsRecordingStartedData struct {
	SessionID string `json:"session_id"`
}

type wsRecordingStoppedData struct {
	SessionID string `json:"session_id"`
	WavPath   string `json:"wav_path,omitempty"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

type wsRecordingDiscardedData struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
}

type wsRecordingCanceledData struct {
	SessionID string `json:"session_id"`
}

type wsTranscriptData struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

type wsTranscriptFailedData struct {
	SessionID string `json:"session_id"`
	Error     string `json:"error"`
}

// wsOutboundEvent is a pre-typed, externally-consumable state event.
type wsOutboundEvent struct {
	Type string
	Data any
	At   time.Time
}

// envelope is the wire format envelope for WS messages.
type envelope struct {
	Type string      `json:"type"`
	Ts   *time.Time  `json:"ts,omitempty"`
	Data interface{} `json:"data,omitempty"`
}

// ============================================================================
// Hub
// ============================================================================

type Hub struct {
	logger *slog.Logger

	// Buffered broadcast channel for already-serialized JSON frames.
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu      sync.Mutex
	clients map[*Client]struct{}

	sendBuf int
}

type HubConfig struct {
	// SendBuf is the per-client outbound queue size.
	SendBuf int

	// BroadcastBuf is the hub inbound broadcast queue size.
	BroadcastBuf int
}

// NewHub constructs a hub. Call Run(ctx) to start it.
func NewHub(logger *slog.Logger, cfg HubConfig) *Hub {
	sendBuf := cfg.SendBuf
	if sendBuf <= 0 {
		sendBuf = 32
	}
	bcastBuf := cfg.BroadcastBuf
	if bcastBuf <= 0 {
		bcastBuf = 128
	}

	return &Hub{
		logger:     logger,
		broadcast:  make(chan []byte, bcastBuf),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		clients:    make(map[*Client]struct{}),
		sendBuf:    sendBuf,
	}
}

// Run processes hub events until ctx is canceled.
// It disconnects all clients on shutdown.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("ws hub starting")

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("ws hub stopping (context canceled)")
			h.closeAllClients()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws client registered", "remote_addr", c.remoteAddr, "clients", n)

		case c := <-h.unregister:
			h.removeClient(c, "unregister")

		case msg := <-h.broadcast:
			// Collect slow clients first; removing while ranging would
			// mutate the map under the lock.
			var slow []*Client

			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.Unlock()

			for _, c := range slow {
				h.removeClient(c, "slow_client")
			}
		}
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		close(c.send)
		delete(h.clients, c)
	}
}

func (h *Hub) removeClient(c *Client, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		// Closing send signals writePump to exit.
		safeCloseChan(c.send)

		h.logger.Info("ws client disconnected", "remote_addr", c.remoteAddr, "reason", reason, "clients", n)
	}
}

func safeCloseChan(ch chan []byte) {
	defer func() {
		_ = recover() // ignore "close of closed channel"
	}()
	close(ch)
}

// BroadcastBytes enqueues a pre-serialized JSON WS frame for broadcast.
// It never blocks; if the hub queue is full it drops the message.
func (h *Hub) BroadcastBytes(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("ws hub broadcast queue full, dropping message", "bytes", len(msg))
	}
}

// ============================================================================
// Client
// ============================================================================

type Client struct {
	hub *Hub

	conn *websocket.Conn
	send chan []byte

	remoteAddr string
	logger     *slog.Logger
}

// NewClient creates a client with a buffered send channel.
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string, logger *slog.Logger) *Client {
	sendBuf := 32
	if hub != nil && hub.sendBuf > 0 {
		sendBuf = hub.sendBuf
	}
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBuf),
		remoteAddr: remoteAddr,
		logger:     logger,
	}
}

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second
)

// closeStatus extracts a human-readable websocket close code / text when possible.
func closeStatus(err error) (code int, text string, ok bool) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text, true
	}
	return 0, "", false
}

// writePump writes messages from the send queue to the websocket.
// It exits on write error or when send is closed.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Channel closed: hub is disconnecting us.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					if code, text, ok := closeStatus(err); ok {
						c.logger.Info("ws writePump exiting (close)", "remote_addr", c.remoteAddr, "code", code, "reason", text)
					} else {
						c.logger.Info("ws writePump exiting (write error)", "remote_addr", c.remoteAddr, "error", err)
					}
				}
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					if code, text, ok := closeStatus(err); ok {
						c.logger.Info("ws writePump exiting (close)", "remote_addr", c.remoteAddr, "code", code, "reason", text)
					} else {
						c.logger.Info("ws writePump exiting (ping error)", "remote_addr", c.remoteAddr, "error", err)
					}
				}
				return
			}
		}
	}
}

// readPump reads and discards incoming messages to detect disconnects and
// handle control frames. It exits on read error, then unregisters the client.
func (c *Client) readPump(ctx context.Context) {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, _, err := c.conn.ReadMessage()
		if err != nil {
			// Normal close is expected on client disconnect.
			if !errors.Is(err, websocket.ErrCloseSent) {
				if code, text, ok := closeStatus(err); ok {
					c.logger.Info("ws readPump exiting (close)", "remote_addr", c.remoteAddr, "code", code, "reason", text)
				} else {
					c.logger.Info("ws readPump exiting (read error)", "remote_addr", c.remoteAddr, "error", err)
				}
			}

			if c.hub != nil {
				c.hub.unregister <- c
			}
			return
		}
	}
}

// ============================================================================
// HTTP Handler + server wiring helpers
// ============================================================================

type Server struct {
	logger *slog.Logger

	hub *Hub

	// Required for the initial snapshot request on connect.
	events chan<- Event
}

type ServerConfig struct {
	Hub HubConfig
}

// NewServer constructs the WS state server components. Call Register on a
// mux, start hub.Run(ctx), and start the broadcaster loop.
func NewServer(logger *slog.Logger, events chan<- Event, cfg ServerConfig) *Server {
	hub := NewHub(logger, cfg.Hub)
	return &Server{
		logger: logger,
		hub:    hub,
		events: events,
	}
}

func (s *Server) Hub() *Hub { return s.hub }

// Register registers the WS handler on the provided mux.
func (s *Server) Register(mux *http.ServeMux, path string) {
	if mux == nil {
		return
	}
	mux.HandleFunc(path, s.handleStateWS)
}

var upgrader = websocket.Upgrader{
	// Loopback observer endpoint; origin checks belong at integration time.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleStateWS upgrades and registers a client, then sends state_init.
func (s *Server) handleStateWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "error", err)
		return
	}

	client := NewClient(s.hub, conn, r.RemoteAddr, s.logger)

	// Register client first so broadcasts can reach it.
	s.hub.register <- client

	// Do not tie the pumps to the HTTP request context: net/http cancels it
	// when the handler returns, which would stop the pumps and cause
	// abnormal WS closures (code 1006). The hub manages connection lifetime.
	go client.writePump(context.Background())
	go client.readPump(context.Background())

	// Request snapshot for the initial state_init message through the event
	// loop. The request context applies here so the round-trip aborts if the
	// client disconnects mid-handshake.
	if s.events != nil {
		reply := make(chan StateSnapshot, 1)

		select {
		case <-r.Context().Done():
			return
		case s.events <- RequestStateSnapshot{Reply: reply}:
		}

		waitCtx := r.Context()
		if _, has := r.Context().Deadline(); !has {
			var cancel context.CancelFunc
			waitCtx, cancel = context.WithTimeout(r.Context(), 1*time.Second)
			defer cancel()
		}

		select {
		case <-waitCtx.Done():
			if !errors.Is(waitCtx.Err(), context.Canceled) {
				s.logger.Warn("ws snapshot request failed", "error", waitCtx.Err())
			}
			return

		case snap := <-reply:
			now := time.Now().UTC()
			initMsg, mErr := json.Marshal(envelope{
				Type: "state_init",
				Ts:   &now,
				Data: snap,
			})
			if mErr == nil {
				// Enqueue init message; if the client is already slow,
				// disconnect it.
				select {
				case client.send <- initMsg:
				default:
					s.hub.unregister <- client
					return
				}
			}
		}
	}
}

// ============================================================================
// Broadcaster
// ============================================================================

// RunBroadcaster reads daemon-emitted StateBroadcast events, marshals them,
// and fans them out to all hub clients. Intended to run as a single
// goroutine. Recording state events are low-rate, so no coalescing is needed.
func RunBroadcaster(ctx context.Context, hub *Hub, src <-chan StateBroadcast, logger *slog.Logger) {
	if hub == nil || src == nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return

		case b, ok := <-src:
			if !ok {
				logger.Info("ws broadcaster stopping (source ended)")
				return
			}

			ev, ok := convertBroadcast(b)
			if !ok {
				// Unknown broadcasts are dropped.
				continue
			}

			ts := ev.At
			if ts.IsZero() {
				ts = time.Now().UTC()
			}

			msg, err := json.Marshal(envelope{
				Type: ev.Type,
				Ts:   &ts,
				Data: ev.Data,
			})
			if err != nil {
				logger.Warn("ws broadcaster marshal failed", "error", err, "type", ev.Type)
				continue
			}

			hub.BroadcastBytes(msg)
		}
	}
}

func convertBroadcast(b StateBroadcast) (wsOutboundEvent, bool) {
	switch ev := b.(type) {
	case BroadcastStateChanged:
		return wsOutboundEvent{
			Type: "state_changed",
			Data: wsStateChangedData{State: ev.State, Action: ev.Action},
			At:   ev.At,
		}, true

	case BroadcastRecordingStarted:
		return wsOutboundEvent{
			Type: "recording_started",
			Data: wsRecordingStartedData{SessionID: ev.SessionID},
			At:   ev.At,
		}, true

	case BroadcastRecordingStopped:
		return wsOutboundEvent{
			Type: "recording_stopped",
			Data: wsRecordingStoppedData{
				SessionID: ev.SessionID,
				WavPath:   ev.WavPath,
				ElapsedMS: ev.Elapsed.Milliseconds(),
			},
			At: ev.At,
		}, true

	case BroadcastRecordingDiscarded:
		return wsOutboundEvent{
			Type: "recording_discarded",
			Data: wsRecordingDiscardedData{SessionID: ev.SessionID, Reason: ev.Reason},
			At:   ev.At,
		}, true

	case BroadcastRecordingCanceled:
		return wsOutboundEvent{
			Type: "recording_canceled",
			Data: wsRecordingCanceledData{SessionID: ev.SessionID},
			At:   ev.At,
		}, true

	case BroadcastTranscript:
		return wsOutboundEvent{
			Type: "transcript",
			Data: wsTranscriptData{SessionID: ev.SessionID, Text: ev.Text},
			At:   ev.At,
		}, true

	case BroadcastTranscriptFailed:
		return wsOutboundEvent{
			Type: "transcript_failed",
			Data: wsTranscriptFailedData{SessionID: ev.SessionID, Error: ev.Error},
			At:   ev.At,
		}, true

	default:
		return wsOutboundEvent{}, false
	}
}
