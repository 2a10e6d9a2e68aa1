// Package ws serves the command bridge over a websocket for headless use and
// browser development.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"limetuna/internal/bridge"
)

const (
	errUnknownAction = "UNKNOWN_ACTION"
	errBadFrame      = "BAD_FRAME"

	sendBuffer   = 64
	writeTimeout = 5 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 25 * time.Second
)

// Executor runs one bridge command.
type Executor interface {
	Execute(action string, args json.RawMessage, cb bridge.Callback) bool
}

type requestFrame struct {
	ID     string          `json:"id"`
	Action string          `json:"action"`
	Args   json.RawMessage `json:"args"`
}

type responseFrame struct {
	ID       string  `json:"id"`
	OK       bool    `json:"ok"`
	Payload  *string `json:"payload,omitempty"`
	Error    *string `json:"error,omitempty"`
	Released bool    `json:"released,omitempty"`
}

type eventFrame struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

// Server exposes GET /ws, /healthz and /readyz.
type Server struct {
	addr            string
	shutdownTimeout time.Duration
	log             *slog.Logger
	upgrader        websocket.Upgrader

	ready atomic.Bool

	mu    sync.Mutex
	conns map[*client]struct{}
}

func New(addr string, shutdownTimeout time.Duration, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	if shutdownTimeout <= 0 {
		shutdownTimeout = 5 * time.Second
	}
	return &Server{
		addr:            addr,
		shutdownTimeout: shutdownTimeout,
		log:             log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Local development tool; the web view origin varies by host.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: make(map[*client]struct{}),
	}
}

// SetReady controls the /readyz answer.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Handler routes websocket command frames to exec.
func (s *Server) Handler(exec Executor) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		s.handleWS(w, r, exec)
	})
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, "ok")
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			writeStatus(w, http.StatusServiceUnavailable, "not_ready")
			return
		}
		writeStatus(w, http.StatusOK, "ok")
	})
	return mux
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}

// ListenAndServe blocks until ctx is cancelled or the listener fails.
func (s *Server) ListenAndServe(ctx context.Context, exec Executor) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(exec),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.log.Info("websocket bridge shutting down")
		s.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		s.closeAll()
	}()

	s.log.Info("websocket bridge listening", "addr", s.addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("websocket bridge listen: %w", err)
	}
	return nil
}

// SpeechEvent pushes a diagnostic event to every connected client.
func (s *Server) SpeechEvent(name string, data map[string]any) {
	payload, err := json.Marshal(eventFrame{Event: name, Data: data})
	if err != nil {
		s.log.Warn("failed to encode speech event", "event", name, "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		c.enqueue(payload)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request, exec Executor) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		closed: make(chan struct{}),
		log:    s.log,
	}
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
	s.log.Debug("websocket client connected", "remote", r.RemoteAddr)

	go c.writeLoop()
	s.readLoop(c, exec)

	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	c.close()
	s.log.Debug("websocket client disconnected", "remote", r.RemoteAddr)
}

func (s *Server) readLoop(c *client, exec Executor) {
	c.conn.SetReadLimit(1 << 20)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Warn("websocket read failed", "error", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongTimeout))

		var req requestFrame
		if err := json.Unmarshal(payload, &req); err != nil || req.Action == "" {
			c.respond(responseFrame{ID: req.ID, Error: strPtr(errBadFrame)})
			continue
		}

		cb := &frameCallback{client: c, id: req.ID}
		if !exec.Execute(req.Action, req.Args, cb) {
			c.respond(responseFrame{ID: req.ID, Error: strPtr(errUnknownAction)})
		}
	}
}

func (s *Server) closeAll() {
	s.mu.Lock()
	conns := make([]*client, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second))
		_ = c.conn.Close()
	}
}

type client struct {
	conn      *websocket.Conn
	send      chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	log       *slog.Logger
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.conn.Close()
	})
}

func (c *client) respond(frame responseFrame) {
	payload, err := json.Marshal(frame)
	if err != nil {
		c.log.Warn("failed to encode response frame", "id", frame.ID, "error", err)
		return
	}
	c.enqueue(payload)
}

func (c *client) enqueue(payload []byte) {
	select {
	case <-c.closed:
		return
	default:
	}
	select {
	case c.send <- payload:
	case <-c.closed:
	default:
		c.log.Warn("websocket client is not keeping up; dropping frame")
	}
}

func (c *client) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				c.close()
				return
			}
		}
	}
}

// frameCallback answers one request frame.
type frameCallback struct {
	client *client
	id     string
}

func (f *frameCallback) Success(payload string) {
	f.client.respond(responseFrame{ID: f.id, OK: true, Payload: &payload})
}

func (f *frameCallback) Error(payload string) {
	f.client.respond(responseFrame{ID: f.id, Error: &payload})
}

// Release tells the client the command will never be answered.
func (f *frameCallback) Release() {
	f.client.respond(responseFrame{ID: f.id, Released: true})
}

func strPtr(s string) *string {
	return &s
}
