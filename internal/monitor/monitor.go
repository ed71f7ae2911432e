// Package monitor serves metrics, a health check and a live WebSocket feed
// of dispatch events.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"

	"autocatch/internal/bus"
	"autocatch/internal/metrics"
)

const (
	clientBuffer = 64
	writeTimeout = 5 * time.Second
)

// Config configures the monitor server.
type Config struct {
	Addr      string
	Events    *bus.EventBus
	Collector *metrics.MetricsCollector
	Pending   func() int // in-flight responses, reported by /healthz
	Version   string
	// AllowedOrigins for cross-origin GETs from a dashboard; defaults to any.
	AllowedOrigins []string
	Logger         *slog.Logger
}

// Server is the monitor HTTP server.
type Server struct {
	addr      string
	events    *bus.EventBus
	collector *metrics.MetricsCollector
	pending   func() int
	version   string
	origins   []string
	logger    *slog.Logger
	started   time.Time

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// EventMessage is the JSON frame pushed to /ws clients.
type EventMessage struct {
	Type      string         `json:"type"`
	Source    string         `json:"source,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // read-only feed
	},
}

func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Collector == nil {
		cfg.Collector = metrics.Collector
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	if cfg.Pending == nil {
		cfg.Pending = func() int { return 0 }
	}
	return &Server{
		addr:      cfg.Addr,
		events:    cfg.Events,
		collector: cfg.Collector,
		pending:   cfg.Pending,
		version:   cfg.Version,
		origins:   cfg.AllowedOrigins,
		logger:    cfg.Logger,
		started:   time.Now(),
		clients:   make(map[*wsClient]struct{}),
	}
}

// Handler returns the HTTP routes. It also subscribes the WebSocket feed to
// the event bus; the returned func detaches it.
func (s *Server) Handler() (http.Handler, func()) {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		MaxAge:         300,
	}))

	r.Get("/metrics", s.collector.Handler())
	r.Get("/healthz", s.handleHealth)
	r.Get("/ws", s.handleUpgrade)

	detach := func() {}
	if s.events != nil {
		id := s.events.On("*", s.broadcast)
		detach = func() { s.events.Off("*", id) }
	}
	return r, detach
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	handler, detach := s.Handler()
	defer detach()

	server := &http.Server{
		Addr:              s.addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("monitor server starting", "addr", s.addr)

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.closeAllClients()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("monitor server: %w", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":         "ok",
		"version":        s.version,
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
		"pending_sends":  s.pending(),
	})
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "err", err)
		return
	}

	client := &wsClient{conn: conn, send: make(chan []byte, clientBuffer)}
	s.mu.Lock()
	s.clients[client] = struct{}{}
	s.mu.Unlock()
	s.logger.Debug("monitor client connected", "remote", r.RemoteAddr)

	go client.writeLoop()

	// Reads only detect the close; the feed is one-way.
	defer func() {
		s.remove(client)
		s.logger.Debug("monitor client disconnected", "remote", r.RemoteAddr)
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket read error", "err", err)
			}
			return
		}
	}
}

// broadcast never blocks the emitter: a client whose buffer is full misses
// the event.
func (s *Server) broadcast(e bus.Event) {
	data, err := json.Marshal(EventMessage{
		Type:      e.Type,
		Source:    e.Source,
		Payload:   e.Payload,
		Timestamp: e.Timestamp,
	})
	if err != nil {
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for c := range s.clients {
		select {
		case c.send <- data:
		default:
			s.logger.Debug("monitor client too slow, dropping event", "type", e.Type)
		}
	}
}

func (s *Server) remove(c *wsClient) {
	s.mu.Lock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.send)
	}
	s.mu.Unlock()
	c.conn.Close()
}

func (s *Server) closeAllClients() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		delete(s.clients, c)
		close(c.send)
		c.conn.Close()
	}
}

// Clients returns the number of connected feed clients.
func (s *Server) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (c *wsClient) writeLoop() {
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			c.conn.Close()
			for range c.send {
			}
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
