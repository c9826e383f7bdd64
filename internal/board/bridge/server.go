// Package bridge connects renderer clients to a board session over
// WebSocket.
//
// The server broadcasts node, edge, settings, selection and notification
// messages as the session changes, and decodes client intents into calls on
// the session's handlers, selection coordinator, settings synchronizer and
// autosave scheduler. It also serves /health, /metrics and, when
// configured, the settings API under /api/.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/mschirtzinger/beadboard/internal/board/metrics"
	"github.com/mschirtzinger/beadboard/internal/board/session"
)

// Config holds server configuration
type Config struct {
	// Addr to listen on (default ":8080"; ":0" picks a free port)
	Addr string

	// API is mounted under /api/ when set
	API http.Handler

	// Metrics is served on /metrics and records the client count
	Metrics *metrics.Metrics

	// Logger for server activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Addr:   ":8080",
		Logger: log.New(os.Stderr, "[bridge] ", log.LstdFlags),
	}
}

// Server manages WebSocket connections for one session
type Server struct {
	session  *session.Session
	config   Config
	logger   *log.Logger
	listener net.Listener
	server   *http.Server
	mux      *http.ServeMux

	// WebSocket client management
	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	// Message broadcasting
	broadcast chan Message

	// Session subscriptions, released on Stop
	unsubscribe []func()

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer creates a bridge for sess.
func NewServer(sess *session.Session, config *Config) (*Server, error) {
	if sess == nil {
		return nil, fmt.Errorf("session cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	cfg := *config
	if cfg.Addr == "" {
		cfg.Addr = DefaultConfig().Addr
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		session:   sess,
		config:    cfg,
		logger:    cfg.Logger,
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan Message, 100),
		ctx:       ctx,
		cancel:    cancel,
	}

	s.mux = http.NewServeMux()
	s.mux.HandleFunc("/ws", s.handleWebSocket)
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.Handle("/metrics", cfg.Metrics.Handler())
	if cfg.API != nil {
		s.mux.Handle("/api/", http.StripPrefix("/api", cfg.API))
	}
	s.mux.HandleFunc("/", s.handleRoot)
	return s, nil
}

// Handler returns the HTTP handler, for serving without Start.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start subscribes to the session and begins serving.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:     s.mux,
		ReadTimeout: 10 * time.Second,
	}

	s.Attach()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Bridge listening on %s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Server error: %v", err)
		}
	}()

	return nil
}

// Attach subscribes to the session and starts the broadcast loop. Start
// calls it; use it directly when serving Handler elsewhere.
func (s *Server) Attach() {
	s.subscribe()

	s.wg.Add(1)
	go s.broadcastLoop()
}

// Stop closes every client and shuts the server down
func (s *Server) Stop() error {
	s.logger.Println("Stopping bridge")

	for _, fn := range s.unsubscribe {
		fn()
	}
	s.unsubscribe = nil

	s.cancel()

	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "Server shutting down")
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()
	s.config.Metrics.Clients(0)

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
	}

	s.wg.Wait()
	s.logger.Println("Bridge stopped")
	return nil
}

// Broadcast queues a message for every client
func (s *Server) Broadcast(msg Message) {
	select {
	case s.broadcast <- msg:
	case <-s.ctx.Done():
		return
	default:
		s.logger.Println("Warning: broadcast channel full, dropping message")
	}
}

func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return

		case msg := <-s.broadcast:
			if msg.Timestamp.IsZero() {
				msg.Timestamp = time.Now()
			}
			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Printf("Failed to marshal message: %v", err)
				continue
			}

			s.clientsMu.RLock()
			clients := make([]*websocket.Conn, 0, len(s.clients))
			for conn := range s.clients {
				clients = append(clients, conn)
			}
			s.clientsMu.RUnlock()

			for _, conn := range clients {
				if err := s.write(conn, data); err != nil {
					s.logger.Printf("Failed to send to client: %v", err)
					s.removeClient(conn)
				}
			}
		}
	}
}

func (s *Server) write(conn *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

// send writes one message to one client.
func (s *Server) send(conn *websocket.Conn, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Printf("Failed to marshal message: %v", err)
		return
	}
	if err := s.write(conn, data); err != nil {
		s.logger.Printf("Failed to send to client: %v", err)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = true
	clientCount := len(s.clients)
	s.clientsMu.Unlock()

	s.config.Metrics.Clients(clientCount)
	s.logger.Printf("Client connected (total: %d)", clientCount)

	if msg, err := NewMessage(MessageTypeInit, s.initData()); err == nil {
		s.send(conn, msg)
	}

	s.readLoop(conn)
}

// readLoop decodes client intents until the connection closes.
func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.removeClient(conn)

	for {
		typ, data, err := conn.Read(s.ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.reply(conn, Message{}, fmt.Errorf("malformed message: %w", err))
			continue
		}
		if err := s.dispatch(s.ctx, msg); err != nil {
			s.reply(conn, msg, err)
		}
	}
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	if _, exists := s.clients[conn]; exists {
		delete(s.clients, conn)
		clientCount := len(s.clients)
		s.clientsMu.Unlock()

		_ = conn.Close(websocket.StatusNormalClosure, "")
		s.config.Metrics.Clients(clientCount)
		s.logger.Printf("Client disconnected (total: %d)", clientCount)
	} else {
		s.clientsMu.Unlock()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	nodes, edges := s.session.Graph.Len()
	status := "ok"
	if s.session.FetchError() != nil {
		status = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  status,
		"clients": s.ClientCount(),
		"nodes":   nodes,
		"edges":   edges,
		"unsaved": s.session.Graph.Unsaved(),
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
    <title>beadboard</title>
</head>
<body>
    <h1>beadboard bridge</h1>
    <p>WebSocket endpoint: <code>ws://%s/ws</code></p>
    <p>Health check: <a href="/health">/health</a></p>
    <p>Connect a renderer to receive board state and send intents.</p>
</body>
</html>`, r.Host)
}

// GetAddr returns the server's listening address
func (s *Server) GetAddr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Addr
}

// ClientCount returns the current number of connected clients
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}
