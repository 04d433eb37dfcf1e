// Package dashboard provides a real-time WebSocket server for monitoring the
// data layer.
//
// The dashboard broadcasts sync status changes, backup server reachability
// and refreshed dashboard counters to connected WebSocket clients, and lets
// them request a sync pass.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	edilsync "github.com/edilcheck/edilcheck/internal/sync"
	"github.com/edilcheck/edilcheck/internal/types"
	"github.com/gorilla/mux"
)

// MessageType defines the type of dashboard message
type MessageType string

const (
	// MessageTypeSyncStatus indicates the syncer changed state
	MessageTypeSyncStatus MessageType = "sync_status"

	// MessageTypeBackupStatus indicates a backup server probe completed
	MessageTypeBackupStatus MessageType = "backup_status"

	// MessageTypeStats indicates updated dashboard counters
	MessageTypeStats MessageType = "stats"
)

// Message represents a dashboard broadcast message
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// SyncStatusData describes a syncer state change
type SyncStatusData struct {
	Account       string          `json:"account"`
	Status        edilsync.Status `json:"status"`
	LocalToRemote int             `json:"local_to_remote,omitempty"`
	RemoteToLocal int             `json:"remote_to_local,omitempty"`
	Failed        int             `json:"failed,omitempty"`
	Duration      time.Duration   `json:"duration,omitempty"`
	Error         string          `json:"error,omitempty"`
}

// BackupStatusData describes the result of a backup server probe
type BackupStatusData struct {
	Available bool   `json:"available"`
	Mode      string `json:"mode"`
}

// Controller serves the dashboard's request endpoints.
type Controller interface {
	// Stats returns the current counters.
	Stats(ctx context.Context) (*types.Stats, error)

	// TriggerSync runs one sync pass.
	TriggerSync(ctx context.Context) (*edilsync.Result, error)
}

// Server manages WebSocket connections and broadcasts dashboard messages
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server

	controller Controller

	// WebSocket client management
	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	// Message broadcasting
	broadcast chan Message

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	originPatterns []string

	logger *log.Logger
}

// DefaultHost is the bind address used when Config.Host is empty.
const DefaultHost = "127.0.0.1"

// Config holds server configuration
type Config struct {
	// Port to listen on (default: 8080, 0 picks a free port)
	Port int

	// Host to bind (default: DefaultHost)
	Host string

	// OriginPatterns lists the hosts, in path.Match syntax, of pages that
	// may open the WebSocket and POST /api/sync. Same-origin requests and
	// requests without an Origin header are always accepted.
	OriginPatterns []string

	// Logger for server activity (default: stderr logger)
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Port:   8080,
		Host:   DefaultHost,
		Logger: log.Default(),
	}
}

// NewServer creates a new dashboard WebSocket server
func NewServer(config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}

	host := config.Host
	if host == "" {
		host = DefaultHost
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		addr:           net.JoinHostPort(host, fmt.Sprint(config.Port)),
		clients:        make(map[*websocket.Conn]bool),
		broadcast:      make(chan Message, 100),
		ctx:            ctx,
		cancel:         cancel,
		originPatterns: config.OriginPatterns,
		logger:         config.Logger,
	}
}

// SetController installs the handler behind /api/stats and /api/sync.
// Must be called before Start.
func (s *Server) SetController(c Controller) {
	s.controller = c
}

// Start begins the HTTP server and WebSocket handler
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:      s.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go s.broadcastLoop()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Dashboard server listening on %s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("Server error: %v", err)
		}
	}()

	return nil
}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/ws", s.handleWebSocket)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/stats", s.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/api/sync", s.handleSync).Methods(http.MethodPost)
	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	return r
}

// Stop gracefully shuts down the server
func (s *Server) Stop() error {
	s.logger.Println("Stopping dashboard server")

	s.cancel()

	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "Server shutting down")
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
	}

	s.wg.Wait()

	s.logger.Println("Dashboard server stopped")
	return nil
}

// Broadcast sends a message to all connected clients
func (s *Server) Broadcast(msg Message) {
	select {
	case s.broadcast <- msg:
	case <-s.ctx.Done():
		return
	default:
		s.logger.Println("WARNING: broadcast channel full, dropping message")
	}
}

// broadcastLoop handles message broadcasting to all clients
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

			// Send outside the read lock so a slow client does not block
			// connects and disconnects.
			for _, conn := range clients {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()

				if err != nil {
					s.logger.Printf("Failed to send to client: %v", err)
					s.removeClient(conn)
				}
			}
		}
	}
}

// handleWebSocket upgrades HTTP connections to WebSocket
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.originPatterns,
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = true
	clientCount := len(s.clients)
	s.clientsMu.Unlock()

	s.logger.Printf("Client connected (total: %d)", clientCount)

	// New clients get the current counters right away.
	welcome := Message{
		Type:      MessageTypeStats,
		Timestamp: time.Now(),
	}
	if s.controller != nil {
		if stats, err := s.controller.Stats(r.Context()); err == nil {
			welcome.Data, _ = json.Marshal(stats)
		}
	}
	welcomeData, _ := json.Marshal(welcome)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	_ = conn.Write(ctx, websocket.MessageText, welcomeData)
	cancel()

	go s.readLoop(conn)
}

// readLoop keeps the WebSocket connection alive and handles client disconnects
func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.removeClient(conn)

	for {
		if _, _, err := conn.Read(s.ctx); err != nil {
			return
		}
	}
}

// removeClient safely removes a client connection
func (s *Server) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	if _, exists := s.clients[conn]; exists {
		delete(s.clients, conn)
		clientCount := len(s.clients)
		s.clientsMu.Unlock()

		_ = conn.Close(websocket.StatusNormalClosure, "")
		s.logger.Printf("Client disconnected (total: %d)", clientCount)
	} else {
		s.clientsMu.Unlock()
	}
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"clients": s.ClientCount(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.controller == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no data source"})
		return
	}
	stats, err := s.controller.Stats(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if !s.originAllowed(r) {
		s.logger.Printf("Rejected sync request from origin %q", r.Header.Get("Origin"))
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "origin not allowed"})
		return
	}
	if s.controller == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no data source"})
		return
	}
	result, err := s.controller.TriggerSync(r.Context())
	switch {
	case errors.Is(err, edilsync.ErrSyncInProgress):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case err != nil:
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusOK, result)
	}
}

// originAllowed applies the WebSocket origin rules to plain HTTP requests.
func (s *Server) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	for _, p := range s.originPatterns {
		if ok, _ := path.Match(strings.ToLower(p), strings.ToLower(u.Host)); ok {
			return true
		}
	}
	return false
}

// handleRoot returns basic server information
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
    <title>Edil-Check Dashboard</title>
</head>
<body>
    <h1>Edil-Check Dashboard Server</h1>
    <p>WebSocket endpoint: <code>ws://%s/ws</code></p>
    <p>Counters: <a href="/api/stats">/api/stats</a></p>
    <p>Health check: <a href="/health">/health</a></p>
    <p>POST /api/sync to run a sync pass.</p>
</body>
</html>`, r.Host)
}

// GetAddr returns the server's listening address
func (s *Server) GetAddr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the current number of connected clients
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
