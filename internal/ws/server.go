// Package ws handles WebSocket connection management for the signaling
// relay: upgrading HTTP connections, tracking live clients, and dispatching
// incoming frames to the application layer. I/O is multiplexed through Linux
// epoll with a bounded worker pool, built on gobwas/ws.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"

	"github.com/pairwave/relay/internal/ratelimit"
)

// ServerConfig holds tunable parameters for the WebSocket server.
type ServerConfig struct {
	ListenAddr     string        // address to listen on, e.g. ":8080"
	WorkerPoolSize int           // max concurrent read-worker goroutines
	MaxConnections int           // hard cap on total connections
	ReadTimeout    time.Duration // timeout for WebSocket read operations
	WriteTimeout   time.Duration // timeout for WebSocket write operations
}

// DefaultServerConfig returns a ServerConfig with sensible production defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr:     ":8080",
		WorkerPoolSize: 256,
		MaxConnections: 100000,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
	}
}

// Server is the WebSocket server built on gobwas/ws and Linux epoll. It
// upgrades HTTP connections, asks the application layer to admit them, and
// dispatches ready connections to a bounded worker pool for frame reading.
type Server struct {
	config     ServerConfig
	epoll      *Epoll
	conns      *ConnectionManager
	limiter    *ratelimit.Limiter // optional per-IP connect limiter
	workerPool chan struct{}      // semaphore limiting concurrent read workers

	// onConnect admits a new connection. A false return means the
	// application rejected it; the rejection notice has already been
	// written and the socket will be closed by the application.
	onConnect    func(connID, ip, countryHint string) bool
	onMessage    func(conn *Connection, data []byte)
	onDisconnect func(connID string)

	httpServer *http.Server
	done       chan struct{}
	startedAt  time.Time
}

// NewServer creates a Server with the given configuration. The limiter may
// be nil, in which case connection attempts are never throttled.
func NewServer(config ServerConfig, limiter *ratelimit.Limiter) *Server {
	return &Server{
		config:     config,
		conns:      NewConnectionManager(),
		limiter:    limiter,
		workerPool: make(chan struct{}, config.WorkerPoolSize),
		done:       make(chan struct{}),
	}
}

// SetOnConnect registers the admission callback invoked after a successful
// upgrade, with the new identity, origin IP, and upstream country hint.
func (s *Server) SetOnConnect(fn func(connID, ip, countryHint string) bool) {
	s.onConnect = fn
}

// SetOnMessage registers the callback invoked from a worker goroutine for
// every complete text frame received from a client.
func (s *Server) SetOnMessage(fn func(conn *Connection, data []byte)) {
	s.onMessage = fn
}

// SetOnDisconnect registers a callback invoked when a connection is removed
// (read error, heartbeat timeout, or graceful close).
func (s *Server) SetOnDisconnect(fn func(connID string)) {
	s.onDisconnect = fn
}

// Start initializes the epoll instance, configures the HTTP server, and
// begins accepting WebSocket connections. It starts the epoll event loop and
// heartbeat in the background and blocks on http.Server.ListenAndServe.
func (s *Server) Start() error {
	var err error
	s.epoll, err = NewEpoll()
	if err != nil {
		return fmt.Errorf("ws: failed to create epoll: %w", err)
	}

	s.startedAt = time.Now()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleUpgrade)
	mux.HandleFunc("/health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:    s.config.ListenAddr,
		Handler: mux,
	}

	go s.startEventLoop()
	StartHeartbeat(s, DefaultHeartbeatConfig())

	log.Printf("ws: server listening on %s (workers=%d, max_conns=%d)",
		s.config.ListenAddr, s.config.WorkerPoolSize, s.config.MaxConnections)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("ws: http server error: %w", err)
	}
	return nil
}

// handleUpgrade upgrades an HTTP request to a WebSocket connection using the
// gobwas/ws zero-copy upgrader, registers it, and hands it to the admission
// callback. Rate-limited and over-capacity attempts are rejected before the
// upgrade.
func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if s.conns.Count() >= s.config.MaxConnections {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	ip := clientIP(r)
	if s.limiter != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		allowed, _ := s.limiter.Allow(ctx, ip, ratelimit.RuleConnect)
		cancel()
		if !allowed {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
	}
	hint := countryHint(r)

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		log.Printf("ws: upgrade failed: %v", err)
		return
	}

	fd := socketFD(conn)
	id := uuid.New().String()

	c := &Connection{
		ID:        id,
		IP:        ip,
		Conn:      conn,
		Fd:        fd,
		CreatedAt: time.Now(),
		LastSeen:  time.Now(),
	}

	s.conns.Add(c)
	if err := s.epoll.Add(conn); err != nil {
		log.Printf("ws: epoll add failed for %s: %v", id, err)
		s.conns.Remove(id)
		return
	}

	if s.onConnect != nil && !s.onConnect(id, ip, hint) {
		// Rejected on policy grounds. The application sent the notice
		// and schedules the close; nothing more to do here.
		return
	}

	log.Printf("ws: new connection id=%s ip=%s fd=%d (total=%d)", id, ip, fd, s.conns.Count())
}

// clientIP extracts the originating address: the first hop of an
// X-Forwarded-For chain when present, otherwise the peer address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			xff = xff[:i]
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// countryHint extracts the country code supplied by a trusted edge proxy.
func countryHint(r *http.Request) string {
	if code := r.Header.Get("CF-IPCountry"); code != "" {
		return code
	}
	return r.Header.Get("X-Country-Code")
}

// handleHealth responds with the server's health status as JSON, including
// the current connection count and uptime, for load balancer health checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	resp := struct {
		Status      string `json:"status"`
		Connections int    `json:"connections"`
		Uptime      string `json:"uptime"`
	}{
		Status:      "ok",
		Connections: s.conns.Count(),
		Uptime:      time.Since(s.startedAt).Round(time.Second).String(),
	}

	_ = json.NewEncoder(w).Encode(resp)
}

// startEventLoop runs the epoll wait loop. Each ready connection is handed
// to a worker goroutine, bounded by the worker pool semaphore.
func (s *Server) startEventLoop() {
	for {
		select {
		case <-s.done:
			return
		default:
		}

		conns, err := s.epoll.Wait()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				// EINTR is expected during signal handling.
				if isEINTR(err) {
					continue
				}
				log.Printf("ws: epoll wait error: %v", err)
				continue
			}
		}

		for _, conn := range conns {
			conn := conn

			s.workerPool <- struct{}{}
			go func() {
				defer func() { <-s.workerPool }()
				s.handleConn(conn)
			}()
		}
	}
}

// handleConn reads a single WebSocket frame from a ready connection using
// wsutil.NextReader so control frames (ping, pong, close) are handled
// without blocking on a data frame that may never arrive. A failed read
// removes the connection.
func (s *Server) handleConn(netConn net.Conn) {
	c := s.conns.GetByConn(netConn)
	if c == nil {
		return
	}

	// Guard against duplicate dispatch from level-triggered epoll.
	if !atomic.CompareAndSwapInt32(&c.processing, 0, 1) {
		return
	}
	defer atomic.StoreInt32(&c.processing, 0)

	if s.config.ReadTimeout > 0 {
		_ = netConn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	}

	header, reader, err := wsutil.NextReader(netConn, ws.StateServerSide)
	if err != nil {
		// A read timeout means no data was available (stale epoll
		// dispatch). The heartbeat handles dead connections.
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return
		}
		s.RemoveConnection(c)
		return
	}

	_ = netConn.SetReadDeadline(time.Time{})

	// Any frame proves the connection is alive.
	c.LastSeen = time.Now()

	if header.OpCode.IsControl() {
		if header.OpCode == ws.OpClose {
			s.RemoveConnection(c)
		}
		return
	}

	data := make([]byte, header.Length)
	if header.Length > 0 {
		if _, err := io.ReadFull(reader, data); err != nil {
			s.RemoveConnection(c)
			return
		}
	}

	if len(data) == 0 {
		return
	}

	if s.onMessage != nil {
		s.onMessage(c, data)
	}
}

// RemoveConnection removes a connection from both epoll and the connection
// manager and closes the underlying network connection. Exported so the
// heartbeat monitor can evict dead connections.
func (s *Server) RemoveConnection(c *Connection) {
	_ = s.epoll.Remove(c.Conn)

	// Only proceed if the connection was actually in the manager, so
	// goroutines racing to remove the same connection (read error plus
	// heartbeat timeout) don't run the cleanup twice.
	if !s.conns.Remove(c.ID) {
		return
	}

	if s.onDisconnect != nil {
		s.onDisconnect(c.ID)
	}

	log.Printf("ws: connection closed id=%s (total=%d)", c.ID, s.conns.Count())
}

// Send writes a WebSocket text frame to the connection identified by id. It
// is goroutine-safe thanks to the per-connection write mutex.
func (s *Server) Send(id string, data []byte) error {
	c := s.conns.Get(id)
	if c == nil {
		return fmt.Errorf("ws: connection %s not found", id)
	}

	if s.config.WriteTimeout > 0 {
		_ = c.Conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	}

	err := c.WriteMessage(data)

	// Clear the write deadline so it doesn't affect heartbeat pings.
	_ = c.Conn.SetWriteDeadline(time.Time{})

	return err
}

// Close tears down the connection identified by id, if it is still live.
func (s *Server) Close(id string) {
	if c := s.conns.Get(id); c != nil {
		s.RemoveConnection(c)
	}
}

// Broadcast writes a WebSocket text frame to every live connection.
func (s *Server) Broadcast(data []byte) {
	s.conns.Broadcast(data)
}

// Connections returns the ConnectionManager for external access to
// connection state (e.g., by the heartbeat monitor).
func (s *Server) Connections() *ConnectionManager {
	return s.conns
}

// Shutdown performs a graceful shutdown: it stops the HTTP listener, signals
// the event loop to exit, closes all active connections, and cleans up the
// epoll instance.
func (s *Server) Shutdown() error {
	log.Println("ws: shutting down server...")

	close(s.done)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Printf("ws: http shutdown error: %v", err)
	}

	for _, c := range s.conns.All() {
		_ = s.epoll.Remove(c.Conn)
		c.Close()
	}

	if s.epoll != nil {
		_ = s.epoll.Close()
	}

	log.Printf("ws: server stopped, all connections closed")
	return nil
}

// isEINTR checks for a syscall interrupted error (EINTR), which is expected
// during signal handling and should be retried.
func isEINTR(err error) bool {
	if err == nil {
		return false
	}
	return err.Error() == "interrupted system call" ||
		err.Error() == "errno 4"
}
