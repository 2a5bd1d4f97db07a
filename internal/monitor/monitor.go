// Package monitor exposes the relay's allocation activity to operators: a
// websocket stream of allocation lifecycle events plus small JSON endpoints
// for health and table statistics.
package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/logging"

	"github.com/saintparish4/relay/internal/allocation"
)

// sendBuffer is the per-subscriber outbound queue. Subscribers that fall
// this far behind start losing events rather than blocking the broadcast.
const sendBuffer = 16

// subscriber is one connected websocket client.
type subscriber struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *subscriber) close() {
	c.once.Do(func() {
		close(c.send)
		_ = c.conn.Close()
	})
}

// writePump drains the send queue onto the websocket connection.
func (c *subscriber) writePump() {
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// wireEvent is the JSON shape events take on the websocket.
type wireEvent struct {
	Type      string `json:"type"`
	FiveTuple string `json:"five_tuple"`
	Username  string `json:"username"`
	RelayAddr string `json:"relay_addr"`
	Timestamp int64  `json:"timestamp"`
}

// Config holds monitor server configuration options.
type Config struct {
	Addr          string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	LeveledLogger logging.LeveledLogger
}

// Server serves the monitoring endpoints for a single allocation manager.
type Server struct {
	manager *allocation.Manager
	log     logging.LeveledLogger

	subscribersLock sync.RWMutex
	subscribers     map[string]*subscriber

	upgrader   websocket.Upgrader
	httpServer *http.Server
	mux        *http.ServeMux

	addr         string
	readTimeout  time.Duration
	writeTimeout time.Duration

	shutdownOnce sync.Once
}

// NewServer creates a monitor server for the given manager.
func NewServer(cfg Config, manager *allocation.Manager) *Server {
	s := &Server{
		manager:     manager,
		log:         cfg.LeveledLogger,
		subscribers: make(map[string]*subscriber),
		mux:         http.NewServeMux(),
		upgrader: websocket.Upgrader{
			// The monitor is an operator surface; origin policy is left to
			// the deployment's reverse proxy.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		addr:         cfg.Addr,
		readTimeout:  cfg.ReadTimeout,
		writeTimeout: cfg.WriteTimeout,
	}

	s.mux.HandleFunc("/ws", s.handleWS)
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/stats", s.handleStats)
	return s
}

// HandleEvent implements the manager's OnEvent callback: the event is
// serialised once and fanned out to every subscriber.
func (s *Server) HandleEvent(e allocation.Event) {
	we := wireEvent{
		Type:      string(e.Type),
		Username:  e.Username,
		Timestamp: time.Now().UnixMilli(),
	}
	if e.FiveTuple != nil {
		we.FiveTuple = e.FiveTuple.String()
	}
	if e.RelayAddr != nil {
		we.RelayAddr = e.RelayAddr.String()
	}

	payload, err := json.Marshal(we)
	if err != nil {
		s.log.Errorf("Failed to marshal event: %v", err)
		return
	}
	s.broadcast(payload)
}

// broadcast sends the payload to every subscriber. The subscriber snapshot
// is taken under the read lock and sends happen outside it; a subscriber
// with a full queue loses the event instead of stalling the rest.
func (s *Server) broadcast(payload []byte) {
	s.subscribersLock.RLock()
	subs := make([]*subscriber, 0, len(s.subscribers))
	for _, c := range s.subscribers {
		subs = append(subs, c)
	}
	s.subscribersLock.RUnlock()

	for _, c := range subs {
		select {
		case c.send <- payload:
		default:
			s.log.Warnf("monitor subscriber %s is slow, dropping event", c.id)
		}
	}
}

// SubscriberCount returns the number of connected websocket clients.
func (s *Server) SubscriberCount() int {
	s.subscribersLock.RLock()
	defer s.subscribersLock.RUnlock()
	return len(s.subscribers)
}

// Start begins serving requests. Blocks until Shutdown.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      s.mux,
		ReadTimeout:  s.readTimeout,
		WriteTimeout: s.writeTimeout,
	}

	s.log.Infof("monitor listening on %s", s.addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server and disconnects all subscribers.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		if s.httpServer != nil {
			err = s.httpServer.Shutdown(ctx)
		}

		s.subscribersLock.Lock()
		for id, c := range s.subscribers {
			delete(s.subscribers, id)
			c.close()
		}
		s.subscribersLock.Unlock()
	})
	return err
}

// Handler exposes the mux for embedding in custom routers and tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorf("Failed to upgrade monitor connection: %v", err)
		return
	}

	c := &subscriber{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	s.subscribersLock.Lock()
	s.subscribers[c.id] = c
	s.subscribersLock.Unlock()

	s.log.Debugf("monitor subscriber %s connected from %s", c.id, r.RemoteAddr)

	go c.writePump()

	// The read loop only exists to observe the close; subscribers are not
	// expected to send anything.
	go func() {
		defer func() {
			s.subscribersLock.Lock()
			delete(s.subscribers, c.id)
			s.subscribersLock.Unlock()
			c.close()
			s.log.Debugf("monitor subscriber %s disconnected", c.id)
		}()
		for {
			if _, _, err := c.conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UnixMilli(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := s.manager.Stats()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"allocations": stats.Allocations,
		"permissions": stats.Permissions,
		"bindings":    stats.Bindings,
		"subscribers": s.SubscriberCount(),
		"timestamp":   time.Now().UnixMilli(),
	})
}
