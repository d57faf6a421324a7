// Package report serves search and live-loop progress over HTTP and a
// websocket broadcast channel, the same shape the teacher stack's API
// server used for pushing state to connected dashboards.
package report

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// Message is one broadcast envelope pushed to every connected client.
type Message struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Client is one connected websocket subscriber.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan Message
}

// Server exposes /status, /healthz and a /ws broadcast channel over an
// underlying gorilla/mux router, wrapped in a permissive CORS policy
// for local dashboards.
type Server struct {
	logger *zap.Logger

	mu      sync.RWMutex
	clients map[string]*Client
	status  interface{}

	upgrader websocket.Upgrader
	handler  http.Handler
}

// NewServer builds a report server. metricsHandler, if non-nil, is
// mounted at /metrics so a prometheus registry can be scraped
// alongside search/live progress.
func NewServer(logger *zap.Logger, metricsHandler http.Handler) *Server {
	s := &Server{
		logger:  logger,
		clients: make(map[string]*Client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}

	router := mux.NewRouter()
	router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/ws", s.handleWebSocket)
	if metricsHandler != nil {
		router.Handle("/metrics", metricsHandler).Methods(http.MethodGet)
	}

	s.handler = cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
	}).Handler(router)

	return s
}

// Handler returns the CORS-wrapped router for use with http.Server or
// httptest.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	status := s.status
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil && s.logger != nil {
		s.logger.Warn("encoding status response", zap.Error(err))
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("websocket upgrade failed", zap.Error(err))
		}
		return
	}

	c := &Client{id: uuid.NewString(), conn: conn, send: make(chan Message, 16)}
	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()

	go s.writePump(c)
	go s.readPump(c)
}

func (s *Server) readPump(c *Client) {
	defer s.removeClient(c)
	c.conn.SetReadLimit(4096)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writePump(c *Client) {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

func (s *Server) removeClient(c *Client) {
	s.mu.Lock()
	delete(s.clients, c.id)
	s.mu.Unlock()
	close(c.send)
}

// SetStatus updates the value served from GET /status.
func (s *Server) SetStatus(status interface{}) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

// Broadcast pushes msgType/payload to every connected client,
// dropping it for any client whose send buffer is full rather than
// blocking the reporter.
func (s *Server) Broadcast(msgType string, payload interface{}) {
	msg := Message{ID: uuid.NewString(), Type: msgType, Payload: payload, Timestamp: time.Now()}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clients {
		select {
		case c.send <- msg:
		default:
			if s.logger != nil {
				s.logger.Warn("dropping broadcast for slow client", zap.String("client_id", c.id))
			}
		}
	}
}
