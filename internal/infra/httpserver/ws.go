package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	appscanning "github.com/bryanwahyu/cbomkit/internal/application/scanning"
	domain "github.com/bryanwahyu/cbomkit/internal/domain/scanning"
	"github.com/bryanwahyu/cbomkit/internal/middleware"
)

const writeWait = 10 * time.Second

// session is one connected websocket client. Writes are serialized.
type session struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *session) write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(v)
}

// Sessions maps client ids to their open connection.
type Sessions struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

func NewSessions() *Sessions {
	return &Sessions{sessions: map[string]*session{}}
}

func (s *Sessions) add(id string, conn *websocket.Conn) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.sessions[id]; ok {
		old.conn.Close()
	}
	sess := &session{conn: conn}
	s.sessions[id] = sess
	return sess
}

// remove drops id only while it still points at sess.
func (s *Sessions) remove(id string, sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.sessions[id]; ok && cur == sess {
		delete(s.sessions, id)
	}
}

func (s *Sessions) get(id string) (*session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// Len is the number of connected clients.
func (s *Sessions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Send pushes msg to client id. A missing session or a failed write
// reports ErrClientDisconnected; failed sessions are dropped.
func (s *Sessions) Send(id string, msg domain.ProgressMessage) error {
	sess, ok := s.get(id)
	if !ok {
		return fmt.Errorf("client %s: %w", id, domain.ErrClientDisconnected)
	}
	if err := sess.write(msg); err != nil {
		s.remove(id, sess)
		sess.conn.Close()
		return fmt.Errorf("client %s: %w: %v", id, domain.ErrClientDisconnected, err)
	}
	return nil
}

// Dispatcher returns the progress sink of client id.
func (s *Sessions) Dispatcher(id string) domain.ProgressDispatcher {
	return clientDispatcher{sessions: s, id: id}
}

type clientDispatcher struct {
	sessions *Sessions
	id       string
}

func (d clientDispatcher) Send(msg domain.ProgressMessage) error {
	return d.sessions.Send(d.id, msg)
}

func (r *Router) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     r.checkOrigin,
	}
}

func (r *Router) checkOrigin(req *http.Request) bool {
	origin := req.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range r.origins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// GET /v1/scan/{clientId} (websocket)
// Each text message is a scan request; progress is pushed as {"type","message"}.
func (r *Router) handleScanSocket(w http.ResponseWriter, req *http.Request) {
	clientID := chi.URLParam(req, "clientId")
	if err := middleware.ValidateClientID(clientID); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	up := r.upgrader()
	conn, err := up.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Warn("websocket upgrade failed", "client", clientID, "error", err)
		return
	}
	sess := r.sessions.add(clientID, conn)
	r.logger.Debug("websocket connected", "client", clientID)
	defer func() {
		r.sessions.remove(clientID, sess)
		conn.Close()
		r.logger.Debug("websocket closed", "client", clientID)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		r.startFromSocket(req.Context(), clientID, data)
	}
}

func (r *Router) startFromSocket(ctx context.Context, clientID string, data []byte) {
	dispatcher := r.sessions.Dispatcher(clientID)
	fail := func(msg string) {
		dispatcher.Send(domain.ProgressMessage{Type: domain.ProgressError, Message: msg})
	}

	var body appscanning.StartRequest
	if err := json.Unmarshal(data, &body); err != nil {
		fail("invalid scan request: " + err.Error())
		return
	}
	body.ScanURL = middleware.SanitizeString(body.ScanURL)
	body.Branch = middleware.SanitizeString(body.Branch)
	body.Subfolder = middleware.SanitizeString(body.Subfolder)
	if err := validateStart(body); err != nil {
		fail(err.Error())
		return
	}
	saga, err := r.scans.Start(ctx, body, dispatcher)
	if err != nil {
		fail(err.Error())
		return
	}
	r.logger.Info("scan started", "client", clientID, "scan", saga.ID().String(), "url", body.ScanURL)
}
