package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"nhooyr.io/websocket"
)

// changeHub tracks websocket subscribers per user and fans out change
// notifications after mutations.
type changeHub struct {
	mu     sync.Mutex
	subs   map[string]map[*websocket.Conn]struct{}
	logger logrus.FieldLogger
}

func newChangeHub(logger logrus.FieldLogger) *changeHub {
	return &changeHub{subs: make(map[string]map[*websocket.Conn]struct{}), logger: logger}
}

func (h *changeHub) add(user string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[user] == nil {
		h.subs[user] = make(map[*websocket.Conn]struct{})
	}
	h.subs[user][conn] = struct{}{}
}

func (h *changeHub) remove(user string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns := h.subs[user]; conns != nil {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.subs, user)
		}
	}
}

// Broadcast notifies every connection subscribed to the user's changes.
func (h *changeHub) Broadcast(user string) {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.subs[user]))
	for conn := range h.subs[user] {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	payload := []byte(`{"type":"activities.changed"}`)
	for _, conn := range conns {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
			h.logger.WithError(err).Debug("drop change notification")
		}
		cancel()
	}
}

func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	user, err := s.authenticate(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		s.cfg.Logger.WithError(err).Debug("websocket accept")
		return
	}
	s.hub.add(user, conn)
	defer func() {
		s.hub.remove(user, conn)
		conn.Close(websocket.StatusNormalClosure, "")
	}()

	// Drain client frames until the connection goes away.
	ctx := r.Context()
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}
