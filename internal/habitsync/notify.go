package habitsync

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"nhooyr.io/websocket"

	"github.com/AryanShah2000/HabitTracker/internal/session"
)

// Notifier subscribes to the server's change feed and invokes onChange
// for every notification, so edits from other devices show up without
// waiting for the next poll. Reconnects with backoff until ctx is done.
type Notifier struct {
	URL     string
	Session session.Provider
	Logger  logrus.FieldLogger

	ReconnectDelay time.Duration
}

func (n *Notifier) Run(ctx context.Context, onChange func()) {
	logger := n.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	delay := n.ReconnectDelay
	if delay <= 0 {
		delay = 5 * time.Second
	}
	for {
		if err := n.listen(ctx, onChange); err != nil && ctx.Err() == nil {
			logger.WithError(err).Debug("change feed disconnected")
		}
		if waitWithContext(ctx, delay) != nil {
			return
		}
	}
}

func (n *Notifier) listen(ctx context.Context, onChange func()) error {
	header := http.Header{}
	if n.Session != nil {
		if token := strings.TrimSpace(n.Session.Token()); token != "" {
			header.Set("Authorization", "Bearer "+token)
		}
	}
	conn, _, err := websocket.Dial(ctx, n.URL, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return err
		}
		if onChange != nil {
			onChange()
		}
	}
}
