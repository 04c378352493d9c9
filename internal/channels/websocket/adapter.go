// Package websocket implements a generic browser/CLI chat channel: the
// adapter exposes an http.Handler that upgrades incoming connections, then
// multiplexes inbound/outbound traffic across however many clients are
// connected at once, the same many-connections-one-adapter shape the
// gateway's Socket Mode and long-poll channels use.
package websocket

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/agentloom/turnengine/internal/channels"
	"github.com/agentloom/turnengine/pkg/models"
)

// Config controls the websocket channel's upgrade and session behavior.
type Config struct {
	// Path is the HTTP path the adapter's handler is mounted under, for
	// logging only; routing is the caller's responsibility.
	Path string
	// AllowedOrigins, when non-empty, restricts the Origin header accepted
	// on upgrade. Empty means accept any origin, matching a local/dev setup.
	AllowedOrigins []string
	WriteTimeout   time.Duration
}

func (c Config) writeTimeout() time.Duration {
	if c.WriteTimeout > 0 {
		return c.WriteTimeout
	}
	return 10 * time.Second
}

// Adapter implements channels.FullAdapter over raw websocket connections.
// Each accepted connection becomes a session keyed by a generated
// transportChatID, which callers use as msg.ChannelID the same way a
// Telegram chat ID or Slack channel ID keys that channel's sessions.
type Adapter struct {
	cfg      Config
	upgrader websocket.Upgrader
	health   *channels.BaseHealthAdapter
	messages chan *models.Message

	mu       sync.RWMutex
	sessions map[string]*session
}

type session struct {
	conn   *websocket.Conn
	mu     sync.Mutex // serializes concurrent writes, per gorilla/websocket's contract
	closed bool
}

// NewAdapter creates a websocket channel adapter. Mount Handler() on an
// http.ServeMux to accept connections.
func NewAdapter(cfg Config, logger *slog.Logger) *Adapter {
	a := &Adapter{
		cfg:      cfg,
		messages: make(chan *models.Message, 100),
		sessions: make(map[string]*session),
		health:   channels.NewBaseHealthAdapter(models.ChannelWebsocket, logger),
	}
	a.upgrader = websocket.Upgrader{
		CheckOrigin: a.checkOrigin,
	}
	return a
}

func (a *Adapter) checkOrigin(r *http.Request) bool {
	if len(a.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range a.cfg.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

// Type returns the channel type.
func (a *Adapter) Type() models.ChannelType {
	return models.ChannelWebsocket
}

// Start marks the adapter as accepting connections. The actual listener is
// whatever http.Server the caller mounts Handler() on.
func (a *Adapter) Start(ctx context.Context) error {
	a.health.SetStatus(true, "")
	return nil
}

// Stop closes every open session.
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	sessions := make([]*session, 0, len(a.sessions))
	for _, s := range a.sessions {
		sessions = append(sessions, s)
	}
	a.sessions = make(map[string]*session)
	a.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
	close(a.messages)
	a.health.SetStatus(false, "")
	return nil
}

// Handler returns the HTTP handler that upgrades incoming connections.
func (a *Adapter) Handler() http.Handler {
	return http.HandlerFunc(a.serveHTTP)
}

func (a *Adapter) serveHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.health.RecordError(channels.ErrCodeConnection)
		return
	}
	transportChatID := uuid.NewString()
	sess := &session{conn: conn}

	a.mu.Lock()
	a.sessions[transportChatID] = sess
	a.mu.Unlock()
	a.health.RecordConnectionOpened()

	defer func() {
		a.mu.Lock()
		delete(a.sessions, transportChatID)
		a.mu.Unlock()
		sess.close()
		a.health.RecordConnectionClosed()
	}()

	a.readLoop(r.Context(), transportChatID, sess)
}

func (a *Adapter) readLoop(ctx context.Context, transportChatID string, sess *session) {
	for {
		start := time.Now()
		_, payload, err := sess.conn.ReadMessage()
		if err != nil {
			return
		}
		a.health.RecordMessageReceived()
		a.health.RecordReceiveLatency(time.Since(start))

		msg := &models.Message{
			ID:        uuid.NewString(),
			SessionID: transportChatID,
			Channel:   models.ChannelWebsocket,
			ChannelID: transportChatID,
			Direction: models.DirectionInbound,
			Role:      models.RoleUser,
			Content:   string(payload),
			CreatedAt: time.Now(),
		}

		select {
		case a.messages <- msg:
		case <-ctx.Done():
			return
		}
	}
}

// Send delivers a message to the session identified by msg.ChannelID.
func (a *Adapter) Send(ctx context.Context, msg *models.Message) error {
	a.mu.RLock()
	sess, ok := a.sessions[msg.ChannelID]
	a.mu.RUnlock()
	if !ok {
		a.health.RecordMessageFailed()
		return fmt.Errorf("websocket: no open session for %s", msg.ChannelID)
	}

	start := time.Now()
	if err := sess.writeText(a.cfg.writeTimeout(), msg.Content); err != nil {
		a.health.RecordMessageFailed()
		a.health.RecordError(channels.ErrCodeConnection)
		return fmt.Errorf("websocket: write: %w", err)
	}
	a.health.RecordMessageSent()
	a.health.RecordSendLatency(time.Since(start))
	return nil
}

// Messages returns the channel of inbound messages across all sessions.
func (a *Adapter) Messages() <-chan *models.Message {
	return a.messages
}

// Status returns the adapter's aggregate connection status.
func (a *Adapter) Status() channels.Status {
	return a.health.Status()
}

// HealthCheck reports whether the adapter currently has any open session.
func (a *Adapter) HealthCheck(ctx context.Context) channels.HealthStatus {
	return a.health.HealthCheck(ctx)
}

// Metrics returns the adapter's accumulated metrics snapshot.
func (a *Adapter) Metrics() channels.MetricsSnapshot {
	return a.health.Metrics()
}

func (s *session) writeText(timeout time.Duration, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("session closed")
	}
	s.conn.SetWriteDeadline(time.Now().Add(timeout))
	return s.conn.WriteMessage(websocket.TextMessage, []byte(text))
}

func (s *session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.conn.Close()
}
