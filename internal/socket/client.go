package socket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"edusocial/internal/events"
	"edusocial/internal/metrics"
	social_errors "edusocial/pkg/errors"
	"edusocial/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
	sendBuffer     = 256
)

type Options struct {
	// URL is the full ws:// or wss:// endpoint of the namespace.
	URL       string
	Namespace string
	// EncryptedUser is emitted with "authenticate" after every connect
	// when non-empty.
	EncryptedUser     string
	Header            http.Header
	DialTimeout       time.Duration
	ReconnectDelay    time.Duration
	ReconnectAttempts int
}

// Client is a Transport over a single gorilla/websocket connection. It
// reconnects on its own after the read side fails.
type Client struct {
	opts   Options
	id     string
	log    *logger.Logger
	dialer *websocket.Dialer
	*Dispatcher

	mu        sync.Mutex
	session   *session
	connected bool
	running   bool
	closed    bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// session is one live connection and its outbound queue.
type session struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
}

var _ Transport = (*Client)(nil)

func NewClient(opts Options, log *logger.Logger) *Client {
	if log == nil {
		log = logger.NewNop()
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 20 * time.Second
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = time.Second
	}
	if opts.ReconnectAttempts <= 0 {
		opts.ReconnectAttempts = 5
	}
	id := uuid.New().String()
	return &Client{
		opts:       opts,
		id:         id,
		log:        log.Named("socket").WithFields(zap.String("namespace", opts.Namespace), zap.String("client_id", id)),
		dialer:     &websocket.Dialer{Proxy: http.ProxyFromEnvironment, HandshakeTimeout: opts.DialTimeout},
		Dispatcher: NewDispatcher(),
	}
}

// EndpointURL joins an http(s) or ws(s) base with a namespace path.
func EndpointURL(base, namespace string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid socket base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported socket scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(namespace, "/")
	return u.String(), nil
}

// Connect dials once and starts the pumps. It is a no-op while a
// connection or a reconnect loop is already running.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.New("socket client closed")
	}
	if c.running {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed || c.running {
		c.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.running = true
	c.wg.Add(1)
	c.mu.Unlock()

	go c.run(runCtx, conn)
	return nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.opts.URL, c.opts.Header)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", c.opts.Namespace, err)
	}
	return conn, nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel := c.cancel
	s := c.session
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if s != nil {
		_ = s.conn.Close()
	}
	c.wg.Wait()
	return nil
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Client) JoinRoom(roomID int64) error {
	return c.Emit(events.EventJoinRoom, events.RoomRequest{RoomID: roomID})
}

func (c *Client) LeaveRoom(roomID int64) error {
	return c.Emit(events.EventLeaveRoom, events.RoomRequest{RoomID: roomID})
}

// Emit queues a frame without blocking. It fails when there is no live
// connection or the outbound queue is full.
func (c *Client) Emit(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", event, err)
	}
	frame, err := json.Marshal(events.Frame{Event: event, Data: data})
	if err != nil {
		return err
	}

	c.mu.Lock()
	s := c.session
	connected := c.connected
	c.mu.Unlock()
	if s == nil || !connected {
		return social_errors.ErrNotConnected
	}

	select {
	case s.send <- frame:
		return nil
	case <-s.done:
		return social_errors.ErrNotConnected
	default:
		c.log.Warn("send buffer full, frame dropped", zap.String("event", event))
		return fmt.Errorf("send buffer full: %w", social_errors.ErrNotConnected)
	}
}

func (c *Client) run(ctx context.Context, conn *websocket.Conn) {
	defer c.wg.Done()
	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	for {
		c.serve(ctx, conn)
		if ctx.Err() != nil {
			return
		}

		next, err := c.reconnect(ctx)
		if err != nil {
			if ctx.Err() == nil {
				c.log.Error("giving up reconnecting", zap.Error(err))
			}
			return
		}
		conn = next
	}
}

// serve owns one connection until its read side fails.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) {
	s := &session{conn: conn, send: make(chan []byte, sendBuffer), done: make(chan struct{})}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.session = s
	c.connected = true
	c.mu.Unlock()

	metrics.SocketConnected.WithLabelValues(c.opts.Namespace).Set(1)
	c.log.Info("socket connected")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writePump(ctx, s)
	}()

	if c.opts.EncryptedUser != "" {
		if err := c.Emit(events.EventAuthenticate, events.AuthenticateRequest{EncryptedData: c.opts.EncryptedUser}); err != nil {
			c.log.Warn("failed to queue authenticate", zap.Error(err))
		}
	}
	c.NotifyConnection(true)

	c.readPump(s)

	close(s.done)
	_ = conn.Close()
	<-writerDone

	c.mu.Lock()
	c.connected = false
	if c.session == s {
		c.session = nil
	}
	c.mu.Unlock()

	metrics.SocketConnected.WithLabelValues(c.opts.Namespace).Set(0)
	c.log.Info("socket disconnected")
	c.NotifyConnection(false)
}

func (c *Client) reconnect(ctx context.Context) (*websocket.Conn, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.ReconnectDelay
	b.MaxElapsedTime = 0

	var conn *websocket.Conn
	attempt := 0
	operation := func() error {
		attempt++
		dialCtx, cancel := context.WithTimeout(ctx, c.opts.DialTimeout)
		defer cancel()
		next, err := c.dial(dialCtx)
		if err != nil {
			metrics.SocketReconnects.WithLabelValues(c.opts.Namespace, "failure").Inc()
			c.log.Debug("reconnect attempt failed", zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		conn = next
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.opts.ReconnectAttempts)), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	metrics.SocketReconnects.WithLabelValues(c.opts.Namespace, "success").Inc()
	return conn, nil
}

func (c *Client) readPump(s *session) {
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("socket unexpected close", zap.Error(err))
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))

		var frame events.Frame
		if err := json.Unmarshal(message, &frame); err != nil || frame.Event == "" {
			c.log.Debug("ignoring malformed frame", zap.ByteString("frame", message))
			continue
		}
		metrics.PushEvents.WithLabelValues(frame.Event).Inc()

		switch frame.Event {
		case events.EventAuthenticated:
			c.log.Debug("socket authenticated")
		case events.EventChatError:
			c.log.Warn("socket error event", zap.ByteString("data", frame.Data))
		}
		c.Dispatch(frame.Event, frame.Data)
	}
}

func (c *Client) writePump(ctx context.Context, s *session) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = s.conn.Close()
			return
		case <-s.done:
			return
		case msg := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Warn("socket write failed", zap.Error(err))
				_ = s.conn.Close()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = s.conn.Close()
				return
			}
		}
	}
}
