package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"edusocial/internal/domain"
	social_errors "edusocial/pkg/errors"
	"edusocial/pkg/logger"
)

type ClientConfig struct {
	BaseURL         string
	Token           string
	Timeout         time.Duration
	RetryMaxElapsed time.Duration
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// StatusError is a non-2xx backend response. It unwraps to the matching
// sentinel so callers can branch with errors.Is.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend returned %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("backend returned %d", e.Code)
}

func (e *StatusError) Unwrap() error {
	switch {
	case e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden:
		return social_errors.ErrUnauthorized
	case e.Code == http.StatusNotFound:
		return social_errors.ErrNotFound
	case e.Code == http.StatusBadRequest || e.Code == http.StatusUnprocessableEntity:
		return social_errors.ErrInvalidInput
	case e.Code >= 500:
		return social_errors.ErrServiceUnavailable
	}
	return nil
}

func (e *StatusError) retryable() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests
}

type Client struct {
	base            *url.URL
	token           string
	http            *http.Client
	breaker         *gobreaker.CircuitBreaker
	retryMaxElapsed time.Duration
	log             *logger.Logger
}

var (
	_ ChatAPI   = (*Client)(nil)
	_ FriendAPI = (*Client)(nil)
)

func NewClient(cfg ClientConfig, log *logger.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid api base url %q", cfg.BaseURL)
	}
	if log == nil {
		log = logger.NewNop()
	}
	log = log.Named("api")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}

	tr := &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		DialContext:     (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
		MaxIdleConns:    20,
		IdleConnTimeout: 90 * time.Second,
	}

	st := gobreaker.Settings{
		Name:        "backend",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		// Client errors say nothing about backend health.
		IsSuccessful: func(err error) bool {
			var se *StatusError
			if errors.As(err, &se) {
				return !se.retryable()
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Info("circuit breaker state", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}

	return &Client{
		base:            base,
		token:           cfg.Token,
		http:            &http.Client{Transport: tr, Timeout: cfg.Timeout},
		breaker:         gobreaker.NewCircuitBreaker(st),
		retryMaxElapsed: cfg.RetryMaxElapsed,
		log:             log,
	}, nil
}

// do sends one request through the breaker and returns the raw body.
// GETs are retried with exponential backoff on transport errors and 5xx.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
	}

	u := *c.base
	u.Path = c.base.Path + path
	u.RawQuery = query.Encode()
	target := u.String()

	attempt := func() ([]byte, error) {
		result, err := c.breaker.Execute(func() (interface{}, error) {
			return c.roundTrip(ctx, method, target, payload)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%s %s: %w", method, path, social_errors.ErrServiceUnavailable)
		}
		if err != nil {
			return nil, err
		}
		return result.([]byte), nil
	}

	if method != http.MethodGet || c.retryMaxElapsed <= 0 {
		return attempt()
	}

	var out []byte
	operation := func() error {
		data, err := attempt()
		if err == nil {
			out = data
			return nil
		}
		var se *StatusError
		if errors.As(err, &se) {
			if !se.retryable() {
				return backoff.Permanent(err)
			}
		} else if errors.Is(err, social_errors.ErrServiceUnavailable) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		c.log.Debug("retrying request", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxElapsedTime = c.retryMaxElapsed
	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) roundTrip(ctx context.Context, method, target string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Message: errorMessage(data)}
	}
	return data, nil
}

func errorMessage(body []byte) string {
	var e struct {
		Message string `json:"message"`
		Error   any    `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil {
		if e.Message != "" {
			return e.Message
		}
		if s, ok := e.Error.(string); ok {
			return s
		}
	}
	return ""
}

func idQuery(pairs ...any) url.Values {
	q := url.Values{}
	for i := 0; i+1 < len(pairs); i += 2 {
		key := pairs[i].(string)
		switch v := pairs[i+1].(type) {
		case int64:
			q.Set(key, strconv.FormatInt(v, 10))
		case int:
			if v > 0 {
				q.Set(key, strconv.Itoa(v))
			}
		}
	}
	return q
}

func (c *Client) ListRooms(ctx context.Context, userID int64, page, limit int) ([]Room, error) {
	data, err := c.do(ctx, http.MethodGet, "/chat-rooms", idQuery("userId", userID, "page", page, "limit", limit), nil)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return decodeList[Room](data)
}

func (c *Client) CreateRoom(ctx context.Context, req CreateRoomRequest) (int64, error) {
	data, err := c.do(ctx, http.MethodPost, "/chat-rooms", nil, req)
	if err != nil {
		return 0, fmt.Errorf("create room: %w", err)
	}
	id, err := roomIDFromCreate(data)
	if err != nil {
		return 0, fmt.Errorf("create room: %w: %w", social_errors.ErrRoomNotCreated, err)
	}
	return id, nil
}

func (c *Client) DeleteConversation(ctx context.Context, userID, roomID int64) error {
	path := "/chat-rooms/" + strconv.FormatInt(roomID, 10)
	if _, err := c.do(ctx, http.MethodDelete, path, idQuery("userId", userID), nil); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}

func (c *Client) ListMessages(ctx context.Context, userID, roomID int64, limit int) ([]RoomMessage, error) {
	data, err := c.do(ctx, http.MethodGet, "/chat-messages", idQuery("userId", userID, "roomId", roomID, "limit", limit), nil)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return decodeList[RoomMessage](data, "messages")
}

func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (*SentMessage, error) {
	data, err := c.do(ctx, http.MethodPost, "/chat-messages", nil, req)
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	sent, err := decodeObject[SentMessage](data)
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	return sent, nil
}

func (c *Client) MarkAsRead(ctx context.Context, userID, roomID int64) error {
	if _, err := c.do(ctx, http.MethodPost, "/chat-messages/read", nil, markReadRequest{UserID: userID, RoomID: roomID}); err != nil {
		return fmt.Errorf("mark as read: %w", err)
	}
	return nil
}

func (c *Client) ListFriends(ctx context.Context, userID int64) ([]domain.FriendRequest, error) {
	data, err := c.do(ctx, http.MethodGet, "/friends", idQuery("userId", userID), nil)
	if err != nil {
		return nil, fmt.Errorf("list friends: %w", err)
	}
	return decodeList[domain.FriendRequest](data, "friends")
}

func (c *Client) ListFriendRequests(ctx context.Context, userID int64, limit int) ([]domain.FriendRequest, error) {
	data, err := c.do(ctx, http.MethodGet, "/friends/requests", idQuery("userId", userID, "limit", limit), nil)
	if err != nil {
		return nil, fmt.Errorf("list friend requests: %w", err)
	}
	return decodeList[domain.FriendRequest](data, "requests")
}

func (c *Client) SendFriendRequest(ctx context.Context, requesterID, addresseeID int64) (*domain.FriendRequest, error) {
	data, err := c.do(ctx, http.MethodPost, "/friends/requests", nil, friendRequestBody{RequesterID: requesterID, AddresseeID: addresseeID})
	if err != nil {
		return nil, fmt.Errorf("send friend request: %w", err)
	}
	req, err := decodeObject[domain.FriendRequest](data)
	if err != nil {
		return nil, fmt.Errorf("send friend request: %w", err)
	}
	return req, nil
}

func (c *Client) ListBlocks(ctx context.Context, userID int64) ([]domain.BlockRecord, error) {
	data, err := c.do(ctx, http.MethodGet, "/chat-blocks", idQuery("userId", userID), nil)
	if err != nil {
		return nil, fmt.Errorf("list blocks: %w", err)
	}
	return decodeList[domain.BlockRecord](data, "blocks")
}

func (c *Client) BlockUser(ctx context.Context, blockerID, blockedID int64) error {
	if _, err := c.do(ctx, http.MethodPost, "/chat-blocks", nil, blockBody{BlockerID: blockerID, BlockedID: blockedID}); err != nil {
		return fmt.Errorf("block user: %w", err)
	}
	return nil
}

func (c *Client) UnblockUser(ctx context.Context, blockerID, blockedID int64) error {
	q := idQuery("blocker_id", blockerID, "blocked_id", blockedID)
	if _, err := c.do(ctx, http.MethodDelete, "/chat-blocks", q, nil); err != nil {
		return fmt.Errorf("unblock user: %w", err)
	}
	return nil
}
