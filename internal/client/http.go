// Package client implements the item store client used by the todo list:
// HTTP talks to the item store service, Local keeps items in process.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/todo-sync/internal/model"
)

// Feed connection timing. The server pings every 54s.
const (
	feedReadTimeout  = 70 * time.Second
	feedWriteTimeout = 10 * time.Second
	maxResponseBytes = 1 << 20
)

const (
	itemsPath = "/api/v1/items"
	feedPath  = "/ws/items"
)

// ErrFeedClosed is reported through onError when the server ends the feed.
var ErrFeedClosed = errors.New("item feed closed by server")

// StatusError is returned when the item store answers with a non-2xx status.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("item store returned %d: %s", e.Code, e.Message)
}

// HTTP is the item store client for the REST API and websocket feed.
type HTTP struct {
	baseURL string
	feedURL string
	http    *http.Client
	dialer  *websocket.Dialer
	logger  *zap.Logger
}

// NewHTTP creates a client for the item store at baseURL.
func NewHTTP(baseURL string, timeout time.Duration, logger *zap.Logger) (*HTTP, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing store URL: %w", err)
	}

	feed := *u
	switch u.Scheme {
	case "http":
		feed.Scheme = "ws"
	case "https":
		feed.Scheme = "wss"
	default:
		return nil, fmt.Errorf("unsupported store URL scheme %q", u.Scheme)
	}
	feed.Path = strings.TrimSuffix(u.Path, "/") + feedPath

	return &HTTP{
		baseURL: strings.TrimSuffix(u.String(), "/"),
		feedURL: feed.String(),
		http:    &http.Client{Timeout: timeout},
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: timeout,
		},
		logger: logger,
	}, nil
}

// Create adds an item with the given text.
func (c *HTTP) Create(ctx context.Context, text string) (*model.Item, error) {
	var item model.Item
	if err := c.do(ctx, http.MethodPost, itemsPath, model.ItemInput{Text: text}, &item); err != nil {
		return nil, fmt.Errorf("create item: %w", err)
	}
	return &item, nil
}

// Update replaces the text of item id.
func (c *HTTP) Update(ctx context.Context, id, text string) error {
	if err := c.do(ctx, http.MethodPut, itemPath(id), model.ItemInput{Text: text}, nil); err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// Delete removes item id.
func (c *HTTP) Delete(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, itemPath(id), nil, nil); err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	return nil
}

// Close releases idle connections.
func (c *HTTP) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// Subscribe opens the websocket feed. onItems receives every snapshot on a
// reader goroutine. If the connection ends for any reason other than the
// returned cancel func, onError is called once and no further snapshots follow.
// Callbacks may still be running when cancel returns.
func (c *HTTP) Subscribe(
	ctx context.Context,
	onItems func([]model.Item),
	onError func(error),
) (func(), error) {
	conn, resp, err := c.dialer.DialContext(ctx, c.feedURL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("subscribe: %w", &StatusError{Code: resp.StatusCode, Message: resp.Status})
		}
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	sub := &subscription{
		conn:    conn,
		onItems: onItems,
		onError: onError,
		logger:  c.logger,
	}
	conn.SetPingHandler(sub.handlePing)

	c.logger.Info("subscribed to item feed", zap.String("url", c.feedURL))
	go sub.read()

	return sub.cancel, nil
}

// subscription is one open feed connection.
type subscription struct {
	conn    *websocket.Conn
	onItems func([]model.Item)
	onError func(error)
	logger  *zap.Logger

	mu       sync.Mutex
	canceled bool
}

func (s *subscription) handlePing(data string) error {
	if err := s.conn.SetReadDeadline(time.Now().Add(feedReadTimeout)); err != nil {
		return err
	}
	err := s.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(feedWriteTimeout))
	if errors.Is(err, websocket.ErrCloseSent) {
		return nil
	}
	return err
}

func (s *subscription) cancel() {
	s.mu.Lock()
	if s.canceled {
		s.mu.Unlock()
		return
	}
	s.canceled = true
	s.mu.Unlock()

	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(feedWriteTimeout))
	_ = s.conn.Close()
	s.logger.Info("unsubscribed from item feed")
}

func (s *subscription) isCanceled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canceled
}

func (s *subscription) read() {
	for {
		if err := s.conn.SetReadDeadline(time.Now().Add(feedReadTimeout)); err != nil {
			s.fail(err)
			return
		}

		var msg model.FeedMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				err = ErrFeedClosed
			}
			s.fail(err)
			return
		}

		if s.isCanceled() {
			return
		}

		switch msg.Type {
		case model.FeedMessageTypeSnapshot:
			s.logger.Debug("item snapshot received", zap.Int("items", len(msg.Items)))
			s.onItems(msg.Items)
		case model.FeedMessageTypeError:
			s.fail(fmt.Errorf("item feed: %s", msg.Error))
			_ = s.conn.Close()
			return
		default:
			s.logger.Warn("unknown feed message type", zap.String("type", msg.Type))
		}
	}
}

func (s *subscription) fail(err error) {
	if s.isCanceled() {
		return
	}
	s.logger.Error("item feed lost", zap.Error(err))
	if s.onError != nil {
		s.onError(err)
	}
}

func itemPath(id string) string {
	return itemsPath + "/" + url.PathEscape(id)
}

// do sends a JSON request and decodes the data field of the response into out.
func (c *HTTP) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp.StatusCode, payload)
	}

	if out == nil || len(payload) == 0 {
		return nil
	}

	envelope := model.APIResponse[json.RawMessage]{}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	// data is omitted for an empty collection
	if len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("decoding response data: %w", err)
	}

	return nil
}

func statusError(code int, payload []byte) *StatusError {
	var body model.ErrorResponse
	if err := json.Unmarshal(payload, &body); err == nil && body.Message != "" {
		return &StatusError{Code: code, Message: body.Message}
	}

	msg := strings.TrimSpace(string(payload))
	if msg == "" {
		msg = http.StatusText(code)
	}
	return &StatusError{Code: code, Message: msg}
}
