package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/todo-sync/internal/handler"
	"github.com/vyrodovalexey/todo-sync/internal/model"
	"github.com/vyrodovalexey/todo-sync/internal/store"
)

type storeServer struct {
	url  string
	feed *store.Feed
	ws   *handler.WebSocketHandler
}

func newStoreServer(t *testing.T) *storeServer {
	t.Helper()

	feed := store.NewFeed(store.NewMemoryStore(), zap.NewNop())
	router := mux.NewRouter()
	handler.NewRESTHandler(feed, zap.NewNop()).RegisterRoutes(router)
	ws := handler.NewWebSocketHandler(feed, zap.NewNop())
	ws.RegisterRoutes(router)

	server := httptest.NewServer(router)
	t.Cleanup(func() {
		ws.CloseAllConnections()
		server.Close()
	})

	return &storeServer{url: server.URL, feed: feed, ws: ws}
}

func newTestHTTP(t *testing.T, baseURL string) *HTTP {
	t.Helper()

	c, err := NewHTTP(baseURL, 5*time.Second, zap.NewNop())
	if err != nil {
		t.Fatalf("NewHTTP() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func waitFor[T any](t *testing.T, ch <-chan T) T {
	t.Helper()

	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for callback")
	}
	var zero T
	return zero
}

func TestNewHTTP(t *testing.T) {
	tests := []struct {
		name     string
		baseURL  string
		wantFeed string
		wantErr  bool
	}{
		{name: "http", baseURL: "http://localhost:8080", wantFeed: "ws://localhost:8080/ws/items"},
		{name: "https with prefix", baseURL: "https://todo.example.com/store/", wantFeed: "wss://todo.example.com/store/ws/items"},
		{name: "unsupported scheme", baseURL: "ftp://localhost", wantErr: true},
		{name: "unparsable", baseURL: "http://[::1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Act
			c, err := NewHTTP(tt.baseURL, time.Second, zap.NewNop())

			// Assert
			if tt.wantErr {
				if err == nil {
					t.Error("NewHTTP() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewHTTP() error = %v", err)
			}
			if c.feedURL != tt.wantFeed {
				t.Errorf("feedURL = %s, want %s", c.feedURL, tt.wantFeed)
			}
		})
	}
}

func TestHTTP_CreateUpdateDelete(t *testing.T) {
	// Arrange
	srv := newStoreServer(t)
	c := newTestHTTP(t, srv.url)
	ctx := context.Background()

	// Act
	created, err := c.Create(ctx, "  Buy milk ")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := c.Update(ctx, created.ID, "Buy oat milk"); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	updated, err := srv.feed.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if err := c.Delete(ctx, created.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	items, err := srv.feed.List(ctx)

	// Assert
	if created.ID == "" || created.Text != "Buy milk" {
		t.Errorf("created = %+v, want id and trimmed text", created)
	}
	if updated.Text != "Buy oat milk" || updated.UpdatedAt.IsZero() {
		t.Errorf("updated = %+v, want new text and updated_at", updated)
	}
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(items) != 0 {
		t.Errorf("List() = %+v, want empty", items)
	}
}

func TestHTTP_Create_NewestFirst(t *testing.T) {
	// Arrange
	srv := newStoreServer(t)
	c := newTestHTTP(t, srv.url)
	ctx := context.Background()

	// Act
	for _, text := range []string{"Buy milk", "Call mom"} {
		if _, err := c.Create(ctx, text); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}
	items, err := srv.feed.List(ctx)

	// Assert
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(items) != 2 || items[0].Text != "Call mom" || items[1].Text != "Buy milk" {
		t.Errorf("List() = %+v, want [Call mom, Buy milk]", items)
	}
}

func TestHTTP_StatusErrors(t *testing.T) {
	srv := newStoreServer(t)
	c := newTestHTTP(t, srv.url)
	ctx := context.Background()

	tests := []struct {
		name     string
		call     func() error
		wantCode int
		wantMsg  string
	}{
		{
			name:     "update missing",
			call:     func() error { return c.Update(ctx, "missing", "x") },
			wantCode: http.StatusNotFound,
			wantMsg:  "item not found",
		},
		{
			name:     "delete missing",
			call:     func() error { return c.Delete(ctx, "missing") },
			wantCode: http.StatusNotFound,
			wantMsg:  "item not found",
		},
		{
			name:     "create blank",
			call:     func() error { _, err := c.Create(ctx, "   "); return err },
			wantCode: http.StatusBadRequest,
			wantMsg:  model.ErrEmptyText.Error(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Act
			err := tt.call()

			// Assert
			var statusErr *StatusError
			if !errors.As(err, &statusErr) {
				t.Fatalf("error = %v, want *StatusError", err)
			}
			if statusErr.Code != tt.wantCode || statusErr.Message != tt.wantMsg {
				t.Errorf("StatusError = %d %q, want %d %q", statusErr.Code, statusErr.Message, tt.wantCode, tt.wantMsg)
			}
		})
	}
}

func TestHTTP_TransportError(t *testing.T) {
	// Arrange
	server := httptest.NewServer(http.NotFoundHandler())
	baseURL := server.URL
	server.Close()
	c := newTestHTTP(t, baseURL)

	// Act
	_, err := c.Create(context.Background(), "Buy milk")

	// Assert
	if err == nil {
		t.Fatal("Create() expected error, got nil")
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		t.Errorf("transport failure should not be a StatusError, got %v", statusErr)
	}
}

func TestStatusError_PlainBody(t *testing.T) {
	// Act
	err := statusError(http.StatusBadGateway, []byte("upstream down\n"))

	// Assert
	if err.Message != "upstream down" {
		t.Errorf("Message = %q, want %q", err.Message, "upstream down")
	}
	if empty := statusError(http.StatusBadGateway, nil); empty.Message != http.StatusText(http.StatusBadGateway) {
		t.Errorf("Message = %q, want status text", empty.Message)
	}
}

func TestHTTP_Subscribe(t *testing.T) {
	// Arrange
	srv := newStoreServer(t)
	if _, err := srv.feed.Create(context.Background(), &model.Item{Text: "Buy milk"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	c := newTestHTTP(t, srv.url)
	snapshots := make(chan []model.Item, 16)
	errs := make(chan error, 1)

	// Act
	cancel, err := c.Subscribe(context.Background(),
		func(items []model.Item) { snapshots <- items },
		func(err error) { errs <- err })
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer cancel()
	initial := waitFor(t, snapshots)
	if _, err := c.Create(context.Background(), "Call mom"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// Assert
	if len(initial) != 1 || initial[0].Text != "Buy milk" {
		t.Errorf("initial snapshot = %+v, want [Buy milk]", initial)
	}
	deadline := time.After(5 * time.Second)
	for {
		select {
		case items := <-snapshots:
			if len(items) == 2 && items[0].Text == "Call mom" {
				return
			}
		case err := <-errs:
			t.Fatalf("onError(%v) called on a healthy feed", err)
		case <-deadline:
			t.Fatal("did not receive snapshot containing Call mom")
		}
	}
}

func TestHTTP_Subscribe_ServerClose(t *testing.T) {
	// Arrange
	srv := newStoreServer(t)
	c := newTestHTTP(t, srv.url)
	snapshots := make(chan []model.Item, 16)
	errs := make(chan error, 1)
	cancel, err := c.Subscribe(context.Background(),
		func(items []model.Item) { snapshots <- items },
		func(err error) { errs <- err })
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer cancel()
	waitFor(t, snapshots)

	// Act
	srv.ws.CloseAllConnections()

	// Assert
	if err := waitFor(t, errs); err == nil {
		t.Error("onError should receive a non-nil error")
	}
}

func TestHTTP_Subscribe_CancelIsSilent(t *testing.T) {
	// Arrange
	srv := newStoreServer(t)
	c := newTestHTTP(t, srv.url)
	snapshots := make(chan []model.Item, 16)
	errs := make(chan error, 1)
	cancel, err := c.Subscribe(context.Background(),
		func(items []model.Item) { snapshots <- items },
		func(err error) { errs <- err })
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	waitFor(t, snapshots)

	// Act
	cancel()
	cancel()

	// Assert
	select {
	case err := <-errs:
		t.Errorf("onError(%v) called after cancel", err)
	case <-time.After(200 * time.Millisecond):
	}
	deadline := time.Now().Add(5 * time.Second)
	for srv.feed.Subscribers() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := srv.feed.Subscribers(); n != 0 {
		t.Errorf("Subscribers() = %d after cancel, want 0", n)
	}
}

func TestHTTP_Subscribe_DialFailure(t *testing.T) {
	// Arrange
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()
	c := newTestHTTP(t, server.URL)

	// Act
	cancel, err := c.Subscribe(context.Background(), func([]model.Item) {}, func(error) {})

	// Assert
	if err == nil {
		cancel()
		t.Fatal("Subscribe() expected error, got nil")
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusNotFound {
		t.Errorf("Subscribe() error = %v, want 404 StatusError", err)
	}
}
