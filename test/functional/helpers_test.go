//go:build functional

// Package functional runs todo clients against a real item store server.
package functional

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/todo-sync/internal/client"
	"github.com/vyrodovalexey/todo-sync/internal/config"
	"github.com/vyrodovalexey/todo-sync/internal/controller"
	"github.com/vyrodovalexey/todo-sync/internal/locale"
	"github.com/vyrodovalexey/todo-sync/internal/server"
	"github.com/vyrodovalexey/todo-sync/internal/store"
)

// Environment variable names for test configuration.
const (
	EnvTestStoreDriver = "TEST_STORE_DRIVER"
	EnvTestStoreDSN    = "TEST_STORE_DSN"
)

// Default test configuration values.
const (
	DefaultTestTimeout     = 10 * time.Second
	DefaultRequestTimeout  = 5 * time.Second
	DefaultShutdownTimeout = 5 * time.Second
)

// TestServer is an item store server listening on a loopback port.
type TestServer struct {
	Server  *server.Server
	Feed    *store.Feed
	Addr    string
	BaseURL string

	driver string
	dsn    string
	t      *testing.T
	done   chan struct{}
}

// storeTarget returns the backend to test against: TEST_STORE_DRIVER and
// TEST_STORE_DSN when set, otherwise a SQLite file in a temp dir. An external
// database must start empty for every test.
func storeTarget(t *testing.T) (driver, dsn string) {
	t.Helper()

	if driver := os.Getenv(EnvTestStoreDriver); driver != "" {
		return driver, os.Getenv(EnvTestStoreDSN)
	}
	return "sqlite", filepath.Join(t.TempDir(), "items.db")
}

// StartTestServer opens the store and serves on a free port.
func StartTestServer(t *testing.T) *TestServer {
	t.Helper()

	driver, dsn := storeTarget(t)
	ts := &TestServer{driver: driver, dsn: dsn, t: t}
	ts.start("127.0.0.1:0")
	t.Cleanup(ts.Stop)
	return ts
}

func (ts *TestServer) start(addr string) {
	ts.t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), DefaultTestTimeout)
	defer cancel()

	backend, err := store.Open(ctx, ts.driver, ts.dsn)
	if err != nil {
		ts.t.Fatalf("Failed to open %s store: %v", ts.driver, err)
	}
	ts.Feed = store.NewFeed(backend, zap.NewNop())

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		ts.t.Fatalf("Failed to listen on %s: %v", addr, err)
	}
	ts.Addr = listener.Addr().String()
	ts.BaseURL = "http://" + ts.Addr

	cfg := &config.Config{
		ServerPort:      listener.Addr().(*net.TCPAddr).Port,
		LogLevel:        "error",
		ShutdownTimeout: DefaultShutdownTimeout,
		StoreDriver:     ts.driver,
		StoreDSN:        ts.dsn,
	}
	ts.Server = server.New(cfg, zap.NewNop(), ts.Feed)

	ts.done = make(chan struct{})
	go func() {
		defer close(ts.done)
		if err := ts.Server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			ts.t.Logf("Server error: %v", err)
		}
	}()
}

// Stop shuts the server down and closes its store.
func (ts *TestServer) Stop() {
	if ts.done == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()

	if err := ts.Server.Shutdown(ctx); err != nil {
		ts.t.Logf("Server shutdown error: %v", err)
	}
	<-ts.done
	ts.done = nil
}

// Restart stops the server and serves the same store again on the same address.
func (ts *TestServer) Restart() {
	ts.t.Helper()

	addr := ts.Addr
	ts.Stop()
	ts.start(addr)
}

// NewController returns an activated controller talking to ts over HTTP.
func NewController(t *testing.T, ts *TestServer) *controller.Controller {
	t.Helper()

	c, err := client.NewHTTP(ts.BaseURL, DefaultRequestTimeout, zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	ctrl := controller.New(c, locale.Default(), zap.NewNop())
	t.Cleanup(func() {
		ctrl.Deactivate()
		_ = c.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), DefaultTestTimeout)
	defer cancel()
	if err := ctrl.Activate(ctx); err != nil {
		t.Fatalf("Failed to activate controller: %v", err)
	}
	return ctrl
}

// WaitForState polls ctrl until cond holds.
func WaitForState(t *testing.T, ctrl *controller.Controller, what string, cond func(controller.State) bool) controller.State {
	t.Helper()

	deadline := time.Now().Add(DefaultTestTimeout)
	for {
		state := ctrl.State()
		if cond(state) {
			return state
		}
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s; last state: %+v", what, state)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

// itemTexts returns the texts of s.Items in order.
func itemTexts(s controller.State) []string {
	texts := make([]string, 0, len(s.Items))
	for _, item := range s.Items {
		texts = append(texts, item.Text)
	}
	return texts
}
