package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/todo-sync/internal/model"
	"github.com/vyrodovalexey/todo-sync/internal/store"
)

// mockStore implements store.Store for testing
type mockStore struct {
	items     map[string]model.Item
	listErr   error
	getErr    error
	createErr error
	updateErr error
	deleteErr error
	pingErr   error
	created   []string
}

func newMockStore() *mockStore {
	return &mockStore{
		items: make(map[string]model.Item),
	}
}

func (m *mockStore) List(_ context.Context) ([]model.Item, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	items := make([]model.Item, 0, len(m.items))
	for _, item := range m.items {
		items = append(items, item)
	}
	return items, nil
}

func (m *mockStore) Get(_ context.Context, id string) (*model.Item, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	item, exists := m.items[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &item, nil
}

func (m *mockStore) Create(_ context.Context, item *model.Item) (*model.Item, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	newItem := *item
	newItem.ID = "generated-id"
	m.items[newItem.ID] = newItem
	m.created = append(m.created, newItem.Text)
	return &newItem, nil
}

func (m *mockStore) Update(_ context.Context, id string, item *model.Item) (*model.Item, error) {
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	if _, exists := m.items[id]; !exists {
		return nil, store.ErrNotFound
	}
	updatedItem := *item
	updatedItem.ID = id
	m.items[id] = updatedItem
	return &updatedItem, nil
}

func (m *mockStore) Delete(_ context.Context, id string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, exists := m.items[id]; !exists {
		return store.ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *mockStore) Ping(_ context.Context) error { return m.pingErr }

func (m *mockStore) Close() error { return nil }

// serve routes req through a router so mux.Vars is populated.
func serve(h *RESTHandler, req *http.Request) *httptest.ResponseRecorder {
	router := mux.NewRouter()
	h.RegisterRoutes(router)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestNewRESTHandler(t *testing.T) {
	// Act
	handler := NewRESTHandler(newMockStore(), zap.NewNop())

	// Assert
	if handler == nil {
		t.Fatal("NewRESTHandler() returned nil")
	}
	if handler.store == nil {
		t.Error("store should not be nil")
	}
	if handler.logger == nil {
		t.Error("logger should not be nil")
	}
}

func TestRESTHandler_HealthCheck(t *testing.T) {
	// Arrange
	handler := NewRESTHandler(newMockStore(), zap.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/health", nil)

	// Act
	rr := serve(handler, req)

	// Assert
	if rr.Code != http.StatusOK {
		t.Errorf("HealthCheck() status = %d, want %d", rr.Code, http.StatusOK)
	}

	var response model.APIResponse[HealthResponse]
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response.Data.Status != "healthy" {
		t.Errorf("status = %s, want healthy", response.Data.Status)
	}
	if response.Data.Version != Version {
		t.Errorf("version = %s, want %s", response.Data.Version, Version)
	}
}

func TestRESTHandler_ReadyCheck(t *testing.T) {
	tests := []struct {
		name       string
		pingErr    error
		wantStatus int
		wantState  string
	}{
		{name: "store reachable", wantStatus: http.StatusOK, wantState: "ready"},
		{name: "store down", pingErr: errors.New("connection refused"), wantStatus: http.StatusServiceUnavailable, wantState: "not ready"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			ms := newMockStore()
			ms.pingErr = tt.pingErr
			handler := NewRESTHandler(ms, zap.NewNop())

			// Act
			rr := serve(handler, httptest.NewRequest(http.MethodGet, "/ready", nil))

			// Assert
			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			var response model.APIResponse[ReadyResponse]
			if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if response.Data.Status != tt.wantState {
				t.Errorf("ready status = %s, want %s", response.Data.Status, tt.wantState)
			}
		})
	}
}

func TestRESTHandler_ListItems(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(*mockStore)
		wantStatus int
		wantCount  int
	}{
		{
			name:       "empty list",
			setup:      func(_ *mockStore) {},
			wantStatus: http.StatusOK,
			wantCount:  0,
		},
		{
			name: "multiple items",
			setup: func(m *mockStore) {
				m.items["1"] = model.Item{ID: "1", Text: "Buy milk"}
				m.items["2"] = model.Item{ID: "2", Text: "Call mom"}
			},
			wantStatus: http.StatusOK,
			wantCount:  2,
		},
		{
			name: "store error",
			setup: func(m *mockStore) {
				m.listErr = errors.New("database error")
			},
			wantStatus: http.StatusInternalServerError,
			wantCount:  -1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			ms := newMockStore()
			tt.setup(ms)
			handler := NewRESTHandler(ms, zap.NewNop())

			// Act
			rr := serve(handler, httptest.NewRequest(http.MethodGet, "/api/v1/items", nil))

			// Assert
			if rr.Code != tt.wantStatus {
				t.Errorf("ListItems() status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if tt.wantCount < 0 {
				return
			}
			var response model.APIResponse[[]model.Item]
			if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if len(response.Data) != tt.wantCount {
				t.Errorf("ListItems() count = %d, want %d", len(response.Data), tt.wantCount)
			}
		})
	}
}

func TestRESTHandler_GetItem(t *testing.T) {
	tests := []struct {
		name       string
		itemID     string
		getErr     error
		wantStatus int
	}{
		{name: "existing item", itemID: "123", wantStatus: http.StatusOK},
		{name: "missing item", itemID: "nope", wantStatus: http.StatusNotFound},
		{name: "invalid id", itemID: "123", getErr: store.ErrInvalidID, wantStatus: http.StatusBadRequest},
		{name: "closed store", itemID: "123", getErr: store.ErrClosed, wantStatus: http.StatusServiceUnavailable},
		{name: "unexpected error", itemID: "123", getErr: errors.New("disk full"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			ms := newMockStore()
			ms.items["123"] = model.Item{ID: "123", Text: "Buy milk"}
			ms.getErr = tt.getErr
			handler := NewRESTHandler(ms, zap.NewNop())

			// Act
			rr := serve(handler, httptest.NewRequest(http.MethodGet, "/api/v1/items/"+tt.itemID, nil))

			// Assert
			if rr.Code != tt.wantStatus {
				t.Errorf("GetItem() status = %d, want %d", rr.Code, tt.wantStatus)
			}
		})
	}
}

func TestRESTHandler_CreateItem(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		createErr  error
		wantStatus int
		wantText   string
	}{
		{name: "valid", body: `{"text":"Buy milk"}`, wantStatus: http.StatusCreated, wantText: "Buy milk"},
		{name: "text is trimmed", body: `{"text":"  Buy milk  "}`, wantStatus: http.StatusCreated, wantText: "Buy milk"},
		{name: "empty text", body: `{"text":""}`, wantStatus: http.StatusBadRequest},
		{name: "whitespace text", body: `{"text":"   "}`, wantStatus: http.StatusBadRequest},
		{name: "too long", body: `{"text":"` + strings.Repeat("a", model.MaxTextLength+1) + `"}`, wantStatus: http.StatusBadRequest},
		{name: "invalid json", body: `{"text":`, wantStatus: http.StatusBadRequest},
		{name: "store error", body: `{"text":"Buy milk"}`, createErr: errors.New("db down"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			ms := newMockStore()
			ms.createErr = tt.createErr
			handler := NewRESTHandler(ms, zap.NewNop())
			req := httptest.NewRequest(http.MethodPost, "/api/v1/items", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")

			// Act
			rr := serve(handler, req)

			// Assert
			if rr.Code != tt.wantStatus {
				t.Fatalf("CreateItem() status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if tt.wantText == "" {
				if len(ms.created) != 0 {
					t.Errorf("store should not be called, got %v", ms.created)
				}
				return
			}
			var response model.APIResponse[model.Item]
			if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if response.Data.Text != tt.wantText {
				t.Errorf("Text = %q, want %q", response.Data.Text, tt.wantText)
			}
		})
	}
}

func TestRESTHandler_UpdateItem(t *testing.T) {
	tests := []struct {
		name       string
		itemID     string
		body       string
		wantStatus int
	}{
		{name: "valid", itemID: "123", body: `{"text":"Buy oat milk"}`, wantStatus: http.StatusOK},
		{name: "missing", itemID: "nope", body: `{"text":"Buy oat milk"}`, wantStatus: http.StatusNotFound},
		{name: "blank text", itemID: "123", body: `{"text":" "}`, wantStatus: http.StatusBadRequest},
		{name: "invalid json", itemID: "123", body: `nope`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			ms := newMockStore()
			ms.items["123"] = model.Item{ID: "123", Text: "Buy milk"}
			handler := NewRESTHandler(ms, zap.NewNop())
			req := httptest.NewRequest(http.MethodPut, "/api/v1/items/"+tt.itemID, bytes.NewBufferString(tt.body))

			// Act
			rr := serve(handler, req)

			// Assert
			if rr.Code != tt.wantStatus {
				t.Errorf("UpdateItem() status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK && ms.items["123"].Text != "Buy oat milk" {
				t.Errorf("stored text = %q, want Buy oat milk", ms.items["123"].Text)
			}
			if tt.wantStatus != http.StatusOK && ms.items["123"].Text != "Buy milk" {
				t.Errorf("stored text changed to %q on failure", ms.items["123"].Text)
			}
		})
	}
}

func TestRESTHandler_DeleteItem(t *testing.T) {
	tests := []struct {
		name       string
		itemID     string
		deleteErr  error
		wantStatus int
	}{
		{name: "existing", itemID: "123", wantStatus: http.StatusNoContent},
		{name: "missing", itemID: "nope", wantStatus: http.StatusNotFound},
		{name: "store error", itemID: "123", deleteErr: errors.New("db down"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			ms := newMockStore()
			ms.items["123"] = model.Item{ID: "123", Text: "Buy milk"}
			ms.deleteErr = tt.deleteErr
			handler := NewRESTHandler(ms, zap.NewNop())

			// Act
			rr := serve(handler, httptest.NewRequest(http.MethodDelete, "/api/v1/items/"+tt.itemID, nil))

			// Assert
			if rr.Code != tt.wantStatus {
				t.Errorf("DeleteItem() status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusNoContent && rr.Body.Len() != 0 {
				t.Errorf("DeleteItem() body = %q, want empty", rr.Body.String())
			}
		})
	}
}

func TestRESTHandler_ErrorBody(t *testing.T) {
	// Arrange
	handler := NewRESTHandler(newMockStore(), zap.NewNop())

	// Act
	rr := serve(handler, httptest.NewRequest(http.MethodGet, "/api/v1/items/nope", nil))

	// Assert
	var response model.ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response.Code != http.StatusNotFound {
		t.Errorf("Code = %d, want %d", response.Code, http.StatusNotFound)
	}
	if response.Message != "item not found" {
		t.Errorf("Message = %q, want item not found", response.Message)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %s, want application/json", ct)
	}
}
