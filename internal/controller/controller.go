// Package controller implements the todo list state machine that sits between
// user intents and the item store client.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/todo-sync/internal/locale"
	"github.com/vyrodovalexey/todo-sync/internal/model"
)

// Controller errors. Store failures are never returned from intents; they
// are recorded in State.LastError.
var (
	ErrBusy          = errors.New("a request is already in progress")
	ErrAlreadyActive = errors.New("controller is already active")
	ErrNotActive     = errors.New("controller is not active")
	ErrUnknownItem   = errors.New("item is not in the list")
	ErrNotEditing    = errors.New("no item is being edited")
)

// StoreClient is the item store the controller mirrors.
type StoreClient interface {
	// Subscribe delivers the full collection, newest first, once per
	// acknowledged state. onError reports that no further pushes will come.
	Subscribe(ctx context.Context, onItems func([]model.Item), onError func(error)) (func(), error)
	Create(ctx context.Context, text string) (*model.Item, error)
	Update(ctx context.Context, id, text string) error
	Delete(ctx context.Context, id string) error
}

// State is a snapshot of the controller.
type State struct {
	Items       []model.Item
	PendingText string
	// EditingID is empty or the id of an item in Items.
	EditingID      string
	IsLoading      bool
	LastError      string
	ConnectionLost bool
}

// Controller owns the list state. It is safe for concurrent use; pushes
// arrive on store client goroutines.
type Controller struct {
	client StoreClient
	msgs   *locale.Messages
	logger *zap.Logger

	mu          sync.Mutex
	state       State
	active      bool
	generation  uint64
	unsubscribe func()

	notifyMu  sync.Mutex
	listeners []func(State)
}

// New creates an inactive controller over client.
func New(client StoreClient, msgs *locale.Messages, logger *zap.Logger) *Controller {
	if msgs == nil {
		msgs = locale.Default()
	}
	return &Controller{
		client: client,
		msgs:   msgs,
		logger: logger,
		state:  State{Items: []model.Item{}},
	}
}

// OnChange registers fn to receive the state after every change. fn is
// called outside the controller lock but must not call back into intents.
func (c *Controller) OnChange(fn func(State)) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// State returns a copy of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Activate subscribes to the store. A subscribe failure leaves the controller
// active with ConnectionLost set, so Reconnect can retry.
func (c *Controller) Activate(ctx context.Context) error {
	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return ErrAlreadyActive
	}
	c.active = true
	c.generation++
	gen := c.generation
	c.mu.Unlock()

	c.logger.Info("list controller activated")
	return c.subscribe(ctx, gen)
}

// Reconnect drops the current subscription and subscribes again.
func (c *Controller) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return ErrNotActive
	}
	old := c.unsubscribe
	c.unsubscribe = nil
	c.generation++
	gen := c.generation
	c.mu.Unlock()

	if old != nil {
		old()
	}

	c.logger.Info("reconnecting to item store")
	return c.subscribe(ctx, gen)
}

// Deactivate tears down the subscription. Calling it on an inactive
// controller does nothing.
func (c *Controller) Deactivate() {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	c.active = false
	c.generation++
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	c.logger.Info("list controller deactivated")
}

func (c *Controller) subscribe(ctx context.Context, gen uint64) error {
	unsubscribe, err := c.client.Subscribe(ctx, c.pushHandler(gen), c.errorHandler(gen))

	c.mu.Lock()
	if gen != c.generation {
		// Deactivated or reconnected while subscribing.
		c.mu.Unlock()
		if unsubscribe != nil {
			unsubscribe()
		}
		return nil
	}
	if err != nil {
		c.state.ConnectionLost = true
		c.mu.Unlock()
		c.logger.Error("failed to subscribe to item store", zap.Error(err))
		c.notify()
		return fmt.Errorf("subscribe: %w", err)
	}
	c.unsubscribe = unsubscribe
	c.mu.Unlock()

	c.logger.Info("subscribed to item store")
	return nil
}

func (c *Controller) pushHandler(gen uint64) func([]model.Item) {
	return func(items []model.Item) {
		c.mu.Lock()
		if gen != c.generation {
			c.mu.Unlock()
			return
		}
		c.state.Items = model.CloneItems(items)
		c.state.ConnectionLost = false
		if c.state.EditingID != "" && !model.ContainsID(items, c.state.EditingID) {
			c.logger.Info("edited item removed by store", zap.String("item_id", c.state.EditingID))
			c.state.EditingID = ""
		}
		c.mu.Unlock()

		c.logger.Debug("item snapshot applied", zap.Int("items", len(items)))
		c.notify()
	}
}

func (c *Controller) errorHandler(gen uint64) func(error) {
	return func(err error) {
		c.mu.Lock()
		if gen != c.generation {
			c.mu.Unlock()
			return
		}
		c.state.ConnectionLost = true
		c.mu.Unlock()

		c.logger.Error("item store subscription lost", zap.Error(err))
		c.notify()
	}
}

// SetPendingText replaces the new-item input text.
func (c *Controller) SetPendingText(text string) {
	c.mu.Lock()
	if c.state.PendingText == text {
		c.mu.Unlock()
		return
	}
	c.state.PendingText = text
	c.mu.Unlock()
	c.notify()
}

// Add creates an item from the pending text. Blank text is ignored.
func (c *Controller) Add(ctx context.Context) error {
	c.mu.Lock()
	if c.state.IsLoading {
		c.mu.Unlock()
		return ErrBusy
	}
	submitted := c.state.PendingText
	text, err := model.NormalizeText(submitted)
	if err != nil {
		c.mu.Unlock()
		return rejection(err)
	}
	c.state.LastError = ""
	c.state.IsLoading = true
	c.mu.Unlock()
	c.notify()

	item, err := c.client.Create(ctx, text)

	c.mu.Lock()
	c.state.IsLoading = false
	switch {
	case err != nil:
		c.state.LastError = c.msgs.AddFailed
	case c.state.PendingText == submitted:
		// Text typed while the request was in flight is kept.
		c.state.PendingText = ""
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Error("failed to add item", zap.Error(err))
	} else {
		c.logger.Debug("item added", zap.String("item_id", item.ID))
	}
	c.notify()
	return nil
}

// BeginEdit opens the edit affordance on item id.
func (c *Controller) BeginEdit(id string) error {
	c.mu.Lock()
	if !model.ContainsID(c.state.Items, id) {
		c.mu.Unlock()
		return ErrUnknownItem
	}
	c.state.EditingID = id
	c.mu.Unlock()
	c.notify()
	return nil
}

// CancelEdit closes the edit affordance without saving.
func (c *Controller) CancelEdit() {
	c.mu.Lock()
	if c.state.EditingID == "" {
		c.mu.Unlock()
		return
	}
	c.state.EditingID = ""
	c.mu.Unlock()
	c.notify()
}

// CommitEdit saves text to the item being edited. Blank text is ignored and
// the edit stays open.
func (c *Controller) CommitEdit(ctx context.Context, text string) error {
	c.mu.Lock()
	if c.state.IsLoading {
		c.mu.Unlock()
		return ErrBusy
	}
	id := c.state.EditingID
	if id == "" {
		c.mu.Unlock()
		return ErrNotEditing
	}
	text, err := model.NormalizeText(text)
	if err != nil {
		c.mu.Unlock()
		return rejection(err)
	}
	c.state.LastError = ""
	c.state.IsLoading = true
	c.mu.Unlock()
	c.notify()

	err = c.client.Update(ctx, id, text)

	c.mu.Lock()
	c.state.IsLoading = false
	if err != nil {
		c.state.LastError = c.msgs.UpdateFailed
	} else if c.state.EditingID == id {
		c.state.EditingID = ""
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Error("failed to update item", zap.String("item_id", id), zap.Error(err))
	} else {
		c.logger.Debug("item updated", zap.String("item_id", id))
	}
	c.notify()
	return nil
}

// Delete asks the store to remove item id. The list changes with the next push.
func (c *Controller) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	if c.state.IsLoading {
		c.mu.Unlock()
		return ErrBusy
	}
	if !model.ContainsID(c.state.Items, id) {
		c.mu.Unlock()
		return ErrUnknownItem
	}
	c.state.LastError = ""
	c.state.IsLoading = true
	c.mu.Unlock()
	c.notify()

	err := c.client.Delete(ctx, id)

	c.mu.Lock()
	c.state.IsLoading = false
	if err != nil {
		c.state.LastError = c.msgs.DeleteFailed
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Error("failed to delete item", zap.String("item_id", id), zap.Error(err))
	} else {
		c.logger.Debug("item deleted", zap.String("item_id", id))
	}
	c.notify()
	return nil
}

// ClearError dismisses the last error message.
func (c *Controller) ClearError() {
	c.mu.Lock()
	if c.state.LastError == "" {
		c.mu.Unlock()
		return
	}
	c.state.LastError = ""
	c.mu.Unlock()
	c.notify()
}

// rejection maps blank text to a silent no-op. Over-long text is returned so
// callers can tell the user.
func rejection(err error) error {
	if errors.Is(err, model.ErrEmptyText) {
		return nil
	}
	return err
}

func (c *Controller) snapshotLocked() State {
	s := c.state
	s.Items = model.CloneItems(c.state.Items)
	return s
}

// notify delivers the latest state to every listener. Holding notifyMu while
// taking the snapshot keeps deliveries in state order.
func (c *Controller) notify() {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	if len(c.listeners) == 0 {
		return
	}

	c.mu.Lock()
	s := c.snapshotLocked()
	c.mu.Unlock()

	for _, fn := range c.listeners {
		fn(s)
	}
}
