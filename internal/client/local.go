package client

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/todo-sync/internal/model"
	"github.com/vyrodovalexey/todo-sync/internal/store"
)

// Local keeps items in process memory. Nothing survives Close.
type Local struct {
	feed *store.Feed
}

// NewLocal creates an empty in-process item store client.
func NewLocal(logger *zap.Logger) *Local {
	return &Local{feed: store.NewFeed(store.NewMemoryStore(), logger)}
}

// Subscribe delivers the current collection before returning, then one
// collection per change on the goroutine that made it. onError is never
// called.
func (l *Local) Subscribe(
	ctx context.Context,
	onItems func([]model.Item),
	_ func(error),
) (func(), error) {
	return l.feed.Subscribe(ctx, onItems)
}

// Create adds an item with the given text.
func (l *Local) Create(ctx context.Context, text string) (*model.Item, error) {
	text, err := model.NormalizeText(text)
	if err != nil {
		return nil, fmt.Errorf("create item: %w", err)
	}
	return l.feed.Create(ctx, &model.Item{Text: text})
}

// Update replaces the text of item id.
func (l *Local) Update(ctx context.Context, id, text string) error {
	text, err := model.NormalizeText(text)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	_, err = l.feed.Update(ctx, id, &model.Item{Text: text})
	return err
}

// Delete removes item id.
func (l *Local) Delete(ctx context.Context, id string) error {
	return l.feed.Delete(ctx, id)
}

// Close drops all items and subscribers.
func (l *Local) Close() error {
	return l.feed.Close()
}
