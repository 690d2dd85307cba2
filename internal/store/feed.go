package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/todo-sync/internal/model"
)

// Prometheus metrics.
var (
	storeOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "item_store_operations_total",
			Help: "Total number of item store mutations by operation and result",
		},
		[]string{"operation", "result"},
	)

	feedSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "item_feed_subscribers",
			Help: "Number of active item feed subscribers",
		},
	)
)

// SnapshotFunc receives the full item collection, newest first.
type SnapshotFunc func(items []model.Item)

// Feed wraps a Store and pushes the whole collection to every subscriber
// after each successful mutation. Mutations are serialised so snapshots are
// delivered in commit order.
type Feed struct {
	Store

	writeMu sync.Mutex
	subsMu  sync.Mutex
	subs    map[uint64]SnapshotFunc
	nextID  uint64
	logger  *zap.Logger
}

// NewFeed creates a Feed over s.
func NewFeed(s Store, logger *zap.Logger) *Feed {
	return &Feed{
		Store:  s,
		subs:   make(map[uint64]SnapshotFunc),
		logger: logger,
	}
}

// Subscribe delivers the current collection to fn, then one collection per
// committed mutation until the returned cancel func is called. fn runs on the
// mutating goroutine and must not block.
func (f *Feed) Subscribe(ctx context.Context, fn SnapshotFunc) (func(), error) {
	if fn == nil {
		return nil, fmt.Errorf("subscribe: nil callback")
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	items, err := f.Store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	f.subsMu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = fn
	f.subsMu.Unlock()
	feedSubscribers.Inc()

	fn(items)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.subsMu.Lock()
			_, ok := f.subs[id]
			delete(f.subs, id)
			f.subsMu.Unlock()
			// Close already dropped and uncounted it.
			if ok {
				feedSubscribers.Dec()
			}
		})
	}

	return cancel, nil
}

// Subscribers returns the number of active subscriptions.
func (f *Feed) Subscribers() int {
	f.subsMu.Lock()
	defer f.subsMu.Unlock()
	return len(f.subs)
}

// Create adds an item and publishes the new collection.
func (f *Feed) Create(ctx context.Context, item *model.Item) (*model.Item, error) {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	created, err := f.Store.Create(ctx, item)
	if !observe("create", err) {
		return nil, err
	}

	f.publish(ctx)
	return created, nil
}

// Update changes an item and publishes the new collection.
func (f *Feed) Update(ctx context.Context, id string, item *model.Item) (*model.Item, error) {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	updated, err := f.Store.Update(ctx, id, item)
	if !observe("update", err) {
		return nil, err
	}

	f.publish(ctx)
	return updated, nil
}

// Delete removes an item and publishes the new collection.
func (f *Feed) Delete(ctx context.Context, id string) error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	err := f.Store.Delete(ctx, id)
	if !observe("delete", err) {
		return err
	}

	f.publish(ctx)
	return nil
}

// Close drops every subscriber and closes the wrapped store.
func (f *Feed) Close() error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	f.subsMu.Lock()
	feedSubscribers.Sub(float64(len(f.subs)))
	f.subs = make(map[uint64]SnapshotFunc)
	f.subsMu.Unlock()

	return f.Store.Close()
}

// publish must be called with writeMu held.
func (f *Feed) publish(ctx context.Context) {
	// The mutation is already committed; a cancelled request context must not
	// stop subscribers from seeing it.
	items, err := f.Store.List(context.WithoutCancel(ctx))
	if err != nil {
		f.logger.Error("failed to list items for feed", zap.Error(err))
		return
	}

	f.subsMu.Lock()
	subs := make([]SnapshotFunc, 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	f.subsMu.Unlock()

	f.logger.Debug("publishing snapshot",
		zap.Int("items", len(items)),
		zap.Int("subscribers", len(subs)),
	)

	for _, fn := range subs {
		fn(model.CloneItems(items))
	}
}

func observe(operation string, err error) bool {
	result := "success"
	if err != nil {
		result = "error"
	}
	storeOperationsTotal.WithLabelValues(operation, result).Inc()
	return err == nil
}
