package realtime

import (
	"context"
	"sync"

	"linkboard/store"

	"github.com/go-redis/redis/v8"
)

// Hub hands out one tracker per user, guaranteeing at most one live
// subscription per user across the whole process.
type Hub struct {
	rdb     *redis.Client
	store   *store.Store
	channel string

	mu       sync.Mutex
	trackers map[string]*Tracker
}

// NewHub creates an empty tracker registry.
func NewHub(rdb *redis.Client, st *store.Store, channel string) *Hub {
	return &Hub{
		rdb:      rdb,
		store:    st,
		channel:  channel,
		trackers: make(map[string]*Tracker),
	}
}

// ForUser returns the user's tracker, creating, subscribing and seeding it
// on first use. Start and FetchLinks are both idempotent for an
// already-running tracker, so this is cheap on the hot path.
func (h *Hub) ForUser(ctx context.Context, userID string) (*Tracker, error) {
	if userID == "" {
		return nil, ErrNoUser
	}

	h.mu.Lock()
	tracker, ok := h.trackers[userID]
	if !ok {
		tracker = NewTracker(h.rdb, h.store, h.channel, nil)
		h.trackers[userID] = tracker
	}
	h.mu.Unlock()

	if err := tracker.Start(ctx, userID); err != nil {
		// Subscription failure is reported but does not block the batch
		// path; the cache still loads and a later call can retry the
		// stream.
		if loadErr := tracker.FetchLinks(ctx, userID); loadErr != nil {
			return nil, loadErr
		}
		return tracker, nil
	}
	if err := tracker.FetchLinks(ctx, userID); err != nil {
		return nil, err
	}
	return tracker, nil
}

// Close tears down every tracker. Used on shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, tracker := range h.trackers {
		tracker.Teardown()
	}
	h.trackers = make(map[string]*Tracker)
}
