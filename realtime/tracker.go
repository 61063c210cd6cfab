package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"linkboard/model"
	"linkboard/store"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

// State of a tracker's subscription lifecycle.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateSubscribed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	default:
		return "idle"
	}
}

var ErrNoUser = errors.New("tracker requires a user ID")

// Tracker owns the reconciliation cache for one user: the link list with
// derived click counts, seeded by a bulk load and kept current by ±1 deltas
// from the click-notification stream. The stream carries events for all
// users; the tracker filters by its tracked link-ID set and drops
// everything else. All reads and writes of the cache go through the
// tracker; nothing mutates it directly.
type Tracker struct {
	rdb     *redis.Client
	store   *store.Store
	channel string
	onError func(error)

	mu          sync.Mutex
	state       State
	userID      string
	generation  uint64 // bumped on every user switch / teardown; stale loads and deltas check it
	entries     []*model.LinkWithClicks
	tracked     map[string]*model.LinkWithClicks
	pubsub      *redis.PubSub
	initialized bool
	lastErr     error
}

// NewTracker creates a tracker consuming notifications from channel.
// onError may be nil; when set it receives stream-level errors so the
// caller can surface them as UI state.
func NewTracker(rdb *redis.Client, st *store.Store, channel string, onError func(error)) *Tracker {
	return &Tracker{
		rdb:     rdb,
		store:   st,
		channel: channel,
		onError: onError,
		tracked: make(map[string]*model.LinkWithClicks),
	}
}

// Start establishes the live subscription for userID. Calling it for the
// already-subscribed user is a no-op; calling it for a different user tears
// down the prior subscription first, so there is at most one live
// subscription per tracker at any time. A failed subscription attempt
// leaves the tracker Idle; retry is the caller's responsibility.
func (t *Tracker) Start(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrNoUser
	}

	t.mu.Lock()
	if t.userID == userID && t.state == StateSubscribed {
		t.mu.Unlock()
		return nil
	}
	t.teardownLocked()
	if t.userID != userID {
		// User switch: the old user's cache must never leak into the new
		// user's view.
		t.entries = nil
		t.tracked = make(map[string]*model.LinkWithClicks)
		t.initialized = false
	}
	t.userID = userID
	t.state = StateConnecting
	gen := t.generation
	t.mu.Unlock()

	pubsub := t.rdb.Subscribe(ctx, t.channel)
	// Wait for the subscription acknowledgment before reporting Subscribed
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		t.mu.Lock()
		if gen == t.generation {
			t.state = StateIdle
		}
		t.mu.Unlock()
		t.reportError(fmt.Errorf("subscribing to %s: %w", t.channel, err))
		return fmt.Errorf("subscribing to %s: %w", t.channel, err)
	}

	t.mu.Lock()
	if gen != t.generation {
		// Torn down (or switched again) while connecting; abandon quietly.
		t.mu.Unlock()
		pubsub.Close()
		return nil
	}
	t.pubsub = pubsub
	t.state = StateSubscribed
	t.lastErr = nil
	t.mu.Unlock()

	log.Info().
		Str("user_id", userID).
		Str("channel", t.channel).
		Msg("Click stream subscribed")

	go t.consume(pubsub, gen)
	return nil
}

// consume drains the subscription until teardown closes it. Malformed
// payloads are reported but do not leave the Subscribed state.
func (t *Tracker) consume(pubsub *redis.PubSub, gen uint64) {
	for msg := range pubsub.Channel() {
		var n model.ClickNotification
		if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
			t.reportError(fmt.Errorf("decoding click notification: %w", err))
			continue
		}
		switch n.Kind {
		case model.ClickInserted:
			t.applyDelta(gen, n.LinkID, +1)
		case model.ClickDeleted:
			t.applyDelta(gen, n.LinkID, -1)
		default:
			t.reportError(fmt.Errorf("unknown click notification kind %q", n.Kind))
		}
	}
}

// applyDelta mutates the cached count for a tracked link. Notifications
// for untracked links are dropped; decrements clamp at zero, which also
// absorbs a delete arriving before its insert has been processed.
func (t *Tracker) applyDelta(gen uint64, linkID string, delta int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if gen != t.generation {
		return // subscription superseded
	}
	entry, ok := t.tracked[linkID]
	if !ok {
		return
	}
	entry.Clicks += delta
	if entry.Clicks < 0 {
		entry.Clicks = 0
	}
}

// FetchLinks performs the initial bulk load. It loads at most once per
// user session: once the cache holds data for this user, it returns
// immediately. Use ForceRefresh after writes.
func (t *Tracker) FetchLinks(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrNoUser
	}
	t.mu.Lock()
	if t.initialized && len(t.entries) > 0 && t.userID == userID {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()
	return t.refresh(ctx, userID)
}

// ForceRefresh bypasses the initial-load guard and re-derives every count
// from a fresh batch aggregate query. This is the drift-correction and
// post-write consistency primitive: the live stream alone is not trusted
// for causally-immediate consistency after a create or update.
func (t *Tracker) ForceRefresh(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrNoUser
	}
	return t.refresh(ctx, userID)
}

func (t *Tracker) refresh(ctx context.Context, userID string) error {
	t.mu.Lock()
	gen := t.generation
	t.mu.Unlock()

	links, err := t.store.GetLinksForUser(ctx, userID)
	if err != nil {
		t.reportError(err)
		return err
	}
	ids := make([]string, len(links))
	for i, l := range links {
		ids[i] = l.ID
	}
	counts, err := t.store.GetClickCountsForLinks(ctx, ids)
	if err != nil {
		t.reportError(err)
		return err
	}

	entries := make([]*model.LinkWithClicks, len(links))
	tracked := make(map[string]*model.LinkWithClicks, len(links))
	for i, l := range links {
		entry := &model.LinkWithClicks{Link: l, Clicks: counts[l.ID]}
		entries[i] = entry
		tracked[l.ID] = entry
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	// Identity check: a load that raced a user switch or teardown must not
	// be applied to the newer state.
	if gen != t.generation || (t.userID != "" && t.userID != userID) {
		log.Debug().Str("user_id", userID).Msg("Discarding stale link load")
		return nil
	}
	if t.userID == "" {
		t.userID = userID
	}
	t.entries = entries
	t.tracked = tracked
	t.initialized = true
	t.lastErr = nil
	return nil
}

// Links returns a snapshot of the cached link list with live counts,
// newest link first.
func (t *Tracker) Links() []model.LinkWithClicks {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]model.LinkWithClicks, len(t.entries))
	for i, e := range t.entries {
		out[i] = *e
	}
	return out
}

// Subscribed reports whether the live stream is currently attached; the
// dashboard renders this as the "live" indicator.
func (t *Tracker) Subscribed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == StateSubscribed
}

// State returns the current lifecycle state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Err returns the last stream or load error, if any. Errors are state, not
// panics: loaded data stays served while Err is non-nil.
func (t *Tracker) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastErr
}

// Teardown releases the subscription. Safe to call repeatedly and while
// not subscribed.
func (t *Tracker) Teardown() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.teardownLocked()
}

func (t *Tracker) teardownLocked() {
	if t.pubsub != nil {
		t.pubsub.Close()
		t.pubsub = nil
	}
	t.state = StateIdle
	t.generation++
}

func (t *Tracker) reportError(err error) {
	t.mu.Lock()
	t.lastErr = err
	t.mu.Unlock()

	log.Warn().Err(err).Str("channel", t.channel).Msg("Click stream error")
	if t.onError != nil {
		t.onError(err)
	}
}
