package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"linkboard/model"
	"linkboard/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func setupTracker(t *testing.T) (*Tracker, *store.Store, *redis.Client) {
	t.Helper()

	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(s.Close)

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { client.Close() })

	st := store.New(client, "clicks.events")
	tracker := NewTracker(client, st, st.EventsChannel(), nil)
	t.Cleanup(tracker.Teardown)

	return tracker, st, client
}

// waitForCount polls the tracker until the link's cached count matches want
// or the deadline passes. Stream delivery is asynchronous.
func waitForCount(t *testing.T, tracker *Tracker, linkID string, want int64) {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		for _, entry := range tracker.Links() {
			if entry.ID == linkID && entry.Clicks == want {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}

	for _, entry := range tracker.Links() {
		if entry.ID == linkID {
			t.Fatalf("Link %s: count is %d, want %d", linkID, entry.Clicks, want)
		}
	}
	t.Fatalf("Link %s not tracked", linkID)
}

func TestTracker_RequiresUser(t *testing.T) {
	tracker, _, _ := setupTracker(t)
	ctx := context.Background()

	if err := tracker.Start(ctx, ""); err != ErrNoUser {
		t.Errorf("Start(\"\") = %v, want ErrNoUser", err)
	}
	if err := tracker.FetchLinks(ctx, ""); err != ErrNoUser {
		t.Errorf("FetchLinks(\"\") = %v, want ErrNoUser", err)
	}
	if err := tracker.ForceRefresh(ctx, ""); err != ErrNoUser {
		t.Errorf("ForceRefresh(\"\") = %v, want ErrNoUser", err)
	}
}

func TestTracker_Lifecycle(t *testing.T) {
	tracker, _, _ := setupTracker(t)
	ctx := context.Background()

	if tracker.State() != StateIdle {
		t.Errorf("New tracker state = %v, want idle", tracker.State())
	}

	if err := tracker.Start(ctx, "user-1"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if tracker.State() != StateSubscribed {
		t.Errorf("State after Start = %v, want subscribed", tracker.State())
	}
	if !tracker.Subscribed() {
		t.Error("Subscribed() = false after successful Start")
	}

	// Starting again for the same user is a no-op
	if err := tracker.Start(ctx, "user-1"); err != nil {
		t.Errorf("Repeated Start() error = %v", err)
	}

	tracker.Teardown()
	if tracker.State() != StateIdle {
		t.Errorf("State after Teardown = %v, want idle", tracker.State())
	}
	// Teardown is idempotent
	tracker.Teardown()
}

func TestTracker_StreamDeltas(t *testing.T) {
	tracker, st, _ := setupTracker(t)
	ctx := context.Background()

	link, err := st.CreateLink(ctx, model.Link{UserID: "user-1", DestinationURL: "https://example.com", Slug: "tracked"})
	if err != nil {
		t.Fatalf("CreateLink() error = %v", err)
	}

	if err := tracker.Start(ctx, "user-1"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := tracker.FetchLinks(ctx, "user-1"); err != nil {
		t.Fatalf("FetchLinks() error = %v", err)
	}
	waitForCount(t, tracker, link.ID, 0)

	// Inserts increment through the stream, no refresh involved
	first, err := st.InsertClickEvent(ctx, link.ID, time.Now())
	if err != nil {
		t.Fatalf("InsertClickEvent() error = %v", err)
	}
	waitForCount(t, tracker, link.ID, 1)

	if _, err := st.InsertClickEvent(ctx, link.ID, time.Now()); err != nil {
		t.Fatalf("InsertClickEvent() error = %v", err)
	}
	waitForCount(t, tracker, link.ID, 2)

	// Deletes decrement
	if err := st.DeleteClickEvent(ctx, first.ID); err != nil {
		t.Fatalf("DeleteClickEvent() error = %v", err)
	}
	waitForCount(t, tracker, link.ID, 1)
}

func TestTracker_DecrementClampsAtZero(t *testing.T) {
	tracker, st, client := setupTracker(t)
	ctx := context.Background()

	link, err := st.CreateLink(ctx, model.Link{UserID: "user-1", DestinationURL: "https://example.com", Slug: "clamped"})
	if err != nil {
		t.Fatalf("CreateLink() error = %v", err)
	}

	if err := tracker.Start(ctx, "user-1"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := tracker.FetchLinks(ctx, "user-1"); err != nil {
		t.Fatalf("FetchLinks() error = %v", err)
	}

	// A delete notification with no matching insert (count already 0)
	publishNotification(t, client, st.EventsChannel(), model.ClickNotification{
		Kind:    model.ClickDeleted,
		ClickID: "phantom",
		LinkID:  link.ID,
	})

	// Then a real insert; the phantom delete must not have pushed the
	// count negative.
	if _, err := st.InsertClickEvent(ctx, link.ID, time.Now()); err != nil {
		t.Fatalf("InsertClickEvent() error = %v", err)
	}
	waitForCount(t, tracker, link.ID, 1)
}

func TestTracker_UntrackedLinkIgnored(t *testing.T) {
	tracker, st, _ := setupTracker(t)
	ctx := context.Background()

	mine, err := st.CreateLink(ctx, model.Link{UserID: "user-1", DestinationURL: "https://example.com", Slug: "mine"})
	if err != nil {
		t.Fatalf("CreateLink() error = %v", err)
	}
	other, err := st.CreateLink(ctx, model.Link{UserID: "user-2", DestinationURL: "https://example.com/other", Slug: "other"})
	if err != nil {
		t.Fatalf("CreateLink() error = %v", err)
	}

	if err := tracker.Start(ctx, "user-1"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := tracker.FetchLinks(ctx, "user-1"); err != nil {
		t.Fatalf("FetchLinks() error = %v", err)
	}

	// Another user's click flows through the shared stream but must not
	// appear in this tracker's cache.
	if _, err := st.InsertClickEvent(ctx, other.ID, time.Now()); err != nil {
		t.Fatalf("InsertClickEvent() error = %v", err)
	}
	if _, err := st.InsertClickEvent(ctx, mine.ID, time.Now()); err != nil {
		t.Fatalf("InsertClickEvent() error = %v", err)
	}
	waitForCount(t, tracker, mine.ID, 1)

	for _, entry := range tracker.Links() {
		if entry.ID == other.ID {
			t.Error("Another user's link leaked into the cache")
		}
	}
}

func TestTracker_ForceRefreshNoDuplication(t *testing.T) {
	tracker, st, _ := setupTracker(t)
	ctx := context.Background()

	if err := tracker.Start(ctx, "user-1"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := tracker.FetchLinks(ctx, "user-1"); err != nil {
		t.Fatalf("FetchLinks() error = %v", err)
	}

	link, err := st.CreateLink(ctx, model.Link{UserID: "user-1", DestinationURL: "https://example.com", Slug: "fresh"})
	if err != nil {
		t.Fatalf("CreateLink() error = %v", err)
	}
	if err := tracker.ForceRefresh(ctx, "user-1"); err != nil {
		t.Fatalf("ForceRefresh() error = %v", err)
	}

	links := tracker.Links()
	seen := 0
	for _, entry := range links {
		if entry.ID == link.ID {
			seen++
		}
	}
	if seen != 1 {
		t.Errorf("Link appears %d times after refresh, want exactly 1", seen)
	}

	// Refresh again; still exactly one entry
	if err := tracker.ForceRefresh(ctx, "user-1"); err != nil {
		t.Fatalf("ForceRefresh() error = %v", err)
	}
	if got := len(tracker.Links()); got != len(links) {
		t.Errorf("Entry count changed across refreshes: %d -> %d", len(links), got)
	}
}

func TestTracker_FetchLinksLoadsOnce(t *testing.T) {
	tracker, st, _ := setupTracker(t)
	ctx := context.Background()

	if _, err := st.CreateLink(ctx, model.Link{UserID: "user-1", DestinationURL: "https://example.com", Slug: "initial"}); err != nil {
		t.Fatalf("CreateLink() error = %v", err)
	}
	if err := tracker.FetchLinks(ctx, "user-1"); err != nil {
		t.Fatalf("FetchLinks() error = %v", err)
	}

	// A link created after the initial load is not picked up by FetchLinks;
	// only ForceRefresh re-queries.
	if _, err := st.CreateLink(ctx, model.Link{UserID: "user-1", DestinationURL: "https://example.com/2", Slug: "later"}); err != nil {
		t.Fatalf("CreateLink() error = %v", err)
	}
	if err := tracker.FetchLinks(ctx, "user-1"); err != nil {
		t.Fatalf("FetchLinks() error = %v", err)
	}
	if got := len(tracker.Links()); got != 1 {
		t.Errorf("FetchLinks reloaded the cache: %d entries, want 1", got)
	}

	if err := tracker.ForceRefresh(ctx, "user-1"); err != nil {
		t.Fatalf("ForceRefresh() error = %v", err)
	}
	if got := len(tracker.Links()); got != 2 {
		t.Errorf("ForceRefresh should see both links, got %d", got)
	}
}

func TestTracker_UserSwitchClearsCache(t *testing.T) {
	tracker, st, _ := setupTracker(t)
	ctx := context.Background()

	aliceLink, err := st.CreateLink(ctx, model.Link{UserID: "alice", DestinationURL: "https://example.com/a", Slug: "alice-link"})
	if err != nil {
		t.Fatalf("CreateLink() error = %v", err)
	}
	if _, err := st.CreateLink(ctx, model.Link{UserID: "bob", DestinationURL: "https://example.com/b", Slug: "bob-link"}); err != nil {
		t.Fatalf("CreateLink() error = %v", err)
	}

	if err := tracker.Start(ctx, "alice"); err != nil {
		t.Fatalf("Start(alice) error = %v", err)
	}
	if err := tracker.FetchLinks(ctx, "alice"); err != nil {
		t.Fatalf("FetchLinks(alice) error = %v", err)
	}
	waitForCount(t, tracker, aliceLink.ID, 0)

	// Switch user: old cache must be gone before the new load lands.
	if err := tracker.Start(ctx, "bob"); err != nil {
		t.Fatalf("Start(bob) error = %v", err)
	}
	if err := tracker.FetchLinks(ctx, "bob"); err != nil {
		t.Fatalf("FetchLinks(bob) error = %v", err)
	}

	for _, entry := range tracker.Links() {
		if entry.ID == aliceLink.ID {
			t.Error("Previous user's link survived the user switch")
		}
	}
	if got := len(tracker.Links()); got != 1 {
		t.Errorf("Expected 1 link for the new user, got %d", got)
	}
	if !tracker.Subscribed() {
		t.Error("Tracker should be subscribed after user switch")
	}
}

func TestTracker_LateLoadForOldUserDiscarded(t *testing.T) {
	tracker, st, _ := setupTracker(t)
	ctx := context.Background()

	aliceLink, err := st.CreateLink(ctx, model.Link{UserID: "alice", DestinationURL: "https://example.com/a", Slug: "alice-late"})
	if err != nil {
		t.Fatalf("CreateLink() error = %v", err)
	}
	bobLink, err := st.CreateLink(ctx, model.Link{UserID: "bob", DestinationURL: "https://example.com/b", Slug: "bob-late"})
	if err != nil {
		t.Fatalf("CreateLink() error = %v", err)
	}

	if err := tracker.Start(ctx, "alice"); err != nil {
		t.Fatalf("Start(alice) error = %v", err)
	}
	if err := tracker.FetchLinks(ctx, "alice"); err != nil {
		t.Fatalf("FetchLinks(alice) error = %v", err)
	}

	if err := tracker.Start(ctx, "bob"); err != nil {
		t.Fatalf("Start(bob) error = %v", err)
	}
	if err := tracker.FetchLinks(ctx, "bob"); err != nil {
		t.Fatalf("FetchLinks(bob) error = %v", err)
	}

	// A load for the previous user arriving after the switch must be
	// dropped, not committed over the new user's cache.
	if err := tracker.ForceRefresh(ctx, "alice"); err != nil {
		t.Fatalf("ForceRefresh(alice) error = %v", err)
	}

	links := tracker.Links()
	for _, entry := range links {
		if entry.ID == aliceLink.ID {
			t.Error("Old user's late load landed in the new user's cache")
		}
	}
	if len(links) != 1 || links[0].ID != bobLink.ID {
		t.Errorf("New user's cache was disturbed: %+v", links)
	}
}

func TestTracker_StaleGenerationDeltaDiscarded(t *testing.T) {
	tracker, st, _ := setupTracker(t)
	ctx := context.Background()

	link, err := st.CreateLink(ctx, model.Link{UserID: "user-1", DestinationURL: "https://example.com", Slug: "stale-gen"})
	if err != nil {
		t.Fatalf("CreateLink() error = %v", err)
	}

	if err := tracker.Start(ctx, "user-1"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := tracker.FetchLinks(ctx, "user-1"); err != nil {
		t.Fatalf("FetchLinks() error = %v", err)
	}

	tracker.mu.Lock()
	staleGen := tracker.generation
	tracker.mu.Unlock()

	// Teardown supersedes the subscription; restarting for the same user
	// keeps the cached entries but the old generation is dead.
	tracker.Teardown()
	if err := tracker.Start(ctx, "user-1"); err != nil {
		t.Fatalf("Restart error = %v", err)
	}

	tracker.applyDelta(staleGen, link.ID, +1)
	for _, entry := range tracker.Links() {
		if entry.ID == link.ID && entry.Clicks != 0 {
			t.Errorf("Superseded delta was applied: count = %d", entry.Clicks)
		}
	}

	tracker.mu.Lock()
	currentGen := tracker.generation
	tracker.mu.Unlock()

	tracker.applyDelta(currentGen, link.ID, +1)
	waitForCount(t, tracker, link.ID, 1)
}

func TestTracker_MalformedNotificationDoesNotKillStream(t *testing.T) {
	tracker, st, client := setupTracker(t)
	ctx := context.Background()

	link, err := st.CreateLink(ctx, model.Link{UserID: "user-1", DestinationURL: "https://example.com", Slug: "robust"})
	if err != nil {
		t.Fatalf("CreateLink() error = %v", err)
	}
	if err := tracker.Start(ctx, "user-1"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := tracker.FetchLinks(ctx, "user-1"); err != nil {
		t.Fatalf("FetchLinks() error = %v", err)
	}

	if err := client.Publish(ctx, st.EventsChannel(), "{not json").Err(); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	// The stream survives and keeps applying later deltas.
	if _, err := st.InsertClickEvent(ctx, link.ID, time.Now()); err != nil {
		t.Fatalf("InsertClickEvent() error = %v", err)
	}
	waitForCount(t, tracker, link.ID, 1)

	if !tracker.Subscribed() {
		t.Error("Tracker dropped subscription on malformed payload")
	}
	if tracker.Err() == nil {
		t.Error("Expected the decode error to be recorded")
	}
}

func publishNotification(t *testing.T, client *redis.Client, channel string, n model.ClickNotification) {
	t.Helper()
	payload, err := json.Marshal(n)
	if err != nil {
		t.Fatalf("Failed to marshal notification: %v", err)
	}
	if err := client.Publish(context.Background(), channel, payload).Err(); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
}
