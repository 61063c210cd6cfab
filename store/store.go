package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"linkboard/model"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Redis key scheme. Links and clicks are stored as JSON values with index
// structures alongside them; per-link clicks live in a sorted set scored by
// the click timestamp so date-range queries are a single ZRANGEBYSCORE.
const (
	linkKeyPrefix   = "link:"       // link:{id} -> JSON link
	clickKeyPrefix  = "click:"      // click:{id} -> JSON click event
	clicksKeyPrefix = "clicks:"     // clicks:{linkID} -> zset of click IDs scored by unix-milli
	userLinksPrefix = "user_links:" // user_links:{userID} -> zset of link IDs scored by created_at
	userKeyPrefix   = "user:"       // user:{id} -> JSON user
	slugIndexKey    = "slug_index"  // hash: slug (lowercase) -> link ID
	emailIndexKey   = "email_index" // hash: email (lowercase) -> user ID
)

var (
	ErrLinkNotFound  = errors.New("link not found")
	ErrClickNotFound = errors.New("click event not found")
	ErrUserNotFound  = errors.New("user not found")
	ErrSlugTaken     = errors.New("slug is already in use")
	ErrEmailTaken    = errors.New("email is already registered")
)

// Store implements the persistence interface over Redis and publishes a
// change notification on the configured channel after every click-event
// write or delete.
type Store struct {
	redis   *redis.Client
	channel string
}

// New creates a store publishing click notifications on eventsChannel.
func New(rdb *redis.Client, eventsChannel string) *Store {
	return &Store{redis: rdb, channel: eventsChannel}
}

// EventsChannel returns the pub/sub channel click notifications go to.
func (s *Store) EventsChannel() string {
	return s.channel
}

// ---- Links ----

// CreateLink persists a new link, assigning ID and creation time when
// unset. The slug is claimed atomically; a taken slug fails with
// ErrSlugTaken before anything is written.
func (s *Store) CreateLink(ctx context.Context, link model.Link) (model.Link, error) {
	if link.ID == "" {
		link.ID = uuid.New().String()
	}
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now()
	}
	link.Slug = strings.ToLower(link.Slug)
	link.Tags = model.NormalizeTags(link.Tags)

	// Claim the slug first; HSetNX is the uniqueness check
	claimed, err := s.redis.HSetNX(ctx, slugIndexKey, link.Slug, link.ID).Result()
	if err != nil {
		return model.Link{}, fmt.Errorf("claiming slug: %w", err)
	}
	if !claimed {
		return model.Link{}, ErrSlugTaken
	}

	data, err := json.Marshal(link)
	if err != nil {
		s.redis.HDel(ctx, slugIndexKey, link.Slug)
		return model.Link{}, fmt.Errorf("marshalling link: %w", err)
	}

	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, linkKeyPrefix+link.ID, data, 0)
	pipe.ZAdd(ctx, userLinksPrefix+link.UserID, &redis.Z{
		Score:  float64(link.CreatedAt.UnixMilli()),
		Member: link.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		s.redis.HDel(ctx, slugIndexKey, link.Slug)
		return model.Link{}, fmt.Errorf("storing link: %w", err)
	}

	log.Info().
		Str("link_id", link.ID).
		Str("slug", link.Slug).
		Str("user_id", link.UserID).
		Msg("Link created")

	return link, nil
}

// GetLink fetches one link by ID.
func (s *Store) GetLink(ctx context.Context, id string) (model.Link, error) {
	data, err := s.redis.Get(ctx, linkKeyPrefix+id).Bytes()
	if err == redis.Nil {
		return model.Link{}, ErrLinkNotFound
	} else if err != nil {
		return model.Link{}, fmt.Errorf("fetching link: %w", err)
	}

	var link model.Link
	if err := json.Unmarshal(data, &link); err != nil {
		return model.Link{}, fmt.Errorf("unmarshalling link: %w", err)
	}
	return link, nil
}

// GetLinkBySlug resolves a slug to its link (case-insensitive).
func (s *Store) GetLinkBySlug(ctx context.Context, slug string) (model.Link, error) {
	id, err := s.redis.HGet(ctx, slugIndexKey, strings.ToLower(slug)).Result()
	if err == redis.Nil {
		return model.Link{}, ErrLinkNotFound
	} else if err != nil {
		return model.Link{}, fmt.Errorf("resolving slug: %w", err)
	}
	return s.GetLink(ctx, id)
}

// GetLinksForUser returns the user's links, newest first.
func (s *Store) GetLinksForUser(ctx context.Context, userID string) ([]model.Link, error) {
	ids, err := s.redis.ZRevRange(ctx, userLinksPrefix+userID, 0, -1).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("listing user links: %w", err)
	}
	if len(ids) == 0 {
		return []model.Link{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, linkKeyPrefix+id)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("fetching user links: %w", err)
	}

	links := make([]model.Link, 0, len(ids))
	for _, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			// Index entry for a deleted link; skip it
			continue
		}
		var link model.Link
		if err := json.Unmarshal(data, &link); err != nil {
			continue
		}
		links = append(links, link)
	}
	return links, nil
}

// LinkUpdate carries a partial link update; nil fields are left untouched.
type LinkUpdate struct {
	DestinationURL     *string
	Slug               *string
	Tags               *[]string
	Folder             *string
	Description        *string
	ConversionTracking *bool
}

// UpdateLink applies a partial update. A slug change re-claims the new slug
// atomically and releases the old one.
func (s *Store) UpdateLink(ctx context.Context, id string, update LinkUpdate) (model.Link, error) {
	link, err := s.GetLink(ctx, id)
	if err != nil {
		return model.Link{}, err
	}

	oldSlug := link.Slug
	if update.Slug != nil && strings.ToLower(*update.Slug) != oldSlug {
		newSlug := strings.ToLower(*update.Slug)
		claimed, err := s.redis.HSetNX(ctx, slugIndexKey, newSlug, id).Result()
		if err != nil {
			return model.Link{}, fmt.Errorf("claiming slug: %w", err)
		}
		if !claimed {
			return model.Link{}, ErrSlugTaken
		}
		link.Slug = newSlug
	}
	if update.DestinationURL != nil {
		link.DestinationURL = *update.DestinationURL
	}
	if update.Tags != nil {
		link.Tags = model.NormalizeTags(*update.Tags)
	}
	if update.Folder != nil {
		link.Folder = *update.Folder
	}
	if update.Description != nil {
		link.Description = *update.Description
	}
	if update.ConversionTracking != nil {
		link.ConversionTracking = *update.ConversionTracking
	}

	data, err := json.Marshal(link)
	if err != nil {
		return model.Link{}, fmt.Errorf("marshalling link: %w", err)
	}
	if err := s.redis.Set(ctx, linkKeyPrefix+id, data, 0).Err(); err != nil {
		return model.Link{}, fmt.Errorf("storing link: %w", err)
	}
	if link.Slug != oldSlug {
		s.redis.HDel(ctx, slugIndexKey, oldSlug)
	}

	log.Info().Str("link_id", id).Str("slug", link.Slug).Msg("Link updated")
	return link, nil
}

// DeleteLink removes a link, its indexes and its click events.
func (s *Store) DeleteLink(ctx context.Context, id string) error {
	link, err := s.GetLink(ctx, id)
	if err != nil {
		return err
	}

	clickIDs, err := s.redis.ZRange(ctx, clicksKeyPrefix+id, 0, -1).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("listing link clicks: %w", err)
	}

	pipe := s.redis.TxPipeline()
	pipe.Del(ctx, linkKeyPrefix+id)
	pipe.Del(ctx, clicksKeyPrefix+id)
	pipe.HDel(ctx, slugIndexKey, link.Slug)
	pipe.ZRem(ctx, userLinksPrefix+link.UserID, id)
	for _, clickID := range clickIDs {
		pipe.Del(ctx, clickKeyPrefix+clickID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("deleting link: %w", err)
	}

	log.Info().Str("link_id", id).Str("slug", link.Slug).Msg("Link deleted")
	return nil
}

// ---- Click events ----

// InsertClickEvent records one redirect and publishes an insert
// notification. Publish failures are logged, not returned: the event is
// durable either way and subscribers can recover via a full refresh.
func (s *Store) InsertClickEvent(ctx context.Context, linkID string, clickedAt time.Time) (model.ClickEvent, error) {
	event := model.ClickEvent{
		ID:        uuid.New().String(),
		LinkID:    linkID,
		ClickedAt: clickedAt,
	}

	data, err := json.Marshal(event)
	if err != nil {
		return model.ClickEvent{}, fmt.Errorf("marshalling click event: %w", err)
	}

	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, clickKeyPrefix+event.ID, data, 0)
	pipe.ZAdd(ctx, clicksKeyPrefix+linkID, &redis.Z{
		Score:  float64(clickedAt.UnixMilli()),
		Member: event.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return model.ClickEvent{}, fmt.Errorf("storing click event: %w", err)
	}

	s.publish(ctx, model.ClickNotification{
		Kind:      model.ClickInserted,
		ClickID:   event.ID,
		LinkID:    linkID,
		ClickedAt: clickedAt,
	})

	return event, nil
}

// GetClickEvent fetches one click event by ID.
func (s *Store) GetClickEvent(ctx context.Context, clickID string) (model.ClickEvent, error) {
	data, err := s.redis.Get(ctx, clickKeyPrefix+clickID).Bytes()
	if err == redis.Nil {
		return model.ClickEvent{}, ErrClickNotFound
	} else if err != nil {
		return model.ClickEvent{}, fmt.Errorf("fetching click event: %w", err)
	}

	var event model.ClickEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return model.ClickEvent{}, fmt.Errorf("unmarshalling click event: %w", err)
	}
	return event, nil
}

// DeleteClickEvent removes a click record (administrative action) and
// publishes a delete notification.
func (s *Store) DeleteClickEvent(ctx context.Context, clickID string) error {
	data, err := s.redis.Get(ctx, clickKeyPrefix+clickID).Bytes()
	if err == redis.Nil {
		return ErrClickNotFound
	} else if err != nil {
		return fmt.Errorf("fetching click event: %w", err)
	}

	var event model.ClickEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return fmt.Errorf("unmarshalling click event: %w", err)
	}

	pipe := s.redis.TxPipeline()
	pipe.Del(ctx, clickKeyPrefix+clickID)
	pipe.ZRem(ctx, clicksKeyPrefix+event.LinkID, clickID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("deleting click event: %w", err)
	}

	s.publish(ctx, model.ClickNotification{
		Kind:      model.ClickDeleted,
		ClickID:   clickID,
		LinkID:    event.LinkID,
		ClickedAt: event.ClickedAt,
	})

	return nil
}

// GetClickCountsForLinks returns current click counts for the given links
// in one pipelined round trip.
func (s *Store) GetClickCountsForLinks(ctx context.Context, linkIDs []string) (map[string]int64, error) {
	counts := make(map[string]int64, len(linkIDs))
	if len(linkIDs) == 0 {
		return counts, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.IntCmd, len(linkIDs))
	for i, id := range linkIDs {
		cmds[i] = pipe.ZCard(ctx, clicksKeyPrefix+id)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("counting clicks: %w", err)
	}

	for i, id := range linkIDs {
		counts[id] = cmds[i].Val()
	}
	return counts, nil
}

// ClickFilter scopes a click-event query to one link or one user's links,
// optionally bounded by a date range (inclusive).
type ClickFilter struct {
	UserID string
	LinkID string
	Since  time.Time
	Until  time.Time
}

// GetClickEvents returns click events matching the filter. With neither a
// user nor a link there is nothing to fetch and the result is empty.
func (s *Store) GetClickEvents(ctx context.Context, filter ClickFilter) ([]model.ClickEvent, error) {
	var linkIDs []string
	switch {
	case filter.LinkID != "":
		linkIDs = []string{filter.LinkID}
	case filter.UserID != "":
		ids, err := s.redis.ZRevRange(ctx, userLinksPrefix+filter.UserID, 0, -1).Result()
		if err != nil && err != redis.Nil {
			return nil, fmt.Errorf("listing user links: %w", err)
		}
		linkIDs = ids
	default:
		return []model.ClickEvent{}, nil
	}

	min, max := "-inf", "+inf"
	if !filter.Since.IsZero() {
		min = fmt.Sprintf("%d", filter.Since.UnixMilli())
	}
	if !filter.Until.IsZero() {
		max = fmt.Sprintf("%d", filter.Until.UnixMilli())
	}

	var clickIDs []string
	for _, linkID := range linkIDs {
		ids, err := s.redis.ZRangeByScore(ctx, clicksKeyPrefix+linkID, &redis.ZRangeBy{
			Min: min,
			Max: max,
		}).Result()
		if err != nil && err != redis.Nil {
			return nil, fmt.Errorf("querying clicks: %w", err)
		}
		clickIDs = append(clickIDs, ids...)
	}
	if len(clickIDs) == 0 {
		return []model.ClickEvent{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(clickIDs))
	for i, id := range clickIDs {
		cmds[i] = pipe.Get(ctx, clickKeyPrefix+id)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("fetching click events: %w", err)
	}

	events := make([]model.ClickEvent, 0, len(clickIDs))
	for _, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			continue
		}
		var event model.ClickEvent
		if err := json.Unmarshal(data, &event); err != nil {
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

func (s *Store) publish(ctx context.Context, n model.ClickNotification) {
	payload, err := json.Marshal(n)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal click notification")
		return
	}
	if err := s.redis.Publish(ctx, s.channel, payload).Err(); err != nil {
		log.Error().
			Err(err).
			Str("channel", s.channel).
			Str("link_id", n.LinkID).
			Msg("Failed to publish click notification")
	}
}
