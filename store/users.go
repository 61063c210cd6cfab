package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"linkboard/model"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// CreateUser persists a new user. The email is claimed atomically; a taken
// email fails with ErrEmailTaken before anything is written.
func (s *Store) CreateUser(ctx context.Context, user model.User) (model.User, error) {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	user.Email = strings.ToLower(user.Email)

	claimed, err := s.redis.HSetNX(ctx, emailIndexKey, user.Email, user.ID).Result()
	if err != nil {
		return model.User{}, fmt.Errorf("claiming email: %w", err)
	}
	if !claimed {
		return model.User{}, ErrEmailTaken
	}

	data, err := json.Marshal(user)
	if err != nil {
		s.redis.HDel(ctx, emailIndexKey, user.Email)
		return model.User{}, fmt.Errorf("marshalling user: %w", err)
	}
	if err := s.redis.Set(ctx, userKeyPrefix+user.ID, data, 0).Err(); err != nil {
		s.redis.HDel(ctx, emailIndexKey, user.Email)
		return model.User{}, fmt.Errorf("storing user: %w", err)
	}

	log.Info().Str("user_id", user.ID).Str("email", user.Email).Msg("User registered")
	return user, nil
}

// GetUserByID fetches one user by ID.
func (s *Store) GetUserByID(ctx context.Context, id string) (model.User, error) {
	data, err := s.redis.Get(ctx, userKeyPrefix+id).Bytes()
	if err == redis.Nil {
		return model.User{}, ErrUserNotFound
	} else if err != nil {
		return model.User{}, fmt.Errorf("fetching user: %w", err)
	}

	var user model.User
	if err := json.Unmarshal(data, &user); err != nil {
		return model.User{}, fmt.Errorf("unmarshalling user: %w", err)
	}
	return user, nil
}

// GetUserByEmail resolves an email (case-insensitive) to its user.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	id, err := s.redis.HGet(ctx, emailIndexKey, strings.ToLower(email)).Result()
	if err == redis.Nil {
		return model.User{}, ErrUserNotFound
	} else if err != nil {
		return model.User{}, fmt.Errorf("resolving email: %w", err)
	}
	return s.GetUserByID(ctx, id)
}
