package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"github.com/Johnnas12/chatbot-ui-galaxy/internal/model"
)

// SessionCache keeps each user's session list in Redis behind a short TTL.
// A dirty marker suppresses repopulation for a few seconds after a write so
// a concurrent reader cannot resurrect a stale list.
type SessionCache struct {
	client         *redisv9.Client
	sessionTTL     time.Duration
	dirtyMarkerTTL time.Duration
}

func NewSessionCache(client *redisv9.Client, sessionTTL, dirtyMarkerTTL time.Duration) *SessionCache {
	if sessionTTL <= 0 {
		sessionTTL = 60 * time.Second
	}
	if dirtyMarkerTTL <= 0 {
		dirtyMarkerTTL = 5 * time.Second
	}
	return &SessionCache{
		client:         client,
		sessionTTL:     sessionTTL,
		dirtyMarkerTTL: dirtyMarkerTTL,
	}
}

func (c *SessionCache) GetSessions(ctx context.Context, userID uint) ([]model.ChatSession, bool, error) {
	raw, err := c.client.Get(ctx, c.sessionsKey(userID)).Result()
	if err == redisv9.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get sessions failed: %w", err)
	}

	var sessions []model.ChatSession
	if err := json.Unmarshal([]byte(raw), &sessions); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached sessions failed: %w", err)
	}
	return sessions, true, nil
}

func (c *SessionCache) SetSessions(ctx context.Context, userID uint, sessions []model.ChatSession) error {
	payload, err := json.Marshal(sessions)
	if err != nil {
		return fmt.Errorf("marshal session cache failed: %w", err)
	}
	if err := c.client.Set(ctx, c.sessionsKey(userID), payload, c.sessionTTL).Err(); err != nil {
		return fmt.Errorf("redis set sessions failed: %w", err)
	}
	return nil
}

func (c *SessionCache) DeleteSessions(ctx context.Context, userID uint) error {
	if err := c.client.Del(ctx, c.sessionsKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis delete sessions failed: %w", err)
	}
	return nil
}

func (c *SessionCache) MarkDirty(ctx context.Context, userID uint) error {
	if err := c.client.Set(ctx, c.dirtyKey(userID), "1", c.dirtyMarkerTTL).Err(); err != nil {
		return fmt.Errorf("redis set dirty marker failed: %w", err)
	}
	return nil
}

func (c *SessionCache) IsDirty(ctx context.Context, userID uint) (bool, error) {
	exists, err := c.client.Exists(ctx, c.dirtyKey(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis check dirty marker failed: %w", err)
	}
	return exists > 0, nil
}

func (c *SessionCache) sessionsKey(userID uint) string {
	return fmt.Sprintf("chat:sessions:%d", userID)
}

func (c *SessionCache) dirtyKey(userID uint) string {
	return fmt.Sprintf("chat:sessions:dirty:%d", userID)
}
