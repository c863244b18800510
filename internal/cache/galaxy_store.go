package cache

import (
	"context"
	"encoding/json"
	"fmt"

	redisv9 "github.com/redis/go-redis/v9"

	"github.com/Johnnas12/chatbot-ui-galaxy/internal/model"
)

// GalaxyStore persists each user's Galaxy connection under two fixed keys:
// the config (base URL, API key, selected history) and the bearer token.
// Entries have no TTL; they live until an explicit disconnect.
type GalaxyStore struct {
	client *redisv9.Client
}

func NewGalaxyStore(client *redisv9.Client) *GalaxyStore {
	return &GalaxyStore{client: client}
}

func (s *GalaxyStore) Save(ctx context.Context, userID uint, conn model.GalaxyConnection) error {
	token := conn.Token
	conn.Token = ""

	payload, err := json.Marshal(conn)
	if err != nil {
		return fmt.Errorf("marshal galaxy config failed: %w", err)
	}
	if err := s.client.Set(ctx, s.configKey(userID), payload, 0).Err(); err != nil {
		return fmt.Errorf("redis set galaxy config failed: %w", err)
	}
	if err := s.client.Set(ctx, s.tokenKey(userID), token, 0).Err(); err != nil {
		return fmt.Errorf("redis set galaxy token failed: %w", err)
	}
	return nil
}

// Load returns nil without error when no connection is stored.
func (s *GalaxyStore) Load(ctx context.Context, userID uint) (*model.GalaxyConnection, error) {
	raw, err := s.client.Get(ctx, s.configKey(userID)).Result()
	if err == redisv9.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get galaxy config failed: %w", err)
	}

	var conn model.GalaxyConnection
	if err := json.Unmarshal([]byte(raw), &conn); err != nil {
		return nil, fmt.Errorf("unmarshal galaxy config failed: %w", err)
	}

	token, err := s.client.Get(ctx, s.tokenKey(userID)).Result()
	if err == redisv9.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get galaxy token failed: %w", err)
	}
	conn.Token = token
	return &conn, nil
}

func (s *GalaxyStore) Clear(ctx context.Context, userID uint) error {
	if err := s.client.Del(ctx, s.configKey(userID), s.tokenKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis clear galaxy connection failed: %w", err)
	}
	return nil
}

func (s *GalaxyStore) SetSelectedHistory(ctx context.Context, userID uint, historyID string) error {
	conn, err := s.Load(ctx, userID)
	if err != nil {
		return err
	}
	if conn == nil {
		return nil
	}
	conn.SelectedHistoryID = historyID
	return s.Save(ctx, userID, *conn)
}

func (s *GalaxyStore) configKey(userID uint) string {
	return fmt.Sprintf("galaxy:config:%d", userID)
}

func (s *GalaxyStore) tokenKey(userID uint) string {
	return fmt.Sprintf("galaxy:token:%d", userID)
}
