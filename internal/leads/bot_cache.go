package leads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/botlode/brain/pkg/logging"
)

const defaultBotCacheTTL = 5 * time.Minute

// CachedBotStore is a read-through Redis cache in front of a BotStore.
// Cache failures never fail a lookup; they fall through to the backing store.
type CachedBotStore struct {
	next   BotStore
	redis  *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

// NewCachedBotStore wraps next with a Redis cache. A nil client disables caching.
func NewCachedBotStore(next BotStore, client *redis.Client, ttl time.Duration, logger *logging.Logger) *CachedBotStore {
	if ttl <= 0 {
		ttl = defaultBotCacheTTL
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &CachedBotStore{next: next, redis: client, ttl: ttl, logger: logger}
}

func (c *CachedBotStore) key(botID string) string {
	return fmt.Sprintf("brain:bot:%s", botID)
}

// GetBot returns the cached profile or loads and caches it.
func (c *CachedBotStore) GetBot(ctx context.Context, botID string) (*BotProfile, error) {
	if c.redis != nil {
		data, err := c.redis.Get(ctx, c.key(botID)).Bytes()
		switch {
		case err == nil:
			var bot BotProfile
			if jsonErr := json.Unmarshal(data, &bot); jsonErr == nil {
				return &bot, nil
			}
			c.logger.Warn("bot cache entry unreadable", "bot_id", botID)
		case !errors.Is(err, redis.Nil):
			c.logger.Warn("bot cache read failed", "bot_id", botID, "error", err)
		}
	}

	bot, err := c.next.GetBot(ctx, botID)
	if err != nil {
		return nil, err
	}

	if c.redis != nil {
		data, err := json.Marshal(bot)
		if err == nil {
			err = c.redis.Set(ctx, c.key(botID), data, c.ttl).Err()
		}
		if err != nil {
			c.logger.Warn("bot cache write failed", "bot_id", botID, "error", err)
		}
	}
	return bot, nil
}

// Invalidate drops the cached profile for botID.
func (c *CachedBotStore) Invalidate(ctx context.Context, botID string) error {
	if c.redis == nil {
		return nil
	}
	if err := c.redis.Del(ctx, c.key(botID)).Err(); err != nil {
		return fmt.Errorf("leads: invalidate bot cache: %w", err)
	}
	return nil
}
