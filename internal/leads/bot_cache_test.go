package leads

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingBotStore struct {
	inner *MemoryStore
	calls int
}

func (c *countingBotStore) GetBot(ctx context.Context, botID string) (*BotProfile, error) {
	c.calls++
	return c.inner.GetBot(ctx, botID)
}

func TestCachedBotStore_ReadThrough(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	mem := NewMemoryStore()
	mem.PutBot(BotProfile{ID: "bot-1", Name: "Lode", SystemPrompt: "Vendé webs"})
	backing := &countingBotStore{inner: mem}
	cache := NewCachedBotStore(backing, client, time.Minute, nil)
	ctx := context.Background()

	first, err := cache.GetBot(ctx, "bot-1")
	require.NoError(t, err)
	second, err := cache.GetBot(ctx, "bot-1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, backing.calls)
	assert.True(t, mr.Exists("brain:bot:bot-1"))

	mr.FastForward(2 * time.Minute)
	_, err = cache.GetBot(ctx, "bot-1")
	require.NoError(t, err)
	assert.Equal(t, 2, backing.calls)

	require.NoError(t, cache.Invalidate(ctx, "bot-1"))
	assert.False(t, mr.Exists("brain:bot:bot-1"))
}

func TestCachedBotStore_MissingBotNotCached(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cache := NewCachedBotStore(NewMemoryStore(), client, 0, nil)
	_, err := cache.GetBot(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrBotNotFound)
	assert.False(t, mr.Exists("brain:bot:ghost"))
}

func TestCachedBotStore_RedisDownFallsThrough(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	mem := NewMemoryStore()
	mem.PutBot(BotProfile{ID: "bot-1", Name: "Lode"})
	cache := NewCachedBotStore(mem, client, time.Minute, nil)

	bot, err := cache.GetBot(context.Background(), "bot-1")
	require.NoError(t, err)
	assert.Equal(t, "Lode", bot.Name)
}
