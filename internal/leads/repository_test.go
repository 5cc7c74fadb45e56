package leads

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_RecentMessagesNewestFirst(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	for _, content := range []string{"uno", "dos", "tres"} {
		require.NoError(t, store.InsertMessage(ctx, ChatMessage{SessionID: "s1", Role: RoleUser, Content: content}))
	}

	msgs, err := store.RecentMessages(ctx, "s1", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "tres", msgs[0].Content)
	assert.Equal(t, "dos", msgs[1].Content)
	assert.NotEmpty(t, msgs[0].ID)
}

func TestMemoryStore_UpsertFactsIsIdempotent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	fact := Fact{SessionID: "s1", Type: FactEmail, Value: "ana@example.com"}

	require.NoError(t, store.UpsertFacts(ctx, []Fact{fact}))
	require.NoError(t, store.UpsertFacts(ctx, []Fact{fact, {SessionID: "s1", Type: FactPhone, Value: "1155550000"}}))
	require.NoError(t, store.UpsertFacts(ctx, []Fact{{SessionID: "s2", Type: FactEmail, Value: "ana@example.com"}}))

	facts, err := store.ListFacts(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, facts, 2)
	assert.Equal(t, FactEmail, facts[0].Type)
	assert.Equal(t, FactPhone, facts[1].Type)
}

func TestMemoryStore_MarkOnlineKeepsOneSessionOnline(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.MarkOnline(ctx, SessionPresence{SessionID: "a", ChatID: "chat"}))
	require.NoError(t, store.MarkOnline(ctx, SessionPresence{SessionID: "b", ChatID: "chat"}))
	require.NoError(t, store.MarkOnline(ctx, SessionPresence{SessionID: "c", ChatID: "other"}))

	rows := store.Presence("chat")
	require.Len(t, rows, 2)
	assert.False(t, rows[0].IsOnline)
	assert.True(t, rows[1].IsOnline)
	assert.True(t, store.Presence("other")[0].IsOnline)
}

func TestMemoryStore_AlertLedger(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	ok, err := store.ClaimAlert(ctx, "s1", 82)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = store.ClaimAlert(ctx, "s1", 95)
	assert.False(t, ok)

	require.NoError(t, store.ReleaseAlert(ctx, "s1"))
	ok, _ = store.ClaimAlert(ctx, "s1", 95)
	assert.True(t, ok)
}

func TestMemoryStore_GetBot(t *testing.T) {
	store := NewMemoryStore()
	store.PutBot(BotProfile{ID: "bot-1", Name: "Lode"})

	bot, err := store.GetBot(context.Background(), "bot-1")
	require.NoError(t, err)
	assert.Equal(t, "Lode", bot.Name)

	_, err = store.GetBot(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrBotNotFound)
}
