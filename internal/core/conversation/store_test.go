package conversation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryStoreAppendAndGet(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	err := store.Append(ctx, "session-1",
		Entry{Message: "hello", Sender: SenderHuman},
		Entry{Message: "hi there", Sender: SenderAI},
	)
	require.NoError(t, err)

	history, err := store.Get(ctx, "session-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, Entry{Message: "hello", Sender: SenderHuman}, history[0])
	assert.Equal(t, Entry{Message: "hi there", Sender: SenderAI}, history[1])
}

func TestInMemoryStoreIsolatesConversations(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "a", Entry{Message: "for a", Sender: SenderHuman}))
	require.NoError(t, store.Append(ctx, "b", Entry{Message: "for b", Sender: SenderHuman}))

	historyA, err := store.Get(ctx, "a")
	require.NoError(t, err)
	require.Len(t, historyA, 1)
	assert.Equal(t, "for a", historyA[0].Message)
}

func TestInMemoryStoreGetReturnsCopy(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "session", Entry{Message: "original", Sender: SenderHuman}))

	history, err := store.Get(ctx, "session")
	require.NoError(t, err)
	history[0].Message = "mutated"

	// 返却されたスライスへの変更はストア内部に影響しない
	fresh, err := store.Get(ctx, "session")
	require.NoError(t, err)
	assert.Equal(t, "original", fresh[0].Message)
}

func TestInMemoryStoreClear(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "session", Entry{Message: "hello", Sender: SenderHuman}))
	require.NoError(t, store.Clear(ctx, "session"))

	history, err := store.Get(ctx, "session")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestInMemoryStoreGetUnknownConversation(t *testing.T) {
	store := NewInMemoryStore()

	history, err := store.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, history)
}
