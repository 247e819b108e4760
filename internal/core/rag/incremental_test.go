package rag

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// streamLoader は購読チャネル経由で新着チャンク列を配信するテスト用ローダー
type streamLoader struct {
	staticLoader

	streams chan ChunkStream

	mu      sync.Mutex
	stopped bool
}

func newStreamLoader(id string, initial []Chunk) *streamLoader {
	return &streamLoader{
		staticLoader: staticLoader{id: id, chunks: initial},
		streams:      make(chan ChunkStream, 4),
	}
}

func (l *streamLoader) Subscribe(ctx context.Context) (<-chan ChunkStream, func() error, error) {
	stop := func() error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if !l.stopped {
			l.stopped = true
			close(l.streams)
		}
		return nil
	}
	return l.streams, stop, nil
}

func (l *streamLoader) isStopped() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stopped
}

func TestAddLoaderSubscribesIncrementalLoader(t *testing.T) {
	app, store, _, _ := newTestApp(t, nil)

	loader := newStreamLoader("stream-loader", makeChunks(2))
	result, err := app.AddLoader(context.Background(), loader)
	require.NoError(t, err)
	assert.Equal(t, 2, result.EntriesAdded)
	assert.Equal(t, 2, store.insertedCount())

	// 新着チャンク列は同じローダーIDに追加挿入される
	loader.streams <- StreamOf(Chunk{PageContent: "late arrival"})
	assert.Eventually(t, func() bool {
		return store.insertedCount() == 3
	}, time.Second, 10*time.Millisecond)

	app.Close()
	assert.True(t, loader.isStopped())
}

func TestCloseStopsSubscriptions(t *testing.T) {
	app, _, _, _ := newTestApp(t, nil)

	loader := newStreamLoader("stream-loader", nil)
	_, err := app.AddLoader(context.Background(), loader)
	require.NoError(t, err)

	app.Close()
	assert.True(t, loader.isStopped())

	// Closeは冪等
	app.Close()
	assert.True(t, loader.isStopped())
}

func TestDeleteLoaderStopsSubscription(t *testing.T) {
	app, store, _, _ := newTestApp(t, nil)
	store.deleteReturn = true

	loader := newStreamLoader("stream-loader", nil)
	_, err := app.AddLoader(context.Background(), loader)
	require.NoError(t, err)

	deleted, err := app.DeleteLoader(context.Background(), "stream-loader", true)
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.True(t, loader.isStopped())
	assert.Empty(t, app.Loaders())
}
