package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSearchService_ReindexDirtyDrainsInBatches(t *testing.T) {
	store := newMemStore()
	for i := 0; i < 5; i++ {
		store.state.dirty[uuid.New()] = true
	}
	clean := uuid.New()
	store.state.dirty[clean] = false

	n, err := NewSearchService(store, zap.NewNop()).ReindexDirty(context.Background(), 2)
	require.NoError(t, err)

	assert.Equal(t, int64(5), n)
	for id, dirty := range store.state.dirty {
		assert.False(t, dirty, "product %s still dirty", id)
	}
}

func TestSearchService_ReindexDirtyNothingToDo(t *testing.T) {
	n, err := NewSearchService(newMemStore(), zap.NewNop()).ReindexDirty(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSearchService_ReindexOnlyCountsDirty(t *testing.T) {
	store := newMemStore()
	dirty := uuid.New()
	store.state.dirty[dirty] = true

	n, err := NewSearchService(store, zap.NewNop()).Reindex(context.Background(), []uuid.UUID{dirty, uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
