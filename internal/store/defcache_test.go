package store

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JineeshTS/GanakysPortal-sub004/pkg/schema"
)

type countingDefinitions struct {
	DefinitionStore
	gets atomic.Int32
}

func (c *countingDefinitions) GetDefinition(ctx context.Context, id string) (*schema.ProcessDefinition, error) {
	c.gets.Add(1)
	return c.DefinitionStore.GetDefinition(ctx, id)
}

func TestCachedDefinitions_HitsAfterFirstLoad(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	def := seedDefinition(t, s)

	backing := &countingDefinitions{DefinitionStore: s}
	cached := NewCachedDefinitions(backing, 10, time.Minute)

	for i := 0; i < 3; i++ {
		got, err := cached.GetDefinition(ctx, def.ID)
		require.NoError(t, err)
		assert.Equal(t, def.ID, got.ID)
	}
	assert.Equal(t, int32(1), backing.gets.Load())
	assert.Equal(t, 1, cached.Len())
}

func TestCachedDefinitions_CreatePrimes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	backing := &countingDefinitions{DefinitionStore: s}
	cached := NewCachedDefinitions(backing, 10, time.Minute)

	def := testDefinition("primed")
	require.NoError(t, cached.CreateDefinition(ctx, def))

	got, err := cached.GetDefinition(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, "primed", got.Name)
	assert.Equal(t, int32(0), backing.gets.Load())
}

func TestCachedDefinitions_MissIsNotCached(t *testing.T) {
	s := newTestStore(t)
	backing := &countingDefinitions{DefinitionStore: s}
	cached := NewCachedDefinitions(backing, 10, time.Minute)

	_, err := cached.GetDefinition(context.Background(), "missing")
	assert.True(t, schema.HasCode(err, schema.ErrCodeNotFound))
	_, _ = cached.GetDefinition(context.Background(), "missing")
	assert.Equal(t, int32(2), backing.gets.Load())
	assert.Equal(t, 0, cached.Len())
}

func TestCachedDefinitions_Capacity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	cached := NewCachedDefinitions(s, 2, time.Minute)

	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, cached.CreateDefinition(ctx, testDefinition(name)))
	}
	assert.Equal(t, 2, cached.Len())
}
