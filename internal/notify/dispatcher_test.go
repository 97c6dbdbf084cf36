package notify

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestDispatcher_DeliversAll(t *testing.T) {
	defer goleak.VerifyNone(t)

	var got atomic.Int64
	sink := SinkFunc(func(context.Context, Notification) error {
		got.Add(1)
		return nil
	})
	d := NewDispatcher(sink, DispatcherConfig{Workers: 3, QueueSize: 100})

	for i := 0; i < 50; i++ {
		require.NoError(t, d.Enqueue(Notification{Type: "task_created"}))
	}
	d.Close()

	assert.Equal(t, int64(50), got.Load())
	assert.Equal(t, int64(50), d.Stats().Delivered)
}

func TestDispatcher_QueueFullDoesNotBlock(t *testing.T) {
	defer goleak.VerifyNone(t)

	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	sink := SinkFunc(func(context.Context, Notification) error {
		once.Do(func() { close(started) })
		<-release
		return nil
	})
	d := NewDispatcher(sink, DispatcherConfig{Workers: 1, QueueSize: 1})

	require.NoError(t, d.Enqueue(Notification{}))
	<-started
	require.NoError(t, d.Enqueue(Notification{}))
	assert.ErrorIs(t, d.Enqueue(Notification{}), ErrQueueFull)

	// Publish swallows the error.
	assert.NoError(t, d.Publish(context.Background(), Notification{}))
	assert.Equal(t, int64(2), d.Stats().Dropped)

	close(release)
	d.Close()
	assert.Equal(t, int64(2), d.Stats().Delivered)
}

func TestDispatcher_FailuresAndPanics(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := SinkFunc(func(_ context.Context, n Notification) error {
		switch n.Type {
		case "fail":
			return errors.New("unreachable")
		case "panic":
			panic("sink exploded")
		}
		return nil
	})
	d := NewDispatcher(sink, DispatcherConfig{Workers: 1})

	require.NoError(t, d.Enqueue(Notification{Type: "fail"}))
	require.NoError(t, d.Enqueue(Notification{Type: "panic"}))
	require.NoError(t, d.Enqueue(Notification{Type: "ok"}))
	d.Close()

	stats := d.Stats()
	assert.Equal(t, int64(1), stats.Delivered)
	assert.Equal(t, int64(2), stats.Failed)
	assert.Equal(t, int64(1), stats.Panics)
}

func TestDispatcher_TimeoutBoundsSink(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := SinkFunc(func(ctx context.Context, _ Notification) error {
		<-ctx.Done()
		return ctx.Err()
	})
	d := NewDispatcher(sink, DispatcherConfig{PublishTimeout: 10 * time.Millisecond})
	require.NoError(t, d.Enqueue(Notification{}))
	d.Close()

	assert.Equal(t, int64(1), d.Stats().Failed)
}

func TestDispatcher_CloseIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := NewDispatcher(Discard, DispatcherConfig{})
	d.Close()
	d.Close()
	assert.ErrorIs(t, d.Enqueue(Notification{}), ErrDispatcherClosed)
}
