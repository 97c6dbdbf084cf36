package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Notification) Notification {
	t.Helper()
	select {
	case n := <-ch:
		return n
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for notification")
		return Notification{}
	}
}

func assertNothing(t *testing.T, ch <-chan Notification) {
	t.Helper()
	select {
	case n, ok := <-ch:
		if ok {
			t.Fatalf("unexpected notification %+v", n)
		}
	case <-time.After(20 * time.Millisecond):
	}
}

func TestPublishSubscribe(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, Filter{})
	require.NoError(t, err)
	defer cancel()

	n := Notification{
		ID:         "n-1",
		Type:       "task_created",
		InstanceID: "inst-1",
		TaskID:     "task-1",
		Payload:    map[string]any{"node": "review"},
	}
	require.NoError(t, hub.Publish(ctx, n))

	got := receive(t, ch)
	assert.Equal(t, n.InstanceID, got.InstanceID)
	assert.Equal(t, n.TaskID, got.TaskID)
	assert.Equal(t, "review", got.Payload["node"])
}

func TestFilters(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	byInstance, c1, err := hub.Subscribe(ctx, Filter{InstanceID: "inst-1"})
	require.NoError(t, err)
	defer c1()
	byType, c2, err := hub.Subscribe(ctx, Filter{Types: []string{"instance_completed", "instance_cancelled"}})
	require.NoError(t, err)
	defer c2()
	byUser, c3, err := hub.Subscribe(ctx, Filter{AssigneeUser: "bob"})
	require.NoError(t, err)
	defer c3()

	require.NoError(t, hub.Publish(ctx, Notification{Type: "task_created", InstanceID: "inst-2", AssigneeUser: "bob"}))
	require.NoError(t, hub.Publish(ctx, Notification{Type: "instance_completed", InstanceID: "inst-1"}))

	assert.Equal(t, "instance_completed", receive(t, byInstance).Type)
	assertNothing(t, byInstance)

	assert.Equal(t, "inst-1", receive(t, byType).InstanceID)
	assertNothing(t, byType)

	assert.Equal(t, "task_created", receive(t, byUser).Type)
	assertNothing(t, byUser)
}

func TestCancelClosesChannel(t *testing.T) {
	hub := NewMemoryHub()
	ch, cancel, err := hub.Subscribe(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Equal(t, 1, hub.Subscribers())

	cancel()
	cancel()
	assert.Equal(t, 0, hub.Subscribers())

	_, ok := <-ch
	assert.False(t, ok)
	require.NoError(t, hub.Publish(context.Background(), Notification{Type: "x"}))
}

func TestSlowSubscriberDrops(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()
	ch, cancel, err := hub.Subscribe(ctx, Filter{})
	require.NoError(t, err)
	defer cancel()

	for i := 0; i < defaultChannelBuffer+10; i++ {
		require.NoError(t, hub.Publish(ctx, Notification{Type: "task_created"}))
	}
	assert.Len(t, ch, defaultChannelBuffer)
}

func TestCancelledContext(t *testing.T) {
	hub := NewMemoryHub()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, hub.Publish(ctx, Notification{}), context.Canceled)
	_, _, err := hub.Subscribe(ctx, Filter{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConcurrentPublish(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()
	ch, cancel, err := hub.Subscribe(ctx, Filter{})
	require.NoError(t, err)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = hub.Publish(ctx, Notification{Type: "task_created"})
		}()
	}
	wg.Wait()
	assert.Len(t, ch, 8)
}

func TestFanout(t *testing.T) {
	hub := NewMemoryHub()
	ch, cancel, err := hub.Subscribe(context.Background(), Filter{})
	require.NoError(t, err)
	defer cancel()

	boom := errors.New("boom")
	f := Fanout{hub, SinkFunc(func(context.Context, Notification) error { return boom }), Discard}

	err = f.Publish(context.Background(), Notification{Type: "sla_breached"})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "sla_breached", receive(t, ch).Type)
}
