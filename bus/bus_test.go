package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gathering-ai/gathering/events"
)

func noop(context.Context, events.Event) error { return nil }

func TestPublishInvokesEverySubscriber(t *testing.T) {
	b := New()
	defer b.Close()

	var mu sync.Mutex
	counter := 0
	for i := 0; i < 10; i++ {
		b.Subscribe(events.TaskCompleted, func(ctx context.Context, evt events.Event) error {
			mu.Lock()
			counter++
			mu.Unlock()
			return nil
		})
	}

	var otherKind atomic.Int64
	b.Subscribe(events.TaskFailed, func(ctx context.Context, evt events.Event) error {
		otherKind.Add(1)
		return nil
	})

	b.Publish(context.Background(), events.New(events.TaskCompleted, nil))

	mu.Lock()
	assert.Equal(t, 10, counter)
	mu.Unlock()
	assert.EqualValues(t, 0, otherKind.Load())

	stats := b.Stats()
	assert.EqualValues(t, 1, stats.EventsPublished)
	assert.EqualValues(t, 10, stats.EventsDelivered)
}

func TestPublishRespectsFilters(t *testing.T) {
	b := New()
	defer b.Close()

	var accepted, rejected atomic.Int64
	b.Subscribe(events.TaskCompleted, func(ctx context.Context, evt events.Event) error {
		accepted.Add(1)
		return nil
	}, WithFilter(events.ByCircle(1)))
	b.Subscribe(events.TaskCompleted, func(ctx context.Context, evt events.Event) error {
		rejected.Add(1)
		return nil
	}, WithFilter(events.ByCircle(2)))

	b.Publish(context.Background(), events.New(events.TaskCompleted, nil, events.WithCircle(1)))

	assert.EqualValues(t, 1, accepted.Load())
	assert.EqualValues(t, 0, rejected.Load())
	// only the dispatched invocation counts as delivered
	assert.EqualValues(t, 1, b.Stats().EventsDelivered)
}

func TestDuplicateRegistrationsBothFire(t *testing.T) {
	b := New()
	defer b.Close()

	var calls atomic.Int64
	handler := func(ctx context.Context, evt events.Event) error {
		calls.Add(1)
		return nil
	}
	b.Subscribe(events.MemoryCreated, handler)
	b.Subscribe(events.MemoryCreated, handler)

	b.Publish(context.Background(), events.New(events.MemoryCreated, nil))
	assert.EqualValues(t, 2, calls.Load())
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	defer b.Close()

	var calls atomic.Int64
	sub := b.Subscribe(events.TaskCreated, func(ctx context.Context, evt events.Event) error {
		calls.Add(1)
		return nil
	})

	assert.True(t, b.Unsubscribe(sub))
	assert.False(t, b.Unsubscribe(sub), "second unsubscribe finds nothing")
	assert.False(t, b.Unsubscribe(Subscription{}), "zero token is never registered")

	b.Publish(context.Background(), events.New(events.TaskCreated, nil))
	assert.EqualValues(t, 0, calls.Load())
}

func TestHandlerFailureIsolation(t *testing.T) {
	b := New()
	defer b.Close()

	var healthy atomic.Int64
	b.Subscribe(events.TaskCompleted, func(ctx context.Context, evt events.Event) error {
		return errors.New("boom")
	}, WithName("failing"))
	b.Subscribe(events.TaskCompleted, func(ctx context.Context, evt events.Event) error {
		panic("kaboom")
	}, WithName("panicking"))
	b.Subscribe(events.TaskCompleted, func(ctx context.Context, evt events.Event) error {
		healthy.Add(1)
		return nil
	}, WithName("healthy"))

	b.Publish(context.Background(), events.New(events.TaskCompleted, nil))

	assert.EqualValues(t, 1, healthy.Load(), "sibling handlers still run")
	stats := b.Stats()
	assert.EqualValues(t, 2, stats.HandlerErrors)
	assert.EqualValues(t, 3, stats.EventsDelivered, "delivered counts dispatched, not succeeded")
}

func TestFilterPanicIsolation(t *testing.T) {
	b := New()
	defer b.Close()

	var invoked, sibling atomic.Int64
	b.Subscribe(events.TaskCompleted, func(ctx context.Context, evt events.Event) error {
		invoked.Add(1)
		return nil
	}, WithFilter(func(events.Event) bool { panic("bad filter") }))
	b.Subscribe(events.TaskCompleted, func(ctx context.Context, evt events.Event) error {
		sibling.Add(1)
		return nil
	})

	b.Publish(context.Background(), events.New(events.TaskCompleted, nil))

	assert.EqualValues(t, 0, invoked.Load(), "panicking filter skips its handler")
	assert.EqualValues(t, 1, sibling.Load())
	assert.EqualValues(t, 1, b.Stats().HandlerErrors)
}

func TestConcurrentFanOut(t *testing.T) {
	b := New()
	defer b.Close()

	for i := 0; i < 3; i++ {
		b.Subscribe(events.TaskCompleted, func(ctx context.Context, evt events.Event) error {
			time.Sleep(100 * time.Millisecond)
			return nil
		})
	}

	start := time.Now()
	b.Publish(context.Background(), events.New(events.TaskCompleted, nil))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, 250*time.Millisecond, "handlers must run concurrently, not sequentially")
}

func TestPublishIsABarrier(t *testing.T) {
	b := New()
	defer b.Close()

	var mu sync.Mutex
	var order []string
	b.Subscribe(events.TaskCompleted, func(ctx context.Context, evt events.Event) error {
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		order = append(order, evt.ID)
		mu.Unlock()
		return nil
	})

	ctx := context.Background()
	b.Publish(ctx, events.New(events.TaskCompleted, nil, events.WithID("first")))
	b.Publish(ctx, events.New(events.TaskCompleted, nil, events.WithID("second")))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"first", "second"}, order)
}

func TestLimiterBoundsConcurrency(t *testing.T) {
	b := New(WithMaxConcurrentHandlers(3))
	defer b.Close()

	var current, peak atomic.Int64
	for i := 0; i < 10; i++ {
		b.Subscribe(events.TaskCompleted, func(ctx context.Context, evt events.Event) error {
			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			current.Add(-1)
			return nil
		})
	}

	b.Publish(context.Background(), events.New(events.TaskCompleted, nil))

	assert.LessOrEqual(t, peak.Load(), int64(3))
	assert.EqualValues(t, 10, b.Stats().EventsDelivered)
}

func TestLimiterIsSharedAcrossPublishes(t *testing.T) {
	b := New(WithMaxConcurrentHandlers(2))
	defer b.Close()

	var current, peak atomic.Int64
	handler := func(ctx context.Context, evt events.Event) error {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		current.Add(-1)
		return nil
	}
	for i := 0; i < 4; i++ {
		b.Subscribe(events.TaskCompleted, handler)
	}

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Publish(context.Background(), events.New(events.TaskCompleted, nil))
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int64(2), "permits are global, not per publish call")
}

func TestConfigureReplacesLimiter(t *testing.T) {
	b := New(WithMaxConcurrentHandlers(1))
	defer b.Close()

	limit := 5
	b.Configure(ConfigUpdate{MaxConcurrentHandlers: &limit})
	assert.Equal(t, 5, b.limiter.Load().capacity())

	var current, peak atomic.Int64
	for i := 0; i < 8; i++ {
		b.Subscribe(events.TaskCompleted, func(ctx context.Context, evt events.Event) error {
			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			current.Add(-1)
			return nil
		})
	}
	b.Publish(context.Background(), events.New(events.TaskCompleted, nil))
	assert.LessOrEqual(t, peak.Load(), int64(5))
}

func TestDeduplication(t *testing.T) {
	b := New(WithDedupEnabled(true), WithDedupWindow(200*time.Millisecond))
	defer b.Close()

	var calls atomic.Int64
	b.Subscribe(events.TaskCompleted, func(ctx context.Context, evt events.Event) error {
		calls.Add(1)
		return nil
	})

	ctx := context.Background()
	evt := func() events.Event {
		return events.New(events.TaskCompleted,
			map[string]any{"task_id": 1},
			events.WithSource(1),
			events.WithCircle(2),
		)
	}

	for i := 0; i < 3; i++ {
		b.Publish(ctx, evt())
	}
	assert.EqualValues(t, 1, calls.Load())

	stats := b.Stats()
	assert.EqualValues(t, 1, stats.EventsPublished)
	assert.EqualValues(t, 2, stats.EventsDeduplicated)

	// after the window elapses the same event delivers again
	time.Sleep(250 * time.Millisecond)
	b.Publish(ctx, evt())
	assert.EqualValues(t, 2, calls.Load())
}

func TestDeduplicationKeepsDistinctEvents(t *testing.T) {
	b := New(WithDedupEnabled(true), WithDedupWindow(time.Second))
	defer b.Close()

	var calls atomic.Int64
	b.Subscribe(events.TaskCompleted, func(ctx context.Context, evt events.Event) error {
		calls.Add(1)
		return nil
	})

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		b.Publish(ctx, events.New(events.TaskCompleted, map[string]any{"task_id": i}, events.WithSource(1)))
	}

	assert.EqualValues(t, 5, calls.Load(), "distinct payloads are never suppressed")
	assert.EqualValues(t, 0, b.Stats().EventsDeduplicated)
}

func TestDeduplicationDisabledByDefault(t *testing.T) {
	b := New()
	defer b.Close()

	var calls atomic.Int64
	b.Subscribe(events.TaskCompleted, func(ctx context.Context, evt events.Event) error {
		calls.Add(1)
		return nil
	})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		b.Publish(ctx, events.New(events.TaskCompleted, map[string]any{"task_id": 1}, events.WithSource(1)))
	}
	assert.EqualValues(t, 3, calls.Load())
}

func TestPublishAsync(t *testing.T) {
	b := New()
	defer b.Close()

	delivered := make(chan events.Event, 1)
	b.Subscribe(events.TaskCompleted, func(ctx context.Context, evt events.Event) error {
		delivered <- evt
		return nil
	})

	require.True(t, b.PublishAsync(events.New(events.TaskCompleted, nil, events.WithID("async-1"))))

	select {
	case evt := <-delivered:
		assert.Equal(t, "async-1", evt.ID)
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not deliver the enqueued event")
	}
}

func TestPublishAsyncQueueFull(t *testing.T) {
	b := New(WithQueueSize(1))
	defer b.Close()

	started := make(chan struct{})
	release := make(chan struct{})
	b.Subscribe(events.TaskCompleted, func(ctx context.Context, evt events.Event) error {
		close(started)
		<-release
		return nil
	})

	// first event occupies the dispatcher
	require.True(t, b.PublishAsync(events.New(events.TaskCompleted, nil)))
	<-started

	// second fills the queue, third has nowhere to go
	require.True(t, b.PublishAsync(events.New(events.TaskCompleted, nil)))
	assert.False(t, b.PublishAsync(events.New(events.TaskCompleted, nil)))

	close(release)
}

func TestPublishAsyncAfterClose(t *testing.T) {
	b := New()
	b.Close()
	assert.False(t, b.PublishAsync(events.New(events.TaskCompleted, nil)))
}

func TestStatsSnapshot(t *testing.T) {
	b := New()
	defer b.Close()

	b.Subscribe(events.TaskCompleted, noop)
	b.Subscribe(events.MemoryCreated, noop)

	b.Publish(context.Background(), events.New(events.TaskCompleted, nil))

	stats := b.Stats()
	assert.EqualValues(t, 1, stats.EventsPublished)
	assert.EqualValues(t, 1, stats.EventsDelivered)
	assert.Equal(t, 2, stats.ActiveSubscribers)
	assert.Equal(t, 1, stats.HistorySize)
}

func TestReset(t *testing.T) {
	b := New()
	defer b.Close()

	b.Subscribe(events.TaskCompleted, noop)
	b.Publish(context.Background(), events.New(events.TaskCompleted, nil))
	require.NotZero(t, b.Stats().EventsPublished)

	b.Reset()

	stats := b.Stats()
	assert.Zero(t, stats.EventsPublished)
	assert.Zero(t, stats.EventsDelivered)
	assert.Zero(t, stats.ActiveSubscribers)
	assert.Zero(t, stats.HistorySize)
}

func TestSubscribeNilHandlerPanics(t *testing.T) {
	b := New()
	defer b.Close()
	assert.Panics(t, func() { b.Subscribe(events.TaskCompleted, nil) })
}
