package bus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fogfish/opts"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/gathering-ai/gathering/events"
	"github.com/gathering-ai/gathering/pkg/slogx"
	"github.com/gathering-ai/gathering/pkg/uuidx"
)

const (
	defaultMaxConcurrentHandlers = 100
	defaultHistorySize           = 1000
	defaultDedupWindow           = time.Second
	defaultQueueSize             = 256
)

// Config holds the tunable parameters of a Bus. It is populated through
// the With* options passed to New.
type Config struct {
	MaxConcurrentHandlers int
	HistorySize           int
	DedupWindow           time.Duration
	DedupEnabled          bool
	QueueSize             int
}

// Option configures a Bus during construction.
type Option = opts.Option[Config]

var (
	// WithMaxConcurrentHandlers caps the number of handler invocations
	// allowed to run simultaneously across all publishes (default 100).
	WithMaxConcurrentHandlers = opts.ForName[Config, int]("MaxConcurrentHandlers")
	// WithHistorySize sets the capacity of the bounded event history
	// (default 1000).
	WithHistorySize = opts.ForName[Config, int]("HistorySize")
	// WithDedupWindow sets the suppression window for duplicate events
	// (default 1s). Only relevant when deduplication is enabled.
	WithDedupWindow = opts.ForName[Config, time.Duration]("DedupWindow")
	// WithDedupEnabled toggles temporal deduplication. Disabled by
	// default; repeats of identical events are suppressed only when the
	// operator opts in.
	WithDedupEnabled = opts.ForName[Config, bool]("DedupEnabled")
	// WithQueueSize sets the capacity of the PublishAsync queue
	// (default 256).
	WithQueueSize = opts.ForName[Config, int]("QueueSize")
)

// Handler reacts to a published event. A non-nil error is logged and
// counted against the bus's handler_errors stat but never propagated.
type Handler func(ctx context.Context, evt events.Event) error

// Subscription is an opaque token identifying one registration. It is
// returned by Subscribe and passed back unmodified to Unsubscribe.
type Subscription struct {
	kind  events.Kind
	token string
}

type subscriber struct {
	token   string
	handler Handler
	filter  events.Predicate
	name    string
}

type subscribeOptions struct {
	filter events.Predicate
	name   string
}

// SubscribeOption configures a single registration.
type SubscribeOption func(*subscribeOptions)

// WithFilter restricts the registration to events the predicate accepts.
func WithFilter(p events.Predicate) SubscribeOption {
	return func(o *subscribeOptions) { o.filter = p }
}

// WithName attaches a display name used in handler-error logs.
func WithName(name string) SubscribeOption {
	return func(o *subscribeOptions) { o.name = name }
}

// Bus is the in-process event distribution core. The zero value is not
// usable; construct instances with New and release the background
// dispatcher with Close.
type Bus struct {
	mu       sync.RWMutex
	registry map[events.Kind]*orderedmap.OrderedMap[string, *subscriber]
	history  *historyRing

	limiter      atomic.Pointer[limiter]
	dedup        *dedupCache
	dedupEnabled atomic.Bool

	queue     chan events.Event
	done      chan struct{}
	closeOnce sync.Once

	published     atomic.Int64
	delivered     atomic.Int64
	deduplicated  atomic.Int64
	handlerErrors atomic.Int64
}

// New constructs a Bus and starts its background dispatcher.
func New(options ...Option) *Bus {
	cfg := Config{
		MaxConcurrentHandlers: defaultMaxConcurrentHandlers,
		HistorySize:           defaultHistorySize,
		DedupWindow:           defaultDedupWindow,
		QueueSize:             defaultQueueSize,
	}
	if err := opts.Apply(&cfg, options); err != nil {
		panic(err)
	}

	b := &Bus{
		registry: make(map[events.Kind]*orderedmap.OrderedMap[string, *subscriber]),
		history:  newHistoryRing(cfg.HistorySize),
		dedup:    newDedupCache(cfg.DedupWindow),
		queue:    make(chan events.Event, cfg.QueueSize),
		done:     make(chan struct{}),
	}
	b.limiter.Store(newLimiter(cfg.MaxConcurrentHandlers))
	b.dedupEnabled.Store(cfg.DedupEnabled)

	go b.dispatchLoop()
	return b
}

// Close stops the background dispatcher. Events still queued through
// PublishAsync are dropped; synchronous Publish keeps working.
func (b *Bus) Close() {
	b.closeOnce.Do(func() { close(b.done) })
}

// Subscribe registers a handler for events of the given kind. Duplicate
// registrations are allowed and each fires independently.
func (b *Bus) Subscribe(kind events.Kind, handler Handler, options ...SubscribeOption) Subscription {
	if handler == nil {
		panic("handler cannot be nil")
	}
	var so subscribeOptions
	for _, opt := range options {
		opt(&so)
	}

	sub := &subscriber{
		token:   uuidx.NewString(),
		handler: handler,
		filter:  so.filter,
		name:    so.name,
	}
	if sub.name == "" {
		sub.name = sub.token
	}

	b.mu.Lock()
	om := b.registry[kind]
	if om == nil {
		om = orderedmap.New[string, *subscriber]()
		b.registry[kind] = om
	}
	om.Set(sub.token, sub)
	b.mu.Unlock()

	return Subscription{kind: kind, token: sub.token}
}

// Unsubscribe removes the registration identified by sub. It returns
// true exactly once per subscription; later calls return false.
func (b *Bus) Unsubscribe(sub Subscription) bool {
	if sub.token == "" {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	om := b.registry[sub.kind]
	if om == nil {
		return false
	}
	_, present := om.Delete(sub.token)
	return present
}

// Publish delivers evt to every matching subscriber and blocks until the
// complete fan-out has finished. Handler invocations run concurrently,
// each gated by the shared limiter; failures are isolated per handler.
func (b *Bus) Publish(ctx context.Context, evt events.Event) {
	if b.dedupEnabled.Load() {
		if b.dedup.suppress(evt) {
			b.deduplicated.Add(1)
			return
		}
		if b.published.Load()%1000 == 0 {
			b.dedup.prune()
		}
	}

	b.mu.Lock()
	b.history.append(evt)
	b.mu.Unlock()

	b.published.Add(1)

	matched := b.eligible(ctx, evt)
	if len(matched) == 0 {
		return
	}

	lim := b.limiter.Load()
	var wg sync.WaitGroup
	for _, sub := range matched {
		wg.Add(1)
		go func(sub *subscriber) {
			defer wg.Done()
			lim.acquire()
			defer lim.release()
			b.invoke(ctx, sub, evt)
		}(sub)
	}
	wg.Wait()

	b.delivered.Add(int64(len(matched)))
}

// PublishAsync enqueues evt for delivery by the background dispatcher
// and returns immediately. It reports false when the queue is full or
// the bus is closed.
func (b *Bus) PublishAsync(evt events.Event) bool {
	select {
	case <-b.done:
		return false
	default:
	}
	select {
	case b.queue <- evt:
		return true
	default:
		return false
	}
}

func (b *Bus) dispatchLoop() {
	for {
		select {
		case <-b.done:
			return
		case evt := <-b.queue:
			b.Publish(context.Background(), evt)
		}
	}
}

// eligible snapshots the registrations for evt's kind and applies their
// filters. A panicking filter counts as a handler failure and skips that
// subscriber without touching the rest.
func (b *Bus) eligible(ctx context.Context, evt events.Event) []*subscriber {
	b.mu.RLock()
	om := b.registry[evt.Kind]
	var snapshot []*subscriber
	if om != nil {
		snapshot = make([]*subscriber, 0, om.Len())
		for pair := om.Oldest(); pair != nil; pair = pair.Next() {
			snapshot = append(snapshot, pair.Value)
		}
	}
	b.mu.RUnlock()

	matched := snapshot[:0]
	for _, sub := range snapshot {
		accepted, ok := b.evalFilter(ctx, sub, evt)
		if ok && accepted {
			matched = append(matched, sub)
		}
	}
	return matched
}

func (b *Bus) evalFilter(ctx context.Context, sub *subscriber, evt events.Event) (accepted, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			b.handlerErrors.Add(1)
			slog.ErrorContext(ctx, "subscription filter panicked",
				slog.String("handler", sub.name),
				slog.String("kind", evt.Kind.String()),
				slog.Any("panic", r),
			)
		}
	}()
	if sub.filter == nil {
		return true, true
	}
	return sub.filter(evt), true
}

func (b *Bus) invoke(ctx context.Context, sub *subscriber, evt events.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.handlerErrors.Add(1)
			slog.ErrorContext(ctx, "event handler panicked",
				slog.String("handler", sub.name),
				slog.String("kind", evt.Kind.String()),
				slog.Any("panic", r),
			)
		}
	}()
	if err := sub.handler(ctx, evt); err != nil {
		b.handlerErrors.Add(1)
		slog.ErrorContext(ctx, "event handler failed",
			slog.String("handler", sub.name),
			slog.String("kind", evt.Kind.String()),
			slogx.Error(err),
		)
	}
}

// ConfigUpdate carries runtime tuning changes. Nil fields are left
// untouched; all three parameters are independently settable.
type ConfigUpdate struct {
	MaxConcurrentHandlers *int
	DedupWindow           *time.Duration
	DedupEnabled          *bool
}

// Configure applies upd to the running bus. Replacing the limiter does
// not disturb in-flight invocations: they keep draining into the limiter
// they acquired from.
func (b *Bus) Configure(upd ConfigUpdate) {
	if upd.MaxConcurrentHandlers != nil {
		b.limiter.Store(newLimiter(*upd.MaxConcurrentHandlers))
	}
	if upd.DedupWindow != nil {
		b.dedup.setWindow(*upd.DedupWindow)
	}
	if upd.DedupEnabled != nil {
		b.dedupEnabled.Store(*upd.DedupEnabled)
	}
}

// Reset clears subscriptions, history, dedup state, and counters. It is
// intended for test isolation, not production use; prefer constructing a
// fresh Bus per test.
func (b *Bus) Reset() {
	b.mu.Lock()
	b.registry = make(map[events.Kind]*orderedmap.OrderedMap[string, *subscriber])
	b.history.clear()
	b.mu.Unlock()

	b.dedup.clear()
	b.limiter.Store(newLimiter(b.limiter.Load().capacity()))

	b.published.Store(0)
	b.delivered.Store(0)
	b.deduplicated.Store(0)
	b.handlerErrors.Store(0)
}
