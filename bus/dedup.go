package bus

import (
	"fmt"
	"hash/fnv"
	"sort"
	"sync/atomic"
	"time"

	"github.com/alphadose/haxmap"

	"github.com/gathering-ai/gathering/events"
)

// dedupCache suppresses repeats of an identical event within a time
// window. The key covers kind, source, circle, and a digest of the
// payload, so semantically distinct events never collide.
type dedupCache struct {
	seen   *haxmap.Map[string, time.Time]
	window atomic.Int64 // nanoseconds
}

func newDedupCache(window time.Duration) *dedupCache {
	c := &dedupCache{seen: haxmap.New[string, time.Time]()}
	c.window.Store(int64(window))
	return c
}

func (c *dedupCache) setWindow(window time.Duration) {
	c.window.Store(int64(window))
}

// suppress reports whether evt repeats an event seen within the window.
// When it does not, the sighting is recorded.
func (c *dedupCache) suppress(evt events.Event) bool {
	key := dedupKey(evt)
	now := time.Now()
	if last, ok := c.seen.Get(key); ok {
		if now.Sub(last) < time.Duration(c.window.Load()) {
			return true
		}
	}
	c.seen.Set(key, now)
	return false
}

// prune drops entries older than twice the window so the cache stays
// bounded between publishes.
func (c *dedupCache) prune() {
	now := time.Now()
	cutoff := 2 * time.Duration(c.window.Load())
	var expired []string
	c.seen.ForEach(func(key string, last time.Time) bool {
		if now.Sub(last) > cutoff {
			expired = append(expired, key)
		}
		return true
	})
	for _, key := range expired {
		c.seen.Del(key)
	}
}

func (c *dedupCache) clear() {
	var keys []string
	c.seen.ForEach(func(key string, _ time.Time) bool {
		keys = append(keys, key)
		return true
	})
	for _, key := range keys {
		c.seen.Del(key)
	}
}

func dedupKey(evt events.Event) string {
	return fmt.Sprintf("%s:%s:%s:%d",
		evt.Kind,
		formatID(evt.SourceAgentID),
		formatID(evt.CircleID),
		payloadDigest(evt.Payload),
	)
}

func formatID(id *int64) string {
	if id == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *id)
}

// payloadDigest hashes the payload as sorted key=value pairs so map
// iteration order cannot affect the key.
func payloadDigest(payload map[string]any) uint64 {
	if len(payload) == 0 {
		return 0
	}
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := fnv.New64a()
	for _, k := range keys {
		fmt.Fprintf(h, "%s=%v;", k, payload[k])
	}
	return h.Sum64()
}
