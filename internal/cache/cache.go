// Package cache implements the process-wide subtitle cache (C11): a
// bounded LRU keyed by string, storing both subtitle-list results and
// decoded subtitle content, evicted by item count and by an estimated
// byte budget together.
package cache

import (
	"log/slog"
	"sync"

	"github.com/dustin/go-humanize"
	lru "github.com/hashicorp/golang-lru/v2"

	"mkvmatch/internal/logging"
	"mkvmatch/internal/model"
)

const bypassRatio = 0.5

type entryKind int

const (
	kindSubtitles entryKind = iota
	kindContent
)

type entry struct {
	kind      entryKind
	subtitles []model.SubtitleFile
	content   string
	size      int64
}

// Cache is a mutex-guarded LRU shared across a process: the only mutable
// cross-call state the matching pipeline carries between videos.
type Cache struct {
	mu       sync.Mutex
	items    *lru.Cache[string, entry]
	maxBytes int64
	bytes    int64
	logger   *slog.Logger
}

// Option configures a Cache at construction.
type Option func(*Cache)

// WithLogger attaches a logger for eviction reporting. Without one, Cache
// stays silent.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) { c.logger = logging.NewComponentLogger(logger, "cache") }
}

// New constructs a Cache bounded by maxItems entries and maxBytes of
// estimated combined payload size.
func New(maxItems int, maxBytes int64, opts ...Option) *Cache {
	if maxItems <= 0 {
		maxItems = 100
	}
	if maxBytes <= 0 {
		maxBytes = 512 * 1024 * 1024
	}
	c := &Cache{maxBytes: maxBytes}
	items, err := lru.NewWithEvict[string, entry](maxItems, func(_ string, evicted entry) {
		c.bytes -= evicted.size
	})
	if err != nil {
		// Only returns an error for a non-positive size, already guarded above.
		panic(err)
	}
	c.items = items
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetSubtitles returns a cached subtitle-list result for key, updating its
// recency on hit.
func (c *Cache) GetSubtitles(key string) ([]model.SubtitleFile, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items.Get(key)
	if !ok || e.kind != kindSubtitles {
		return nil, false
	}
	return e.subtitles, true
}

// PutSubtitles caches a subtitle-list result under key, bypassing entirely
// if its estimated size exceeds half the memory bound.
func (c *Cache) PutSubtitles(key string, subs []model.SubtitleFile) {
	size := estimateSubtitlesSize(subs)
	if float64(size) > float64(c.maxBytes)*bypassRatio {
		return
	}
	c.put(key, entry{kind: kindSubtitles, subtitles: subs, size: size})
}

// GetContent returns cached decoded subtitle content for key.
func (c *Cache) GetContent(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items.Get(key)
	if !ok || e.kind != kindContent {
		return "", false
	}
	return e.content, true
}

// PutContent caches decoded subtitle content under key, with the same
// bypass rule as PutSubtitles.
func (c *Cache) PutContent(key, content string) {
	size := int64(len(content))
	if float64(size) > float64(c.maxBytes)*bypassRatio {
		return
	}
	c.put(key, entry{kind: kindContent, content: content, size: size})
}

func (c *Cache) put(key string, e entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.items.Peek(key); ok {
		c.bytes -= old.size
	}
	c.items.Add(key, e)
	c.bytes += e.size

	evicted := 0
	for c.bytes > c.maxBytes {
		_, _, ok := c.items.RemoveOldest()
		if !ok {
			break
		}
		evicted++
	}
	if evicted > 0 && c.logger != nil {
		c.logger.Info("evicted entries over byte budget", logging.Args(
			logging.Int("evicted", evicted),
			logging.String("size", humanize.Bytes(uint64(c.bytes))),
			logging.String("budget", humanize.Bytes(uint64(c.maxBytes))),
		)...)
	}
}

// Clear empties the cache and resets its byte counter.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items.Purge()
	c.bytes = 0
}

// Len reports the current number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.items.Len()
}

func estimateSubtitlesSize(subs []model.SubtitleFile) int64 {
	var total int64
	for _, s := range subs {
		total += int64(len(s.Path) + len(s.Language) + len(s.EpisodeInfo.SeriesName) + len(s.Content))
	}
	return total
}
