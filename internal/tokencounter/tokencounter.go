// Package tokencounter implements spec §4.3's TokenCounter: a pure
// function with a bounded cache keyed by content hash, backed by real
// BPE encoding where the model is known and a generic estimate otherwise.
package tokencounter

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/pkoukk/tiktoken-go"
)

// defaultExpiration and cleanupInterval bound the cache's memory growth;
// entries for content nobody re-counts within an hour are evicted.
const (
	defaultExpiration = time.Hour
	cleanupInterval   = 10 * time.Minute
)

// Counter counts tokens for a fixed model, with a process-wide cache of
// content-hash -> count so repeated counts of the same HOT/WARM item
// across dispatch cycles don't re-run the encoder.
type Counter struct {
	model    string
	encoding *tiktoken.Tiktoken
	cache    *cache.Cache
	mu       sync.RWMutex
}

// New builds a Counter for model, falling back to the generic cl100k_base
// encoding if the model is unrecognized by tiktoken-go (spec §4.3 "for
// unknown models falls back to a generic byte-pair encoding").
func New(model string) (*Counter, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("failed to initialize token encoding: %w", err)
		}
	}
	return &Counter{
		model:    model,
		encoding: enc,
		cache:    cache.New(defaultExpiration, cleanupInterval),
	}, nil
}

func hashOf(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Count returns the token count for content, consulting the cache first.
func (c *Counter) Count(content string) int {
	key := hashOf(content)
	if cached, ok := c.cache.Get(key); ok {
		return cached.(int)
	}

	c.mu.RLock()
	tokens := len(c.encoding.Encode(content, nil, nil))
	c.mu.RUnlock()

	c.cache.Set(key, tokens, cache.DefaultExpiration)
	return tokens
}

// CountBatch counts a slice of independent contents; callers may invoke
// this concurrently from multiple goroutines over disjoint batches since
// the cache and encoding are both safe for concurrent reads.
func (c *Counter) CountBatch(contents []string) []int {
	out := make([]int, len(contents))
	var wg sync.WaitGroup
	for i, content := range contents {
		wg.Add(1)
		go func(i int, content string) {
			defer wg.Done()
			out[i] = c.Count(content)
		}(i, content)
	}
	wg.Wait()
	return out
}

// Sum is a convenience for computing an aggregate token count across
// several pieces of content (e.g. HOT+WARM+COLD tiers for flash-save).
func (c *Counter) Sum(contents []string) int {
	total := 0
	for _, n := range c.CountBatch(contents) {
		total += n
	}
	return total
}

// Model reports which model this counter's encoding was resolved for.
func (c *Counter) Model() string {
	return c.model
}
