package speech

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
)

// audioCache keeps recently synthesized audio in memory so that replaying an
// answer (manual playback, read-aloud after autoplay) skips the network.
// The key covers the voice and prosody, so a preference change misses.
type audioCache struct {
	mu      sync.Mutex
	limit   int
	order   []string
	entries map[string][]byte
	hits    int64
	misses  int64
}

func newAudioCache(limit int) *audioCache {
	if limit <= 0 {
		limit = 32
	}
	return &audioCache{limit: limit, entries: make(map[string][]byte)}
}

func (c *audioCache) get(r Request) ([]byte, bool) {
	key := cacheKey(r)
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.entries[key]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return data, ok
}

// put stores audio, evicting the oldest entry once the limit is reached.
func (c *audioCache) put(r Request, audio []byte) {
	key := cacheKey(r)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		c.entries[key] = audio
		return
	}
	if len(c.order) >= c.limit {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.order = append(c.order, key)
	c.entries[key] = audio
}

func (c *audioCache) stats() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func cacheKey(r Request) string {
	raw := fmt.Sprintf("%s|%s|%.2f|%.2f|%.2f|%s", voiceOrDefault(r.Voice), r.Lang, r.Rate, r.Pitch, r.Volume, r.Text)
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}
