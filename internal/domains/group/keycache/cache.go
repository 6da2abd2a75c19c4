// Package keycache implements KeyCache (spec §4.3): a TTL cache of key
// bundles used during KeyEpochCoordinator's prepare step. Backed by
// github.com/jellydator/ttlcache/v3, a dependency the teacher's go.mod
// already carries transitively (pulled in by its own caching needs) and
// which this package promotes to direct use — it is exactly the
// "TTL cache, concurrency-safe, get/set" contract the spec names.
package keycache

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// DefaultTTL is spec §4.3's "uniform (default 600 s)".
const DefaultTTL = 600 * time.Second

// KeyBundle is an opaque key-material blob; the cache never interprets it.
type KeyBundle []byte

type Cache struct {
	ttl   time.Duration
	cache *ttlcache.Cache[string, [][]byte]
}

func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := ttlcache.New[string, [][]byte](
		ttlcache.WithTTL[string, [][]byte](ttl),
	)
	go c.Start()
	return &Cache{ttl: ttl, cache: c}
}

func (c *Cache) Close() {
	c.cache.Stop()
}

func cacheKey(gid uint64, version uint64) string {
	return fmt.Sprintf("%d:%d", gid, version)
}

// Get returns a miss (found=false) rather than an error — spec §4.3:
// "Cache misses must never fail the caller."
func (c *Cache) Get(gid, version uint64) (bundles []KeyBundle, found bool) {
	item := c.cache.Get(cacheKey(gid, version))
	if item == nil {
		return nil, false
	}
	raw := item.Value()
	bundles = make([]KeyBundle, len(raw))
	for i, b := range raw {
		bundles[i] = KeyBundle(b)
	}
	return bundles, true
}

func (c *Cache) Set(gid, version uint64, bundles []KeyBundle) {
	raw := make([][]byte, len(bundles))
	for i, b := range bundles {
		raw[i] = []byte(b)
	}
	c.cache.Set(cacheKey(gid, version), raw, c.ttl)
}

// EncodeFramed implements spec §4.3's "length-prefixed framing of each
// bundle (4-byte little-endian length, then the bundle bytes)" — used when
// a key bundle set crosses a process boundary (e.g. quorum prepare
// response body) rather than staying in the in-process cache value.
func EncodeFramed(bundles []KeyBundle) []byte {
	var out []byte
	var lenBuf [4]byte
	for _, b := range bundles {
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(b)))
		out = append(out, lenBuf[:]...)
		out = append(out, b...)
	}
	return out
}

func DecodeFramed(data []byte) ([]KeyBundle, error) {
	var out []KeyBundle
	for len(data) > 0 {
		if len(data) < 4 {
			return nil, fmt.Errorf("keycache: truncated length prefix")
		}
		n := binary.LittleEndian.Uint32(data[:4])
		data = data[4:]
		if uint64(len(data)) < uint64(n) {
			return nil, fmt.Errorf("keycache: truncated bundle body")
		}
		out = append(out, KeyBundle(data[:n]))
		data = data[n:]
	}
	return out, nil
}
