package resolver

import (
	"errors"
	"fmt"
	"time"

	"github.com/bluele/gcache"
)

const (
	minTTL = 60           // 1 minute
	maxTTL = 24 * 60 * 60 // 24 hours

	defaultCacheSize = 1024
)

// ErrCacheMiss is returned by caches when no usable row exists.
var ErrCacheMiss = errors.New("cache entry not found")

// Cache stores answer sets under the canonical query key. Get with
// allowStale also returns rows past their TTL.
type Cache interface {
	Get(key string, allowStale bool) (*AnswerSet, error)
	Save(qname string, qtype uint16, set *AnswerSet) error
}

// MemoryCache is an LRU-backed answer cache. Freshness is tracked on
// the row itself rather than by evicting, so stale reads stay
// possible.
type MemoryCache struct {
	rows gcache.Cache
}

type cachedAnswers struct {
	set     *AnswerSet
	expires int64 // unix seconds, 0 = never
}

func (row *cachedAnswers) expired() bool {
	return row.expires != 0 && row.expires <= time.Now().Unix()
}

// NewMemoryCache returns a memory cache holding up to size rows.
func NewMemoryCache(size int) *MemoryCache {
	if size <= 0 {
		size = defaultCacheSize
	}
	return &MemoryCache{
		rows: gcache.New(size).LRU().Build(),
	}
}

// Get implements Cache.
func (mc *MemoryCache) Get(key string, allowStale bool) (*AnswerSet, error) {
	value, err := mc.rows.Get(key)
	if err != nil {
		if errors.Is(err, gcache.KeyNotFoundError) {
			return nil, ErrCacheMiss
		}
		return nil, err
	}

	row, ok := value.(*cachedAnswers)
	if !ok {
		return nil, fmt.Errorf("unexpected cache row type %T", value)
	}
	if !allowStale && row.expired() {
		return nil, ErrCacheMiss
	}
	return row.set, nil
}

// Save implements Cache.
func (mc *MemoryCache) Save(qname string, qtype uint16, set *AnswerSet) error {
	if set == nil {
		return errors.New("cannot cache nil answers")
	}
	return mc.rows.Set(cacheKey(qname, qtype), &cachedAnswers{
		set:     set,
		expires: answersExpiry(set),
	})
}

// answersExpiry derives the row expiry from the lowest answer TTL,
// clamped to sane bounds. The TTLNeverExpire sentinel keeps the row
// fresh forever.
func answersExpiry(set *AnswerSet) int64 {
	lowest := int64(maxTTL)
	for _, answer := range set.Answers {
		if answer.TTL == TTLNeverExpire {
			return 0
		}
		if answer.TTL < lowest {
			lowest = answer.TTL
		}
	}
	if lowest < minTTL {
		lowest = minTTL
	}
	return time.Now().Unix() + lowest
}
