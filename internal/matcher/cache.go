package matcher

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
)

// cachedResult - запись кэша с моментом вычисления
type cachedResult struct {
	result     Result
	computedAt time.Time
}

// CachedFinder кэширует подборки по пользователю.
// Любое изменение лайков или доступности вещей должно вызывать Invalidate:
// цикл затрагивает троих пользователей, поэтому сбрасывается весь кэш.
type CachedFinder struct {
	next  Suggester
	cache *lru.Cache
	ttl   time.Duration
	now   func() time.Time

	// generation растёт при каждой инвалидации; результат, посчитанный
	// в старом поколении, в кэш не попадает
	generation atomic.Uint64
}

// NewCachedFinder создаёт кэш поверх next. size <= 0 отключает кэширование.
func NewCachedFinder(next Suggester, size int, ttl time.Duration) (*CachedFinder, error) {
	cf := &CachedFinder{next: next, ttl: ttl, now: time.Now}
	if size <= 0 {
		return cf, nil
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	cf.cache = cache
	return cf, nil
}

// FindSuggestedTrades отдаёт результат из кэша или считает его заново.
// Ошибки не кэшируются.
func (cf *CachedFinder) FindSuggestedTrades(ctx context.Context, userID uuid.UUID) (Result, error) {
	if cf.cache == nil {
		return cf.next.FindSuggestedTrades(ctx, userID)
	}

	if v, ok := cf.cache.Get(userID); ok {
		entry := v.(cachedResult)
		if cf.ttl <= 0 || cf.now().Sub(entry.computedAt) < cf.ttl {
			suggestCacheHits.WithLabelValues("hit").Inc()
			return entry.result, nil
		}
		cf.cache.Remove(userID)
	}
	suggestCacheHits.WithLabelValues("miss").Inc()

	gen := cf.generation.Load()
	res, err := cf.next.FindSuggestedTrades(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	if cf.generation.Load() == gen {
		cf.cache.Add(userID, cachedResult{result: res, computedAt: cf.now()})
	}
	return res, nil
}

// Invalidate сбрасывает все закэшированные подборки
func (cf *CachedFinder) Invalidate() {
	cf.generation.Add(1)
	if cf.cache != nil {
		cf.cache.Purge()
	}
}
