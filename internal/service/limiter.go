// limiter.go — ограничение частоты запросов по ключу (субъект JWT или IP).
// Token bucket golang.org/x/time/rate на ключ; неактивные ключи
// вытесняются LRU-кэшем с TTL.
package service

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

var rateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "cp_rate_limited_total",
	Help: "Количество запросов, отклонённых ограничением частоты.",
})

// RateLimiter — набор token bucket по ключам.
type RateLimiter struct {
	mu       sync.Mutex
	limiters *expirable.LRU[string, *rate.Limiter]
	interval time.Duration
	burst    int
}

// NewRateLimiter создаёт ограничитель: perMinute запросов в минуту на ключ,
// perMinute >= 1, не более maxKeys ключей, ключ забывается через idleTTL после последнего добавления.
func NewRateLimiter(perMinute, maxKeys int, idleTTL time.Duration) *RateLimiter {
	return &RateLimiter{
		limiters: expirable.NewLRU[string, *rate.Limiter](maxKeys, nil, idleTTL),
		interval: time.Minute / time.Duration(perMinute),
		burst:    perMinute,
	}
}

// Allow расходует токен ключа. false — лимит исчерпан.
func (l *RateLimiter) Allow(key string) bool {
	l.mu.Lock()
	lim, ok := l.limiters.Get(key)
	if !ok {
		lim = rate.NewLimiter(rate.Every(l.interval), l.burst)
		l.limiters.Add(key, lim)
	}
	l.mu.Unlock()

	if lim.Allow() {
		return true
	}
	rateLimitedTotal.Inc()
	return false
}

// RetryAfter — интервал пополнения одного токена.
func (l *RateLimiter) RetryAfter() time.Duration {
	return l.interval
}
