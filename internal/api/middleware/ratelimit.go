package middleware

import (
	"net"
	"net/http"
	"time"

	apierrors "github.com/bigkaa/consultportal/internal/api/errors"
	"github.com/bigkaa/consultportal/internal/session"
)

// Limiter — ограничитель частоты по ключу.
type Limiter interface {
	Allow(key string) bool
	RetryAfter() time.Duration
}

// RateLimit ограничивает частоту запросов на субъекта.
// Ключ — пользователь сессии, без сессии — адрес клиента.
func RateLimit(l Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(limitKey(r)) {
				apierrors.RateLimited(w, "Слишком много запросов, повторите позже", l.RetryAfter())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func limitKey(r *http.Request) string {
	if sess := session.FromContext(r.Context()); sess != nil && sess.UserID != "" {
		return "user:" + sess.UserID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "addr:" + host
}
