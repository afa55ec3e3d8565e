package rpc

import (
	"net"
	"net/http"

	"github.com/SeungheonOh/xreserve-relay/config/params"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// clientLimiters tracks one token bucket per client address. Idle buckets
// are evicted after the configured TTL so the map cannot grow unbounded.
type clientLimiters struct {
	cache *gocache.Cache
}

func newClientLimiters() *clientLimiters {
	ttl := params.RelayNodeConfig().IntakeLimiterTTL
	return &clientLimiters{cache: gocache.New(ttl, 2*ttl)}
}

func (c *clientLimiters) limiterFor(client string) *rate.Limiter {
	if cached, ok := c.cache.Get(client); ok {
		c.cache.SetDefault(client, cached)
		return cached.(*rate.Limiter)
	}
	cfg := params.RelayNodeConfig()
	limiter := rate.NewLimiter(rate.Limit(cfg.IntakeRate), cfg.IntakeBurst)
	c.cache.SetDefault(client, limiter)
	return limiter
}

// throttleMiddleware applies the coarse per-IP request limit to every API
// endpoint. Requests over budget are rejected immediately; intake must
// never queue behind a noisy client.
func (s *Service) throttleMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			client = r.RemoteAddr
		}
		if !s.limiters.limiterFor(client).Allow() {
			throttledRequestsTotal.Inc()
			log.WithField("client", client).Debug("Throttling API request")
			writeErrorJson(w, "Too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
