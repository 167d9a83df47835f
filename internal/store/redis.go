package store

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis holds the client shared by the scan-log queue and the rate limiter.
type Redis struct {
	Client *redis.Client
}

// NewRedis accepts a bare host:port or a redis:// / rediss:// URL (managed
// instances hand out the latter, with credentials and db index).
func NewRedis(addr string) *Redis {
	opts := &redis.Options{Addr: addr}
	if strings.Contains(addr, "://") {
		if parsed, err := redis.ParseURL(addr); err == nil {
			opts = parsed
		}
	}
	opts.DialTimeout = 2 * time.Second
	// BRPOP blocks for up to 5s; reads must outlast it.
	opts.ReadTimeout = 6 * time.Second
	opts.WriteTimeout = time.Second
	return &Redis{Client: redis.NewClient(opts)}
}

// Healthy pings the server.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Client.Ping(ctx).Err() == nil
}

// Close releases the pool. Safe on a nil receiver.
func (r *Redis) Close() error {
	if r == nil || r.Client == nil {
		return nil
	}
	return r.Client.Close()
}
