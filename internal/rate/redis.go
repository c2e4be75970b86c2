package rate

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Redis is a fixed-window limiter over shared Redis counters, for
// multi-instance deployments where per-process counting would multiply the
// effective budget by the instance count.
type Redis struct {
	client redis.UniversalClient
	log    zerolog.Logger
}

func NewRedis(client redis.UniversalClient, log zerolog.Logger) *Redis {
	return &Redis{client: client, log: log}
}

// Allow increments the window counter for key and reports whether it is
// within budget. The TTL is set only on the first hit of a window. Store
// errors fail open: a down counter store should degrade limiting, not take
// the storefront down with it.
func (r *Redis) Allow(ctx context.Context, key string, p Policy) (bool, error) {
	if p.MaxRequests <= 0 || p.Window <= 0 {
		return true, nil
	}
	rkey := fmt.Sprintf("rl:%s", key)
	count, err := r.client.Incr(ctx, rkey).Result()
	if err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("rate limit store unavailable; failing open")
		return true, nil
	}
	if count == 1 {
		if err := r.client.PExpire(ctx, rkey, p.Window).Err(); err != nil {
			r.log.Warn().Err(err).Str("key", key).Msg("failed to set rate limit window TTL")
		}
	}
	return count <= int64(p.MaxRequests), nil
}
