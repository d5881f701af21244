package throttle

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis throttles communications across processes using SET NX with the
// cooldown window as TTL.
type Redis struct {
	client *redis.Client
	window time.Duration
}

func NewRedis(client *redis.Client, window time.Duration) *Redis {
	return &Redis{client: client, window: window}
}

func (r *Redis) Allow(ctx context.Context, loanID, commType string) (bool, error) {
	key := fmt.Sprintf("loanops:comms:%s:%s", loanID, commType)
	ok, err := r.client.SetNX(ctx, key, 1, r.window).Result()
	if err != nil {
		return false, fmt.Errorf("throttle check: %w", err)
	}
	return ok, nil
}
