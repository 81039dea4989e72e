package claims

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the claim only if the calling station still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis shares claims between validator stations through SET NX with a TTL, so a
// crashed station's claim expires on its own.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, ttl: ttl}
}

func (r *Redis) Acquire(ctx context.Context, eventID, ticketID, station string) (bool, error) {
	k := key(eventID, ticketID)
	ok, err := r.client.SetNX(ctx, k, station, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim ticket: %w", err)
	}
	if ok {
		return true, nil
	}

	owner, err := r.client.Get(ctx, k).Result()
	if err == redis.Nil {
		// Expired between SETNX and GET.
		return r.client.SetNX(ctx, k, station, r.ttl).Result()
	}
	if err != nil {
		return false, fmt.Errorf("failed to read ticket claim: %w", err)
	}
	return owner == station, nil
}

func (r *Redis) Release(ctx context.Context, eventID, ticketID, station string) error {
	if err := releaseScript.Run(ctx, r.client, []string{key(eventID, ticketID)}, station).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("failed to release ticket claim: %w", err)
	}
	return nil
}
