package notify

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/BruksfildServices01/barber-booking/internal/domain/booking"
	"github.com/BruksfildServices01/barber-booking/internal/store"
)

// DefaultClaimTTL outlives the booking window (today and tomorrow).
const DefaultClaimTTL = 72 * time.Hour

func ClaimKey(k booking.SlotKey) string {
	return "slot:" + k.String()
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisSlotClaimer holds slot claims as SETNX keys.
type RedisSlotClaimer struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisSlotClaimer(rdb *redis.Client, ttl time.Duration) *RedisSlotClaimer {
	if ttl <= 0 {
		ttl = DefaultClaimTTL
	}
	return &RedisSlotClaimer{rdb: rdb, ttl: ttl}
}

func (c *RedisSlotClaimer) Claim(ctx context.Context, key booking.SlotKey, owner string) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, ClaimKey(key), owner, c.ttl).Result()
	if err != nil {
		return false, store.Transient("claim", err)
	}
	if ok {
		return true, nil
	}

	cur, err := c.rdb.Get(ctx, ClaimKey(key)).Result()
	switch {
	case err == redis.Nil:
		// expired between SETNX and GET; try once more
		ok, err = c.rdb.SetNX(ctx, ClaimKey(key), owner, c.ttl).Result()
		if err != nil {
			return false, store.Transient("claim", err)
		}
		return ok, nil
	case err != nil:
		return false, store.Transient("claim", err)
	}
	return cur == owner, nil
}

func (c *RedisSlotClaimer) Release(ctx context.Context, key booking.SlotKey, owner string) error {
	if err := releaseScript.Run(ctx, c.rdb, []string{ClaimKey(key)}, owner).Err(); err != nil && err != redis.Nil {
		return store.Transient("release", err)
	}
	return nil
}

var _ booking.SlotClaimer = (*RedisSlotClaimer)(nil)
