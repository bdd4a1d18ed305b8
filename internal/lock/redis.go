package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const unlockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// Redis holds locks as SET NX PX keys so several bot replicas can share them.
type Redis struct {
	client        *redis.Client
	prefix        string
	ttl           time.Duration
	retryInterval time.Duration
	maxRetries    int
	unlock        *redis.Script
}

func NewRedis(client *redis.Client, ttl, retryInterval time.Duration, maxRetries int) *Redis {
	if maxRetries <= 0 {
		maxRetries = 1
	}
	return &Redis{
		client:        client,
		prefix:        "shopbot:lock:",
		ttl:           ttl,
		retryInterval: retryInterval,
		maxRetries:    maxRetries,
		unlock:        redis.NewScript(unlockScript),
	}
}

func (r *Redis) Lock(ctx context.Context, keys ...string) (func(), error) {
	token := uuid.NewString()
	keys = orderedKeys(keys)
	held := make([]string, 0, len(keys))
	release := func() {
		// Released even when the caller's context is done.
		bg, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		for i := len(held) - 1; i >= 0; i-- {
			_ = r.unlock.Run(bg, r.client, []string{held[i]}, token).Err()
		}
	}
	for _, key := range keys {
		full := r.prefix + key
		if err := r.acquire(ctx, full, token); err != nil {
			release()
			return nil, err
		}
		held = append(held, full)
	}
	return release, nil
}

func (r *Redis) acquire(ctx context.Context, key, token string) error {
	for i := 0; i < r.maxRetries; i++ {
		ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		timer := time.NewTimer(r.retryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return ErrLockFailed
}
