package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// audioTTL bounds how long synthesized audio stays cached. Voice and
// model settings are part of the key, so stale entries only cost space.
const audioTTL = 24 * time.Hour

// Redis is a Store backed by a shared Redis instance, for deployments
// running more than one adapter process.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	audio, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return audio, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, audio []byte) error {
	return r.client.Set(ctx, key, audio, audioTTL).Err()
}
