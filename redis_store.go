package pubfront

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps snapshots in Redis so several server instances share
// regenerated pages.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to the Redis server at addr. Snapshots expire after
// ttl; zero keeps them until overwritten.
func NewRedisStore(ctx context.Context, addr string, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

// add a prefix not to collide with other data stored in the same redis
func (s *RedisStore) key(route string) string {
	return "snapshot:" + route
}

func (s *RedisStore) Load(ctx context.Context, route string) (Snapshot, error) {
	fields, err := s.client.HGetAll(ctx, s.key(route)).Result()
	if err != nil {
		return Snapshot{}, err
	}
	payload, ok := fields["payload"]
	if !ok {
		return Snapshot{}, ErrSnapshotMissing
	}
	generated, err := strconv.ParseInt(fields["generated_at"], 10, 64)
	if err != nil {
		return Snapshot{}, errors.Join(ErrSnapshotMissing, err)
	}
	return Snapshot{Route: route, Payload: []byte(payload), GeneratedAt: time.UnixMilli(generated)}, nil
}

func (s *RedisStore) Save(ctx context.Context, snap Snapshot) error {
	key := s.key(snap.Route)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, "payload", snap.Payload, "generated_at", snap.GeneratedAt.UnixMilli())
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	return err
}

func (s *RedisStore) Delete(ctx context.Context, route string) error {
	return s.client.Del(ctx, s.key(route)).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
