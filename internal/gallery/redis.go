package gallery

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const DefaultRedisKey = "memorytrip:gallery"

var _ Store = (*RedisStore)(nil)

// RedisStore keeps the gallery in a capped redis list, newest at the head.
type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key}
}

func (r *RedisStore) Save(ctx context.Context, trip Trip) (Trip, error) {
	trip, err := prepare(trip)
	if err != nil {
		return Trip{}, err
	}
	data, err := json.Marshal(trip)
	if err != nil {
		return Trip{}, fmt.Errorf("failed to encode trip: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, r.key, data)
	pipe.LTrim(ctx, r.key, 0, MaxTrips-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return Trip{}, fmt.Errorf("failed to save trip: %w", err)
	}
	return trip, nil
}

func (r *RedisStore) List(ctx context.Context) ([]Trip, error) {
	raw, err := r.client.LRange(ctx, r.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list trips: %w", err)
	}
	trips := make([]Trip, 0, len(raw))
	for _, entry := range raw {
		var t Trip
		if err := json.Unmarshal([]byte(entry), &t); err != nil {
			log.Warn().Err(err).Str("key", r.key).Msg("skipping undecodable trip")
			continue
		}
		trips = append(trips, t)
	}
	return newestFirst(trips), nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	raw, err := r.client.LRange(ctx, r.key, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to list trips: %w", err)
	}
	for _, entry := range raw {
		var t Trip
		if err := json.Unmarshal([]byte(entry), &t); err != nil || t.ID != id {
			continue
		}
		if err := r.client.LRem(ctx, r.key, 1, entry).Err(); err != nil {
			return fmt.Errorf("failed to delete trip: %w", err)
		}
		return nil
	}
	return ErrTripNotFound
}
