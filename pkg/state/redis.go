package state

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the hash holding one field per stream.
const DefaultRedisKey = "zoomphone:state:bookmarks"

// RedisStore keeps bookmarks in a Redis hash, one JSON encoded Bookmark per
// stream field.
type RedisStore struct {
	redis *redis.Client
	key   string
}

// NewRedisStore returns a store using key, or DefaultRedisKey when key is empty.
func NewRedisStore(redisClient *redis.Client, key string) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{redis: redisClient, key: key}
}

// Load reads all bookmarks. A missing hash yields an empty state.
func (r *RedisStore) Load(ctx context.Context) (*State, error) {
	fields, err := r.redis.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}

	s := New()
	for stream, raw := range fields {
		var b Bookmark
		if err := json.Unmarshal([]byte(raw), &b); err != nil {
			return nil, fmt.Errorf("decode bookmark %s: %w", stream, err)
		}
		s.Set(stream, b)
	}
	return s, nil
}

// Save writes every bookmark of s. Streams missing from s are left untouched.
func (r *RedisStore) Save(ctx context.Context, s *State) error {
	bookmarks := s.Snapshot()
	if len(bookmarks) == 0 {
		return nil
	}

	values := make(map[string]any, len(bookmarks))
	for stream, b := range bookmarks {
		data, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("encode bookmark %s: %w", stream, err)
		}
		values[stream] = string(data)
	}

	if err := r.redis.HSet(ctx, r.key, values).Err(); err != nil {
		return fmt.Errorf("redis hset: %w", err)
	}
	return nil
}
