package repository

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tradeops/riskgate/internal/config"
	"github.com/tradeops/riskgate/internal/middleware"
)

type RedisClient struct {
	Client *redis.Client
}

func NewRedisClient(cfg *config.Config) (*RedisClient, error) {
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis address is empty")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisClient{Client: rdb}, nil
}

// RedisIdempotencyStore shares replay state across gateway replicas.
type RedisIdempotencyStore struct {
	client *RedisClient
	ttl    time.Duration
	prefix string
}

func NewRedisIdempotencyStore(client *RedisClient, ttl time.Duration) *RedisIdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisIdempotencyStore{
		client: client,
		ttl:    ttl,
		prefix: "idem:",
	}
}

type idemWire struct {
	Status      int    `json:"status"`
	Body        string `json:"body"`
	RequestHash string `json:"request_hash"`
	CreatedAt   int64  `json:"created_at"`
	Processing  bool   `json:"processing"`
}

func (s *RedisIdempotencyStore) GetOrLock(key, requestHash string) (*middleware.IdempotencyRecord, bool) {
	ctx := context.Background()
	payload := encodeIdemRecord(&middleware.IdempotencyRecord{
		RequestHash: requestHash,
		CreatedAt:   time.Now().UTC(),
		Processing:  true,
	})

	ok, err := s.client.Client.SetNX(ctx, s.prefix+key, payload, s.ttl).Result()
	if err == nil && ok {
		return nil, false
	}

	raw, err := s.client.Client.Get(ctx, s.prefix+key).Result()
	if err != nil {
		return nil, false
	}
	rec, err := decodeIdemRecord(raw)
	if err != nil {
		return nil, false
	}
	return rec, true
}

func (s *RedisIdempotencyStore) Save(key string, status int, body []byte, requestHash string) {
	ctx := context.Background()
	payload := encodeIdemRecord(&middleware.IdempotencyRecord{
		Status:      status,
		Body:        body,
		RequestHash: requestHash,
		CreatedAt:   time.Now().UTC(),
		Processing:  false,
	})
	_ = s.client.Client.Set(ctx, s.prefix+key, payload, s.ttl).Err()
}

func (s *RedisIdempotencyStore) Unlock(key string) {
	ctx := context.Background()
	_ = s.client.Client.Del(ctx, s.prefix+key).Err()
}

func encodeIdemRecord(rec *middleware.IdempotencyRecord) string {
	data, _ := json.Marshal(idemWire{
		Status:      rec.Status,
		Body:        base64.StdEncoding.EncodeToString(rec.Body),
		RequestHash: rec.RequestHash,
		CreatedAt:   rec.CreatedAt.Unix(),
		Processing:  rec.Processing,
	})
	return string(data)
}

func decodeIdemRecord(raw string) (*middleware.IdempotencyRecord, error) {
	var wire idemWire
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, err
	}
	body, _ := base64.StdEncoding.DecodeString(wire.Body)
	return &middleware.IdempotencyRecord{
		Status:      wire.Status,
		Body:        body,
		RequestHash: wire.RequestHash,
		CreatedAt:   time.Unix(wire.CreatedAt, 0).UTC(),
		Processing:  wire.Processing,
	}, nil
}
