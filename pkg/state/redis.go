package state

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/encoding/json"
)

// DefaultRedisNamespace prefixes every key written by RedisStore.
const DefaultRedisNamespace = "credly"

// redisRecord is the JSON value of both record kinds.
type redisRecord struct {
	Watermark     string `json:"watermark,omitempty"`
	PayloadHash   string `json:"payload_hash,omitempty"`
	RecordCount   int    `json:"record_count,omitempty"`
	LastUpdatedAt string `json:"last_updated_at,omitempty"`
	UpdatedAt     string `json:"updated_at"`
}

// RedisStore keeps watermarks and fingerprints in Redis without expiry.
// It implements both store interfaces and suits local runs where the AWS
// parameter and metadata stores are not available.
type RedisStore struct {
	redis     *redis.Client
	namespace string
	now       func() time.Time
}

// NewRedisStore creates a Redis backed state store.
func NewRedisStore(redisClient *redis.Client, namespace string) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if namespace == "" {
		namespace = DefaultRedisNamespace
	}
	return &RedisStore{
		redis:     redisClient,
		namespace: namespace,
		now:       time.Now,
	}
}

// Key generates the Redis key of a record.
// Format: {namespace}:{kind}:{name}, with "/" in name replaced by ":".
//
// Example:
//
//	credly:watermark:badges:pending
func (s *RedisStore) Key(kind, name string) string {
	name = strings.ReplaceAll(strings.Trim(name, "/"), "/", ":")
	return strings.Join([]string{s.namespace, kind, name}, ":")
}

// GetWatermark implements WatermarkStore.
func (s *RedisStore) GetWatermark(ctx context.Context, key string) (*Watermark, error) {
	rec, err := s.get(ctx, s.Key("watermark", key))
	if err != nil {
		return nil, err
	}
	if rec.Watermark == "" {
		return nil, ErrNotFound
	}

	ts, err := ParseWatermark(rec.Watermark)
	if err != nil {
		return nil, fmt.Errorf("parse watermark %s: %w", key, err)
	}
	w := &Watermark{Key: key, Watermark: ts}
	if updated, err := time.Parse(time.RFC3339Nano, rec.UpdatedAt); err == nil {
		w.UpdatedAt = updated
	}
	return w, nil
}

// PutWatermark implements WatermarkStore.
func (s *RedisStore) PutWatermark(ctx context.Context, key string, watermark time.Time) error {
	return s.set(ctx, s.Key("watermark", key), redisRecord{
		Watermark: FormatWatermark(watermark),
		UpdatedAt: s.now().UTC().Format(time.RFC3339Nano),
	})
}

// GetFingerprint implements FingerprintStore.
func (s *RedisStore) GetFingerprint(ctx context.Context, dataset string) (*Fingerprint, error) {
	rec, err := s.get(ctx, s.Key("fingerprint", dataset))
	if err != nil {
		return nil, err
	}
	if rec.PayloadHash == "" {
		return nil, ErrNotFound
	}

	fp := &Fingerprint{Dataset: dataset, PayloadHash: rec.PayloadHash, RecordCount: rec.RecordCount}
	if t, err := time.Parse(time.RFC3339Nano, rec.LastUpdatedAt); err == nil {
		fp.LastUpdatedAt = t
	}
	return fp, nil
}

// PutFingerprint implements FingerprintStore.
func (s *RedisStore) PutFingerprint(ctx context.Context, fp Fingerprint) error {
	return s.set(ctx, s.Key("fingerprint", fp.Dataset), redisRecord{
		PayloadHash:   fp.PayloadHash,
		RecordCount:   fp.RecordCount,
		LastUpdatedAt: fp.LastUpdatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:     s.now().UTC().Format(time.RFC3339Nano),
	})
}

func (s *RedisStore) get(ctx context.Context, key string) (*redisRecord, error) {
	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		storeErrors.WithLabelValues("redis", "get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var rec redisRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		storeErrors.WithLabelValues("redis", "get").Inc()
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &rec, nil
}

func (s *RedisStore) set(ctx context.Context, key string, rec redisRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.redis.Set(ctx, key, data, 0).Err(); err != nil {
		storeErrors.WithLabelValues("redis", "set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
