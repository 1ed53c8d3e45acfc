package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ricesearch/fairrank/internal/config"
	apperrors "github.com/ricesearch/fairrank/internal/pkg/errors"
)

// RedisStore keeps reports in Redis: one JSON string per report plus a sorted
// set indexing report IDs by creation time.
type RedisStore struct {
	client   *redis.Client
	prefix   string
	ttl      time.Duration
	maxItems int
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg config.StoreConfig) (*RedisStore, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "fairrank:"
	}

	return &RedisStore{
		client:   client,
		prefix:   prefix,
		ttl:      cfg.TTL,
		maxItems: cfg.MaxItems,
	}, nil
}

func (rs *RedisStore) reportKey(id string) string { return rs.prefix + "report:" + id }

func (rs *RedisStore) indexKey() string { return rs.prefix + "reports" }

// Save stores a report and indexes it. Expired and surplus index entries are
// trimmed in the same transaction.
func (rs *RedisStore) Save(ctx context.Context, r *Report) error {
	if r == nil || r.ID == "" {
		return apperrors.ValidationError("report must have an id")
	}

	data, err := json.Marshal(r)
	if err != nil {
		return apperrors.StoreError("encoding report", err)
	}

	pipe := rs.client.TxPipeline()
	pipe.Set(ctx, rs.reportKey(r.ID), data, rs.ttl)
	pipe.ZAdd(ctx, rs.indexKey(), redis.Z{
		Score:  float64(r.CreatedAt.UnixMilli()),
		Member: r.ID,
	})
	if rs.ttl > 0 {
		cutoff := time.Now().Add(-rs.ttl).UnixMilli()
		pipe.ZRemRangeByScore(ctx, rs.indexKey(), "-inf", "("+strconv.FormatInt(cutoff, 10))
	}
	if rs.maxItems > 0 {
		pipe.ZRemRangeByRank(ctx, rs.indexKey(), 0, int64(-rs.maxItems-1))
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return apperrors.StoreError("saving report", err)
	}
	return nil
}

// Get returns a report by ID.
func (rs *RedisStore) Get(ctx context.Context, id string) (*Report, error) {
	data, err := rs.client.Get(ctx, rs.reportKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, apperrors.StoreError("loading report", err)
	}

	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, apperrors.StoreError("decoding report", err)
	}
	return &r, nil
}

// List returns report summaries, newest first. Index entries whose report has
// expired are removed on the way.
func (rs *RedisStore) List(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	ids, err := rs.client.ZRevRange(ctx, rs.indexKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, apperrors.StoreError("listing reports", err)
	}
	if len(ids) == 0 {
		return []Summary{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = rs.reportKey(id)
	}
	values, err := rs.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, apperrors.StoreError("loading reports", err)
	}

	summaries := make([]Summary, 0, len(ids))
	var stale []any
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var r Report
		if err := json.Unmarshal([]byte(s), &r); err != nil {
			// Skip invalid entries
			continue
		}
		summaries = append(summaries, r.Summary())
	}

	if len(stale) > 0 {
		if err := rs.client.ZRem(ctx, rs.indexKey(), stale...).Err(); err != nil {
			return nil, apperrors.StoreError("pruning report index", err)
		}
	}
	return summaries, nil
}

// Close closes the Redis connection.
func (rs *RedisStore) Close() error {
	return rs.client.Close()
}
