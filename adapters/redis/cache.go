package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"geargrid/listing"
	"geargrid/models"
)

const DefaultIndexTTL = time.Minute

type indexCacheOptions struct {
	prefix string
	ttl    time.Duration
}

type IndexCacheOption func(*indexCacheOptions)

// WithIndexCachePrefix 設置 key 前綴
func WithIndexCachePrefix(prefix string) IndexCacheOption {
	return func(o *indexCacheOptions) {
		o.prefix = prefix
	}
}

// WithIndexCacheTTL 設置每筆查詢結果的存活時間
func WithIndexCacheTTL(ttl time.Duration) IndexCacheOption {
	return func(o *indexCacheOptions) {
		o.ttl = ttl
	}
}

// IndexCache 以版本號快取刊登列表查詢結果；
// Invalidate 只遞增版本號，舊版本的資料由 TTL 自然清除。
type IndexCache struct {
	client  *redis.Client
	options indexCacheOptions
}

var _ listing.IndexCache = (*IndexCache)(nil)

func NewIndexCache(client *redis.Client, opts ...IndexCacheOption) *IndexCache {
	options := indexCacheOptions{
		prefix: "geargrid:listing:",
		ttl:    DefaultIndexTTL,
	}
	for _, opt := range opts {
		opt(&options)
	}
	return &IndexCache{client: client, options: options}
}

func (c *IndexCache) versionKey() string {
	return c.options.prefix + "version"
}

func (c *IndexCache) entryKey(version int64, query string) string {
	return c.options.prefix + "v" + strconv.FormatInt(version, 10) + ":q:" + query
}

func (c *IndexCache) version(ctx context.Context) (int64, error) {
	version, err := c.client.Get(ctx, c.versionKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return version, err
}

// Load 回傳查詢結果與讀取時的版本號，未命中時版本號仍然有效
func (c *IndexCache) Load(ctx context.Context, query string) ([]models.Car, int64, bool, error) {
	const op = "redis.IndexCache.Load"
	version, err := c.version(ctx)
	if err != nil {
		return nil, 0, false, fmt.Errorf("%s: failed to get version: %w", op, err)
	}
	data, err := c.client.Get(ctx, c.entryKey(version, query)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, version, false, nil
	}
	if err != nil {
		return nil, version, false, fmt.Errorf("%s: failed to get entry: %w", op, err)
	}
	var cars []models.Car
	if err := msgpack.Unmarshal(data, &cars); err != nil {
		return nil, version, false, fmt.Errorf("%s: failed to decode entry: %w", op, err)
	}
	if cars == nil {
		cars = []models.Car{}
	}
	return cars, version, true, nil
}

// Store 將結果寫在 Load 讀到的版本下；期間若已失效，這筆資料不會再被讀到
func (c *IndexCache) Store(ctx context.Context, query string, version int64, cars []models.Car) error {
	const op = "redis.IndexCache.Store"
	data, err := msgpack.Marshal(cars)
	if err != nil {
		return fmt.Errorf("%s: failed to encode entry: %w", op, err)
	}
	if err := c.client.Set(ctx, c.entryKey(version, query), data, c.options.ttl).Err(); err != nil {
		return fmt.Errorf("%s: failed to set entry: %w", op, err)
	}
	return nil
}

func (c *IndexCache) Invalidate(ctx context.Context) error {
	if err := c.client.Incr(ctx, c.versionKey()).Err(); err != nil {
		return fmt.Errorf("redis.IndexCache.Invalidate: failed to bump version: %w", err)
	}
	return nil
}
