package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"geargrid/adapters/session"
)

// Store 以 Redis hash 實作 session.IStore
type Store struct {
	client  *redis.Client
	options StoreOptions
}

type StoreOptions struct {
	Prefix string
	// TTL 為 0 時資料不會過期
	TTL time.Duration
}

type StoreOption func(*StoreOptions)

// WithStorePrefix 設定 Store 的 key 前綴
func WithStorePrefix(prefix string) StoreOption {
	return func(o *StoreOptions) {
		o.Prefix = prefix
	}
}

// WithStoreTTL 設定每次寫入後的過期時間
func WithStoreTTL(ttl time.Duration) StoreOption {
	return func(o *StoreOptions) {
		o.TTL = ttl
	}
}

var _ session.IStore = (*Store)(nil)

func NewStore(client *redis.Client, opts ...StoreOption) *Store {
	options := StoreOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	return &Store{
		client:  client,
		options: options,
	}
}

func (s *Store) Load(ctx context.Context, name string) (map[string]string, error) {
	const op = "redis.Store.Load"
	result, err := s.client.HGetAll(ctx, s.options.Prefix+name).Result()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to get hash: %w", op, err)
	}
	// key 不存在時 Redis 回傳空 map
	return result, nil
}

// saveScript 原子性地覆寫整個 hash，ARGV[1] 為過期秒數，其餘為欄位與值
var saveScript = redis.NewScript(`
local key = KEYS[1]
local ttl = tonumber(ARGV[1])
redis.call('DEL', key)
if #ARGV > 1 then
    redis.call('HSET', key, unpack(ARGV, 2))
    if ttl > 0 then
        redis.call('EXPIRE', key, ttl)
    end
end
return 1
`)

// Save 覆寫整份資料；空資料等同刪除
func (s *Store) Save(ctx context.Context, name string, data map[string]string) error {
	const op = "redis.Store.Save"
	args := make([]any, 0, len(data)*2+1)
	args = append(args, strconv.FormatInt(int64(s.options.TTL/time.Second), 10))
	for k, v := range data {
		args = append(args, k, v)
	}
	if err := saveScript.Run(ctx, s.client, []string{s.options.Prefix + name}, args...).Err(); err != nil {
		return fmt.Errorf("%s: failed to execute save script: %w", op, err)
	}
	return nil
}
