package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisURL — адрес по умолчанию для локальной разработки.
const DefaultRedisURL = "redis://localhost:6379/0"

// decrClampScript уменьшает счётчик и возвращает его к нулю, если он ушёл в минус.
// Отрицательный счётчик удаляется: DECR по отсутствующему ключу создаёт
// ключ без TTL, а отсутствие ключа и так читается как ноль.
var decrClampScript = redis.NewScript(`
local v = redis.call('DECR', KEYS[1])
if v < 0 then
  redis.call('DEL', KEYS[1])
  v = 0
end
return v
`)

// compareExpireScript продлевает TTL, только если ключ хранит ожидаемое значение.
var compareExpireScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)

// compareDelScript удаляет ключ, только если он хранит ожидаемое значение.
var compareDelScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

var _ Store = (*Redis)(nil)

// Redis — реализация Store поверх go-redis.
type Redis struct {
	client *redis.Client
}

// RedisOptions — параметры подключения.
type RedisOptions struct {
	// URL — redis://[:password@]host:port/db. По умолчанию DefaultRedisURL.
	URL string

	// PoolSize — размер пула соединений (0 — значение go-redis по умолчанию).
	PoolSize int
}

// NewRedis подключается к Redis и проверяет соединение.
func NewRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	url := opts.URL
	if url == "" {
		url = DefaultRedisURL
	}

	cfg, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if opts.PoolSize > 0 {
		cfg.PoolSize = opts.PoolSize
	}

	client := redis.NewClient(cfg)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Redis{client: client}, nil
}

// NewRedisFromClient оборачивает готовый клиент.
func NewRedisFromClient(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx %s: %w", key, err)
	}
	return ok, nil
}

func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return v, true, nil
}

func (r *Redis) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", key, err)
	}
	return n > 0, nil
}

func (r *Redis) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("del: %w", err)
	}
	return nil
}

// IncrWithTTL выполняет INCR и EXPIRE в одной транзакции (MULTI/EXEC).
func (r *Redis) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("incr %s: %w", key, err)
	}
	return incr.Val(), nil
}

func (r *Redis) DecrClamp(ctx context.Context, key string) (int64, error) {
	v, err := decrClampScript.Run(ctx, r.client, []string{key}).Int64()
	if err != nil {
		return 0, fmt.Errorf("decr %s: %w", key, err)
	}
	return v, nil
}

func (r *Redis) CompareAndExpire(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	n, err := compareExpireScript.Run(ctx, r.client, []string{key}, value, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("compare expire %s: %w", key, err)
	}
	return n == 1, nil
}

func (r *Redis) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	n, err := compareDelScript.Run(ctx, r.client, []string{key}, value).Int64()
	if err != nil {
		return false, fmt.Errorf("compare del %s: %w", key, err)
	}
	return n == 1, nil
}

func (r *Redis) ZAdd(ctx context.Context, key, member string, score float64) error {
	if err := r.client.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err(); err != nil {
		return fmt.Errorf("zadd %s: %w", key, err)
	}
	return nil
}

func (r *Redis) ZRangeByScore(ctx context.Context, key string, min, max float64, limit int64) ([]ScoredMember, error) {
	by := &redis.ZRangeBy{
		Min: formatScore(min),
		Max: formatScore(max),
	}
	if limit > 0 {
		by.Count = limit
	}

	zs, err := r.client.ZRangeByScoreWithScores(ctx, key, by).Result()
	if err != nil {
		return nil, fmt.Errorf("zrangebyscore %s: %w", key, err)
	}

	members := make([]ScoredMember, 0, len(zs))
	for _, z := range zs {
		member, ok := z.Member.(string)
		if !ok {
			member = fmt.Sprint(z.Member)
		}
		members = append(members, ScoredMember{Member: member, Score: z.Score})
	}
	return members, nil
}

func (r *Redis) ZRem(ctx context.Context, key, member string) (int64, error) {
	n, err := r.client.ZRem(ctx, key, member).Result()
	if err != nil {
		return 0, fmt.Errorf("zrem %s: %w", key, err)
	}
	return n, nil
}

func (r *Redis) ZCard(ctx context.Context, key string) (int64, error) {
	n, err := r.client.ZCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("zcard %s: %w", key, err)
	}
	return n, nil
}

// PushCapped выполняет LPUSH + LTRIM + EXPIRE одним pipeline.
func (r *Redis) PushCapped(ctx context.Context, key, value string, maxLen int64, ttl time.Duration) error {
	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, key, value)
	pipe.LTrim(ctx, key, 0, maxLen-1)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push %s: %w", key, err)
	}
	return nil
}

func (r *Redis) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	vals, err := r.client.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange %s: %w", key, err)
	}
	return vals, nil
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func formatScore(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "+inf"
	case math.IsInf(v, -1):
		return "-inf"
	default:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
}
