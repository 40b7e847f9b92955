package cache

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"boxpeer/pkg/storage"
	"boxpeer/pkg/types"

	"github.com/redis/go-redis/v9"
)

// CachedStore 是一个装饰器，它为底层的 storage.Store 添加 Redis 存在性缓存
// 只缓存“存在”，不缓存“不存在”：探针宁可多查一次，也不能把缺失误报为驻留。
type CachedStore struct {
	backend storage.Store // 被装饰的底层存储 (如 S3)
	client  *redis.Client
	ttl     time.Duration
}

type Config struct {
	RedisURL string        // 标准连接字符串: redis://<user>:<password>@<host>:<port>/<db>
	TTL      time.Duration // 过期时间
}

func NewCachedStore(backend storage.Store, cfg Config) (*CachedStore, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	// Fail-fast 连接检查
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &CachedStore{
		backend: backend,
		client:  client,
		ttl:     cfg.TTL,
	}, nil
}

// cacheKey 添加前缀防止冲突
func (s *CachedStore) cacheKey(id types.CID) string {
	return "bp:pin:" + id.String()
}

// Has 优先查 Redis
func (s *CachedStore) Has(ctx context.Context, id types.CID) (bool, error) {
	key := s.cacheKey(id)

	// 1. 查 Redis
	val, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		// 缓存故障降级：退化为无缓存模式，直接查底层
		slog.Warn("redis exists failed, falling back to backend", "cid", id, "error", err)
	} else if val > 0 {
		return true, nil
	}

	// 2. 缓存未命中，查底层存储
	found, err := s.backend.Has(ctx, id)
	if err != nil {
		return false, err
	}

	// 3. 缓存回填 (异步，不阻塞主流程)
	if found {
		go func() {
			fillCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			s.client.Set(fillCtx, key, "1", s.ttl)
		}()
	}
	return found, nil
}

// Put 写穿：底层成功后才写 Redis
func (s *CachedStore) Put(ctx context.Context, id types.CID, data []byte) error {
	exists, err := s.Has(ctx, id)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if err := s.backend.Put(ctx, id, data); err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.cacheKey(id), "1", s.ttl).Err(); err != nil {
		slog.Warn("redis set failed", "cid", id, "error", err)
	}
	return nil
}

// Get 透传，不缓存内容字节
func (s *CachedStore) Get(ctx context.Context, id types.CID) (io.ReadCloser, error) {
	return s.backend.Get(ctx, id)
}

// Delete 先删缓存再删底层，避免短暂的“已删除但缓存仍说存在”
func (s *CachedStore) Delete(ctx context.Context, id types.CID) error {
	if err := s.client.Del(ctx, s.cacheKey(id)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return s.backend.Delete(ctx, id)
}

func (s *CachedStore) Close() error {
	return s.client.Close()
}
