package custody

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisWatchQueueConfig 描述 Redis 观察队列的连接参数。
type RedisWatchQueueConfig struct {
	Address   string
	Password  string
	DB        int
	Queue     string
	BlockWait time.Duration
}

// RedisWatchQueue 使用 Redis list 实现观察队列,
// 多个实例可以共享同一条队列分摊回执轮询。
type RedisWatchQueue struct {
	client *redis.Client
	queue  string
	wait   time.Duration
}

// NewRedisWatchQueue 创建 Redis 观察队列实例。
func NewRedisWatchQueue(cfg RedisWatchQueueConfig) (*RedisWatchQueue, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	queue := cfg.Queue
	if queue == "" {
		queue = "safeguard:watch"
	}
	wait := cfg.BlockWait
	if wait <= 0 {
		wait = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return &RedisWatchQueue{client: client, queue: queue, wait: wait}, nil
}

// Publish 将流程投递到 Redis。
func (q *RedisWatchQueue) Publish(ctx context.Context, flowID string) error {
	if err := q.client.LPush(ctx, q.queue, flowID).Err(); err != nil {
		return fmt.Errorf("Redis 发布流程失败: %w", err)
	}
	return nil
}

// Consume 通过 BRPOP 从 Redis 获取流程。
func (q *RedisWatchQueue) Consume(ctx context.Context, workerCount int, handler WatchHandler) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	errCh := make(chan error, workerCount)
	for i := 0; i < workerCount; i++ {
		go func() {
			for {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				default:
				}
				values, err := q.client.BRPop(ctx, q.wait, q.queue).Result()
				if err != nil {
					if errors.Is(err, context.Canceled) || errors.Is(err, redis.ErrClosed) {
						errCh <- err
						return
					}
					if err == redis.Nil {
						continue
					}
					errCh <- fmt.Errorf("Redis 取流程失败: %w", err)
					return
				}
				if len(values) != 2 {
					continue
				}
				flowID := values[1]
				if handlerErr := handler(ctx, flowID); handlerErr != nil {
					// 处理失败时重新投递流程。
					_ = q.client.RPush(ctx, q.queue, flowID).Err()
				}
			}
		}()
	}
	// 等待第一个错误或取消信号。
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Close 关闭 Redis 连接。
func (q *RedisWatchQueue) Close() error {
	if q == nil || q.client == nil {
		return nil
	}
	return q.client.Close()
}

var _ WatchQueue = (*RedisWatchQueue)(nil)
