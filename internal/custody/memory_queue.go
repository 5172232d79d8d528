package custody

import (
	"context"
	"errors"
	"sync"
)

// MemoryWatchQueue 使用 channel 模拟观察队列, 适合单机部署与测试。
type MemoryWatchQueue struct {
	ch     chan string
	mu     sync.Mutex
	closed bool
}

// NewMemoryWatchQueue 创建一个内存观察队列。
func NewMemoryWatchQueue(size int) *MemoryWatchQueue {
	if size <= 0 {
		size = 64
	}
	return &MemoryWatchQueue{ch: make(chan string, size)}
}

// Publish 将流程投递到队列。
func (q *MemoryWatchQueue) Publish(ctx context.Context, flowID string) error {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return errors.New("队列已关闭")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case q.ch <- flowID:
		return nil
	}
}

// Consume 启动指定数量的工作协程消费队列中的流程。
func (q *MemoryWatchQueue) Consume(ctx context.Context, workerCount int, handler WatchHandler) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case flowID, ok := <-q.ch:
					if !ok {
						return
					}
					_ = handler(ctx, flowID)
				}
			}
		}()
	}
	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

// Close 关闭内存队列。
func (q *MemoryWatchQueue) Close() error {
	q.mu.Lock()
	if !q.closed {
		close(q.ch)
		q.closed = true
	}
	q.mu.Unlock()
	return nil
}

var _ WatchQueue = (*MemoryWatchQueue)(nil)
