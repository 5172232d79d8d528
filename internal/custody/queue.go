package custody

import "context"

// WatchHandler 处理一条待观察的流程 ID。
// 返回错误表示处理失败, 队列驱动可据此决定是否重新投递。
type WatchHandler func(ctx context.Context, flowID string) error

// WatchProducer 投递待观察的流程。
type WatchProducer interface {
	Publish(ctx context.Context, flowID string) error
}

// WatchConsumer 消费待观察的流程, 阻塞直到 ctx 取消。
type WatchConsumer interface {
	Consume(ctx context.Context, workerCount int, handler WatchHandler) error
}

// WatchQueue 同时承担投递与消费。
type WatchQueue interface {
	WatchProducer
	WatchConsumer
	Close() error
}
