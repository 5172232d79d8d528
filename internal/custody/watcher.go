package custody

import (
	"context"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"SafeGuard-Console/internal/chain"
	xerrors "SafeGuard-Console/internal/errors"
	"SafeGuard-Console/internal/observability/alerting"
	"SafeGuard-Console/internal/observability/metrics"
	"SafeGuard-Console/pkg/logger"
)

// Watcher 消费观察队列, 对 awaiting_receipt 的流程轮询链上回执,
// 并将轮询结果写回流程日志。
type Watcher struct {
	fetcher     chain.ReceiptFetcher
	journal     Journal
	consumer    WatchConsumer
	board       *StateBoard
	alerts      alerting.Dispatcher
	interval    time.Duration
	maxAttempts int
	workers     int
}

// WatcherConfig 描述回执观察者的运行参数。
type WatcherConfig struct {
	Interval    time.Duration
	MaxAttempts int
	Workers     int
}

// NewWatcher 构造回执观察者。alerts 可以为 nil。
func NewWatcher(fetcher chain.ReceiptFetcher, journal Journal, consumer WatchConsumer,
	board *StateBoard, alerts alerting.Dispatcher, cfg WatcherConfig) (*Watcher, error) {
	if fetcher == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "回执查询客户端未初始化")
	}
	if journal == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "流程日志未初始化")
	}
	if consumer == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "观察队列未初始化")
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Watcher{
		fetcher:     fetcher,
		journal:     journal,
		consumer:    consumer,
		board:       board,
		alerts:      alerts,
		interval:    cfg.Interval,
		maxAttempts: cfg.MaxAttempts,
		workers:     workers,
	}, nil
}

// Run 阻塞消费观察队列, 直到 ctx 取消。
func (w *Watcher) Run(ctx context.Context) error {
	logger.L().Info("回执观察者启动", slog.Int("workers", w.workers))
	return w.consumer.Consume(ctx, w.workers, w.handle)
}

func (w *Watcher) handle(ctx context.Context, flowID string) error {
	flow, err := w.journal.Get(ctx, flowID)
	if err != nil {
		logger.L().Error("加载待观察流程失败", slog.Any("error", err), slog.String("flow_id", flowID))
		return nil
	}
	if flow.Status != StatusAwaitingReceipt || flow.TxHash == "" {
		return nil
	}

	poller := chain.NewPoller(w.fetcher,
		chain.WithInterval(w.interval),
		chain.WithMaxAttempts(w.maxAttempts),
	)
	result, err := poller.Wait(ctx, common.HexToHash(flow.TxHash))

	switch result.Outcome {
	case chain.OutcomeSuccess:
		w.finish(ctx, flow, StatusSucceeded, "", "", result.Attempts)
	case chain.OutcomeReverted:
		w.finish(ctx, flow, StatusReverted, string(CodeTxReverted),
			xerrors.AttributesOf(CodeTxReverted).Message, result.Attempts)
	case chain.OutcomeTimedOut:
		w.finish(ctx, flow, StatusFailed, string(CodeReceiptTimeout),
			xerrors.AttributesOf(CodeReceiptTimeout).Message, result.Attempts)
	case chain.OutcomeCancelled:
		// 停机取消, 保留 awaiting_receipt, 返回错误以便队列重投。
		return err
	default:
		if err != nil {
			w.finish(ctx, flow, StatusFailed, string(xerrors.CodeOf(err)), err.Error(), result.Attempts)
		}
	}
	return nil
}

// finish 将流程写入终态, 释放状态板并按需触发告警。
func (w *Watcher) finish(ctx context.Context, flow *Flow, status Status, errorCode, lastError string, attempts int) {
	update := Update{ReceiptAttempts: intPtr(attempts)}
	if errorCode != "" {
		update.ErrorCode = strPtr(errorCode)
		update.LastError = strPtr(lastError)
	}
	if err := w.journal.UpdateStatus(ctx, flow.ID, status, update); err != nil {
		logger.L().Error("记录回执结果失败", slog.Any("error", err), slog.String("flow_id", flow.ID))
	}
	if w.board != nil {
		w.board.Finish(flow.Kind, flow.ID, errorCode)
	}
	metrics.ObserveFlow(string(flow.Kind), string(status))

	logger.Audit().Info("回执轮询结束",
		slog.String("flow_id", flow.ID),
		slog.String("kind", string(flow.Kind)),
		slog.String("tx_hash", flow.TxHash),
		slog.String("status", string(status)),
		slog.Int("attempts", attempts),
	)

	if errorCode == "" || w.alerts == nil {
		return
	}
	code := xerrors.Code(errorCode)
	if !xerrors.AttributesOf(code).Alert {
		return
	}
	event := alerting.Event{
		Code:       code,
		Message:    lastError,
		Severity:   xerrors.AttributesOf(code).Severity,
		FlowID:     flow.ID,
		Kind:       string(flow.Kind),
		TxHash:     flow.TxHash,
		Attempts:   attempts,
		OccurredAt: time.Now(),
	}
	if err := w.alerts.Notify(ctx, event); err != nil {
		logger.L().Warn("发送回执告警失败", slog.Any("error", err), slog.String("flow_id", flow.ID))
	}
}
