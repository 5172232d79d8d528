package chain

import (
	"context"
	stdErrors "errors"
	"fmt"
	"time"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"

	xerrors "SafeGuard-Console/internal/errors"
)

// ReceiptFetcher mirrors the single node call the poller depends on.
type ReceiptFetcher interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*coretypes.Receipt, error)
}

// PollOutcome 表示一次回执轮询的最终结果。
type PollOutcome string

const (
	OutcomeSuccess   PollOutcome = "success"
	OutcomeReverted  PollOutcome = "reverted"
	OutcomeTimedOut  PollOutcome = "timed_out"
	OutcomeCancelled PollOutcome = "cancelled"
)

// PollResult carries the terminal outcome of a receipt poll together with
// the receipt itself when one was obtained.
type PollResult struct {
	Outcome  PollOutcome
	Receipt  *coretypes.Receipt
	Attempts int
}

// Poller repeatedly looks up a transaction receipt until the transaction is
// mined, the attempt budget is exhausted, or the context is cancelled. A
// missing receipt is the only condition that is retried; transport failures
// abort immediately.
type Poller struct {
	fetcher     ReceiptFetcher
	interval    time.Duration
	maxAttempts int
}

// PollerOption 定义可选配置。
type PollerOption func(*Poller)

// WithInterval 覆盖默认的轮询间隔。
func WithInterval(interval time.Duration) PollerOption {
	return func(p *Poller) {
		if interval > 0 {
			p.interval = interval
		}
	}
}

// WithMaxAttempts 覆盖默认的轮询次数上限。
func WithMaxAttempts(attempts int) PollerOption {
	return func(p *Poller) {
		if attempts > 0 {
			p.maxAttempts = attempts
		}
	}
}

// NewPoller 构造回执轮询器。
func NewPoller(fetcher ReceiptFetcher, opts ...PollerOption) *Poller {
	p := &Poller{
		fetcher:     fetcher,
		interval:    3 * time.Second,
		maxAttempts: 40,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Wait blocks until the transaction reaches a terminal outcome. The first
// lookup is issued immediately; subsequent lookups are spaced by the fixed
// interval. The returned error is non-nil only for transport failures and
// context cancellation.
func (p *Poller) Wait(ctx context.Context, txHash common.Hash) (PollResult, error) {
	if p == nil || p.fetcher == nil {
		return PollResult{}, xerrors.New(xerrors.CodeInitializationFailure, "回执轮询器未初始化")
	}

	result := PollResult{}
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		result.Attempts = attempt

		receipt, err := p.fetcher.TransactionReceipt(ctx, txHash)
		switch {
		case err == nil && receipt != nil:
			result.Receipt = receipt
			if receipt.Status == coretypes.ReceiptStatusSuccessful {
				result.Outcome = OutcomeSuccess
			} else {
				result.Outcome = OutcomeReverted
			}
			return result, nil
		case stdErrors.Is(err, gethcore.NotFound):
			// 交易尚未被打包，等待下一轮。
		case ctx.Err() != nil:
			result.Outcome = OutcomeCancelled
			return result, ctx.Err()
		case err != nil:
			return result, xerrors.Wrap(xerrors.CodeTransportFailure, err,
				fmt.Sprintf("查询交易 %s 回执失败", txHash.Hex()))
		}

		if attempt == p.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			result.Outcome = OutcomeCancelled
			return result, ctx.Err()
		case <-time.After(p.interval):
		}
	}

	result.Outcome = OutcomeTimedOut
	return result, nil
}
