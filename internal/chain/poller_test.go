package chain

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"

	xerrors "SafeGuard-Console/internal/errors"
)

type scriptedFetcher struct {
	calls    atomic.Int32
	receipts []*coretypes.Receipt
	errs     []error
}

func (f *scriptedFetcher) TransactionReceipt(_ context.Context, _ common.Hash) (*coretypes.Receipt, error) {
	i := int(f.calls.Add(1)) - 1
	if i >= len(f.receipts) {
		i = len(f.receipts) - 1
	}
	return f.receipts[i], f.errs[i]
}

func TestPollerResolvesSuccessAfterPending(t *testing.T) {
	fetcher := &scriptedFetcher{
		receipts: []*coretypes.Receipt{nil, nil, {Status: coretypes.ReceiptStatusSuccessful}},
		errs:     []error{gethcore.NotFound, gethcore.NotFound, nil},
	}
	poller := NewPoller(fetcher, WithInterval(5*time.Millisecond))

	result, err := poller.Wait(context.Background(), common.HexToHash("0x01"))
	if err != nil {
		t.Fatalf("轮询失败: %v", err)
	}
	if result.Outcome != OutcomeSuccess {
		t.Fatalf("期望 success，得到 %s", result.Outcome)
	}
	if got := fetcher.calls.Load(); got != 3 {
		t.Fatalf("期望恰好 3 次查询，实际 %d 次", got)
	}
	if result.Attempts != 3 {
		t.Fatalf("期望 attempts=3，实际 %d", result.Attempts)
	}
}

func TestPollerResolvesReverted(t *testing.T) {
	fetcher := &scriptedFetcher{
		receipts: []*coretypes.Receipt{{Status: coretypes.ReceiptStatusFailed}},
		errs:     []error{nil},
	}
	poller := NewPoller(fetcher, WithInterval(time.Millisecond))

	result, err := poller.Wait(context.Background(), common.HexToHash("0x02"))
	if err != nil {
		t.Fatalf("轮询失败: %v", err)
	}
	if result.Outcome != OutcomeReverted {
		t.Fatalf("期望 reverted，得到 %s", result.Outcome)
	}
}

func TestPollerAbortsOnTransportFailure(t *testing.T) {
	fetcher := &scriptedFetcher{
		receipts: []*coretypes.Receipt{nil},
		errs:     []error{errors.New("connection refused")},
	}
	poller := NewPoller(fetcher, WithInterval(time.Millisecond))

	_, err := poller.Wait(context.Background(), common.HexToHash("0x03"))
	if err == nil {
		t.Fatal("期望传输错误被上抛")
	}
	if xerrors.CodeOf(err) != xerrors.CodeTransportFailure {
		t.Fatalf("期望 TRANSPORT_FAILURE，得到 %s", xerrors.CodeOf(err))
	}
	if got := fetcher.calls.Load(); got != 1 {
		t.Fatalf("传输错误不应重试，实际查询 %d 次", got)
	}
}

func TestPollerTimesOutAfterMaxAttempts(t *testing.T) {
	fetcher := &scriptedFetcher{
		receipts: []*coretypes.Receipt{nil},
		errs:     []error{gethcore.NotFound},
	}
	poller := NewPoller(fetcher, WithInterval(time.Millisecond), WithMaxAttempts(4))

	result, err := poller.Wait(context.Background(), common.HexToHash("0x04"))
	if err != nil {
		t.Fatalf("轮询失败: %v", err)
	}
	if result.Outcome != OutcomeTimedOut {
		t.Fatalf("期望 timed_out，得到 %s", result.Outcome)
	}
	if got := fetcher.calls.Load(); got != 4 {
		t.Fatalf("期望 4 次查询，实际 %d 次", got)
	}
}

func TestPollerHonoursCancellation(t *testing.T) {
	fetcher := &scriptedFetcher{
		receipts: []*coretypes.Receipt{nil},
		errs:     []error{gethcore.NotFound},
	}
	poller := NewPoller(fetcher, WithInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan PollResult, 1)
	go func() {
		result, _ := poller.Wait(ctx, common.HexToHash("0x05"))
		done <- result
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case result := <-done:
		if result.Outcome != OutcomeCancelled {
			t.Fatalf("期望 cancelled，得到 %s", result.Outcome)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("取消后轮询未退出")
	}
}
