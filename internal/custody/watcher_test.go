package custody

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"

	"SafeGuard-Console/internal/observability/alerting"
)

type scriptedReceipts struct {
	calls    atomic.Int32
	receipts []*coretypes.Receipt
}

// TransactionReceipt 依次返回脚本中的回执, nil 表示尚未打包。
func (s *scriptedReceipts) TransactionReceipt(context.Context, common.Hash) (*coretypes.Receipt, error) {
	idx := int(s.calls.Add(1)) - 1
	if idx >= len(s.receipts) {
		return nil, gethcore.NotFound
	}
	receipt := s.receipts[idx]
	if receipt == nil {
		return nil, gethcore.NotFound
	}
	return receipt, nil
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []alerting.Event
}

func (d *recordingDispatcher) Notify(_ context.Context, event alerting.Event) error {
	d.mu.Lock()
	d.events = append(d.events, event)
	d.mu.Unlock()
	return nil
}

func (d *recordingDispatcher) snapshot() []alerting.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]alerting.Event(nil), d.events...)
}

func runWatcherFlow(t *testing.T, fetcher *scriptedReceipts, maxAttempts int) (*MemoryJournal, *StateBoard, *recordingDispatcher, *Flow) {
	t.Helper()

	journal := NewMemoryJournal()
	queue := NewMemoryWatchQueue(4)
	board := NewStateBoard()
	alerts := &recordingDispatcher{}

	flow := &Flow{ID: "flow-1", Kind: KindDeposit, Status: StatusRunning, TxHash: "0x11"}
	if err := journal.Create(context.Background(), flow); err != nil {
		t.Fatalf("创建流程失败: %v", err)
	}
	if err := journal.UpdateStatus(context.Background(), flow.ID, StatusAwaitingReceipt, Update{}); err != nil {
		t.Fatalf("更新流程失败: %v", err)
	}
	board.Begin(KindDeposit, flow.ID)

	watcher, err := NewWatcher(fetcher, journal, queue, board, alerts, WatcherConfig{
		Interval:    time.Millisecond,
		MaxAttempts: maxAttempts,
		Workers:     1,
	})
	if err != nil {
		t.Fatalf("构造观察者失败: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = watcher.Run(ctx)
	}()

	if err := queue.Publish(ctx, flow.ID); err != nil {
		t.Fatalf("投递流程失败: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		stored, err := journal.Get(context.Background(), flow.ID)
		if err != nil {
			t.Fatalf("查询流程失败: %v", err)
		}
		if stored.Status.Terminal() {
			cancel()
			<-done
			return journal, board, alerts, stored
		}
		select {
		case <-deadline:
			t.Fatalf("等待流程终结超时, 当前状态 %s", stored.Status)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestWatcherMarksSuccess(t *testing.T) {
	fetcher := &scriptedReceipts{receipts: []*coretypes.Receipt{
		nil,
		nil,
		{Status: coretypes.ReceiptStatusSuccessful},
	}}

	_, board, alerts, flow := runWatcherFlow(t, fetcher, 10)

	if flow.Status != StatusSucceeded {
		t.Fatalf("期望 succeeded, 实际 %s", flow.Status)
	}
	if flow.ReceiptAttempts != 3 {
		t.Fatalf("期望轮询 3 次, 实际 %d", flow.ReceiptAttempts)
	}
	if snap := board.Snapshot()[KindDeposit]; snap.State != StateSucceeded {
		t.Fatalf("状态板应为 succeeded, 实际 %s", snap.State)
	}
	if events := alerts.snapshot(); len(events) != 0 {
		t.Fatalf("成功流程不应触发告警: %v", events)
	}
}

func TestWatcherMarksReverted(t *testing.T) {
	fetcher := &scriptedReceipts{receipts: []*coretypes.Receipt{
		{Status: coretypes.ReceiptStatusFailed},
	}}

	_, board, alerts, flow := runWatcherFlow(t, fetcher, 10)

	if flow.Status != StatusReverted {
		t.Fatalf("期望 reverted, 实际 %s", flow.Status)
	}
	if flow.ErrorCode != string(CodeTxReverted) {
		t.Fatalf("错误码不符: %s", flow.ErrorCode)
	}
	if snap := board.Snapshot()[KindDeposit]; snap.State != StateFailed {
		t.Fatalf("状态板应为 failed, 实际 %s", snap.State)
	}
	events := alerts.snapshot()
	if len(events) != 1 || events[0].Code != CodeTxReverted {
		t.Fatalf("期望一条回滚告警, 实际 %v", events)
	}
}

func TestWatcherMarksTimeout(t *testing.T) {
	fetcher := &scriptedReceipts{}

	_, _, alerts, flow := runWatcherFlow(t, fetcher, 3)

	if flow.Status != StatusFailed {
		t.Fatalf("期望 failed, 实际 %s", flow.Status)
	}
	if flow.ErrorCode != string(CodeReceiptTimeout) {
		t.Fatalf("错误码不符: %s", flow.ErrorCode)
	}
	if flow.ReceiptAttempts != 3 {
		t.Fatalf("期望轮询 3 次, 实际 %d", flow.ReceiptAttempts)
	}
	events := alerts.snapshot()
	if len(events) != 1 || events[0].Code != CodeReceiptTimeout {
		t.Fatalf("期望一条超时告警, 实际 %v", events)
	}
}
