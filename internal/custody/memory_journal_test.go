package custody

import (
	"context"
	stdErrors "errors"
	"testing"
)

func TestMemoryJournalLifecycle(t *testing.T) {
	journal := NewMemoryJournal()
	ctx := context.Background()

	flow := &Flow{ID: "f-1", Kind: KindWithdrawal, Status: StatusRunning, AmountWei: "100"}
	if err := journal.Create(ctx, flow); err != nil {
		t.Fatalf("创建流程失败: %v", err)
	}
	if err := journal.Create(ctx, &Flow{ID: "f-1", Kind: KindGuard, Status: StatusRunning}); err == nil {
		t.Fatal("重复 ID 应当冲突")
	}

	if err := journal.UpdateStatus(ctx, "f-1", StatusSucceeded, Update{
		CorrelationHash: strPtr("0xabc"),
		ReadyToExecute:  boolPtr(true),
	}); err != nil {
		t.Fatalf("更新流程失败: %v", err)
	}

	stored, err := journal.Get(ctx, "f-1")
	if err != nil {
		t.Fatalf("查询流程失败: %v", err)
	}
	if stored.Status != StatusSucceeded || stored.CorrelationHash != "0xabc" || !stored.ReadyToExecute {
		t.Fatalf("流程内容不符: %+v", stored)
	}
	// 未指定的字段保持原值。
	if stored.AmountWei != "100" {
		t.Fatalf("金额被意外修改: %s", stored.AmountWei)
	}

	if _, err := journal.Get(ctx, "missing"); !stdErrors.Is(err, ErrFlowNotFound) {
		t.Fatalf("期望 ErrFlowNotFound, 实际 %v", err)
	}
	if err := journal.UpdateStatus(ctx, "missing", StatusFailed, Update{}); !stdErrors.Is(err, ErrFlowNotFound) {
		t.Fatalf("期望 ErrFlowNotFound, 实际 %v", err)
	}
}

func TestMemoryJournalListAndStats(t *testing.T) {
	journal := NewMemoryJournal()
	ctx := context.Background()

	seed := []struct {
		id     string
		status Status
	}{
		{"f-1", StatusSucceeded},
		{"f-2", StatusFailed},
		{"f-3", StatusAwaitingReceipt},
		{"f-4", StatusRunning},
	}
	for _, item := range seed {
		if err := journal.Create(ctx, &Flow{ID: item.id, Kind: KindDeposit, Status: StatusRunning}); err != nil {
			t.Fatalf("创建流程 %s 失败: %v", item.id, err)
		}
		if item.status != StatusRunning {
			if err := journal.UpdateStatus(ctx, item.id, item.status, Update{}); err != nil {
				t.Fatalf("更新流程 %s 失败: %v", item.id, err)
			}
		}
	}

	flows, err := journal.List(ctx, 2)
	if err != nil {
		t.Fatalf("查询列表失败: %v", err)
	}
	if len(flows) != 2 {
		t.Fatalf("期望 2 条记录, 实际 %d", len(flows))
	}

	stats, err := journal.Stats(ctx)
	if err != nil {
		t.Fatalf("查询统计失败: %v", err)
	}
	if stats.Total != 4 || stats.Succeeded != 1 || stats.Failed != 1 || stats.AwaitingReceipt != 1 || stats.Running != 1 {
		t.Fatalf("统计不符: %+v", stats)
	}
}
