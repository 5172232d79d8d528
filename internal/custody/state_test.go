package custody

import "testing"

func TestStateBoardMutualExclusion(t *testing.T) {
	board := NewStateBoard()

	if !board.Begin(KindGuard, "flow-1") {
		t.Fatal("空闲类别应允许开始")
	}
	if board.Begin(KindGuard, "flow-2") {
		t.Fatal("运行中的类别不应允许第二个流程")
	}
	// 不同类别互不影响。
	if !board.Begin(KindDeposit, "flow-3") {
		t.Fatal("其他类别应保持可用")
	}

	board.Finish(KindGuard, "flow-1", "")
	if snap := board.Snapshot()[KindGuard]; snap.State != StateSucceeded {
		t.Fatalf("期望 succeeded, 实际 %s", snap.State)
	}
	if !board.Begin(KindGuard, "flow-4") {
		t.Fatal("结束后的类别应可重新开始")
	}

	board.Finish(KindGuard, "flow-4", string(CodeProposalRejected))
	snap := board.Snapshot()[KindGuard]
	if snap.State != StateFailed || snap.ErrorCode != string(CodeProposalRejected) {
		t.Fatalf("失败状态不符: %+v", snap)
	}
}
