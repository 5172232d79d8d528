package custody

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	xerrors "SafeGuard-Console/internal/errors"
)

// MemoryJournal 将流程记录保存在内存中, 适合单机部署与测试。
type MemoryJournal struct {
	mu    sync.RWMutex
	flows map[string]*Flow
}

// NewMemoryJournal 创建一个空的内存日志。
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{flows: make(map[string]*Flow)}
}

// Create 插入新流程记录。
func (j *MemoryJournal) Create(_ context.Context, flow *Flow) error {
	if flow == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "flow 不能为空")
	}
	if strings.TrimSpace(flow.ID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "流程 ID 不能为空")
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if _, exists := j.flows[flow.ID]; exists {
		return xerrors.New(xerrors.CodeConflict, fmt.Sprintf("流程 %s 已存在", flow.ID))
	}

	now := time.Now()
	flow.CreatedAt = now
	flow.UpdatedAt = now
	j.flows[flow.ID] = cloneFlow(flow)
	return nil
}

// Get 按 ID 查询流程。
func (j *MemoryJournal) Get(_ context.Context, id string) (*Flow, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	flow, ok := j.flows[id]
	if !ok {
		return nil, ErrFlowNotFound
	}
	return cloneFlow(flow), nil
}

// UpdateStatus 更新流程状态并应用增量修改。
func (j *MemoryJournal) UpdateStatus(_ context.Context, id string, status Status, update Update) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	flow, ok := j.flows[id]
	if !ok {
		return ErrFlowNotFound
	}
	flow.Status = status
	applyUpdate(flow, update)
	flow.UpdatedAt = time.Now()
	return nil
}

// List 返回按更新时间倒序排列的最近流程。
func (j *MemoryJournal) List(_ context.Context, limit int) ([]*Flow, error) {
	if limit <= 0 {
		limit = 50
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	flows := make([]*Flow, 0, len(j.flows))
	for _, flow := range j.flows {
		flows = append(flows, cloneFlow(flow))
	}
	sort.Slice(flows, func(i, k int) bool {
		if !flows[i].UpdatedAt.Equal(flows[k].UpdatedAt) {
			return flows[i].UpdatedAt.After(flows[k].UpdatedAt)
		}
		return flows[i].ID > flows[k].ID
	})
	if len(flows) > limit {
		flows = flows[:limit]
	}
	return flows, nil
}

// Stats 返回按状态聚合的计数。
func (j *MemoryJournal) Stats(_ context.Context) (FlowStats, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var stats FlowStats
	for _, flow := range j.flows {
		stats.Total++
		switch flow.Status {
		case StatusRunning:
			stats.Running++
		case StatusAwaitingReceipt:
			stats.AwaitingReceipt++
		case StatusSucceeded:
			stats.Succeeded++
		case StatusReverted:
			stats.Reverted++
		case StatusFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

// Close 对内存日志而言没有需要释放的资源。
func (j *MemoryJournal) Close() error { return nil }

func applyUpdate(flow *Flow, update Update) {
	if update.CorrelationHash != nil {
		flow.CorrelationHash = *update.CorrelationHash
	}
	if update.TxHash != nil {
		flow.TxHash = *update.TxHash
	}
	if update.ExecuteURL != nil {
		flow.ExecuteURL = *update.ExecuteURL
	}
	if update.ReadyToExecute != nil {
		flow.ReadyToExecute = *update.ReadyToExecute
	}
	if update.ReceiptAttempts != nil {
		flow.ReceiptAttempts = *update.ReceiptAttempts
	}
	if update.ErrorCode != nil {
		flow.ErrorCode = *update.ErrorCode
	}
	if update.LastError != nil {
		flow.LastError = *update.LastError
	}
}

func cloneFlow(flow *Flow) *Flow {
	if flow == nil {
		return nil
	}
	copied := *flow
	return &copied
}

var _ Journal = (*MemoryJournal)(nil)
