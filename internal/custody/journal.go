package custody

import (
	"context"
)

// Update 描述对流程记录的增量修改, nil 字段表示保持原值。
type Update struct {
	CorrelationHash *string
	TxHash          *string
	ExecuteURL      *string
	ReadyToExecute  *bool
	ReceiptAttempts *int
	ErrorCode       *string
	LastError       *string
}

// FlowStats 是流程日志的聚合信息。
type FlowStats struct {
	Total           int64 `json:"total"`
	Running         int64 `json:"running"`
	AwaitingReceipt int64 `json:"awaiting_receipt"`
	Succeeded       int64 `json:"succeeded"`
	Reverted        int64 `json:"reverted"`
	Failed          int64 `json:"failed"`
}

// Journal 持久化流程记录。
type Journal interface {
	// Create 插入一条新流程记录。
	Create(ctx context.Context, flow *Flow) error
	// Get 按 ID 查询流程。
	Get(ctx context.Context, id string) (*Flow, error)
	// UpdateStatus 更新流程状态并应用增量修改。
	UpdateStatus(ctx context.Context, id string, status Status, update Update) error
	// List 返回按更新时间倒序排列的最近流程。
	List(ctx context.Context, limit int) ([]*Flow, error)
	// Stats 返回按状态聚合的计数。
	Stats(ctx context.Context) (FlowStats, error)
	// Close 释放底层资源。
	Close() error
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }
func intPtr(i int) *int       { return &i }
