package custody

import (
	"sync"
	"time"
)

// KindState 是状态板上单个流程类别的即时状态。
type KindState string

const (
	StateIdle      KindState = "idle"
	StateRunning   KindState = "running"
	StateSucceeded KindState = "succeeded"
	StateFailed    KindState = "failed"
)

// KindSnapshot 描述某一类别最近一次流程的结果。
type KindSnapshot struct {
	State     KindState `json:"state"`
	FlowID    string    `json:"flow_id,omitempty"`
	ErrorCode string    `json:"error_code,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// StateBoard 为每个流程类别维护互斥执行状态:
// 同一类别同时只允许一个流程运行, Begin 在已有流程运行时失败。
type StateBoard struct {
	mu     sync.Mutex
	states map[Kind]KindSnapshot
}

// NewStateBoard 创建所有类别均为空闲的状态板。
func NewStateBoard() *StateBoard {
	return &StateBoard{states: map[Kind]KindSnapshot{
		KindGuard:      {State: StateIdle},
		KindWithdrawal: {State: StateIdle},
		KindDeposit:    {State: StateIdle},
	}}
}

// Begin 尝试将类别置为运行中。若该类别已有流程在运行则返回 false,
// 此时调用方不得发起任何外部调用。
func (b *StateBoard) Begin(kind Kind, flowID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.states[kind].State == StateRunning {
		return false
	}
	b.states[kind] = KindSnapshot{State: StateRunning, FlowID: flowID, UpdatedAt: time.Now()}
	return true
}

// Finish 将类别标记为成功或失败, 释放互斥。
func (b *StateBoard) Finish(kind Kind, flowID string, errorCode string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	state := StateSucceeded
	if errorCode != "" {
		state = StateFailed
	}
	b.states[kind] = KindSnapshot{State: state, FlowID: flowID, ErrorCode: errorCode, UpdatedAt: time.Now()}
}

// Snapshot 返回各类别状态的副本。
func (b *StateBoard) Snapshot() map[Kind]KindSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[Kind]KindSnapshot, len(b.states))
	for k, v := range b.states {
		out[k] = v
	}
	return out
}
