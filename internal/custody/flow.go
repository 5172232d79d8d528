package custody

import (
	"time"

	xerrors "SafeGuard-Console/internal/errors"
)

// Kind 表示一个资金流程的类别。
type Kind string

const (
	// KindGuard 安装守护合约流程。
	KindGuard Kind = "guard"
	// KindWithdrawal 从托管账户向外部账户提款流程。
	KindWithdrawal Kind = "withdrawal"
	// KindDeposit 从签名账户向托管账户直接转入流程。
	KindDeposit Kind = "deposit"
)

// Valid 报告该类别是否受支持。
func (k Kind) Valid() bool {
	switch k {
	case KindGuard, KindWithdrawal, KindDeposit:
		return true
	default:
		return false
	}
}

// Status 表示流程在其生命周期中所处的阶段。
type Status string

const (
	// StatusRunning 流程已被接受并正在执行。
	StatusRunning Status = "running"
	// StatusAwaitingReceipt 交易已广播, 等待链上回执。
	StatusAwaitingReceipt Status = "awaiting_receipt"
	// StatusSucceeded 流程正常完成。
	StatusSucceeded Status = "succeeded"
	// StatusReverted 链上交易被打包但执行回滚。
	StatusReverted Status = "reverted"
	// StatusFailed 流程在任一环节出错终止。
	StatusFailed Status = "failed"
)

// Terminal 报告该状态是否为终态。
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusReverted, StatusFailed:
		return true
	default:
		return false
	}
}

// Flow 是一次编排流程的日志记录。
type Flow struct {
	ID              string    `json:"id"`
	Kind            Kind      `json:"kind"`
	Email           string    `json:"email,omitempty"`
	SafeAddress     string    `json:"safe_address,omitempty"`
	AmountWei       string    `json:"amount_wei,omitempty"`
	CorrelationHash string    `json:"correlation_hash,omitempty"`
	TxHash          string    `json:"tx_hash,omitempty"`
	ReadyToExecute  bool      `json:"ready_to_execute"`
	ExecuteURL      string    `json:"execute_url,omitempty"`
	Status          Status    `json:"status"`
	ErrorCode       string    `json:"error_code,omitempty"`
	LastError       string    `json:"last_error,omitempty"`
	ReceiptAttempts int       `json:"receipt_attempts,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// 流程级错误码。注册后可通过 xerrors.CodeOf 在 API 层映射为响应。
const (
	CodeNoCustodyAccount   xerrors.Code = "NO_CUSTODY_ACCOUNT"
	CodeProposalRejected   xerrors.Code = "PROPOSAL_REJECTED"
	CodeMalformedHash      xerrors.Code = "MALFORMED_CORRELATION_HASH"
	CodeSigningUnavailable xerrors.Code = "SIGNING_UNAVAILABLE"
	CodeSigningRejected    xerrors.Code = "SIGNING_REJECTED"
	CodeConfirmRejected    xerrors.Code = "CONFIRMATION_REJECTED"
	CodeInvalidAmount      xerrors.Code = "INVALID_AMOUNT"
	CodeNoDestination      xerrors.Code = "NO_DESTINATION"
	CodeFlowBusy           xerrors.Code = "FLOW_BUSY"
	CodeReceiptTimeout     xerrors.Code = "RECEIPT_TIMEOUT"
	CodeTxReverted         xerrors.Code = "TRANSACTION_REVERTED"
	CodeFlowNotFound       xerrors.Code = "FLOW_NOT_FOUND"
)

func init() {
	xerrors.Register(CodeNoCustodyAccount, xerrors.Attributes{Message: "identity has no custody account", Severity: xerrors.SeverityWarning})
	xerrors.Register(CodeProposalRejected, xerrors.Attributes{Message: "relay rejected the proposal", Severity: xerrors.SeverityWarning, Retryable: true})
	xerrors.Register(CodeMalformedHash, xerrors.Attributes{Message: "proposal response carries no usable hash", Severity: xerrors.SeverityCritical, Alert: true})
	xerrors.Register(CodeSigningUnavailable, xerrors.Attributes{Message: "signing provider unavailable", Severity: xerrors.SeverityCritical, Retryable: true, Alert: true})
	xerrors.Register(CodeSigningRejected, xerrors.Attributes{Message: "signing provider rejected the message", Severity: xerrors.SeverityWarning})
	xerrors.Register(CodeConfirmRejected, xerrors.Attributes{Message: "relay rejected the confirmation", Severity: xerrors.SeverityWarning, Retryable: true})
	xerrors.Register(CodeInvalidAmount, xerrors.Attributes{Message: "amount is not a positive ether value", Severity: xerrors.SeverityInfo})
	xerrors.Register(CodeNoDestination, xerrors.Attributes{Message: "no custody account to transfer into", Severity: xerrors.SeverityWarning})
	xerrors.Register(CodeFlowBusy, xerrors.Attributes{Message: "a flow of this kind is already running", Severity: xerrors.SeverityInfo})
	xerrors.Register(CodeReceiptTimeout, xerrors.Attributes{Message: "receipt polling exhausted without a receipt", Severity: xerrors.SeverityCritical, Alert: true})
	xerrors.Register(CodeTxReverted, xerrors.Attributes{Message: "transaction was mined but reverted", Severity: xerrors.SeverityCritical, Alert: true})
	xerrors.Register(CodeFlowNotFound, xerrors.Attributes{Message: "flow not found", Severity: xerrors.SeverityInfo})
}

// 常用哨兵错误, 便于调用方用 errors.Is 判定。
var (
	ErrNoCustodyAccount = xerrors.New(CodeNoCustodyAccount, "identity has no custody account")
	ErrInvalidAmount    = xerrors.New(CodeInvalidAmount, "amount is not a positive ether value")
	ErrNoDestination    = xerrors.New(CodeNoDestination, "no custody account to transfer into")
	ErrFlowBusy         = xerrors.New(CodeFlowBusy, "a flow of this kind is already running")
	ErrFlowNotFound     = xerrors.New(CodeFlowNotFound, "flow not found")
)
