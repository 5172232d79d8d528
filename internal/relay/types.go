package relay

import "fmt"

// GuardProposal is the payload for proposing a guard installation on a Safe.
type GuardProposal struct {
	Email        string `json:"email"`
	SafeAddress  string `json:"safeAddress"`
	GuardAddress string `json:"guardAddress"`
}

// WithdrawalProposal is the payload for proposing a withdrawal from a Safe.
// AmountWei is the decimal string wei equivalent of the requested amount.
type WithdrawalProposal struct {
	Email     string `json:"email"`
	AmountWei string `json:"amountWei"`
}

// Confirmation submits a participant signature for a proposed transaction.
type Confirmation struct {
	Email         string `json:"email"`
	SafeTxHash    string `json:"safeTxHash"`
	UserSignature string `json:"userSignature"`
}

// ConfirmationResult reports the relay-side state after a signature is
// recorded. ReadyToExecute means the confirmation threshold is met on the
// relay; the transaction is not necessarily mined yet.
type ConfirmationResult struct {
	ReadyToExecute bool   `json:"readyToExecute"`
	TxServiceURL   string `json:"txServiceUrl,omitempty"`
	Message        string `json:"message,omitempty"`
}

// AccountInfo describes the custody account bound to an email.
type AccountInfo struct {
	SafeAddress string `json:"safe_address"`
}

// PendingTransaction is a relay-tracked proposal awaiting confirmations.
type PendingTransaction struct {
	SafeTxHash    string `json:"safeTxHash"`
	Type          string `json:"type,omitempty"`
	Value         string `json:"value,omitempty"`
	Confirmations int    `json:"confirmations,omitempty"`
	Threshold     int    `json:"threshold,omitempty"`
	ProposedAt    string `json:"proposedAt,omitempty"`
}

// PendingSet is the relay's pending-transactions listing for an account.
type PendingSet struct {
	PendingTransactions []PendingTransaction `json:"pendingTransactions"`
	SafeAddress         string               `json:"safeAddress,omitempty"`
}

// APIError represents relay side validation or internal errors.
type APIError struct {
	StatusCode int
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return fmt.Sprintf("relay api error (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("relay api error (%d)", e.StatusCode)
}
