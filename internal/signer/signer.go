// Package signer provides the wallet-side signing capability for custody
// flows: the connected account address, raw eth_sign style message signing,
// and plain value-transfer submission. Two implementations exist: one
// delegating to a node or external wallet over JSON-RPC, and one holding a
// local private key.
package signer

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Signer 抽象签名提供方。SignText 的语义等价于 eth_sign：对消息字节做
// 前缀个人消息签名，而非 EIP-712 结构化签名。
type Signer interface {
	// Address returns the connected on-chain account.
	Address() common.Address
	// SignText signs the raw message bytes under eth_sign semantics and
	// returns the 0x-prefixed signature.
	SignText(ctx context.Context, message []byte) (string, error)
	// SendValueTransfer submits a plain value transfer and returns the
	// transaction hash without waiting for it to be mined.
	SendValueTransfer(ctx context.Context, to common.Address, amountWei *big.Int) (common.Hash, error)
}
