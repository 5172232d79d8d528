package signer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// RPCSigner delegates signing and transaction submission to a node or an
// external wallet exposed over JSON-RPC (eth_sign / eth_sendTransaction).
type RPCSigner struct {
	client  *gethrpc.Client
	account common.Address
}

// NewRPCSigner binds a delegating signer to an account. When account is
// empty the first address reported by eth_accounts is used.
func NewRPCSigner(ctx context.Context, client *gethrpc.Client, account string) (*RPCSigner, error) {
	if client == nil {
		return nil, errors.New("未提供签名节点的 RPC 连接")
	}

	account = strings.TrimSpace(account)
	if account == "" {
		var accounts []common.Address
		if err := client.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
			return nil, fmt.Errorf("查询签名账户失败: %w", err)
		}
		if len(accounts) == 0 {
			return nil, errors.New("签名节点未暴露任何账户")
		}
		return &RPCSigner{client: client, account: accounts[0]}, nil
	}

	if !common.IsHexAddress(account) {
		return nil, fmt.Errorf("无效的签名账户地址: %s", account)
	}
	return &RPCSigner{client: client, account: common.HexToAddress(account)}, nil
}

// Address 返回绑定的签名账户。
func (s *RPCSigner) Address() common.Address {
	if s == nil {
		return common.Address{}
	}
	return s.account
}

// SignText 通过 eth_sign 委托节点完成签名。
func (s *RPCSigner) SignText(ctx context.Context, message []byte) (string, error) {
	if s == nil || s.client == nil {
		return "", errors.New("签名器未初始化")
	}
	var signature hexutil.Bytes
	if err := s.client.CallContext(ctx, &signature, "eth_sign", s.account, hexutil.Bytes(message)); err != nil {
		return "", fmt.Errorf("eth_sign 调用失败: %w", err)
	}
	if len(signature) == 0 {
		return "", errors.New("节点返回了空签名")
	}
	return signature.String(), nil
}

// SendValueTransfer 通过 eth_sendTransaction 委托节点发出转账交易。
func (s *RPCSigner) SendValueTransfer(ctx context.Context, to common.Address, amountWei *big.Int) (common.Hash, error) {
	if s == nil || s.client == nil {
		return common.Hash{}, errors.New("签名器未初始化")
	}
	if amountWei == nil || amountWei.Sign() <= 0 {
		return common.Hash{}, errors.New("转账金额必须为正")
	}

	args := map[string]any{
		"from":  s.account,
		"to":    to,
		"value": (*hexutil.Big)(amountWei),
	}
	var txHash common.Hash
	if err := s.client.CallContext(ctx, &txHash, "eth_sendTransaction", args); err != nil {
		return common.Hash{}, fmt.Errorf("eth_sendTransaction 调用失败: %w", err)
	}
	return txHash, nil
}
