package signer

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// valueTransferGas is the intrinsic gas of a plain ETH transfer.
const valueTransferGas = 21000

// TransactionBackend mirrors the node calls a local signer needs to build
// and broadcast a transaction. *chain.Client satisfies it.
type TransactionBackend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	ChainID(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *coretypes.Transaction) error
}

// KeySigner signs locally with an in-memory private key and broadcasts
// through a chain backend.
type KeySigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
	backend TransactionBackend
}

// NewKeySigner parses a hex encoded private key and binds it to a backend.
func NewKeySigner(privateKeyHex string, backend TransactionBackend) (*KeySigner, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x")
	if trimmed == "" {
		return nil, errors.New("未配置签名私钥")
	}
	key, err := crypto.HexToECDSA(trimmed)
	if err != nil {
		return nil, fmt.Errorf("解析签名私钥失败: %w", err)
	}
	return &KeySigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		backend: backend,
	}, nil
}

// Address 返回私钥对应的账户地址。
func (s *KeySigner) Address() common.Address {
	if s == nil {
		return common.Address{}
	}
	return s.address
}

// SignText 对消息做前缀个人消息签名，v 值按 eth_sign 惯例加 27。
func (s *KeySigner) SignText(_ context.Context, message []byte) (string, error) {
	if s == nil || s.key == nil {
		return "", errors.New("签名器未初始化")
	}
	signature, err := crypto.Sign(accounts.TextHash(message), s.key)
	if err != nil {
		return "", fmt.Errorf("本地签名失败: %w", err)
	}
	signature[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(signature), nil
}

// SendValueTransfer 在本地构造、签名并广播一笔普通转账。
func (s *KeySigner) SendValueTransfer(ctx context.Context, to common.Address, amountWei *big.Int) (common.Hash, error) {
	if s == nil || s.key == nil {
		return common.Hash{}, errors.New("签名器未初始化")
	}
	if s.backend == nil {
		return common.Hash{}, errors.New("签名器缺少链访问后端")
	}
	if amountWei == nil || amountWei.Sign() <= 0 {
		return common.Hash{}, errors.New("转账金额必须为正")
	}

	nonce, err := s.backend.PendingNonceAt(ctx, s.address)
	if err != nil {
		return common.Hash{}, err
	}
	gasPrice, err := s.backend.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	chainID, err := s.backend.ChainID(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	tx := coretypes.NewTx(&coretypes.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    new(big.Int).Set(amountWei),
		Gas:      valueTransferGas,
		GasPrice: gasPrice,
	})
	signedTx, err := coretypes.SignTx(tx, coretypes.LatestSignerForChainID(chainID), s.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("签名交易失败: %w", err)
	}
	if err := s.backend.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, err
	}
	return signedTx.Hash(), nil
}
