package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// ClientConfig describes how to construct an EVM compatible client.
type ClientConfig struct {
	Name   string
	RPCURL string
	Notes  string
}

// Client wraps a JSON-RPC connection to an EVM compatible chain and exposes
// the subset of node functionality the custody flows rely on.
type Client struct {
	name      string
	notes     string
	rpcClient *gethrpc.Client
	eth       *ethclient.Client
	mu        sync.Mutex
}

// NewClient dials the configured RPC endpoint and returns a ready-to-use client.
func NewClient(ctx context.Context, cfg ClientConfig) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, errors.New("未配置链的 RPC 地址")
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("连接链节点失败: %w", err)
	}

	return &Client{
		name:      cfg.Name,
		notes:     cfg.Notes,
		rpcClient: rpcClient,
		eth:       ethclient.NewClient(rpcClient),
	}, nil
}

// Name returns the configured chain name.
func (c *Client) Name() string {
	if c == nil {
		return ""
	}
	return c.name
}

// Close releases the network connection held by the client.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.eth != nil {
		c.eth.Close()
		c.eth = nil
	}
	if c.rpcClient != nil {
		c.rpcClient.Close()
		c.rpcClient = nil
	}
}

// TransactionReceipt looks up the mined receipt for a transaction. It
// forwards go-ethereum's NotFound sentinel when the transaction is still
// pending.
func (c *Client) TransactionReceipt(ctx context.Context, txHash common.Hash) (*coretypes.Receipt, error) {
	if c == nil || c.eth == nil {
		return nil, errors.New("未初始化的链客户端")
	}
	return c.eth.TransactionReceipt(ctx, txHash)
}

// BalanceAt returns the latest balance of the given account in wei.
func (c *Client) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	if c == nil || c.eth == nil {
		return nil, errors.New("未初始化的链客户端")
	}
	balance, err := c.eth.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, fmt.Errorf("查询余额失败: %w", err)
	}
	return balance, nil
}

// PendingNonceAt returns the next nonce for the given account, including
// pending transactions.
func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	if c == nil || c.eth == nil {
		return 0, errors.New("未初始化的链客户端")
	}
	nonce, err := c.eth.PendingNonceAt(ctx, account)
	if err != nil {
		return 0, fmt.Errorf("查询交易计数失败: %w", err)
	}
	return nonce, nil
}

// SuggestGasPrice returns the node's suggested gas price.
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	if c == nil || c.eth == nil {
		return nil, errors.New("未初始化的链客户端")
	}
	price, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("查询建议 gas 价格失败: %w", err)
	}
	return price, nil
}

// ChainID returns the chain identifier reported by the node.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	if c == nil || c.eth == nil {
		return nil, errors.New("未初始化的链客户端")
	}
	id, err := c.eth.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取链 ID 失败: %w", err)
	}
	return id, nil
}

// SendTransaction broadcasts a signed transaction.
func (c *Client) SendTransaction(ctx context.Context, tx *coretypes.Transaction) error {
	if c == nil || c.eth == nil {
		return errors.New("未初始化的链客户端")
	}
	if err := c.eth.SendTransaction(ctx, tx); err != nil {
		return fmt.Errorf("发送交易失败: %w", err)
	}
	return nil
}

// RawClient exposes the underlying RPC client for callers that need raw
// JSON-RPC access, such as the delegating signer.
func (c *Client) RawClient() *gethrpc.Client {
	if c == nil {
		return nil
	}
	return c.rpcClient
}
