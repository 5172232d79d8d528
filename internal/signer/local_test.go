package signer

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

const testKeyHex = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"

type fakeBackend struct {
	chainID *big.Int
	sent    *coretypes.Transaction
}

func (b *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return 7, nil
}

func (b *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(2_000_000_000), nil
}

func (b *fakeBackend) ChainID(context.Context) (*big.Int, error) {
	return b.chainID, nil
}

func (b *fakeBackend) SendTransaction(_ context.Context, tx *coretypes.Transaction) error {
	b.sent = tx
	return nil
}

func TestKeySignerSignTextRecoversAddress(t *testing.T) {
	signer, err := NewKeySigner(testKeyHex, nil)
	if err != nil {
		t.Fatalf("创建签名器失败: %v", err)
	}

	message := []byte("0xfeedface")
	encoded, err := signer.SignText(context.Background(), message)
	if err != nil {
		t.Fatalf("签名失败: %v", err)
	}

	signature, err := hexutil.Decode(encoded)
	if err != nil {
		t.Fatalf("签名编码不合法: %v", err)
	}
	if len(signature) != crypto.SignatureLength {
		t.Fatalf("签名长度不符: %d", len(signature))
	}
	if v := signature[crypto.RecoveryIDOffset]; v != 27 && v != 28 {
		t.Fatalf("v 值应符合 eth_sign 惯例，得到 %d", v)
	}

	signature[crypto.RecoveryIDOffset] -= 27
	pub, err := crypto.SigToPub(accounts.TextHash(message), signature)
	if err != nil {
		t.Fatalf("恢复公钥失败: %v", err)
	}
	if recovered := crypto.PubkeyToAddress(*pub); recovered != signer.Address() {
		t.Fatalf("恢复地址 %s 与签名账户 %s 不符", recovered.Hex(), signer.Address().Hex())
	}
}

func TestKeySignerSendValueTransfer(t *testing.T) {
	backend := &fakeBackend{chainID: big.NewInt(11155111)}
	signer, err := NewKeySigner("0x"+testKeyHex, backend)
	if err != nil {
		t.Fatalf("创建签名器失败: %v", err)
	}

	to := common.HexToAddress("0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb0")
	amount := big.NewInt(1_000_000_000_000_000_000)

	hash, err := signer.SendValueTransfer(context.Background(), to, amount)
	if err != nil {
		t.Fatalf("转账失败: %v", err)
	}
	if backend.sent == nil {
		t.Fatal("交易未被广播")
	}
	if hash != backend.sent.Hash() {
		t.Fatalf("返回的交易哈希与广播交易不符")
	}
	if got := backend.sent.To(); got == nil || *got != to {
		t.Fatalf("收款地址不符: %v", got)
	}
	if backend.sent.Value().Cmp(amount) != 0 {
		t.Fatalf("转账金额不符: %s", backend.sent.Value())
	}
	if backend.sent.Nonce() != 7 {
		t.Fatalf("nonce 不符: %d", backend.sent.Nonce())
	}

	sender, err := coretypes.Sender(coretypes.LatestSignerForChainID(backend.chainID), backend.sent)
	if err != nil {
		t.Fatalf("恢复交易发送者失败: %v", err)
	}
	if sender != signer.Address() {
		t.Fatalf("交易签名者 %s 与账户 %s 不符", sender.Hex(), signer.Address().Hex())
	}
}

func TestKeySignerRejectsNonPositiveAmount(t *testing.T) {
	signer, err := NewKeySigner(testKeyHex, &fakeBackend{chainID: big.NewInt(1)})
	if err != nil {
		t.Fatalf("创建签名器失败: %v", err)
	}
	if _, err := signer.SendValueTransfer(context.Background(), common.Address{}, big.NewInt(0)); err == nil {
		t.Fatal("零金额应当被拒绝")
	}
}
