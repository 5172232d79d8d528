package custody

import (
	"context"
	stdErrors "errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	xerrors "SafeGuard-Console/internal/errors"
	"SafeGuard-Console/internal/identity"
	"SafeGuard-Console/internal/relay"
)

type fakeRelay struct {
	networkCalls atomic.Int32
	proposeCalls atomic.Int32
	confirmCalls atomic.Int32

	proposeHash   string
	proposeErr    error
	confirmResult relay.ConfirmationResult
	confirmErr    error
	safeAddress   string

	// proposeStarted/proposeRelease 非空时, ProposeGuard 会阻塞等待放行。
	proposeStarted     chan struct{}
	proposeStartedOnce sync.Once
	proposeRelease     chan struct{}
}

func (f *fakeRelay) ProposeGuard(ctx context.Context, _ string, _ relay.GuardProposal) (string, error) {
	f.networkCalls.Add(1)
	f.proposeCalls.Add(1)
	if f.proposeStarted != nil {
		f.proposeStartedOnce.Do(func() { close(f.proposeStarted) })
		select {
		case <-f.proposeRelease:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.proposeHash, f.proposeErr
}

func (f *fakeRelay) ConfirmGuard(context.Context, string, relay.Confirmation) (relay.ConfirmationResult, error) {
	f.networkCalls.Add(1)
	f.confirmCalls.Add(1)
	return f.confirmResult, f.confirmErr
}

func (f *fakeRelay) ProposeWithdrawal(context.Context, string, relay.WithdrawalProposal) (string, error) {
	f.networkCalls.Add(1)
	f.proposeCalls.Add(1)
	return f.proposeHash, f.proposeErr
}

func (f *fakeRelay) ConfirmWithdrawal(context.Context, string, relay.Confirmation) (relay.ConfirmationResult, error) {
	f.networkCalls.Add(1)
	f.confirmCalls.Add(1)
	return f.confirmResult, f.confirmErr
}

func (f *fakeRelay) PendingTransactions(context.Context, string, string) (relay.PendingSet, error) {
	f.networkCalls.Add(1)
	return relay.PendingSet{}, nil
}

func (f *fakeRelay) AccountInfo(context.Context, string, string) (relay.AccountInfo, error) {
	f.networkCalls.Add(1)
	return relay.AccountInfo{SafeAddress: f.safeAddress}, nil
}

type fakeSigner struct {
	signCalls atomic.Int32
	sendCalls atomic.Int32
	signature string
	signErr   error
	txHash    common.Hash
	sendErr   error
	lastTo    common.Address
	lastWei   *big.Int
}

func (f *fakeSigner) Address() common.Address {
	return common.HexToAddress("0x00000000000000000000000000000000000000aa")
}

func (f *fakeSigner) SignText(context.Context, []byte) (string, error) {
	f.signCalls.Add(1)
	return f.signature, f.signErr
}

func (f *fakeSigner) SendValueTransfer(_ context.Context, to common.Address, amountWei *big.Int) (common.Hash, error) {
	f.sendCalls.Add(1)
	f.lastTo = to
	f.lastWei = new(big.Int).Set(amountWei)
	return f.txHash, f.sendErr
}

type recordingProducer struct {
	published []string
}

func (p *recordingProducer) Publish(_ context.Context, flowID string) error {
	p.published = append(p.published, flowID)
	return nil
}

var testIdentity = identity.Static{Token: "token-1", Email: "user@example.com"}

func newTestOrchestrator(t *testing.T, relayAPI RelayAPI, sign *fakeSigner, opts ...OrchestratorOption) (*Orchestrator, *MemoryJournal, *recordingProducer) {
	t.Helper()
	journal := NewMemoryJournal()
	producer := &recordingProducer{}
	orch, err := NewOrchestrator(relayAPI, testIdentity, sign, "0x00000000000000000000000000000000000000bb", journal, producer, opts...)
	if err != nil {
		t.Fatalf("构造编排器失败: %v", err)
	}
	return orch, journal, producer
}

func TestInstallGuardSuccess(t *testing.T) {
	relayStub := &fakeRelay{
		proposeHash: "0xabc123",
		safeAddress: "0x00000000000000000000000000000000000000cc",
		confirmResult: relay.ConfirmationResult{
			ReadyToExecute: true,
			TxServiceURL:   "https://safe.example/tx/0xabc123",
		},
	}
	signStub := &fakeSigner{signature: "0xsigned"}

	var opened []string
	orch, journal, _ := newTestOrchestrator(t, relayStub, signStub,
		WithExecuteHook(func(url string) { opened = append(opened, url) }))

	flow, err := orch.InstallGuard(context.Background())
	if err != nil {
		t.Fatalf("守护安装流程失败: %v", err)
	}
	if flow.Status != StatusSucceeded {
		t.Fatalf("期望 succeeded, 实际 %s", flow.Status)
	}
	if flow.CorrelationHash != "0xabc123" {
		t.Fatalf("提案哈希不符: %s", flow.CorrelationHash)
	}
	if got := signStub.signCalls.Load(); got != 1 {
		t.Fatalf("期望签名 1 次, 实际 %d", got)
	}
	if len(opened) != 1 || opened[0] != "https://safe.example/tx/0xabc123" {
		t.Fatalf("执行链接回调不符: %v", opened)
	}

	stored, err := journal.Get(context.Background(), flow.ID)
	if err != nil {
		t.Fatalf("读取流程日志失败: %v", err)
	}
	if !stored.ReadyToExecute || stored.ExecuteURL == "" {
		t.Fatalf("流程日志缺少执行信息: %+v", stored)
	}
}

func TestInstallGuardRejectsHashWithoutPrefix(t *testing.T) {
	relayStub := &fakeRelay{
		proposeHash: "abc123",
		safeAddress: "0x00000000000000000000000000000000000000cc",
	}
	signStub := &fakeSigner{signature: "0xsigned"}
	orch, _, _ := newTestOrchestrator(t, relayStub, signStub)

	_, err := orch.InstallGuard(context.Background())
	if err == nil {
		t.Fatal("期望流程失败")
	}
	if code := xerrors.CodeOf(err); code != CodeMalformedHash {
		t.Fatalf("期望 %s, 实际 %s", CodeMalformedHash, code)
	}
	// 非法哈希绝不能进入签名环节。
	if got := signStub.signCalls.Load(); got != 0 {
		t.Fatalf("期望签名 0 次, 实际 %d", got)
	}
	if got := relayStub.confirmCalls.Load(); got != 0 {
		t.Fatalf("期望确认 0 次, 实际 %d", got)
	}
}

func TestInstallGuardWithoutCustodyAccount(t *testing.T) {
	relayStub := &fakeRelay{proposeHash: "0xabc", safeAddress: ""}
	orch, _, _ := newTestOrchestrator(t, relayStub, &fakeSigner{signature: "0xsig"})

	_, err := orch.InstallGuard(context.Background())
	if !stdErrors.Is(err, ErrNoCustodyAccount) {
		t.Fatalf("期望 ErrNoCustodyAccount, 实际 %v", err)
	}
	if got := relayStub.proposeCalls.Load(); got != 0 {
		t.Fatalf("缺少托管账户时不应发起提案, 实际 %d 次", got)
	}
}

func TestWithdrawInvalidAmountMakesNoNetworkCalls(t *testing.T) {
	relayStub := &fakeRelay{proposeHash: "0xabc"}
	signStub := &fakeSigner{signature: "0xsig"}
	orch, _, _ := newTestOrchestrator(t, relayStub, signStub)

	for _, amount := range []string{"", "abc", "-1", "0", "1e", " "} {
		_, err := orch.Withdraw(context.Background(), amount)
		if !stdErrors.Is(err, ErrInvalidAmount) {
			t.Fatalf("金额 %q 期望 ErrInvalidAmount, 实际 %v", amount, err)
		}
	}
	if got := relayStub.networkCalls.Load(); got != 0 {
		t.Fatalf("非法金额不应产生网络调用, 实际 %d 次", got)
	}
	if got := signStub.signCalls.Load(); got != 0 {
		t.Fatalf("非法金额不应触发签名, 实际 %d 次", got)
	}
}

func TestWithdrawSuccess(t *testing.T) {
	relayStub := &fakeRelay{
		proposeHash:   "0xdef456",
		confirmResult: relay.ConfirmationResult{ReadyToExecute: false, Message: "1/2 signatures"},
	}
	orch, journal, _ := newTestOrchestrator(t, relayStub, &fakeSigner{signature: "0xsig"})

	flow, err := orch.Withdraw(context.Background(), "0.5")
	if err != nil {
		t.Fatalf("提款流程失败: %v", err)
	}
	if flow.AmountWei != "500000000000000000" {
		t.Fatalf("金额换算不符: %s", flow.AmountWei)
	}
	if flow.ReadyToExecute {
		t.Fatal("未达到阈值不应 ready_to_execute")
	}
	stored, err := journal.Get(context.Background(), flow.ID)
	if err != nil {
		t.Fatalf("读取流程日志失败: %v", err)
	}
	if stored.Status != StatusSucceeded || stored.CorrelationHash != "0xdef456" {
		t.Fatalf("流程日志不符: %+v", stored)
	}
}

func TestGuardBusyRejectsSecondFlow(t *testing.T) {
	relayStub := &fakeRelay{
		proposeHash:    "0xabc123",
		safeAddress:    "0x00000000000000000000000000000000000000cc",
		proposeStarted: make(chan struct{}),
		proposeRelease: make(chan struct{}),
	}
	orch, _, _ := newTestOrchestrator(t, relayStub, &fakeSigner{signature: "0xsig"})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = orch.InstallGuard(context.Background())
	}()

	<-relayStub.proposeStarted

	_, err := orch.InstallGuard(context.Background())
	if !stdErrors.Is(err, ErrFlowBusy) {
		t.Fatalf("期望 ErrFlowBusy, 实际 %v", err)
	}

	close(relayStub.proposeRelease)
	<-done

	// 第二次调用不得发起新的提案。
	if got := relayStub.proposeCalls.Load(); got != 1 {
		t.Fatalf("期望提案 1 次, 实际 %d", got)
	}

	// 首个流程结束后类别重新可用。
	if _, err := orch.InstallGuard(context.Background()); err != nil {
		t.Fatalf("流程结束后应可重新发起: %v", err)
	}
}

func TestDepositBroadcastsAndEnqueues(t *testing.T) {
	relayStub := &fakeRelay{safeAddress: "0x00000000000000000000000000000000000000cc"}
	signStub := &fakeSigner{txHash: common.HexToHash("0x11")}
	orch, journal, producer := newTestOrchestrator(t, relayStub, signStub)

	flow, err := orch.Deposit(context.Background(), "1.25")
	if err != nil {
		t.Fatalf("充值流程失败: %v", err)
	}
	if flow.Status != StatusAwaitingReceipt {
		t.Fatalf("期望 awaiting_receipt, 实际 %s", flow.Status)
	}
	if signStub.lastWei.String() != "1250000000000000000" {
		t.Fatalf("转账金额不符: %s", signStub.lastWei)
	}
	if signStub.lastTo != common.HexToAddress("0x00000000000000000000000000000000000000cc") {
		t.Fatalf("转账目标不符: %s", signStub.lastTo.Hex())
	}
	if len(producer.published) != 1 || producer.published[0] != flow.ID {
		t.Fatalf("流程未入观察队列: %v", producer.published)
	}
	stored, err := journal.Get(context.Background(), flow.ID)
	if err != nil {
		t.Fatalf("读取流程日志失败: %v", err)
	}
	if stored.Status != StatusAwaitingReceipt || stored.TxHash == "" {
		t.Fatalf("流程日志不符: %+v", stored)
	}
}

func TestDepositWithoutDestination(t *testing.T) {
	relayStub := &fakeRelay{safeAddress: ""}
	signStub := &fakeSigner{}
	orch, _, producer := newTestOrchestrator(t, relayStub, signStub)

	_, err := orch.Deposit(context.Background(), "1")
	if code := xerrors.CodeOf(err); code != CodeNoDestination {
		t.Fatalf("期望 %s, 实际 %v", CodeNoDestination, err)
	}
	if got := signStub.sendCalls.Load(); got != 0 {
		t.Fatalf("无目标地址时不应广播交易, 实际 %d 次", got)
	}
	if len(producer.published) != 0 {
		t.Fatalf("失败流程不应入队: %v", producer.published)
	}
}
