package custody

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	xerrors "SafeGuard-Console/internal/errors"
	"SafeGuard-Console/internal/identity"
	"SafeGuard-Console/internal/relay"
	"SafeGuard-Console/internal/signer"
	"SafeGuard-Console/pkg/logger"
)

// RelayAPI 抽象交易中继客户端, 便于测试替身。
// *relay.Client 实现了该接口。
type RelayAPI interface {
	ProposeGuard(ctx context.Context, token string, proposal relay.GuardProposal) (string, error)
	ConfirmGuard(ctx context.Context, token string, confirmation relay.Confirmation) (relay.ConfirmationResult, error)
	ProposeWithdrawal(ctx context.Context, token string, proposal relay.WithdrawalProposal) (string, error)
	ConfirmWithdrawal(ctx context.Context, token string, confirmation relay.Confirmation) (relay.ConfirmationResult, error)
	PendingTransactions(ctx context.Context, token, email string) (relay.PendingSet, error)
	AccountInfo(ctx context.Context, token, email string) (relay.AccountInfo, error)
}

// BalanceReader 查询托管账户链上余额。*chain.Client 实现了该接口。
type BalanceReader interface {
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
}

// Overview 汇总托管账户的即时视图。
type Overview struct {
	Email       string `json:"email"`
	SafeAddress string `json:"safe_address"`
	BalanceWei  string `json:"balance_wei,omitempty"`
}

// Orchestrator 驱动守护安装、提款与充值三类流程:
// 每次流程都解析新的身份上下文, 经由中继完成提案与确认,
// 充值交易交给观察队列异步等待回执。
type Orchestrator struct {
	relay        RelayAPI
	identity     identity.Provider
	signer       signer.Signer
	balance      BalanceReader
	guardAddress string

	board   *StateBoard
	journal Journal
	watch   WatchProducer

	// executeHook 在确认返回可执行链接时被调用一次, 默认只记录审计日志。
	executeHook func(url string)

	safeMu   sync.Mutex
	safeAddr string
}

// OrchestratorOption 配置 Orchestrator 可选行为。
type OrchestratorOption func(*Orchestrator)

// WithExecuteHook 替换执行链接的处理逻辑。
func WithExecuteHook(hook func(url string)) OrchestratorOption {
	return func(o *Orchestrator) { o.executeHook = hook }
}

// WithBalanceReader 启用账户余额查询。
func WithBalanceReader(reader BalanceReader) OrchestratorOption {
	return func(o *Orchestrator) { o.balance = reader }
}

// NewOrchestrator 构造流程编排器。
func NewOrchestrator(relayAPI RelayAPI, provider identity.Provider, sign signer.Signer,
	guardAddress string, journal Journal, watch WatchProducer, opts ...OrchestratorOption) (*Orchestrator, error) {
	if relayAPI == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "中继客户端未初始化")
	}
	if provider == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "身份提供方未初始化")
	}
	if journal == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "流程日志未初始化")
	}
	o := &Orchestrator{
		relay:        relayAPI,
		identity:     provider,
		signer:       sign,
		guardAddress: strings.TrimSpace(guardAddress),
		board:        NewStateBoard(),
		journal:      journal,
		watch:        watch,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Board 返回状态板, 供回执观察者在流程终结时更新。
func (o *Orchestrator) Board() *StateBoard { return o.board }

// Journal 返回底层流程日志。
func (o *Orchestrator) Journal() Journal { return o.journal }

// InstallGuard 执行守护合约安装流程。
func (o *Orchestrator) InstallGuard(ctx context.Context) (*Flow, error) {
	flow := &Flow{ID: uuid.NewString(), Kind: KindGuard, Status: StatusRunning}
	if !o.board.Begin(KindGuard, flow.ID) {
		return nil, ErrFlowBusy
	}

	if err := o.journal.Create(ctx, flow); err != nil {
		o.board.Finish(KindGuard, flow.ID, string(xerrors.CodeStorageFailure))
		return nil, err
	}

	auth, err := identity.Resolve(ctx, o.identity)
	if err != nil {
		return o.fail(ctx, flow, identity.CodeUnavailable, err)
	}
	flow.Email = auth.Email

	safeAddress, err := o.resolveSafeAddress(ctx, auth)
	if err != nil {
		return o.fail(ctx, flow, CodeNoCustodyAccount, err)
	}
	flow.SafeAddress = safeAddress

	hash, err := o.relay.ProposeGuard(ctx, auth.Token, relay.GuardProposal{
		Email:        auth.Email,
		SafeAddress:  safeAddress,
		GuardAddress: o.guardAddress,
	})
	if err != nil {
		if stdErrors.Is(err, relay.ErrNoHashField) {
			return o.fail(ctx, flow, CodeMalformedHash, err)
		}
		return o.fail(ctx, flow, CodeProposalRejected, err)
	}
	return o.signAndConfirm(ctx, flow, auth, hash, o.relay.ConfirmGuard)
}

// Withdraw 执行托管账户提款流程。金额为以太单位的十进制字符串,
// 校验失败时不会发起任何外部调用。
func (o *Orchestrator) Withdraw(ctx context.Context, amount string) (*Flow, error) {
	amountWei, err := ParseEtherAmount(amount)
	if err != nil {
		return nil, err
	}

	flow := &Flow{ID: uuid.NewString(), Kind: KindWithdrawal, Status: StatusRunning, AmountWei: amountWei.String()}
	if !o.board.Begin(KindWithdrawal, flow.ID) {
		return nil, ErrFlowBusy
	}

	if err := o.journal.Create(ctx, flow); err != nil {
		o.board.Finish(KindWithdrawal, flow.ID, string(xerrors.CodeStorageFailure))
		return nil, err
	}

	auth, err := identity.Resolve(ctx, o.identity)
	if err != nil {
		return o.fail(ctx, flow, identity.CodeUnavailable, err)
	}
	flow.Email = auth.Email

	hash, err := o.relay.ProposeWithdrawal(ctx, auth.Token, relay.WithdrawalProposal{
		Email:     auth.Email,
		AmountWei: amountWei.String(),
	})
	if err != nil {
		if stdErrors.Is(err, relay.ErrNoHashField) {
			return o.fail(ctx, flow, CodeMalformedHash, err)
		}
		return o.fail(ctx, flow, CodeProposalRejected, err)
	}
	return o.signAndConfirm(ctx, flow, auth, hash, o.relay.ConfirmWithdrawal)
}

// Deposit 从签名账户向托管账户直接转入。交易广播后流程进入
// awaiting_receipt, 由回执观察者异步终结。
func (o *Orchestrator) Deposit(ctx context.Context, amount string) (*Flow, error) {
	amountWei, err := ParseEtherAmount(amount)
	if err != nil {
		return nil, err
	}
	if o.signer == nil {
		return nil, xerrors.New(CodeSigningUnavailable, "未配置签名账户")
	}

	flow := &Flow{ID: uuid.NewString(), Kind: KindDeposit, Status: StatusRunning, AmountWei: amountWei.String()}
	if !o.board.Begin(KindDeposit, flow.ID) {
		return nil, ErrFlowBusy
	}

	if err := o.journal.Create(ctx, flow); err != nil {
		o.board.Finish(KindDeposit, flow.ID, string(xerrors.CodeStorageFailure))
		return nil, err
	}

	auth, err := identity.Resolve(ctx, o.identity)
	if err != nil {
		return o.fail(ctx, flow, identity.CodeUnavailable, err)
	}
	flow.Email = auth.Email

	safeAddress, err := o.resolveSafeAddress(ctx, auth)
	if err != nil {
		return o.fail(ctx, flow, CodeNoDestination, err)
	}
	flow.SafeAddress = safeAddress
	if !common.IsHexAddress(safeAddress) {
		return o.fail(ctx, flow, CodeNoDestination, xerrors.New(CodeNoDestination, fmt.Sprintf("托管账户地址 %q 非法", safeAddress)))
	}

	txHash, err := o.signer.SendValueTransfer(ctx, common.HexToAddress(safeAddress), amountWei)
	if err != nil {
		return o.fail(ctx, flow, CodeSigningRejected, err)
	}
	flow.TxHash = txHash.Hex()
	flow.Status = StatusAwaitingReceipt

	if err := o.journal.UpdateStatus(ctx, flow.ID, StatusAwaitingReceipt, Update{TxHash: strPtr(flow.TxHash)}); err != nil {
		logger.L().Error("记录充值交易失败", slog.Any("error", err), slog.String("flow_id", flow.ID))
	}
	if o.watch == nil {
		return o.fail(ctx, flow, xerrors.CodeQueueFailure, xerrors.New(xerrors.CodeQueueFailure, "观察队列未初始化"))
	}
	if err := o.watch.Publish(ctx, flow.ID); err != nil {
		return o.fail(ctx, flow, xerrors.CodeQueueFailure, xerrors.Wrap(xerrors.CodeQueueFailure, err, "充值流程入队失败"))
	}

	logger.Audit().Info("充值交易已广播",
		slog.String("flow_id", flow.ID),
		slog.String("tx_hash", flow.TxHash),
		slog.String("safe_address", safeAddress),
		slog.String("amount_wei", flow.AmountWei),
	)
	return flow, nil
}

// signAndConfirm 完成提案哈希校验、签名与确认, 是守护与提款流程的公共后半段。
func (o *Orchestrator) signAndConfirm(ctx context.Context, flow *Flow, auth identity.Context, hash string,
	confirm func(context.Context, string, relay.Confirmation) (relay.ConfirmationResult, error)) (*Flow, error) {
	// 提案哈希必须是 0x 前缀的十六进制串, 否则不得进入签名环节。
	if !strings.HasPrefix(hash, "0x") {
		return o.fail(ctx, flow, CodeMalformedHash, xerrors.New(CodeMalformedHash, fmt.Sprintf("提案哈希 %q 缺少 0x 前缀", hash)))
	}
	flow.CorrelationHash = hash
	if err := o.journal.UpdateStatus(ctx, flow.ID, StatusRunning, Update{CorrelationHash: strPtr(hash)}); err != nil {
		logger.L().Error("记录提案哈希失败", slog.Any("error", err), slog.String("flow_id", flow.ID))
	}

	if o.signer == nil {
		return o.fail(ctx, flow, CodeSigningUnavailable, xerrors.New(CodeSigningUnavailable, "未配置签名账户"))
	}
	// 按约定对哈希字符串本身的字节签名, 而非其二进制解码。
	signature, err := o.signer.SignText(ctx, []byte(hash))
	if err != nil {
		return o.fail(ctx, flow, CodeSigningRejected, err)
	}

	result, err := confirm(ctx, auth.Token, relay.Confirmation{
		Email:         auth.Email,
		SafeTxHash:    hash,
		UserSignature: signature,
	})
	if err != nil {
		return o.fail(ctx, flow, CodeConfirmRejected, err)
	}

	flow.ReadyToExecute = result.ReadyToExecute
	flow.ExecuteURL = result.TxServiceURL
	flow.Status = StatusSucceeded
	update := Update{ReadyToExecute: boolPtr(result.ReadyToExecute)}
	if result.TxServiceURL != "" {
		update.ExecuteURL = strPtr(result.TxServiceURL)
	}
	if err := o.journal.UpdateStatus(ctx, flow.ID, StatusSucceeded, update); err != nil {
		logger.L().Error("记录流程结果失败", slog.Any("error", err), slog.String("flow_id", flow.ID))
	}
	o.board.Finish(flow.Kind, flow.ID, "")

	if result.ReadyToExecute && result.TxServiceURL != "" {
		if o.executeHook != nil {
			o.executeHook(result.TxServiceURL)
		}
		logger.Audit().Info("确认达到执行阈值",
			slog.String("flow_id", flow.ID),
			slog.String("kind", string(flow.Kind)),
			slog.String("execute_url", result.TxServiceURL),
		)
	}
	logger.Audit().Info("流程确认完成",
		slog.String("flow_id", flow.ID),
		slog.String("kind", string(flow.Kind)),
		slog.String("correlation_hash", hash),
		slog.Bool("ready_to_execute", result.ReadyToExecute),
	)
	return flow, nil
}

// AccountOverview 返回托管账户概览, 配置了链客户端时附带余额。
func (o *Orchestrator) AccountOverview(ctx context.Context) (Overview, error) {
	auth, err := identity.Resolve(ctx, o.identity)
	if err != nil {
		return Overview{}, err
	}
	safeAddress, err := o.resolveSafeAddress(ctx, auth)
	if err != nil {
		return Overview{}, err
	}
	overview := Overview{Email: auth.Email, SafeAddress: safeAddress}
	if o.balance != nil && common.IsHexAddress(safeAddress) {
		balance, err := o.balance.BalanceAt(ctx, common.HexToAddress(safeAddress))
		if err != nil {
			logger.L().Warn("查询托管账户余额失败", slog.Any("error", err), slog.String("safe_address", safeAddress))
		} else {
			overview.BalanceWei = balance.String()
		}
	}
	return overview, nil
}

// PendingTransactions 透传中继侧的待处理提案列表。
func (o *Orchestrator) PendingTransactions(ctx context.Context) (relay.PendingSet, error) {
	auth, err := identity.Resolve(ctx, o.identity)
	if err != nil {
		return relay.PendingSet{}, err
	}
	return o.relay.PendingTransactions(ctx, auth.Token, auth.Email)
}

// GetFlow 返回指定流程。
func (o *Orchestrator) GetFlow(ctx context.Context, id string) (*Flow, error) {
	return o.journal.Get(ctx, id)
}

// ListFlows 返回最近的流程记录。
func (o *Orchestrator) ListFlows(ctx context.Context, limit int) ([]*Flow, error) {
	return o.journal.List(ctx, limit)
}

// FlowStats 返回流程聚合统计。
func (o *Orchestrator) FlowStats(ctx context.Context) (FlowStats, error) {
	return o.journal.Stats(ctx)
}

// States 返回各类别流程的即时状态。
func (o *Orchestrator) States() map[Kind]KindSnapshot {
	return o.board.Snapshot()
}

// resolveSafeAddress 查询身份绑定的托管账户地址, 命中后缓存。
func (o *Orchestrator) resolveSafeAddress(ctx context.Context, auth identity.Context) (string, error) {
	o.safeMu.Lock()
	cached := o.safeAddr
	o.safeMu.Unlock()
	if cached != "" {
		return cached, nil
	}

	info, err := o.relay.AccountInfo(ctx, auth.Token, auth.Email)
	if err != nil {
		return "", err
	}
	address := strings.TrimSpace(info.SafeAddress)
	if address == "" {
		return "", ErrNoCustodyAccount
	}

	o.safeMu.Lock()
	o.safeAddr = address
	o.safeMu.Unlock()
	return address, nil
}

// fail 终结流程: 写入日志、释放状态板并返回带错误码的错误。
func (o *Orchestrator) fail(ctx context.Context, flow *Flow, code xerrors.Code, cause error) (*Flow, error) {
	wrapped := cause
	if xerrors.CodeOf(cause) != code {
		wrapped = xerrors.Wrap(code, cause, "")
	}
	flow.Status = StatusFailed
	flow.ErrorCode = string(code)
	flow.LastError = wrapped.Error()

	if err := o.journal.UpdateStatus(ctx, flow.ID, StatusFailed, Update{
		ErrorCode: strPtr(string(code)),
		LastError: strPtr(wrapped.Error()),
	}); err != nil {
		logger.L().Error("记录流程失败状态失败", slog.Any("error", err), slog.String("flow_id", flow.ID))
	}
	o.board.Finish(flow.Kind, flow.ID, string(code))

	logger.L().Error("流程终止",
		slog.String("flow_id", flow.ID),
		slog.String("kind", string(flow.Kind)),
		slog.String("error_code", string(code)),
		slog.Any("error", cause),
	)
	return nil, wrapped
}
