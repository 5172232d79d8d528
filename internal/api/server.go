package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"SafeGuard-Console/internal/custody"
	xerrors "SafeGuard-Console/internal/errors"
	"SafeGuard-Console/internal/identity"
	"SafeGuard-Console/internal/observability/metrics"
)

// Server 负责暴露 REST 接口, 供外部驱动托管流程。
type Server struct {
	addr     string
	orch     *custody.Orchestrator
	apiToken string
}

// NewServer 构造 API 服务实例。apiToken 为空时不启用鉴权。
func NewServer(addr string, orch *custody.Orchestrator, apiToken string) *Server {
	return &Server{addr: addr, orch: orch, apiToken: strings.TrimSpace(apiToken)}
}

// Start 启动 HTTP 服务, 直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Handler 返回完整路由, 便于测试直接挂载。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/flows/guard", s.instrument("flows_guard", s.requireToken(s.handleGuard)))
	mux.HandleFunc("/api/v1/flows/withdraw", s.instrument("flows_withdraw", s.requireToken(s.handleWithdraw)))
	mux.HandleFunc("/api/v1/flows/deposit", s.instrument("flows_deposit", s.requireToken(s.handleDeposit)))
	mux.HandleFunc("/api/v1/flows/stats", s.instrument("flows_stats", s.requireToken(s.handleStats)))
	mux.HandleFunc("/api/v1/flows/state", s.instrument("flows_state", s.requireToken(s.handleState)))
	mux.HandleFunc("/api/v1/flows/", s.instrument("flow_detail", s.requireToken(s.handleFlowDetail)))
	mux.HandleFunc("/api/v1/flows", s.instrument("flows", s.requireToken(s.handleFlows)))
	mux.HandleFunc("/api/v1/wallet/overview", s.instrument("wallet_overview", s.requireToken(s.handleOverview)))
	mux.HandleFunc("/api/v1/wallet/pending", s.instrument("wallet_pending", s.requireToken(s.handlePending)))
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

type amountRequest struct {
	Amount string `json:"amount"`
}

func (s *Server) handleGuard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "仅支持 POST")
		return
	}
	flow, err := s.orch.InstallGuard(r.Context())
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, flow)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	s.handleAmountFlow(w, r, s.orch.Withdraw)
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	s.handleAmountFlow(w, r, s.orch.Deposit)
}

func (s *Server) handleAmountFlow(w http.ResponseWriter, r *http.Request,
	launch func(context.Context, string) (*custody.Flow, error)) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "仅支持 POST")
		return
	}
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "请求体解析失败")
		return
	}
	flow, err := launch(r.Context(), req.Amount)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, flow)
}

func (s *Server) handleFlows(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "仅支持 GET")
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	flows, err := s.orch.ListFlows(r.Context(), limit)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, flows)
}

func (s *Server) handleFlowDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "仅支持 GET")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/flows/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "流程不存在")
		return
	}
	flow, err := s.orch.GetFlow(r.Context(), id)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, flow)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "仅支持 GET")
		return
	}
	stats, err := s.orch.FlowStats(r.Context())
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "仅支持 GET")
		return
	}
	writeJSON(w, http.StatusOK, s.orch.States())
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "仅支持 GET")
		return
	}
	overview, err := s.orch.AccountOverview(r.Context())
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "仅支持 GET")
		return
	}
	pending, err := s.orch.PendingTransactions(r.Context())
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pending)
}

// requireToken 校验静态 Bearer 令牌, 未配置时直接放行。
func (s *Server) requireToken(next http.HandlerFunc) http.HandlerFunc {
	if s.apiToken == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		supplied := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(supplied), []byte(s.apiToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "访问令牌无效")
			return
		}
		next(w, r)
	}
}

// instrument 记录请求指标。
func (s *Server) instrument(handler string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(recorder, r)
		metrics.ObserveHTTPRequest(handler, r.Method, recorder.status, time.Since(start))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

type errorResponse struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Message: message})
}

// writeFlowError 将流程错误码映射为 HTTP 状态。
func writeFlowError(w http.ResponseWriter, err error) {
	code := xerrors.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case custody.CodeInvalidAmount:
		status = http.StatusBadRequest
	case custody.CodeFlowBusy:
		status = http.StatusConflict
	case custody.CodeFlowNotFound, xerrors.CodeNotFound:
		status = http.StatusNotFound
	case custody.CodeNoCustodyAccount, custody.CodeNoDestination:
		status = http.StatusUnprocessableEntity
	case identity.CodeUnavailable:
		status = http.StatusServiceUnavailable
	case custody.CodeProposalRejected, custody.CodeConfirmRejected,
		custody.CodeMalformedHash, custody.CodeSigningRejected,
		custody.CodeSigningUnavailable, xerrors.CodeTransportFailure:
		status = http.StatusBadGateway
	}
	writeJSON(w, status, errorResponse{Code: string(code), Message: err.Error()})
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			writeError(w, http.StatusServiceUnavailable, "服务已关闭")
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
