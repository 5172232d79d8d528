package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"SafeGuard-Console/internal/custody"
	"SafeGuard-Console/internal/identity"
	"SafeGuard-Console/internal/relay"
)

type stubRelay struct {
	proposeHash   string
	confirmResult relay.ConfirmationResult
	safeAddress   string
}

func (s *stubRelay) ProposeGuard(context.Context, string, relay.GuardProposal) (string, error) {
	return s.proposeHash, nil
}

func (s *stubRelay) ConfirmGuard(context.Context, string, relay.Confirmation) (relay.ConfirmationResult, error) {
	return s.confirmResult, nil
}

func (s *stubRelay) ProposeWithdrawal(context.Context, string, relay.WithdrawalProposal) (string, error) {
	return s.proposeHash, nil
}

func (s *stubRelay) ConfirmWithdrawal(context.Context, string, relay.Confirmation) (relay.ConfirmationResult, error) {
	return s.confirmResult, nil
}

func (s *stubRelay) PendingTransactions(context.Context, string, string) (relay.PendingSet, error) {
	return relay.PendingSet{SafeAddress: s.safeAddress}, nil
}

func (s *stubRelay) AccountInfo(context.Context, string, string) (relay.AccountInfo, error) {
	return relay.AccountInfo{SafeAddress: s.safeAddress}, nil
}

func newTestServer(t *testing.T, apiToken string) *Server {
	t.Helper()
	orch, err := custody.NewOrchestrator(
		&stubRelay{proposeHash: "0xabc", safeAddress: "0x00000000000000000000000000000000000000cc"},
		identity.Static{Token: "tok", Email: "user@example.com"},
		nil,
		"0x00000000000000000000000000000000000000bb",
		custody.NewMemoryJournal(),
		nil,
	)
	if err != nil {
		t.Fatalf("构造编排器失败: %v", err)
	}
	return NewServer(":0", orch, apiToken)
}

func TestWithdrawEndpointRejectsInvalidAmount(t *testing.T) {
	server := newTestServer(t, "")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/flows/withdraw", strings.NewReader(`{"amount":"abc"}`))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("期望 400, 实际 %d", rec.Code)
	}
	var resp struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if resp.Code != string(custody.CodeInvalidAmount) {
		t.Fatalf("错误码不符: %s", resp.Code)
	}
}

func TestFlowsEndpointListsJournal(t *testing.T) {
	server := newTestServer(t, "")

	if err := server.orch.Journal().Create(context.Background(), &custody.Flow{
		ID:     "f-1",
		Kind:   custody.KindGuard,
		Status: custody.StatusSucceeded,
	}); err != nil {
		t.Fatalf("写入流程失败: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/flows?limit=10", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("期望 200, 实际 %d", rec.Code)
	}
	var flows []custody.Flow
	if err := json.Unmarshal(rec.Body.Bytes(), &flows); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if len(flows) != 1 || flows[0].ID != "f-1" {
		t.Fatalf("列表内容不符: %+v", flows)
	}
}

func TestFlowDetailNotFound(t *testing.T) {
	server := newTestServer(t, "")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/flows/missing", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("期望 404, 实际 %d", rec.Code)
	}
}

func TestStateEndpoint(t *testing.T) {
	server := newTestServer(t, "")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/flows/state", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("期望 200, 实际 %d", rec.Code)
	}
	var states map[custody.Kind]custody.KindSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &states); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if states[custody.KindGuard].State != custody.StateIdle {
		t.Fatalf("初始状态应为 idle: %+v", states)
	}
}

func TestAPITokenGuard(t *testing.T) {
	server := newTestServer(t, "secret-token")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/flows", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("缺少令牌期望 401, 实际 %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/flows", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("携带令牌期望 200, 实际 %d", rec.Code)
	}
}

func TestOverviewEndpoint(t *testing.T) {
	server := newTestServer(t, "")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/wallet/overview", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("期望 200, 实际 %d", rec.Code)
	}
	var overview custody.Overview
	if err := json.Unmarshal(rec.Body.Bytes(), &overview); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if overview.SafeAddress != "0x00000000000000000000000000000000000000cc" {
		t.Fatalf("托管地址不符: %s", overview.SafeAddress)
	}
}
