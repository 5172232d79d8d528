package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client. It is intentionally short to avoid hanging network calls.
const DefaultHTTPTimeout = 15 * time.Second

// Relay endpoints. All are bearer-token authenticated.
const (
	pathProposeGuard        = "/api/v1/tx/set-guard/propose"
	pathConfirmGuard        = "/api/v1/tx/confirm-guard"
	pathProposeWithdrawal   = "/api/v1/tx/withdraw"
	pathConfirmWithdrawal   = "/api/v1/tx/confirm-withdraw"
	pathPendingTransactions = "/api/v1/tx/pending-transactions"
	pathAccountInfo         = "/api/v1/user/get-user-info"
)

// Client wraps the HTTP interactions with the transaction relay REST API.
// The bearer token is supplied per call because every custody flow resolves
// a fresh identity; the client itself holds no credentials.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// NewClient instantiates a relay client. When httpClient is nil, a default
// client with a sensible timeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid relay base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// ProposeGuard asks the relay to propose a guard installation and returns
// the extracted correlation hash.
func (c *Client) ProposeGuard(ctx context.Context, token string, proposal GuardProposal) (string, error) {
	body, err := c.postRaw(ctx, token, pathProposeGuard, proposal)
	if err != nil {
		return "", err
	}
	return ParseCorrelationHash(body, GuardHashPrecedence)
}

// ConfirmGuard submits the participant signature for a proposed guard
// installation.
func (c *Client) ConfirmGuard(ctx context.Context, token string, confirmation Confirmation) (ConfirmationResult, error) {
	var result ConfirmationResult
	if err := c.post(ctx, token, pathConfirmGuard, confirmation, &result); err != nil {
		return ConfirmationResult{}, err
	}
	return result, nil
}

// ProposeWithdrawal asks the relay to propose a withdrawal and returns the
// extracted correlation hash.
func (c *Client) ProposeWithdrawal(ctx context.Context, token string, proposal WithdrawalProposal) (string, error) {
	body, err := c.postRaw(ctx, token, pathProposeWithdrawal, proposal)
	if err != nil {
		return "", err
	}
	return ParseCorrelationHash(body, WithdrawalHashPrecedence)
}

// ConfirmWithdrawal submits the participant signature for a proposed
// withdrawal.
func (c *Client) ConfirmWithdrawal(ctx context.Context, token string, confirmation Confirmation) (ConfirmationResult, error) {
	var result ConfirmationResult
	if err := c.post(ctx, token, pathConfirmWithdrawal, confirmation, &result); err != nil {
		return ConfirmationResult{}, err
	}
	return result, nil
}

// PendingTransactions lists the relay-tracked proposals for an account.
func (c *Client) PendingTransactions(ctx context.Context, token, email string) (PendingSet, error) {
	var set PendingSet
	payload := struct {
		Email string `json:"email"`
	}{Email: email}
	if err := c.post(ctx, token, pathPendingTransactions, payload, &set); err != nil {
		return PendingSet{}, err
	}
	return set, nil
}

// AccountInfo resolves the custody account bound to an email.
func (c *Client) AccountInfo(ctx context.Context, token, email string) (AccountInfo, error) {
	var info AccountInfo
	endpoint := fmt.Sprintf("%s?email=%s", pathAccountInfo, url.QueryEscape(email))
	if err := c.get(ctx, token, endpoint, &info); err != nil {
		return AccountInfo{}, err
	}
	return info, nil
}

func (c *Client) post(ctx context.Context, token, endpoint string, payload, out any) error {
	body, err := c.postRaw(ctx, token, endpoint, payload)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode relay response: %w", err)
	}
	return nil
}

// postRaw performs the request and returns the raw success body so callers
// can apply their own parsing to loosely shaped responses.
func (c *Client) postRaw(ctx context.Context, token, endpoint string, payload any) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode relay request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded), token)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) get(ctx context.Context, token, endpoint string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil, token)
	if err != nil {
		return err
	}
	body, err := c.do(req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode relay response: %w", err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader, token string) (*http.Request, error) {
	if token == "" {
		return nil, errors.New("relay: bearer token is not set")
	}
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid relay endpoint: %w", err)
	}
	rel := &url.URL{Path: path.Join(c.baseURL.Path, parsed.Path), RawQuery: parsed.RawQuery}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.ResolveReference(rel).String(), body)
	if err != nil {
		return nil, fmt.Errorf("create relay request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("perform relay request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read relay response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if len(data) > 0 {
			if err := json.Unmarshal(data, apiErr); err != nil {
				apiErr.Message = string(bytes.TrimSpace(data))
			}
		}
		return nil, apiErr
	}
	return data, nil
}
