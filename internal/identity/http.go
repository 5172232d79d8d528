package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"SafeGuard-Console/internal/config"
)

// HTTPProvider 通过 REST 端点访问身份提供方。它持有连接阶段获得的
// 会话凭证，并用其换取短期的 idToken 与用户信息。
type HTTPProvider struct {
	baseURL      *url.URL
	tokenPath    string
	userInfoPath string
	sessionToken string
	client       *http.Client
}

// NewHTTPProvider 创建并配置一个新的身份提供方客户端实例。
func NewHTTPProvider(cfg config.IdentityConfig) (*HTTPProvider, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("identity base_url must be configured")
	}
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid identity base_url: %w", err)
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPProvider{
		baseURL:      parsed,
		tokenPath:    cfg.TokenPath,
		userInfoPath: cfg.UserInfoPath,
		sessionToken: cfg.SessionToken,
		client:       &http.Client{Timeout: timeout},
	}, nil
}

type tokenResponse struct {
	IDToken string `json:"idToken"`
}

type userInfoResponse struct {
	Email string `json:"email"`
}

// IdentityToken 获取当前会话的 idToken。
func (p *HTTPProvider) IdentityToken(ctx context.Context) (string, error) {
	var resp tokenResponse
	if err := p.get(ctx, p.tokenPath, &resp); err != nil {
		return "", err
	}
	return resp.IDToken, nil
}

// UserInfo 获取当前会话绑定的用户邮箱。
func (p *HTTPProvider) UserInfo(ctx context.Context) (string, error) {
	var resp userInfoResponse
	if err := p.get(ctx, p.userInfoPath, &resp); err != nil {
		return "", err
	}
	return resp.Email, nil
}

func (p *HTTPProvider) get(ctx context.Context, endpoint string, out any) error {
	rel := &url.URL{Path: endpoint}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL.ResolveReference(rel).String(), nil)
	if err != nil {
		return err
	}
	if p.sessionToken != "" {
		req.Header.Set("Authorization", "Bearer "+p.sessionToken)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("identity request failed: %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode identity response: %w", err)
	}
	return nil
}
