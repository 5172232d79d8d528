package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookSender 通过 HTTP webhook 投递告警文本,
// 同时满足 DingTalkSender 与 SlackSender。
type WebhookSender struct {
	URL        string
	HTTPClient *http.Client
}

// NewWebhookSender 创建 webhook 发送器。
func NewWebhookSender(url string) *WebhookSender {
	return &WebhookSender{
		URL:        url,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Send 以钉钉 text 消息格式投递内容。
func (s *WebhookSender) Send(ctx context.Context, content string) error {
	payload := map[string]any{
		"msgtype": "text",
		"text":    map[string]string{"content": content},
	}
	return s.post(ctx, payload)
}

// SendToChannel 以 Slack incoming webhook 格式投递内容。
// channel 参数仅用于日志, incoming webhook 自身绑定频道。
func (s *WebhookSender) SendToChannel(ctx context.Context, channel, content string) error {
	payload := map[string]any{"channel": channel, "text": content}
	return s.post(ctx, payload)
}

func (s *WebhookSender) post(ctx context.Context, payload any) error {
	if s == nil || s.URL == "" {
		return errors.New("webhook URL 未配置")
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("编码 webhook 消息失败: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("创建 webhook 请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := s.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("发送 webhook 请求失败: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook 返回状态码 %d", resp.StatusCode)
	}
	return nil
}

// slackWebhook 将 WebhookSender 适配为 SlackSender。
type slackWebhook struct {
	sender *WebhookSender
}

// NewSlackWebhook 创建 Slack webhook 发送器。
func NewSlackWebhook(url string) SlackSender {
	return &slackWebhook{sender: NewWebhookSender(url)}
}

// Send 实现 SlackSender。
func (s *slackWebhook) Send(ctx context.Context, channel, content string) error {
	return s.sender.SendToChannel(ctx, channel, content)
}
