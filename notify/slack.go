package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"hashbid/config"
	"hashbid/event"
)

// SlackNotifier Slack 通知器
type SlackNotifier struct {
	webhook string
	client  *http.Client
}

// NewSlackNotifier 创建 Slack 通知器
func NewSlackNotifier(cfg *config.Config) (*SlackNotifier, error) {
	if cfg.Notifications.Slack.Webhook == "" {
		return nil, fmt.Errorf("Slack Webhook URL 未配置")
	}
	return &SlackNotifier{
		webhook: cfg.Notifications.Slack.Webhook,
		client:  &http.Client{Timeout: 3 * time.Second},
	}, nil
}

// Name 返回通知器名称
func (sn *SlackNotifier) Name() string {
	return "Slack"
}

// Send 发送通知
func (sn *SlackNotifier) Send(evt *event.Event) error {
	jsonData, err := json.Marshal(map[string]interface{}{"text": formatSlackMessage(evt)})
	if err != nil {
		return fmt.Errorf("序列化消息失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sn.webhook, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := sn.client.Do(req)
	if err != nil {
		return fmt.Errorf("发送请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Slack API 返回错误: %d", resp.StatusCode)
	}
	return nil
}

func formatSlackMessage(evt *event.Event) string {
	emoji := ":information_source:"
	switch event.GetEventSeverity(evt.Type) {
	case event.SeverityCritical:
		emoji = ":rotating_light:"
	case event.SeverityWarning:
		emoji = ":warning:"
	}
	return fmt.Sprintf("%s *%s*\n%s\n_%s_", emoji, event.GetEventTitle(evt.Type),
		event.BuildMessage(evt), evt.Timestamp.Format("2006-01-02 15:04:05"))
}
