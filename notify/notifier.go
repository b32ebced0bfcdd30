package notify

import (
	"sync"

	"hashbid/config"
	"hashbid/event"
	"hashbid/logger"
)

// Notifier 通知接口
type Notifier interface {
	Send(event *event.Event) error
	Name() string
}

// NotificationService 通知服务，实现 event.NotificationService
type NotificationService struct {
	notifiers []Notifier
}

// NewNotificationService 根据配置创建通知服务
func NewNotificationService(cfg *config.Config) *NotificationService {
	ns := &NotificationService{}
	if !cfg.Notifications.Enabled {
		return ns
	}

	if cfg.Notifications.Webhook.Enabled && cfg.Notifications.Webhook.URL != "" {
		webhookNotifier, err := NewWebhookNotifier(cfg)
		if err != nil {
			logger.Warn("⚠️ 初始化 Webhook 通知失败: %v", err)
		} else {
			ns.notifiers = append(ns.notifiers, webhookNotifier)
			logger.Info("✅ Webhook 通知已启用")
		}
	}

	if cfg.Notifications.Slack.Enabled && cfg.Notifications.Slack.Webhook != "" {
		slackNotifier, err := NewSlackNotifier(cfg)
		if err != nil {
			logger.Warn("⚠️ 初始化 Slack 通知失败: %v", err)
		} else {
			ns.notifiers = append(ns.notifiers, slackNotifier)
			logger.Info("✅ Slack 通知已启用")
		}
	}

	return ns
}

// AddNotifier 添加通知渠道
func (ns *NotificationService) AddNotifier(n Notifier) {
	ns.notifiers = append(ns.notifiers, n)
}

// Send 发送通知（异步，不阻塞事件处理）
func (ns *NotificationService) Send(evt *event.Event) {
	if evt == nil || len(ns.notifiers) == 0 {
		return
	}
	go ns.SendSync(evt)
}

// SendSync 并发发送到所有通知渠道并等待完成
func (ns *NotificationService) SendSync(evt *event.Event) {
	var wg sync.WaitGroup
	for _, notifier := range ns.notifiers {
		wg.Add(1)
		go func(n Notifier) {
			defer wg.Done()
			if err := n.Send(evt); err != nil {
				logger.Warn("⚠️ [%s] 通知发送失败: %v", n.Name(), err)
			}
		}(notifier)
	}
	wg.Wait()
}
