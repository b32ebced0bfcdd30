package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"hashbid/config"
	"hashbid/event"
)

func TestWebhookNotifierSend(t *testing.T) {
	var mu sync.Mutex
	var body map[string]interface{}
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		auth = r.Header.Get("X-Token")
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cfg := &config.Config{}
	cfg.Notifications.Enabled = true
	cfg.Notifications.Webhook.Enabled = true
	cfg.Notifications.Webhook.URL = srv.URL
	cfg.Notifications.Webhook.Headers = map[string]string{"X-Token": "abc"}

	ns := NewNotificationService(cfg)
	ns.SendSync(&event.Event{
		Type:      event.EventTypeOrdersSlowed,
		Timestamp: time.Now(),
		Data:      map[string]interface{}{"coin": "TRTL", "failures": 2},
	})

	mu.Lock()
	defer mu.Unlock()
	if auth != "abc" {
		t.Errorf("自定义请求头未发送: %q", auth)
	}
	if body["type"] != "orders_slowed" || body["severity"] != "critical" {
		t.Errorf("Webhook 内容错误: %v", body)
	}
	if msg, _ := body["message"].(string); !strings.Contains(msg, "TRTL") {
		t.Errorf("消息缺少币种: %v", body["message"])
	}
}

func TestWebhookNotifierErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := &config.Config{}
	cfg.Notifications.Webhook.URL = srv.URL
	wn, err := NewWebhookNotifier(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := wn.Send(&event.Event{Type: event.EventTypeSweepFailed, Timestamp: time.Now()}); err == nil {
		t.Error("非 2xx 状态码应该返回错误")
	}
}

func TestNotificationServiceDisabled(t *testing.T) {
	ns := NewNotificationService(&config.Config{})
	if len(ns.notifiers) != 0 {
		t.Errorf("未启用通知时不应创建通知渠道")
	}
	ns.Send(&event.Event{Type: event.EventTypeSystemStart}) // 不应 panic
}

func TestFormatSlackMessage(t *testing.T) {
	msg := formatSlackMessage(&event.Event{
		Type:      event.EventTypeRateLimited,
		Timestamp: time.Now(),
		Data:      map[string]interface{}{"coin": "TRTL", "message": "限流"},
	})
	if !strings.HasPrefix(msg, ":warning:") || !strings.Contains(msg, "限流") {
		t.Errorf("Slack 消息格式错误: %s", msg)
	}
}
