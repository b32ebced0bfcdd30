package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewExchange(t *testing.T) {
	for _, name := range SupportedExchanges() {
		ex, err := NewExchange(Config{Name: name})
		if err != nil {
			t.Fatalf("创建 %s 失败: %v", name, err)
		}
		if ex.GetName() != name {
			t.Errorf("名称错误: 期望 %s, 得到 %s", name, ex.GetName())
		}
	}

	if _, err := NewExchange(Config{Name: "binance"}); err == nil {
		t.Error("不支持的交易所应返回错误")
	}
}

func TestTradeOgreQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"buy":{"0.00000007":"1"},"sell":{"0.00000009":"1"}}`))
	}))
	defer srv.Close()

	ex, err := NewExchange(Config{Name: "TradeOgre", BaseURL: srv.URL, Timeout: time.Second})
	if err != nil {
		t.Fatalf("创建失败: %v", err)
	}
	q, err := ex.GetQuote(context.Background(), "BTC-TRTL")
	if err != nil {
		t.Fatalf("获取报价失败: %v", err)
	}
	if q.Buy != 7 || q.Sell != 9 || q.Exchange != "tradeogre" || q.Market != "BTC-TRTL" {
		t.Errorf("报价错误: %+v", q)
	}
}
