package southxchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGetPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/price/TRTL/BTC" {
			t.Errorf("路径错误: %s", r.URL.Path)
		}
		w.Write([]byte(`{"Bid":3.1e-8,"Ask":0.00000004,"Last":3E-8,"Variation24Hr":1.5,"Volume24Hr":100}`))
	}))
	defer srv.Close()

	p, err := NewSouthXchangeClient(srv.URL, time.Second).GetPrice(context.Background(), "TRTL/BTC")
	if err != nil {
		t.Fatalf("获取行情失败: %v", err)
	}
	if p.Bid != 3 || p.Ask != 4 || p.Last != 3 {
		t.Errorf("价格换算错误: %+v", p)
	}
}

func TestGetPriceMissingBid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Bid":null,"Ask":0.00000004}`))
	}))
	defer srv.Close()

	if _, err := NewSouthXchangeClient(srv.URL, time.Second).GetPrice(context.Background(), "TRTL/BTC"); err == nil {
		t.Error("没有买价时应返回错误")
	}
}
