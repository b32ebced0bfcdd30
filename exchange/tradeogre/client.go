package tradeogre

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"hashbid/utils"
)

const TradeOgreBaseURL = "https://tradeogre.com"

// OrderBook 盘口，价格为聪
type OrderBook struct {
	BestBid int64
	BestAsk int64
	Bids    int
	Asks    int
}

// TradeOgreClient TradeOgre 公共行情客户端
type TradeOgreClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewTradeOgreClient 创建客户端，baseURL 为空时使用默认地址
func NewTradeOgreClient(baseURL string, timeout time.Duration) *TradeOgreClient {
	if baseURL == "" {
		baseURL = TradeOgreBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TradeOgreClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type ordersResponse struct {
	Success json.RawMessage   `json:"success"`
	Error   string            `json:"error"`
	Buy     map[string]string `json:"buy"`
	Sell    map[string]string `json:"sell"`
}

// GetOrderBook 获取盘口。买单以价格字符串为 key，最高买价为最优买价
func (c *TradeOgreClient) GetOrderBook(ctx context.Context, market string) (*OrderBook, error) {
	reqURL := c.baseURL + "/api/v1/orders/" + url.PathEscape(market)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request error: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response error: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var res ordersResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("unmarshal error: %w", err)
	}
	if res.Error != "" {
		return nil, fmt.Errorf("tradeogre: %s", res.Error)
	}

	book := &OrderBook{Bids: len(res.Buy), Asks: len(res.Sell)}
	for price := range res.Buy {
		sats, err := utils.ParseSats(price)
		if err != nil {
			return nil, fmt.Errorf("买单价格: %w", err)
		}
		if sats > book.BestBid {
			book.BestBid = sats
		}
	}
	for price := range res.Sell {
		sats, err := utils.ParseSats(price)
		if err != nil {
			return nil, fmt.Errorf("卖单价格: %w", err)
		}
		if book.BestAsk == 0 || sats < book.BestAsk {
			book.BestAsk = sats
		}
	}
	if book.BestBid == 0 {
		return nil, fmt.Errorf("tradeogre: %s 没有买单", market)
	}
	return book, nil
}
