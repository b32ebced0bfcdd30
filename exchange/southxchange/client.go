package southxchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"hashbid/utils"
)

const SouthXchangeBaseURL = "https://www.southxchange.com"

// Price 行情，价格为聪
type Price struct {
	Bid  int64
	Ask  int64
	Last int64
}

// SouthXchangeClient SouthXchange 公共行情客户端
type SouthXchangeClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewSouthXchangeClient 创建客户端
func NewSouthXchangeClient(baseURL string, timeout time.Duration) *SouthXchangeClient {
	if baseURL == "" {
		baseURL = SouthXchangeBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SouthXchangeClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type priceResponse struct {
	Bid  *json.Number `json:"Bid"`
	Ask  *json.Number `json:"Ask"`
	Last *json.Number `json:"Last"`
}

// GetPrice 获取行情，market 形如 TRTL/BTC
func (c *SouthXchangeClient) GetPrice(ctx context.Context, market string) (*Price, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/price/"+market, nil)
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

	dec := json.NewDecoder(strings.NewReader(string(body)))
	dec.UseNumber()
	var res priceResponse
	if err := dec.Decode(&res); err != nil {
		return nil, fmt.Errorf("unmarshal error: %w", err)
	}
	if res.Bid == nil {
		return nil, fmt.Errorf("southxchange: %s 没有买价", market)
	}

	price := &Price{}
	if price.Bid, err = utils.ParseSats(res.Bid.String()); err != nil {
		return nil, err
	}
	if res.Ask != nil {
		if price.Ask, err = utils.ParseSats(res.Ask.String()); err != nil {
			return nil, err
		}
	}
	if res.Last != nil {
		price.Last, _ = utils.ParseSats(res.Last.String())
	}
	return price, nil
}
