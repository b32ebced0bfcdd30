package nicehash

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"hashbid/logger"
	"hashbid/metrics"
	"hashbid/utils"
)

const DefaultBaseURL = "https://api.nicehash.com/api"

// Config 客户端配置
type Config struct {
	BaseURL            string
	APIID              string
	APIKey             string
	Timeout            time.Duration
	AcceptedSpeedScale float64
}

// Client 算力市场（旧版 method= 接口）客户端
type Client struct {
	baseURL    string
	apiID      string
	apiKey     string
	speedScale float64
	httpClient *http.Client
	pm         *metrics.PrometheusMetrics
}

// NewClient 创建市场客户端
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.AcceptedSpeedScale <= 0 {
		cfg.AcceptedSpeedScale = 1
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiID:      cfg.APIID,
		apiKey:     cfg.APIKey,
		speedScale: cfg.AcceptedSpeedScale,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		pm:         metrics.GetPrometheusMetrics(),
	}
}

type envelope struct {
	Result json.RawMessage `json:"result"`
	Method string          `json:"method"`
}

type resultStatus struct {
	Success json.RawMessage `json:"success"`
	Error   string          `json:"error"`
}

// call 发送请求并解析外层 {"result": ...}，业务错误转换为 *APIError
func (c *Client) call(ctx context.Context, method string, params url.Values, auth bool) (json.RawMessage, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("method", method)
	if auth {
		params.Set("id", c.apiID)
		params.Set("key", c.apiKey)
	}
	reqURL := c.baseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request error: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.pm.RecordAPICall(method, "error", time.Since(start))
		return nil, fmt.Errorf("%s: send request error: %w", method, err)
	}
	defer resp.Body.Close()
	c.pm.RecordAPICall(method, strconv.Itoa(resp.StatusCode), time.Since(start))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read response error: %w", method, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &APIError{Method: method, Status: resp.StatusCode, Message: string(body)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: HTTP %d: %s", method, resp.StatusCode, string(body))
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%s: unmarshal error: %w", method, err)
	}
	if len(env.Result) == 0 {
		return nil, fmt.Errorf("%s: 响应缺少 result: %s", method, string(body))
	}

	var status resultStatus
	if err := json.Unmarshal(env.Result, &status); err == nil && status.Error != "" {
		return nil, &APIError{Method: method, Status: resp.StatusCode, Message: status.Error}
	}
	return env.Result, nil
}

func (c *Client) getOrders(ctx context.Context, location, algo int, my bool) ([]MarketOrder, error) {
	params := url.Values{}
	params.Set("location", strconv.Itoa(location))
	params.Set("algo", strconv.Itoa(algo))
	if my {
		params.Set("my", "")
	}

	result, err := c.call(ctx, "orders.get", params, my)
	if err != nil {
		return nil, err
	}

	var res ordersResult
	if err := json.Unmarshal(result, &res); err != nil {
		return nil, fmt.Errorf("orders.get: unmarshal orders error: %w", err)
	}

	orders := make([]MarketOrder, 0, len(res.Orders))
	for _, raw := range res.Orders {
		order, err := c.convertOrder(raw, location)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}

func (c *Client) convertOrder(raw rawOrder, location int) (MarketOrder, error) {
	price, err := utils.ParseSats(raw.Price)
	if err != nil {
		return MarketOrder{}, fmt.Errorf("订单 %d: %w", raw.ID, err)
	}
	order := MarketOrder{
		ID:       raw.ID,
		Type:     raw.Type,
		Location: location,
		Algo:     raw.Algo,
		Alive:    raw.Alive,
		Price:    price,
		Workers:  raw.Workers,
		End:      raw.End,
		PoolHost: raw.PoolHost,
		PoolPort: raw.PoolPort,
		PoolUser: raw.PoolUser,
	}
	if order.Limit, err = parseFloat(raw.LimitSpeed); err != nil {
		return MarketOrder{}, fmt.Errorf("订单 %d limit_speed: %w", raw.ID, err)
	}
	speed, err := parseFloat(raw.AcceptedSpeed)
	if err != nil {
		return MarketOrder{}, fmt.Errorf("订单 %d accepted_speed: %w", raw.ID, err)
	}
	order.AcceptedSpeed = speed * c.speedScale
	// 余额字段只用于展示，解析失败按 0 处理，不丢弃整个订单
	if raw.BTCAvail != "" {
		if order.BTCAvail, err = utils.ParseSats(raw.BTCAvail); err != nil {
			logger.Debug("[NiceHash] 订单 %d btc_avail 解析失败 %q: %v", raw.ID, raw.BTCAvail, err)
		}
	}
	if raw.BTCPaid != "" {
		if order.BTCPaid, err = utils.ParseSats(raw.BTCPaid); err != nil {
			logger.Debug("[NiceHash] 订单 %d btc_paid 解析失败 %q: %v", raw.ID, raw.BTCPaid, err)
		}
	}
	return order, nil
}

func parseFloat(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	return d.InexactFloat64(), nil
}

// GetOrders 获取公开盘口
func (c *Client) GetOrders(ctx context.Context, location, algo int) ([]MarketOrder, error) {
	return c.getOrders(ctx, location, algo, false)
}

// GetMyOrders 获取自己的订单
func (c *Client) GetMyOrders(ctx context.Context, location, algo int) ([]MarketOrder, error) {
	return c.getOrders(ctx, location, algo, true)
}

// SetOrderLimit 修改订单限额
func (c *Client) SetOrderLimit(ctx context.Context, req LimitRequest) error {
	params := url.Values{}
	params.Set("location", strconv.Itoa(req.Location))
	params.Set("algo", strconv.Itoa(req.Algo))
	params.Set("order", strconv.FormatInt(req.Order, 10))
	params.Set("limit", strconv.FormatFloat(req.Limit, 'f', -1, 64))

	_, err := c.call(ctx, "orders.set.limit", params, true)
	return err
}

// SetOrderPrice 修改订单价格
func (c *Client) SetOrderPrice(ctx context.Context, req PriceRequest) error {
	params := url.Values{}
	params.Set("location", strconv.Itoa(req.Location))
	params.Set("algo", strconv.Itoa(req.Algo))
	params.Set("order", strconv.FormatInt(req.Order, 10))
	params.Set("price", utils.FormatSats(req.Price))

	_, err := c.call(ctx, "orders.set.price", params, true)
	return err
}

// GetMyBalance 获取账户余额
func (c *Client) GetMyBalance(ctx context.Context) (*Balance, error) {
	result, err := c.call(ctx, "balance", nil, true)
	if err != nil {
		return nil, err
	}

	var res balanceResult
	if err := json.Unmarshal(result, &res); err != nil {
		return nil, fmt.Errorf("balance: unmarshal error: %w", err)
	}

	balance := &Balance{}
	if res.BalanceConfirmed != "" {
		if balance.Confirmed, err = utils.ParseSats(res.BalanceConfirmed); err != nil {
			return nil, fmt.Errorf("balance_confirmed: %w", err)
		}
	}
	if res.BalancePending != "" {
		if balance.Pending, err = utils.ParseSats(res.BalancePending); err != nil {
			return nil, fmt.Errorf("balance_pending: %w", err)
		}
	}
	return balance, nil
}
