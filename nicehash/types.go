package nicehash

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// 订单类型
const (
	OrderTypeStandard = 0 // 标准买单
	OrderTypeFixed    = 1 // 固定算力单
)

// MarketOrder 市场订单（公开盘口或自己的订单）
type MarketOrder struct {
	ID            int64   `json:"id"`
	Type          int     `json:"type"`
	Location      int     `json:"location"`
	Algo          int     `json:"algo"`
	Alive         bool    `json:"alive"`
	Price         int64   `json:"price"`          // 聪
	Limit         float64 `json:"limit"`          // 0 表示不限
	AcceptedSpeed float64 `json:"accepted_speed"` // 已按 accepted_speed_scale 换算
	Workers       int     `json:"workers"`

	// 以下字段只在自己的订单中出现
	BTCAvail int64  `json:"btc_avail,omitempty"`
	BTCPaid  int64  `json:"btc_paid,omitempty"`
	End      int64  `json:"end,omitempty"`
	PoolHost string `json:"pool_host,omitempty"`
	PoolPort int    `json:"pool_port,omitempty"`
	PoolUser string `json:"pool_user,omitempty"`
}

// HasLimit 订单是否设置了算力上限
func (o MarketOrder) HasLimit() bool {
	return o.Limit > 0
}

// LimitRequest 修改限额请求
type LimitRequest struct {
	Order    int64
	Location int
	Algo     int
	Limit    float64
}

// PriceRequest 修改价格请求
type PriceRequest struct {
	Order    int64
	Location int
	Algo     int
	Price    int64 // 聪
}

// Balance 账户余额（聪）
type Balance struct {
	Confirmed int64 `json:"confirmed"`
	Pending   int64 `json:"pending"`
}

// rawOrder 接口返回的订单，价格和算力都是字符串
type rawOrder struct {
	ID            int64  `json:"id"`
	Type          int    `json:"type"`
	Algo          int    `json:"algo"`
	Alive         bool   `json:"alive"`
	Price         string `json:"price"`
	LimitSpeed    string `json:"limit_speed"`
	AcceptedSpeed string `json:"accepted_speed"`
	Workers       int    `json:"workers"`
	BTCAvail      string `json:"btc_avail"`
	BTCPaid       string `json:"btc_paid"`
	End           int64  `json:"end"`
	PoolHost      string `json:"pool_host"`
	PoolPort      int    `json:"pool_port"`
	PoolUser      string `json:"pool_user"`
}

type ordersResult struct {
	Orders []rawOrder `json:"orders"`
}

type balanceResult struct {
	BalanceConfirmed string `json:"balance_confirmed"`
	BalancePending   string `json:"balance_pending"`
}

// APIError 市场接口返回的业务错误
type APIError struct {
	Method  string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Status != 0 && e.Status != http.StatusOK {
		return fmt.Sprintf("%s: HTTP %d: %s", e.Method, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Method, e.Message)
}

// IsAlreadySet 目标值已经生效（例如 "This limit already set."）
func (e *APIError) IsAlreadySet() bool {
	return strings.Contains(strings.ToLower(e.Message), "already set")
}

// IsRateLimited 触发限流
func (e *APIError) IsRateLimited() bool {
	if e.Status == http.StatusTooManyRequests {
		return true
	}
	msg := strings.ToLower(e.Message)
	return strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "flood") ||
		strings.Contains(msg, "rate limit")
}

// IsAlreadySet 判断 err 链中是否有“已设置”错误
func IsAlreadySet(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.IsAlreadySet()
}

// IsRateLimited 判断 err 链中是否有限流错误
func IsRateLimited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.IsRateLimited()
}
