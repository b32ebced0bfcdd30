package wallet

import (
	"context"

	"hashbid/nicehash"
)

// RPC 钱包 JSON-RPC（daemon.JSONRPC 实现了它）
type RPC interface {
	Call(ctx context.Context, method string, params, out interface{}) error
}

// MarketBalance 市场账户余额（nicehash.Client 实现了它）
type MarketBalance interface {
	GetMyBalance(ctx context.Context) (*nicehash.Balance, error)
}

// Broadcaster 把最新状态推送给看板
type Broadcaster interface {
	Broadcast(tag string, payload interface{})
}

// Balance 钱包余额（最小单位）
type Balance struct {
	Available int64 `json:"available"`
	Locked    int64 `json:"locked"`
}

// Total 可用加锁定
func (b Balance) Total() int64 {
	return b.Available + b.Locked
}

type getBalanceParams struct {
	Address string `json:"address,omitempty"`
}

type getBalanceResult struct {
	AvailableBalance int64 `json:"available_balance"`
	LockedAmount     int64 `json:"locked_amount"`
}

// GetBalance 调用钱包 getbalance
func GetBalance(ctx context.Context, rpc RPC, address string) (Balance, error) {
	var res getBalanceResult
	if err := rpc.Call(ctx, "getbalance", getBalanceParams{Address: address}, &res); err != nil {
		return Balance{}, err
	}
	return Balance{Available: res.AvailableBalance, Locked: res.LockedAmount}, nil
}
