package wallet

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"

	"hashbid/config"
	"hashbid/event"
	"hashbid/logger"
)

// Transfer 一笔归集
type Transfer struct {
	Address string `json:"address"`
	Amount  int64  `json:"amount"`
}

type transferParams struct {
	PaymentID    string     `json:"payment_id,omitempty"`
	Mixin        int        `json:"mixin"`
	Fee          int64      `json:"fee"`
	Destinations []Transfer `json:"destinations"`
}

type transferResult struct {
	TxHash string `json:"tx_hash"`
}

// SweepResult 一次归集的结果，Skipped 表示余额不足未发起转账
type SweepResult struct {
	ID        string     `json:"id"`
	Available int64      `json:"available"`
	Transfers []Transfer `json:"transfers"`
	TxHash    string     `json:"tx_hash"`
	Skipped   bool       `json:"skipped"`
}

// Sweeper 可用余额超过阈值时按比例转出，失败只记录
type Sweeper struct {
	cfg    config.WalletConfig
	rpc    RPC
	events event.Publisher
}

// NewSweeper 创建归集任务
func NewSweeper(cfg config.WalletConfig, rpc RPC, events event.Publisher) *Sweeper {
	if events == nil {
		events = event.NopPublisher{}
	}
	return &Sweeper{cfg: cfg, rpc: rpc, events: events}
}

// Split 扣除手续费后按比例分配；比例合计为 100 时取整余数归第一个地址
func Split(available, fee int64, destinations []config.WalletDestination) []Transfer {
	toSend := available - fee
	if toSend <= 0 || len(destinations) == 0 {
		return nil
	}

	transfers := make([]Transfer, 0, len(destinations))
	var assigned int64
	var percent float64
	for _, d := range destinations {
		amount := int64(math.Floor(float64(toSend) * d.Percent / 100))
		assigned += amount
		percent += d.Percent
		transfers = append(transfers, Transfer{Address: d.Address, Amount: amount})
	}
	if math.Abs(percent-100) < 1e-9 {
		transfers[0].Amount += toSend - assigned
	}

	out := transfers[:0]
	for _, t := range transfers {
		if t.Amount > 0 {
			out = append(out, t)
		}
	}
	return out
}

// Sweep 查询余额并在超过阈值时转账
func (s *Sweeper) Sweep(ctx context.Context) (*SweepResult, error) {
	res := &SweepResult{ID: uuid.NewString()}

	b, err := GetBalance(ctx, s.rpc, s.cfg.Address)
	if err != nil {
		return s.fail(res, fmt.Errorf("查询余额失败: %w", err))
	}
	res.Available = b.Available

	if b.Available <= s.cfg.MinSweep {
		res.Skipped = true
		return res, nil
	}

	res.Transfers = Split(b.Available, s.cfg.Fee, s.cfg.Destinations)
	if len(res.Transfers) == 0 {
		res.Skipped = true
		return res, nil
	}

	params := transferParams{Mixin: s.cfg.Mixin, Fee: s.cfg.Fee, Destinations: res.Transfers}
	if len(s.cfg.Destinations) > 0 {
		params.PaymentID = s.cfg.Destinations[0].PaymentID
	}
	var tr transferResult
	if err := s.rpc.Call(ctx, "transfer", params, &tr); err != nil {
		return s.fail(res, fmt.Errorf("转账失败: %w", err))
	}
	res.TxHash = tr.TxHash

	for _, t := range res.Transfers {
		logger.Info("✅ [钱包 %s] 归集 %d -> %s", s.cfg.Coin, t.Amount, t.Address)
	}
	s.events.Publish(&event.Event{Type: event.EventTypeSweepCompleted, Data: map[string]interface{}{
		"coin": s.cfg.Coin, "sweep_id": res.ID, "available": res.Available, "tx_hash": res.TxHash, "transfers": len(res.Transfers),
	}})
	return res, nil
}

func (s *Sweeper) fail(res *SweepResult, err error) (*SweepResult, error) {
	logger.Error("❌ [钱包 %s] 归集失败: %v", s.cfg.Coin, err)
	s.events.Publish(&event.Event{Type: event.EventTypeSweepFailed, Data: map[string]interface{}{
		"coin": s.cfg.Coin, "sweep_id": res.ID, "error": err.Error(),
	}})
	return res, err
}

// Run 给定时任务调用，错误只记录
func (s *Sweeper) Run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("❌ [钱包 %s] 归集 panic: %v", s.cfg.Coin, r)
		}
	}()
	_, _ = s.Sweep(ctx)
}
