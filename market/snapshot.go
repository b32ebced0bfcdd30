package market

import (
	"math"
	"sort"
	"time"

	"hashbid/nicehash"
)

// Snapshot 某个 (location, algo) 的盘口快照，创建后只读
type Snapshot struct {
	Location          int                    `json:"location"`
	Algo              int                    `json:"algo"`
	Orders            []nicehash.MarketOrder `json:"orders"` // 按价格降序
	TotalWorkers      int                    `json:"total_workers"`
	TotalHashrate     float64                `json:"total_hashrate"`
	HashratePerWorker float64                `json:"hashrate_per_worker"`
	UpdatedAt         time.Time              `json:"updated_at"`
}

// NewSnapshot 只保留标准买单，按价格降序排序并计算聚合值
func NewSnapshot(location, algo int, orders []nicehash.MarketOrder, at time.Time) *Snapshot {
	s := &Snapshot{
		Location:  location,
		Algo:      algo,
		Orders:    make([]nicehash.MarketOrder, 0, len(orders)),
		UpdatedAt: at,
	}
	for _, o := range orders {
		if o.Type != nicehash.OrderTypeStandard {
			continue
		}
		s.Orders = append(s.Orders, o)
		s.TotalWorkers += o.Workers
		s.TotalHashrate += o.AcceptedSpeed
	}
	sort.SliceStable(s.Orders, func(i, j int) bool { return s.Orders[i].Price > s.Orders[j].Price })
	if s.TotalWorkers > 0 {
		s.HashratePerWorker = s.TotalHashrate / float64(s.TotalWorkers)
	}
	return s
}

// PriceForTargetHashrate 从最高价开始累加各订单限额（不限额的订单吸收全部剩余算力），
// 剩余算力第一次少于 target 时返回该订单价格。没有订单满足时返回最低价，空盘口返回 0
func (s *Snapshot) PriceForTargetHashrate(target float64) int64 {
	if len(s.Orders) == 0 {
		return 0
	}
	var accumulated float64
	for _, o := range s.Orders {
		if o.HasLimit() {
			accumulated += o.Limit
		} else {
			accumulated = math.Inf(1)
		}
		if s.TotalHashrate-accumulated < target {
			return o.Price
		}
	}
	return s.Orders[len(s.Orders)-1].Price
}

// MarketPosition 价格低于 price 的矿工占比，上下都没有矿工时为 NaN
func (s *Snapshot) MarketPosition(orderID int64, price int64) float64 {
	var above, below int
	for _, o := range s.Orders {
		if o.ID == orderID {
			continue
		}
		switch {
		case o.Price > price:
			above += o.Workers
		case o.Price < price:
			below += o.Workers
		}
	}
	if above+below == 0 {
		return math.NaN()
	}
	return float64(below) / float64(above+below)
}

// CheapestFilled 有矿工且已接受算力大于 minAccepted 的最低价订单
func (s *Snapshot) CheapestFilled(minAccepted float64) (nicehash.MarketOrder, bool) {
	for i := len(s.Orders) - 1; i >= 0; i-- {
		o := s.Orders[i]
		if o.Workers > 0 && o.AcceptedSpeed > minAccepted {
			return o, true
		}
	}
	return nicehash.MarketOrder{}, false
}
