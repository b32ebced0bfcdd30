package strategy

import (
	"math"

	"hashbid/config"
	"hashbid/utils"
)

// LimitPolicy ROI 到限额的分段函数：
// 低于 Threshold 为 Floor；[Threshold, Upper) 线性增长并按有效订单数均分；
// 不低于 Upper 时按 CeilingMode 返回 0 或固定上限
type LimitPolicy struct {
	Floor       float64
	Threshold   float64
	Upper       float64
	Base        float64
	Step        float64
	Slope       float64
	CeilingMode string
	Ceiling     float64
	Decimals    int // 大于 0 时按小数位向零截断，N 个订单之和不超过单个订单的限额
}

// NewLimitPolicy 从币种配置创建限额策略
func NewLimitPolicy(cfg config.LimitPolicyConfig, decimals int) LimitPolicy {
	return LimitPolicy{
		Floor:       cfg.Floor,
		Threshold:   cfg.Threshold,
		Upper:       cfg.Upper,
		Base:        cfg.Base,
		Step:        cfg.Step,
		Slope:       cfg.Slope,
		CeilingMode: cfg.CeilingMode,
		Ceiling:     cfg.Ceiling,
		Decimals:    decimals,
	}
}

// Limit 计算期望限额，effectiveOrders 小于 1 时按 1 计
func (p LimitPolicy) Limit(roi float64, effectiveOrders int) float64 {
	if math.IsNaN(roi) || roi < p.Threshold {
		return p.Floor
	}
	if roi >= p.Upper {
		if p.CeilingMode == config.CeilingModeFixed {
			return p.round(p.Ceiling)
		}
		return 0
	}
	if effectiveOrders < 1 {
		effectiveOrders = 1
	}
	ramp := p.Base + ((roi-p.Threshold)/p.Step)*p.Slope
	limit := p.round(ramp / float64(effectiveOrders))
	if limit < p.Floor {
		return p.Floor
	}
	return limit
}

// Active 限额高于最低值时订单才需要竞价
func (p LimitPolicy) Active(limit float64) bool {
	return limit > p.Floor
}

func (p LimitPolicy) round(v float64) float64 {
	if p.Decimals <= 0 {
		return v
	}
	return utils.TruncateTo(v, p.Decimals)
}
