package strategy

import "hashbid/config"

// PoolPredicate 矿池启停条件，阈值为 nil 表示不自动控制
type PoolPredicate struct {
	StartAbove *float64
	StopBelow  *float64
}

// NewPoolPredicate 从币种配置创建
func NewPoolPredicate(cfg config.PoolPredicateConfig) PoolPredicate {
	return PoolPredicate{StartAbove: cfg.StartAboveROI, StopBelow: cfg.StopBelowROI}
}

// Managed 是否配置了任一阈值
func (p PoolPredicate) Managed() bool {
	return p.StartAbove != nil || p.StopBelow != nil
}

// ShouldStart ROI 高于启动阈值
func (p PoolPredicate) ShouldStart(roi float64) bool {
	return p.StartAbove != nil && roi > *p.StartAbove
}

// ShouldStop ROI 低于停止阈值
func (p PoolPredicate) ShouldStop(roi float64) bool {
	return p.StopBelow != nil && roi < *p.StopBelow
}
