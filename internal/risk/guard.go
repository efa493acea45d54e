package risk

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/devansh0703/BinanceTradeBot/internal/config"
	"github.com/devansh0703/BinanceTradeBot/internal/exchange"
)

// Decision 为一次风控裁决：放行或拒绝及其原因。
type Decision struct {
	Allowed bool
	Reason  string
}

// DenialError 表示子订单被风控拒绝，从未提交到交易所。
type DenialError struct {
	Reason string
}

func (e *DenialError) Error() string {
	return fmt.Sprintf("risk: 风控拒绝: %s", e.Reason)
}

// Guard 为纯校验的风控守卫：每笔子订单提交前同步调用，
// 拒绝即短路该次提交，不做任何静默丢弃。
type Guard struct {
	cfg    config.RiskConfig
	logger *zap.Logger
}

// NewGuard 创建风控守卫。
func NewGuard(cfg config.RiskConfig, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{cfg: cfg, logger: logger}
}

// Approve 校验一笔拟提交的子订单。
// committed 为该意图已占用的数量（已成交加在途），用于仓位上限检查；
// marketPrice 为市价单估算名义价值的参考价，缺失时跳过名义价值检查。
func (g *Guard) Approve(spec exchange.OrderSpec, marketPrice, committed float64) Decision {
	if spec.Quantity <= 0 {
		return g.deny(spec, "数量必须大于0")
	}
	if g.cfg.MinQuantity > 0 && spec.Quantity < g.cfg.MinQuantity {
		return g.deny(spec, fmt.Sprintf("数量 %v 低于最小值 %v", spec.Quantity, g.cfg.MinQuantity))
	}
	if g.cfg.MaxPositionSize > 0 && committed+spec.Quantity > g.cfg.MaxPositionSize {
		return g.deny(spec, fmt.Sprintf("累计数量 %v 超过仓位上限 %v", committed+spec.Quantity, g.cfg.MaxPositionSize))
	}

	for _, price := range []float64{spec.Price, spec.StopPrice} {
		if price <= 0 {
			continue
		}
		if g.cfg.MinPrice > 0 && price < g.cfg.MinPrice {
			return g.deny(spec, fmt.Sprintf("价格 %v 低于下限 %v", price, g.cfg.MinPrice))
		}
		if g.cfg.MaxPrice > 0 && price > g.cfg.MaxPrice {
			return g.deny(spec, fmt.Sprintf("价格 %v 高于上限 %v", price, g.cfg.MaxPrice))
		}
	}

	notionalPrice := spec.Price
	if notionalPrice <= 0 {
		notionalPrice = marketPrice
	}
	if notionalPrice > 0 && g.cfg.MaxOrderNotional > 0 {
		if notional := spec.Quantity * notionalPrice; notional > g.cfg.MaxOrderNotional {
			return g.deny(spec, fmt.Sprintf("名义价值 %.2f 超过单笔上限 %.2f", notional, g.cfg.MaxOrderNotional))
		}
	}

	return Decision{Allowed: true}
}

func (g *Guard) deny(spec exchange.OrderSpec, reason string) Decision {
	g.logger.Warn("风控拒绝子订单",
		zap.String("symbol", spec.Symbol),
		zap.String("side", spec.Side),
		zap.String("type", string(spec.Type)),
		zap.Float64("quantity", spec.Quantity),
		zap.Float64("price", spec.Price),
		zap.String("reason", reason),
	)
	return Decision{Allowed: false, Reason: reason}
}
