package engine

import (
	"time"

	"github.com/devansh0703/BinanceTradeBot/internal/exchange"
	"github.com/devansh0703/BinanceTradeBot/internal/feed"
	"github.com/devansh0703/BinanceTradeBot/internal/order"
)

// trigger 为条件单的触发评估器：给定触发条件与行情序列，
// 至多触发一次。买向在价格首次达到或越过触发价时命中，卖向相反。
// 行情可能乱序到达，时间戳早于最近一次评估的行情直接丢弃；
// 触发后不再做任何评估。
type trigger struct {
	side      order.Side
	stopPrice float64
	fired     bool
	lastEval  time.Time
}

func newTrigger(side order.Side, stopPrice float64) *trigger {
	return &trigger{side: side, stopPrice: stopPrice}
}

// evaluate 评估一笔行情，返回是否在本笔行情上触发。
func (t *trigger) evaluate(tick feed.PriceTick) bool {
	if t.fired {
		return false
	}
	if !t.lastEval.IsZero() && tick.Timestamp.Before(t.lastEval) {
		return false
	}
	t.lastEval = tick.Timestamp

	if !t.satisfied(tick.Price) {
		return false
	}
	t.fired = true
	return true
}

func (t *trigger) satisfied(price float64) bool {
	if t.side == order.SideBuy {
		return price >= t.stopPrice
	}
	return price <= t.stopPrice
}

// stopLimitSpec 构造条件限价单的订单描述，
// 止损限价缺省时取触发价上下各让百分之一，保证可成交。
func stopLimitSpec(symbol string, side order.Side, quantity, stopPrice, limitPrice float64) exchange.OrderSpec {
	if limitPrice <= 0 {
		if side == order.SideSell {
			limitPrice = stopPrice * 0.99
		} else {
			limitPrice = stopPrice * 1.01
		}
	}
	return exchange.OrderSpec{
		Symbol:    symbol,
		Side:      string(side),
		Type:      exchange.TypeStopLimit,
		Quantity:  quantity,
		Price:     limitPrice,
		StopPrice: stopPrice,
	}
}
