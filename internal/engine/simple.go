package engine

import (
	"context"
	"fmt"

	"github.com/devansh0703/BinanceTradeBot/internal/exchange"
	"github.com/devansh0703/BinanceTradeBot/internal/order"
)

// runSimple 执行 Market/Limit 意图：提交单笔子订单并跟踪到终态。
func (s *session) runSimple(ctx context.Context) error {
	s.transition(order.StateActive, "")

	spec := exchange.OrderSpec{
		Symbol:   s.intent.Symbol,
		Side:     string(s.intent.Side),
		Type:     exchange.TypeMarket,
		Quantity: s.intent.Quantity,
	}
	if s.intent.Kind == order.KindLimit {
		spec.Type = exchange.TypeLimit
		spec.Price = s.intent.LimitPrice
	}

	child, err := s.submitChild(ctx, spec, "")
	if err != nil {
		s.transition(order.StateRejected, fmt.Sprintf("提交失败: %v", err))
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.exec.cancelCh:
			s.cancelChild(ctx, child.ID)
			s.transition(order.StateCancelled, "调用方请求取消")
			return nil
		case <-s.deadline:
			s.cancelChild(ctx, child.ID)
			s.transition(order.StateExpired, "意图存续时间已到")
			return nil
		case ev := <-s.exec.events:
			switch ev.Type {
			case exchange.EventFill:
				s.applyFill(ctx, ev)
				if s.rec.RemainingQuantity() <= 0 {
					s.transition(order.StateFilled, "订单全部成交")
					return nil
				}
				s.transition(order.StatePartiallyFilled, "订单部分成交")
			case exchange.EventCancel:
				s.applyFill(ctx, ev)
				s.rec.SetChildStatus(ev.OrderID, childStatus(ev.Status), "")
				if ev.Status == exchange.StatusExpired {
					s.transition(order.StateExpired, "交易所侧订单过期")
				} else {
					s.transition(order.StateCancelled, "交易所侧订单被撤销")
				}
				return nil
			case exchange.EventReject:
				s.rec.SetChildStatus(ev.OrderID, order.ChildRejected, "")
				s.transition(order.StateRejected, fmt.Sprintf("交易所拒单: %s", ev.Code))
				return nil
			}
		}
	}
}
