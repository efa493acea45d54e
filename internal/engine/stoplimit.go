package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/devansh0703/BinanceTradeBot/internal/exchange"
	"github.com/devansh0703/BinanceTradeBot/internal/order"
)

// runStopLimit 执行 Stop-Limit 意图：客户端侧监听行情，
// 在首笔满足触发条件的行情上提交限价单，触发恰好一次。
// 提交失败（如价格超出交易所边界）直接进入 Rejected，不做自动重试。
func (s *session) runStopLimit(ctx context.Context) error {
	if err := s.subscribeTicks(); err != nil {
		s.transition(order.StateRejected, fmt.Sprintf("订阅行情失败: %v", err))
		return nil
	}

	s.transition(order.StateActive, "")

	trig := newTrigger(s.intent.Side, s.intent.StopPrice)
	var childID string

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.exec.cancelCh:
			s.cancelOpenChildren(ctx)
			s.transition(order.StateCancelled, "调用方请求取消")
			return nil
		case <-s.deadline:
			s.cancelOpenChildren(ctx)
			s.transition(order.StateExpired, "触发条件在存续时间内未满足")
			return nil
		case tick, ok := <-s.tickC():
			if !ok {
				s.transition(order.StateRejected, "行情流已关闭")
				return nil
			}
			s.noteTick(tick)
			if !trig.evaluate(tick) {
				continue
			}

			s.sup.metrics.TriggerFires.Inc()
			s.transition(order.StateTriggered, fmt.Sprintf("价格 %v 达到触发价 %v", tick.Price, s.intent.StopPrice))
			s.sup.logger.Info("条件单触发",
				zap.String("intent_id", s.intent.ID),
				zap.Float64("price", tick.Price),
				zap.Float64("stop_price", s.intent.StopPrice),
			)

			child, err := s.submitChild(ctx, exchange.OrderSpec{
				Symbol:   s.intent.Symbol,
				Side:     string(s.intent.Side),
				Type:     exchange.TypeLimit,
				Quantity: s.intent.Quantity,
				Price:    s.intent.LimitPrice,
			}, "triggered")
			if err != nil {
				s.transition(order.StateRejected, fmt.Sprintf("触发后提交失败: %v", err))
				return nil
			}
			childID = child.ID

		case ev := <-s.exec.events:
			if childID == "" || ev.OrderID != childID {
				continue
			}
			switch ev.Type {
			case exchange.EventFill:
				s.applyFill(ctx, ev)
				if s.rec.RemainingQuantity() <= 0 {
					s.transition(order.StateFilled, "触发后的限价单全部成交")
					return nil
				}
				s.transition(order.StatePartiallyFilled, "触发后的限价单部分成交")
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
