package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/devansh0703/BinanceTradeBot/internal/exchange"
	"github.com/devansh0703/BinanceTradeBot/internal/order"
)

// ocoPair 保存 OCO 双腿引用与共享的取消标志。
// 取消标志为一次性闸门：任意一腿成交后置位并撤销另一腿。
type ocoPair struct {
	takeProfitID string
	stopLossID   string
	cancelIssued bool
}

// sibling 返回另一腿的订单号。
func (p *ocoPair) sibling(orderID string) string {
	if orderID == p.takeProfitID {
		return p.stopLossID
	}
	return p.takeProfitID
}

// tryCancel 对取消标志做一次性置位，返回是否由本次置位。
func (p *ocoPair) tryCancel() bool {
	if p.cancelIssued {
		return false
	}
	p.cancelIssued = true
	return true
}

// runOCO 执行 OCO 意图：同时提交止盈限价腿与止损条件腿，
// 任一腿成交即撤销另一腿。两腿在撤单到达交易所前同时成交属于
// 交易所级竞态：记录注解并保持 Filled，而非视为内部错误。
func (s *session) runOCO(ctx context.Context) error {
	s.transition(order.StateActive, "")

	tp, err := s.submitChild(ctx, exchange.OrderSpec{
		Symbol:   s.intent.Symbol,
		Side:     string(s.intent.Side),
		Type:     exchange.TypeLimit,
		Quantity: s.intent.Quantity,
		Price:    s.intent.TakeProfitPrice,
	}, "take_profit")
	if err != nil {
		s.transition(order.StateRejected, fmt.Sprintf("止盈腿提交失败: %v", err))
		return nil
	}

	sl, err := s.submitChild(ctx,
		stopLimitSpec(s.intent.Symbol, s.intent.Side, s.intent.Quantity, s.intent.StopLossPrice, s.intent.StopLossLimitPrice),
		"stop_loss")
	if err != nil {
		s.cancelChild(ctx, tp.ID)
		s.transition(order.StateRejected, fmt.Sprintf("止损腿提交失败: %v", err))
		return nil
	}

	pair := &ocoPair{takeProfitID: tp.ID, stopLossID: sl.ID}

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
			s.transition(order.StateExpired, "意图存续时间已到")
			return nil
		case ev := <-s.exec.events:
			switch ev.Type {
			case exchange.EventFill:
				s.applyFill(ctx, ev)
				if ev.Status != exchange.StatusFilled {
					s.transition(order.StatePartiallyFilled, "OCO 单腿部分成交")
					continue
				}

				leg := "止盈腿"
				if ev.OrderID == pair.stopLossID {
					leg = "止损腿"
				}

				if pair.tryCancel() {
					s.cancelChild(ctx, pair.sibling(ev.OrderID))
				}
				return s.awaitSibling(ctx, pair, ev.OrderID, leg)

			case exchange.EventCancel:
				s.applyFill(ctx, ev)
				s.rec.SetChildStatus(ev.OrderID, childStatus(ev.Status), "")
				if s.bothLegsTerminal(pair) {
					s.transition(order.StateCancelled, "OCO 双腿均被撤销")
					return nil
				}
			case exchange.EventReject:
				s.rec.SetChildStatus(ev.OrderID, order.ChildRejected, "")
				s.cancelChild(ctx, pair.sibling(ev.OrderID))
				s.transition(order.StateRejected, fmt.Sprintf("OCO 单腿被交易所拒绝: %s", ev.Code))
				return nil
			}
		}
	}
}

// awaitSibling 在一腿成交后等待另一腿到达终态，
// 以便识别双腿同时成交的竞态并完成记账。
func (s *session) awaitSibling(ctx context.Context, pair *ocoPair, filledID, leg string) error {
	siblingID := pair.sibling(filledID)
	reason := fmt.Sprintf("OCO %s成交，另一腿已撤销", leg)

	for {
		if child, ok := s.rec.Child(siblingID); ok && child.Status.Terminal() {
			s.transition(order.StateFilled, reason)
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.exec.cancelCh:
			s.cancelOpenChildren(ctx)
			s.transition(order.StateFilled, reason)
			return nil
		case ev := <-s.exec.events:
			if ev.OrderID != siblingID {
				continue
			}
			switch ev.Type {
			case exchange.EventFill:
				s.applyFill(ctx, ev)
				if ev.Status == exchange.StatusFilled {
					s.sup.metrics.OcoRaces.Inc()
					s.rec.Annotate("RaceCondition: OCO 双腿在撤单到达前同时成交")
					s.sup.logger.Warn("OCO 双腿同时成交，按交易所级竞态处理",
						zap.String("intent_id", s.intent.ID),
						zap.String("filled_leg", filledID),
						zap.String("sibling_leg", siblingID),
					)
					s.transition(order.StateFilled, reason+"（检测到双腿成交竞态）")
					return nil
				}
			case exchange.EventCancel, exchange.EventReject:
				s.applyFill(ctx, ev)
				s.rec.SetChildStatus(ev.OrderID, childStatus(ev.Status), "")
				s.transition(order.StateFilled, reason)
				return nil
			}
		}
	}
}

func (s *session) bothLegsTerminal(pair *ocoPair) bool {
	tp, okTP := s.rec.Child(pair.takeProfitID)
	sl, okSL := s.rec.Child(pair.stopLossID)
	return okTP && okSL && tp.Status.Terminal() && sl.Status.Terminal()
}
