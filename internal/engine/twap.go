package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/devansh0703/BinanceTradeBot/internal/exchange"
	"github.com/devansh0703/BinanceTradeBot/internal/order"
	"github.com/devansh0703/BinanceTradeBot/internal/risk"
)

const fillEpsilon = 1e-9

// sliceQuantities 把总量均分为 n 片，除不尽的余量并入最后一片，
// 保证各片之和严格等于总量。
func sliceQuantities(total float64, n int) []float64 {
	out := make([]float64, n)
	per := total / float64(n)
	sum := 0.0
	for i := 0; i < n-1; i++ {
		out[i] = per
		sum += per
	}
	out[n-1] = total - sum
	return out
}

// runTWAP 执行 TWAP 意图：在存续时间内按固定间隔提交 N 片子订单，
// 首片立即提交。单片被拒绝只吸收记账，不追加补片；
// 全部切片提交后等待所有子订单终结再收尾。
func (s *session) runTWAP(ctx context.Context) error {
	s.transition(order.StateActive, "")

	n := s.intent.Slices
	slices := sliceQuantities(s.intent.Quantity, n)
	interval := s.intent.Duration / time.Duration(n)

	timer := time.NewTimer(0)
	defer timer.Stop()

	submitted := 0
	placed := 0

	for {
		if submitted >= n && len(s.rec.OpenChildren()) == 0 {
			s.finishTWAP(placed)
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.exec.cancelCh:
			s.cancelOpenChildren(ctx)
			s.transition(order.StateCancelled, "调用方请求取消，剩余切片不再提交")
			return nil
		case <-s.deadline:
			s.cancelOpenChildren(ctx)
			s.transition(order.StateExpired, "意图存续时间已到，剩余切片不再提交")
			return nil
		case <-timer.C:
			if submitted >= n {
				continue
			}
			idx := submitted
			submitted++

			spec := exchange.OrderSpec{
				Symbol:   s.intent.Symbol,
				Side:     string(s.intent.Side),
				Type:     exchange.TypeMarket,
				Quantity: slices[idx],
			}
			if s.intent.LimitPrice > 0 {
				spec.Type = exchange.TypeLimit
				spec.Price = s.intent.LimitPrice
			}

			if _, err := s.submitChild(ctx, spec, fmt.Sprintf("slice_%d", idx+1)); err != nil {
				if _, denied := err.(*risk.DenialError); denied && idx == 0 && placed == 0 {
					s.transition(order.StateRejected, fmt.Sprintf("首片被风控拒绝: %v", err))
					return nil
				}
				s.rec.Annotate(fmt.Sprintf("切片 %d/%d 提交失败: %v", idx+1, n, err))
				s.sup.logger.Warn("TWAP 切片提交失败，继续后续切片",
					zap.String("intent_id", s.intent.ID),
					zap.Int("slice", idx+1),
					zap.Error(err),
				)
			} else {
				placed++
			}

			if submitted < n {
				timer.Reset(interval)
			}

		case ev := <-s.exec.events:
			switch ev.Type {
			case exchange.EventFill:
				if s.applyFill(ctx, ev) > 0 && s.rec.State() == order.StateActive {
					s.transition(order.StatePartiallyFilled, "切片成交")
				}
			case exchange.EventCancel:
				s.applyFill(ctx, ev)
				s.rec.SetChildStatus(ev.OrderID, childStatus(ev.Status), "")
			case exchange.EventReject:
				s.rec.SetChildStatus(ev.OrderID, order.ChildRejected, "")
				s.rec.Annotate(fmt.Sprintf("切片订单 %s 被交易所拒绝: %s", ev.OrderID, ev.Code))
			}
		}
	}
}

// finishTWAP 在全部切片终结后收尾：
// 足额成交与部分成交均记 Filled，零成交记 Rejected，
// 部分成交附带缺口注解以便事后核对。
func (s *session) finishTWAP(placed int) {
	filled := s.rec.FilledQuantity()
	remaining := s.rec.RemainingQuantity()

	switch {
	case remaining <= fillEpsilon:
		s.transition(order.StateFilled, "全部切片成交")
	case filled > 0:
		s.rec.Annotate(fmt.Sprintf("TWAP 收尾缺口 %.8f，目标 %.8f 实际 %.8f", remaining, s.intent.Quantity, filled))
		s.transition(order.StateFilled, fmt.Sprintf("切片执行完毕，成交 %.8f/%.8f", filled, s.intent.Quantity))
	default:
		if placed == 0 {
			s.transition(order.StateRejected, "所有切片均提交失败")
		} else {
			s.transition(order.StateRejected, "切片执行完毕但无任何成交")
		}
	}
}
