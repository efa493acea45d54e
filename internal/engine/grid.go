package engine

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/devansh0703/BinanceTradeBot/internal/exchange"
	"github.com/devansh0703/BinanceTradeBot/internal/order"
)

// gridPrices 生成网格各层价格，区间两端闭合。
// 等差网格层间价差固定，等比网格层间比率固定。
func gridPrices(lower, upper float64, levels int, spacing order.Spacing) []float64 {
	out := make([]float64, levels)
	if levels == 1 {
		out[0] = lower
		return out
	}

	switch spacing {
	case order.SpacingGeometric:
		ratio := math.Pow(upper/lower, 1/float64(levels-1))
		price := lower
		for i := 0; i < levels; i++ {
			out[i] = price
			price *= ratio
		}
		out[levels-1] = upper
	default:
		step := (upper - lower) / float64(levels-1)
		for i := 0; i < levels; i++ {
			out[i] = lower + step*float64(i)
		}
		out[levels-1] = upper
	}
	return out
}

// runGrid 执行网格意图：以首笔行情为基准，低于现价的层挂买单、
// 高于或等于现价的层挂卖单，每层数量为总量均分。
// 某层成交后在相邻镜像层挂反向单并补挂本层，镜像越界则停用该层；
// 任意时刻每层至多一笔未结订单，总挂单数不超过层数。
func (s *session) runGrid(ctx context.Context) error {
	if err := s.subscribeTicks(); err != nil {
		s.transition(order.StateRejected, fmt.Sprintf("订阅行情失败: %v", err))
		return nil
	}

	s.transition(order.StateActive, "")

	// 等待首笔行情确定各层方向。
	var current float64
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.exec.cancelCh:
		s.transition(order.StateCancelled, "调用方请求取消")
		return nil
	case <-s.deadline:
		s.transition(order.StateExpired, "未收到行情，意图存续时间已到")
		return nil
	case tick, ok := <-s.tickC():
		if !ok {
			s.transition(order.StateRejected, "行情流已关闭")
			return nil
		}
		s.noteTick(tick)
		current = tick.Price
	}

	k := s.intent.Levels
	prices := gridPrices(s.intent.LowerPrice, s.intent.UpperPrice, k, s.intent.Spacing)
	qtyPerLevel := s.intent.Quantity / float64(k)

	levels := make([]*order.GridLevel, k)
	byOrder := make(map[string]int, k)

	placed := 0
	for i, price := range prices {
		side := order.SideSell
		if price < current {
			side = order.SideBuy
		}
		levels[i] = &order.GridLevel{Index: i, Price: price, Side: side, Status: order.LevelOpen}

		child, err := s.submitChild(ctx, exchange.OrderSpec{
			Symbol:   s.intent.Symbol,
			Side:     string(side),
			Type:     exchange.TypeLimit,
			Quantity: qtyPerLevel,
			Price:    price,
		}, fmt.Sprintf("level_%d", i))
		if err != nil {
			levels[i].Status = order.LevelRetired
			s.sup.logger.Warn("网格层挂单失败，该层停用",
				zap.String("intent_id", s.intent.ID),
				zap.Int("level", i),
				zap.Float64("price", price),
				zap.Error(err),
			)
			continue
		}
		levels[i].OrderID = child.ID
		byOrder[child.ID] = i
		placed++
	}

	if placed == 0 {
		s.transition(order.StateRejected, "无任何网格层挂单成功")
		return nil
	}

	for {
		if s.allLevelsRetired(levels) && len(s.rec.OpenChildren()) == 0 {
			s.finishGrid()
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.exec.cancelCh:
			s.cancelOpenChildren(ctx)
			s.transition(order.StateCancelled, "调用方请求取消，网格停止")
			return nil
		case <-s.deadline:
			s.cancelOpenChildren(ctx)
			s.transition(order.StateExpired, "意图存续时间已到，网格停止")
			return nil
		case tick, ok := <-s.tickC():
			if !ok {
				s.cancelOpenChildren(ctx)
				s.transition(order.StateCancelled, "行情流已关闭，网格停止")
				return nil
			}
			s.noteTick(tick)

		case ev := <-s.exec.events:
			idx, known := byOrder[ev.OrderID]
			if !known {
				continue
			}
			switch ev.Type {
			case exchange.EventFill:
				if s.applyFill(ctx, ev) > 0 && s.rec.State() == order.StateActive {
					s.transition(order.StatePartiallyFilled, "网格层成交")
				}
				if ev.Status != exchange.StatusFilled {
					continue
				}
				delete(byOrder, ev.OrderID)
				s.onLevelFilled(ctx, levels, byOrder, idx, qtyPerLevel)

			case exchange.EventCancel:
				s.applyFill(ctx, ev)
				s.rec.SetChildStatus(ev.OrderID, childStatus(ev.Status), "")
				delete(byOrder, ev.OrderID)
				s.retireLevel(levels[idx], "订单在交易所侧被撤销")

			case exchange.EventReject:
				s.rec.SetChildStatus(ev.OrderID, order.ChildRejected, "")
				delete(byOrder, ev.OrderID)
				s.retireLevel(levels[idx], fmt.Sprintf("订单被交易所拒绝: %s", ev.Code))
			}
		}
	}
}

// onLevelFilled 处理某层全部成交：在相邻镜像层挂反向单，
// 再补挂本层。镜像层越界时停用本层，网格缺一层继续运行。
func (s *session) onLevelFilled(ctx context.Context, levels []*order.GridLevel, byOrder map[string]int, idx int, qty float64) {
	lvl := levels[idx]
	lvl.Status = order.LevelFilled
	lvl.OrderID = ""

	mirror := idx + 1
	if lvl.Side == order.SideSell {
		mirror = idx - 1
	}
	if mirror < 0 || mirror >= len(levels) {
		s.retireLevel(lvl, "镜像层越出网格区间")
		s.sup.logger.Info("网格边界层成交，该层停用",
			zap.String("intent_id", s.intent.ID),
			zap.Int("level", idx),
		)
		return
	}

	if m := levels[mirror]; m.Status != order.LevelRetired && m.OrderID == "" {
		child, err := s.submitChild(ctx, exchange.OrderSpec{
			Symbol:   s.intent.Symbol,
			Side:     string(lvl.Side.Opposite()),
			Type:     exchange.TypeLimit,
			Quantity: qty,
			Price:    m.Price,
		}, fmt.Sprintf("level_%d", mirror))
		if err != nil {
			s.retireLevel(m, fmt.Sprintf("镜像层挂单失败: %v", err))
		} else {
			m.Side = lvl.Side.Opposite()
			m.Status = order.LevelOpen
			m.OrderID = child.ID
			byOrder[child.ID] = mirror
		}
	}

	lvl.Status = order.LevelReplacing
	child, err := s.submitChild(ctx, exchange.OrderSpec{
		Symbol:   s.intent.Symbol,
		Side:     string(lvl.Side),
		Type:     exchange.TypeLimit,
		Quantity: qty,
		Price:    lvl.Price,
	}, fmt.Sprintf("level_%d", idx))
	if err != nil {
		s.retireLevel(lvl, fmt.Sprintf("补挂失败: %v", err))
		return
	}
	lvl.Status = order.LevelOpen
	lvl.OrderID = child.ID
	byOrder[child.ID] = idx
	s.sup.metrics.GridReplenishments.Inc()
}

func (s *session) retireLevel(lvl *order.GridLevel, reason string) {
	lvl.Status = order.LevelRetired
	lvl.OrderID = ""
	s.rec.Annotate(fmt.Sprintf("网格层 %d（价格 %v）停用: %s", lvl.Index, lvl.Price, reason))
}

func (s *session) allLevelsRetired(levels []*order.GridLevel) bool {
	for _, lvl := range levels {
		if lvl.Status != order.LevelRetired {
			return false
		}
	}
	return true
}

// finishGrid 在所有层停用后收尾：有成交记 Filled，否则记 Rejected。
func (s *session) finishGrid() {
	if s.rec.FilledQuantity() > 0 {
		s.transition(order.StateFilled, "所有网格层已停用，网格结束")
	} else {
		s.transition(order.StateRejected, "所有网格层停用且无任何成交")
	}
}
