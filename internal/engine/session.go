package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/devansh0703/BinanceTradeBot/internal/exchange"
	"github.com/devansh0703/BinanceTradeBot/internal/feed"
	"github.com/devansh0703/BinanceTradeBot/internal/order"
	"github.com/devansh0703/BinanceTradeBot/internal/risk"
)

// session 为单个意图的控制器运行时：封装子订单提交、回报应用、
// 状态迁移与终态清理。记录的全部写入都发生在控制器协程内。
type session struct {
	sup    *Supervisor
	exec   *execution
	rec    *order.Record
	intent order.Intent

	ticks     *feed.Subscription
	lastPrice float64

	deadlineTimer *time.Timer
	deadline      <-chan time.Time
}

func newSession(sup *Supervisor, exec *execution) *session {
	sess := &session{
		sup:    sup,
		exec:   exec,
		rec:    exec.record,
		intent: exec.record.Intent(),
	}
	if tif := sess.intent.TimeInForce; tif > 0 {
		sess.deadlineTimer = time.NewTimer(tif)
		sess.deadline = sess.deadlineTimer.C
	}
	return sess
}

// subscribeTicks 为价格驱动的控制器建立行情订阅。
func (s *session) subscribeTicks() error {
	sub, err := s.sup.feed.Subscribe(s.intent.Symbol)
	if err != nil {
		return err
	}
	s.ticks = sub
	return nil
}

func (s *session) tickC() <-chan feed.PriceTick {
	if s.ticks == nil {
		return nil
	}
	return s.ticks.C
}

func (s *session) noteTick(tick feed.PriceTick) {
	s.lastPrice = tick.Price
	s.rec.TouchEval(tick.Timestamp)
}

// submitChild 在风控放行后提交子订单并登记到记录。
// 风控拒绝返回 *risk.DenialError，订单从未到达交易所。
func (s *session) submitChild(ctx context.Context, spec exchange.OrderSpec, tag string) (order.Child, error) {
	committed := s.rec.FilledQuantity()
	for _, c := range s.rec.OpenChildren() {
		committed += c.Quantity - c.FilledQty
	}

	if decision := s.sup.guard.Approve(spec, s.lastPrice, committed); !decision.Allowed {
		s.sup.metrics.RiskDenials.Inc()
		s.sup.metrics.ChildSubmissions.WithLabelValues("risk_denied").Inc()
		err := &risk.DenialError{Reason: decision.Reason}
		s.sup.journal.RecordError(ctx, s.intent.ID, "risk", err)
		return order.Child{}, err
	}

	ack, err := s.sup.gateway.Submit(ctx, spec)
	if err != nil {
		if _, ok := exchange.AsRejection(err); ok {
			s.sup.metrics.ChildSubmissions.WithLabelValues("rejected").Inc()
		} else {
			s.sup.metrics.ChildSubmissions.WithLabelValues("error").Inc()
		}
		s.sup.journal.RecordError(ctx, s.intent.ID, "submit", err)
		return order.Child{}, err
	}

	child := order.Child{
		ID:       ack.OrderID,
		Side:     order.Side(spec.Side),
		Quantity: spec.Quantity,
		Price:    spec.Price,
		Status:   childStatus(ack.Status),
		Tag:      tag,
	}
	s.rec.AddChild(child)
	s.sup.route(ack.OrderID, s.intent.ID)
	s.sup.journal.RecordChild(ctx, s.intent.ID, child)
	s.sup.metrics.ChildSubmissions.WithLabelValues("submitted").Inc()

	return child, nil
}

// cancelChild 撤销单个子订单并在成功后更新记录。
func (s *session) cancelChild(ctx context.Context, orderID string) {
	child, ok := s.rec.Child(orderID)
	if !ok || child.Status.Terminal() {
		return
	}

	status, err := s.sup.gateway.Cancel(ctx, s.intent.Symbol, orderID)
	if err != nil {
		s.sup.logger.Warn("撤销子订单失败",
			zap.String("intent_id", s.intent.ID),
			zap.String("order_id", orderID),
			zap.Error(err),
		)
		s.sup.journal.RecordError(ctx, s.intent.ID, "cancel", err)
		return
	}

	if status.Terminal() {
		s.rec.SetChildStatus(orderID, childStatus(status), "")
		s.sup.journal.RecordCancel(ctx, s.intent.ID, orderID, childStatus(status))
	}
}

// cancelOpenChildren 撤销所有未终结子订单。
func (s *session) cancelOpenChildren(ctx context.Context) {
	for _, child := range s.rec.OpenChildren() {
		s.cancelChild(ctx, child.ID)
	}
}

// applyFill 将一笔成交回报应用到记录，返回新增成交量。
// 事件携带累计成交量，重复投递不会重复计量。
func (s *session) applyFill(ctx context.Context, ev exchange.OrderEvent) float64 {
	delta := s.rec.ApplyFill(ev.OrderID, ev.FilledQty, childStatus(ev.Status))
	if delta > 0 {
		s.sup.metrics.ChildFills.Inc()
		s.sup.journal.RecordFill(ctx, s.intent.ID, ev.OrderID, ev.FilledQty, childStatus(ev.Status))
	}
	return delta
}

// transition 执行状态迁移并记录日志。
func (s *session) transition(to order.State, reason string) {
	from := s.rec.State()
	if err := s.rec.Transition(to, reason); err != nil {
		s.sup.logger.Warn("状态迁移被拒绝",
			zap.String("intent_id", s.intent.ID),
			zap.Error(err),
		)
		return
	}

	s.sup.journal.RecordStateChange(context.Background(), s.intent.ID, from, to, reason)
	s.sup.logger.Info("意图状态迁移",
		zap.String("intent_id", s.intent.ID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("reason", reason),
	)
	if to.Terminal() {
		s.sup.metrics.IntentsCompleted.WithLabelValues(string(to)).Inc()
	}
}

// teardown 为每条退出路径的强制清理：撤销所有未终结子订单、
// 释放行情订阅并落盘最终快照。
func (s *session) teardown() {
	if s.deadlineTimer != nil {
		s.deadlineTimer.Stop()
	}

	if !s.rec.State().Terminal() {
		s.transition(order.StateCancelled, "控制器退出，意图中止")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	s.cancelOpenChildren(ctx)

	if s.ticks != nil {
		s.ticks.Close()
	}

	s.sup.journal.SaveSnapshot(ctx, s.rec.Snapshot())
	s.sup.metrics.ActiveIntents.Dec()
	close(s.exec.done)
}

func childStatus(st exchange.OrderStatus) order.ChildStatus {
	switch st {
	case exchange.StatusNew:
		return order.ChildOpen
	case exchange.StatusPartiallyFilled:
		return order.ChildPartial
	case exchange.StatusFilled:
		return order.ChildFilled
	case exchange.StatusCancelled:
		return order.ChildCancelled
	case exchange.StatusRejected:
		return order.ChildRejected
	case exchange.StatusExpired:
		return order.ChildExpired
	default:
		return order.ChildOpen
	}
}
