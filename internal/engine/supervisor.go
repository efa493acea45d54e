package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/devansh0703/BinanceTradeBot/internal/config"
	"github.com/devansh0703/BinanceTradeBot/internal/exchange"
	"github.com/devansh0703/BinanceTradeBot/internal/feed"
	"github.com/devansh0703/BinanceTradeBot/internal/metrics"
	"github.com/devansh0703/BinanceTradeBot/internal/order"
	"github.com/devansh0703/BinanceTradeBot/internal/risk"
)

var (
	// ErrNotRunning 表示监督器尚未启动。
	ErrNotRunning = errors.New("engine: supervisor 未运行")
	// ErrIntentNotFound 表示查询的意图不存在。
	ErrIntentNotFound = errors.New("engine: 意图不存在")
	// ErrDuplicateIntent 表示意图ID重复。
	ErrDuplicateIntent = errors.New("engine: 意图ID已存在")
)

// Journal 抽象执行日志，方便测试时替换。
type Journal interface {
	RecordIntent(ctx context.Context, intent order.Intent)
	RecordStateChange(ctx context.Context, intentID string, from, to order.State, reason string)
	RecordChild(ctx context.Context, intentID string, child order.Child)
	RecordFill(ctx context.Context, intentID, orderID string, filledQty float64, status order.ChildStatus)
	RecordCancel(ctx context.Context, intentID, orderID string, status order.ChildStatus)
	RecordError(ctx context.Context, intentID, stage string, err error)
	SaveSnapshot(ctx context.Context, snap order.Snapshot)
}

type nopJournal struct{}

func (nopJournal) RecordIntent(context.Context, order.Intent)                              {}
func (nopJournal) RecordStateChange(context.Context, string, order.State, order.State, string) {}
func (nopJournal) RecordChild(context.Context, string, order.Child)                        {}
func (nopJournal) RecordFill(context.Context, string, string, float64, order.ChildStatus)  {}
func (nopJournal) RecordCancel(context.Context, string, string, order.ChildStatus)         {}
func (nopJournal) RecordError(context.Context, string, string, error)                      {}
func (nopJournal) SaveSnapshot(context.Context, order.Snapshot)                            {}

// Supervisor 端到端地持有活跃意图：为每个意图创建记录与控制器协程，
// 把网关回报按订单号路由给对应控制器，并保证终态清理。
// 每个记录只被自己的控制器协程写入，避免并发丢更新。
type Supervisor struct {
	cfg     config.EngineConfig
	gateway exchange.Gateway
	feed    feed.Feed
	guard   *risk.Guard
	journal Journal
	metrics *metrics.Metrics
	logger  *zap.Logger

	mu      sync.Mutex
	ctx     context.Context
	running bool
	records map[string]*execution
	routes  map[string]string // 子订单号 -> 意图ID
	wg      sync.WaitGroup
}

type execution struct {
	record   *order.Record
	events   chan exchange.OrderEvent
	cancelCh chan struct{}
	cancel   sync.Once
	done     chan struct{}
}

// Options 为监督器的可选依赖。
type Options struct {
	Journal Journal
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// NewSupervisor 创建执行监督器。
func NewSupervisor(cfg config.EngineConfig, gateway exchange.Gateway, priceFeed feed.Feed, guard *risk.Guard, opts Options) *Supervisor {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	jnl := opts.Journal
	if jnl == nil {
		jnl = nopJournal{}
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.New(prometheus.NewRegistry())
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 64
	}

	return &Supervisor{
		cfg:     cfg,
		gateway: gateway,
		feed:    priceFeed,
		guard:   guard,
		journal: jnl,
		metrics: m,
		logger:  logger,
		records: make(map[string]*execution),
		routes:  make(map[string]string),
	}
}

// Run 启动回报分发循环，阻塞直到上下文取消；
// 退出前等待所有控制器协程完成终态清理。
func (s *Supervisor) Run(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		s.wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-s.gateway.Events():
			if !ok {
				return errors.New("engine: 网关回报流已关闭")
			}
			s.dispatch(ev)
		}
	}
}

func (s *Supervisor) dispatch(ev exchange.OrderEvent) {
	s.mu.Lock()
	intentID, ok := s.routes[ev.OrderID]
	var exec *execution
	if ok {
		exec = s.records[intentID]
	}
	s.mu.Unlock()

	if exec == nil {
		s.logger.Debug("收到未知订单回报", zap.String("order_id", ev.OrderID))
		return
	}

	select {
	case exec.events <- ev:
	case <-exec.done:
	}
}

// SubmitIntent 提交一个订单意图，返回记录句柄（意图ID）。
func (s *Supervisor) SubmitIntent(intent order.Intent) (string, error) {
	if err := intent.Validate(); err != nil {
		return "", err
	}

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return "", ErrNotRunning
	}
	if _, exists := s.records[intent.ID]; exists {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrDuplicateIntent, intent.ID)
	}

	exec := &execution{
		record:   order.NewRecord(intent),
		events:   make(chan exchange.OrderEvent, s.cfg.EventBuffer),
		cancelCh: make(chan struct{}),
		done:     make(chan struct{}),
	}
	s.records[intent.ID] = exec
	ctx := s.ctx
	s.mu.Unlock()

	s.journal.RecordIntent(ctx, intent)
	s.metrics.IntentsSubmitted.WithLabelValues(string(intent.Kind), string(intent.Side)).Inc()
	s.metrics.ActiveIntents.Inc()

	s.logger.Info("接受订单意图",
		zap.String("intent_id", intent.ID),
		zap.String("symbol", intent.Symbol),
		zap.String("kind", string(intent.Kind)),
		zap.String("side", string(intent.Side)),
		zap.Float64("quantity", intent.Quantity),
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runIntent(ctx, exec)
	}()

	return intent.ID, nil
}

// CancelIntent 请求取消一个活跃意图，取消在控制器的下一个动作前生效。
func (s *Supervisor) CancelIntent(intentID string) error {
	s.mu.Lock()
	exec, ok := s.records[intentID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrIntentNotFound, intentID)
	}

	exec.cancel.Do(func() { close(exec.cancelCh) })
	return nil
}

// QueryIntent 返回意图当前的执行快照。
func (s *Supervisor) QueryIntent(intentID string) (order.Snapshot, error) {
	s.mu.Lock()
	exec, ok := s.records[intentID]
	s.mu.Unlock()
	if !ok {
		return order.Snapshot{}, fmt.Errorf("%w: %s", ErrIntentNotFound, intentID)
	}
	return exec.record.Snapshot(), nil
}

// Snapshots 返回全部意图快照，供监控接口使用。
func (s *Supervisor) Snapshots() []order.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]order.Snapshot, 0, len(s.records))
	for _, exec := range s.records {
		out = append(out, exec.record.Snapshot())
	}
	return out
}

func (s *Supervisor) route(orderID, intentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[orderID] = intentID
}

// runIntent 驱动单个意图直到终态，终态清理无条件执行：
// 撤销所有未终结子订单并释放行情订阅。
func (s *Supervisor) runIntent(ctx context.Context, exec *execution) {
	sess := newSession(s, exec)
	defer sess.teardown()

	var err error
	switch exec.record.Intent().Kind {
	case order.KindMarket, order.KindLimit:
		err = sess.runSimple(ctx)
	case order.KindStopLimit:
		err = sess.runStopLimit(ctx)
	case order.KindOCO:
		err = sess.runOCO(ctx)
	case order.KindTWAP:
		err = sess.runTWAP(ctx)
	case order.KindGrid:
		err = sess.runGrid(ctx)
	default:
		err = fmt.Errorf("engine: 不支持的意图类型 %q", exec.record.Intent().Kind)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("控制器异常退出",
			zap.String("intent_id", exec.record.Intent().ID),
			zap.Error(err),
		)
		s.journal.RecordError(context.Background(), exec.record.Intent().ID, "controller", err)
	}
}

// cleanupTimeout 为终态清理时撤单的兜底时限。
const cleanupTimeout = 10 * time.Second
