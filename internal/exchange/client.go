package exchange

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"go.uber.org/zap"

	"github.com/devansh0703/BinanceTradeBot/internal/config"
)

const eventBufferSize = 256

// Client 基于 ccxt 实现交易所网关，负责下单、撤单与回报合成。
// 成交/撤单事件通过轮询订单状态合成，轮询频率由配置控制。
type Client struct {
	cfg      config.ExchangeConfig
	logger   *zap.Logger
	exchange *ccxt.Binanceusdm

	marketsMu     sync.Mutex
	marketsLoaded bool

	events  chan OrderEvent
	watchMu sync.Mutex
	watched map[string]*watchedOrder
}

type watchedOrder struct {
	symbol     string
	lastFilled float64
}

// NewClient 构造 Binance USDⓈ-M 网关客户端。
func NewClient(cfg config.ExchangeConfig, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	userConfig := map[string]interface{}{
		"enableRateLimit": true,
		"options": map[string]interface{}{
			"adjustForTimeDifference": true,
			"defaultType":             "future",
		},
	}

	if cfg.APIKey != "" {
		userConfig["apiKey"] = cfg.APIKey
	}
	if cfg.APISecret != "" {
		userConfig["secret"] = cfg.APISecret
	}

	ex := ccxt.NewBinanceusdm(userConfig)
	if cfg.UseSandbox {
		ex.SetSandboxMode(true)
	}

	return &Client{
		cfg:      cfg,
		logger:   logger,
		exchange: ex,
		events:   make(chan OrderEvent, eventBufferSize),
		watched:  make(map[string]*watchedOrder),
	}, nil
}

// Submit 提交订单。提交不做自动重试，避免传输故障下的重复下单；
// 交易所的拒单错误码被归一化为 RejectionError 原样透出。
func (c *Client) Submit(ctx context.Context, spec OrderSpec) (Ack, error) {
	if err := c.ensureMarketsLoaded(ctx); err != nil {
		return Ack{}, err
	}
	if err := ctx.Err(); err != nil {
		return Ack{}, err
	}

	params := map[string]interface{}{}
	if spec.TimeInForce != "" {
		params["timeInForce"] = strings.ToUpper(spec.TimeInForce)
	}
	if spec.ClientID != "" {
		params["newClientOrderId"] = spec.ClientID
	}

	orderType := "market"
	switch spec.Type {
	case TypeMarket:
	case TypeLimit:
		orderType = "limit"
	case TypeStopLimit:
		// ccxt 统一接口：限价单携带 stopPrice 即为交易所侧的条件限价单。
		orderType = "limit"
		params["stopPrice"] = spec.StopPrice
	default:
		return Ack{}, fmt.Errorf("exchange: 不支持的订单类型 %q", spec.Type)
	}

	opts := []ccxt.CreateOrderOptions{ccxt.WithCreateOrderParams(params)}
	if orderType == "limit" {
		opts = append(opts, ccxt.WithCreateOrderPrice(spec.Price))
	}

	raw, err := c.exchange.CreateOrder(spec.Symbol, orderType, spec.Side, spec.Quantity, opts...)
	if err != nil {
		normalized := normalizeError(err)
		c.logger.Warn("下单失败",
			zap.String("symbol", spec.Symbol),
			zap.String("side", spec.Side),
			zap.String("type", string(spec.Type)),
			zap.Float64("quantity", spec.Quantity),
			zap.Error(normalized),
		)
		return Ack{}, normalized
	}

	id := ""
	if raw.Id != nil {
		id = *raw.Id
	}
	if id == "" {
		return Ack{}, errors.New("exchange: 交易所未返回订单号")
	}

	status := StatusNew
	filled := 0.0
	if raw.Filled != nil {
		filled = *raw.Filled
	}
	if raw.Status != nil {
		status = mapStatus(*raw.Status, filled)
	}

	c.watch(id, spec.Symbol, filled)

	c.logger.Info("订单已提交",
		zap.String("order_id", id),
		zap.String("symbol", spec.Symbol),
		zap.String("side", spec.Side),
		zap.String("type", string(spec.Type)),
		zap.Float64("quantity", spec.Quantity),
		zap.Float64("price", spec.Price),
	)

	return Ack{OrderID: id, Status: status}, nil
}

// Cancel 撤销订单。订单已不存在时回退为状态查询。
func (c *Client) Cancel(ctx context.Context, symbol, orderID string) (OrderStatus, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	_, err := c.exchange.CancelOrder(orderID, ccxt.WithCancelOrderSymbol(symbol))
	if err != nil {
		normalized := normalizeError(err)
		if errors.Is(normalized, ErrOrderNotFound) {
			return c.QueryStatus(ctx, symbol, orderID)
		}
		return "", normalized
	}

	c.logger.Info("订单已撤销", zap.String("order_id", orderID), zap.String("symbol", symbol))
	return StatusCancelled, nil
}

// QueryStatus 查询订单状态，幂等操作按配置做指数退避重试。
func (c *Client) QueryStatus(ctx context.Context, symbol, orderID string) (OrderStatus, error) {
	var status OrderStatus
	err := c.callWithRetry(ctx, "fetch_order", func() error {
		raw, err := c.exchange.FetchOrder(orderID, ccxt.WithFetchOrderSymbol(symbol))
		if err != nil {
			return err
		}
		filled := 0.0
		if raw.Filled != nil {
			filled = *raw.Filled
		}
		if raw.Status != nil {
			status = mapStatus(*raw.Status, filled)
		} else {
			status = StatusNew
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return status, nil
}

// Events 返回回报事件流。
func (c *Client) Events() <-chan OrderEvent {
	return c.events
}

// Run 驱动订单状态轮询直到上下文取消，回报事件在此合成。
func (c *Client) Run(ctx context.Context) error {
	interval := c.cfg.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.pollWatched(ctx)
		}
	}
}

func (c *Client) watch(orderID, symbol string, filled float64) {
	c.watchMu.Lock()
	defer c.watchMu.Unlock()
	c.watched[orderID] = &watchedOrder{symbol: symbol, lastFilled: filled}
}

func (c *Client) pollWatched(ctx context.Context) {
	c.watchMu.Lock()
	pending := make(map[string]*watchedOrder, len(c.watched))
	for id, w := range c.watched {
		pending[id] = w
	}
	c.watchMu.Unlock()

	for id, w := range pending {
		if ctx.Err() != nil {
			return
		}

		raw, err := c.exchange.FetchOrder(id, ccxt.WithFetchOrderSymbol(w.symbol))
		if err != nil {
			normalized := normalizeError(err)
			if errors.Is(normalized, ErrOrderNotFound) {
				c.unwatch(id)
				continue
			}
			c.logger.Warn("轮询订单状态失败", zap.String("order_id", id), zap.Error(normalized))
			continue
		}

		filled := 0.0
		if raw.Filled != nil {
			filled = *raw.Filled
		}
		avgPrice := 0.0
		if raw.Average != nil {
			avgPrice = *raw.Average
		}
		rawStatus := ""
		if raw.Status != nil {
			rawStatus = *raw.Status
		}
		status := mapStatus(rawStatus, filled)
		now := time.Now().UTC()

		if filled > w.lastFilled {
			c.emit(ctx, OrderEvent{
				OrderID:   id,
				Type:      EventFill,
				Status:    status,
				FilledQty: filled,
				AvgPrice:  avgPrice,
				Timestamp: now,
			})
			w.lastFilled = filled
		}

		switch status {
		case StatusCancelled, StatusExpired:
			c.emit(ctx, OrderEvent{
				OrderID:   id,
				Type:      EventCancel,
				Status:    status,
				FilledQty: filled,
				Timestamp: now,
			})
			c.unwatch(id)
		case StatusRejected:
			c.emit(ctx, OrderEvent{
				OrderID:   id,
				Type:      EventReject,
				Status:    status,
				FilledQty: filled,
				Code:      rawStatus,
				Timestamp: now,
			})
			c.unwatch(id)
		case StatusFilled:
			c.unwatch(id)
		}
	}
}

func (c *Client) unwatch(orderID string) {
	c.watchMu.Lock()
	defer c.watchMu.Unlock()
	delete(c.watched, orderID)
}

func (c *Client) emit(ctx context.Context, ev OrderEvent) {
	select {
	case c.events <- ev:
	case <-ctx.Done():
	}
}

func (c *Client) ensureMarketsLoaded(ctx context.Context) error {
	if c.marketsLoaded {
		return nil
	}

	c.marketsMu.Lock()
	defer c.marketsMu.Unlock()

	if c.marketsLoaded {
		return nil
	}

	loadErr := c.callWithRetry(ctx, "load_markets", func() error {
		_, err := c.exchange.LoadMarkets()
		return err
	})
	if loadErr != nil {
		return loadErr
	}

	c.marketsLoaded = true
	c.logger.Info("已完成市场元数据加载")
	return nil
}

func (c *Client) callWithRetry(ctx context.Context, operation string, fn func() error) error {
	attempt := 0
	delay := c.cfg.Retry.MinDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	maxDelay := c.cfg.Retry.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		attempt++
		start := time.Now()
		err := fn()
		duration := time.Since(start)
		if err == nil {
			if attempt > 1 {
				c.logger.Info("交易所调用重试后成功",
					zap.String("operation", operation),
					zap.Int("attempts", attempt),
					zap.Duration("latency", duration),
				)
			}
			return nil
		}

		normalized := normalizeError(err)

		if errors.Is(normalized, ErrMaintenance) {
			c.logger.Warn("交易所维护中",
				zap.String("operation", operation),
				zap.Error(normalized),
			)
			return normalized
		}

		if !IsRetryable(err) || attempt >= c.cfg.Retry.MaxAttempts {
			c.logger.Error("交易所调用失败",
				zap.String("operation", operation),
				zap.Int("attempts", attempt),
				zap.Duration("latency", duration),
				zap.Error(normalized),
			)
			return normalized
		}

		wait := delay
		if wait > maxDelay {
			wait = maxDelay
		}

		c.logger.Warn("交易所调用失败，等待重试",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(normalized),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

func mapStatus(raw string, filled float64) OrderStatus {
	switch strings.ToLower(raw) {
	case "closed":
		return StatusFilled
	case "canceled", "cancelled":
		return StatusCancelled
	case "expired":
		return StatusExpired
	case "rejected":
		return StatusRejected
	case "open":
		if filled > 0 {
			return StatusPartiallyFilled
		}
		return StatusNew
	default:
		if filled > 0 {
			return StatusPartiallyFilled
		}
		return StatusNew
	}
}

var _ Gateway = (*Client)(nil)
