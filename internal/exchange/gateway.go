package exchange

import (
	"context"

	"golang.org/x/time/rate"
)

// Gateway 为执行引擎消费的交易所网关抽象：
// 下单、撤单、查询状态，以及按订单号键控的回报事件流。
type Gateway interface {
	Submit(ctx context.Context, spec OrderSpec) (Ack, error)
	Cancel(ctx context.Context, symbol, orderID string) (OrderStatus, error)
	QueryStatus(ctx context.Context, symbol, orderID string) (OrderStatus, error)
	Events() <-chan OrderEvent
}

// RateLimited 在网关外层施加全局请求预算，所有控制器共享；
// 请求排队等待令牌而不是绕过预算，取消信号在等待中即时生效。
type RateLimited struct {
	inner   Gateway
	limiter *rate.Limiter
}

// NewRateLimited 包装网关并设置每秒请求数与突发额度。
func NewRateLimited(inner Gateway, requestsPerSecond float64, burst int) *RateLimited {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 8
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimited{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

// Submit 在获得令牌后提交订单。
func (g *RateLimited) Submit(ctx context.Context, spec OrderSpec) (Ack, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return Ack{}, err
	}
	return g.inner.Submit(ctx, spec)
}

// Cancel 在获得令牌后撤单。
func (g *RateLimited) Cancel(ctx context.Context, symbol, orderID string) (OrderStatus, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return g.inner.Cancel(ctx, symbol, orderID)
}

// QueryStatus 在获得令牌后查询订单状态。
func (g *RateLimited) QueryStatus(ctx context.Context, symbol, orderID string) (OrderStatus, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return g.inner.QueryStatus(ctx, symbol, orderID)
}

// Events 透传底层回报流。
func (g *RateLimited) Events() <-chan OrderEvent {
	return g.inner.Events()
}
