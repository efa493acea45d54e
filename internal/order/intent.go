package order

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// Kind 表示订单意图类型。
type Kind string

const (
	KindMarket    Kind = "market"
	KindLimit     Kind = "limit"
	KindStopLimit Kind = "stop_limit"
	KindOCO       Kind = "oco"
	KindTWAP      Kind = "twap"
	KindGrid      Kind = "grid"
)

// Side 表示下单方向。
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite 返回相反方向。
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Spacing 表示网格间距模式。
type Spacing string

const (
	SpacingArithmetic Spacing = "arithmetic"
	SpacingGeometric  Spacing = "geometric"
)

// Intent 为一次高层交易意图的不可变描述，由调用方创建后不再修改。
type Intent struct {
	ID       string
	Symbol   string
	Kind     Kind
	Side     Side
	Quantity float64

	// LimitPrice 用于 Limit/StopLimit；TWAP 留空时按市价切片。
	LimitPrice float64
	// StopPrice 为 StopLimit 的触发价。
	StopPrice float64

	// OCO 双腿参数：止盈限价单 + 止损条件单。
	TakeProfitPrice    float64
	StopLossPrice      float64
	StopLossLimitPrice float64

	// TWAP 参数。
	Slices   int
	Duration time.Duration

	// Grid 参数。
	LowerPrice float64
	UpperPrice float64
	Levels     int
	Spacing    Spacing

	// TimeInForce 为意图整体的存续时间，0 表示一直有效。
	TimeInForce time.Duration
}

// Validate 校验意图参数是否完整合法。
func (i Intent) Validate() error {
	var err error

	if i.ID == "" {
		err = multierr.Append(err, errors.New("intent.id 不能为空"))
	}
	if i.Symbol == "" {
		err = multierr.Append(err, errors.New("intent.symbol 不能为空"))
	}
	if i.Side != SideBuy && i.Side != SideSell {
		err = multierr.Append(err, fmt.Errorf("intent.side 非法: %q", i.Side))
	}
	if i.Quantity <= 0 {
		err = multierr.Append(err, errors.New("intent.quantity 必须大于0"))
	}
	if i.TimeInForce < 0 {
		err = multierr.Append(err, errors.New("intent.time_in_force 不能为负"))
	}

	switch i.Kind {
	case KindMarket:
	case KindLimit:
		if i.LimitPrice <= 0 {
			err = multierr.Append(err, errors.New("limit 意图需要 limit_price"))
		}
	case KindStopLimit:
		if i.StopPrice <= 0 {
			err = multierr.Append(err, errors.New("stop_limit 意图需要 stop_price"))
		}
		if i.LimitPrice <= 0 {
			err = multierr.Append(err, errors.New("stop_limit 意图需要 limit_price"))
		}
	case KindOCO:
		if i.TakeProfitPrice <= 0 {
			err = multierr.Append(err, errors.New("oco 意图需要 take_profit_price"))
		}
		if i.StopLossPrice <= 0 {
			err = multierr.Append(err, errors.New("oco 意图需要 stop_loss_price"))
		}
		if i.StopLossLimitPrice < 0 {
			err = multierr.Append(err, errors.New("oco.stop_loss_limit_price 不能为负"))
		}
	case KindTWAP:
		if i.Slices < 1 {
			err = multierr.Append(err, errors.New("twap 意图需要 slices >= 1"))
		}
		if i.Duration <= 0 {
			err = multierr.Append(err, errors.New("twap 意图需要正的 duration"))
		}
	case KindGrid:
		if i.Levels < 2 {
			err = multierr.Append(err, errors.New("grid 意图需要 levels >= 2"))
		}
		if i.LowerPrice <= 0 || i.UpperPrice <= i.LowerPrice {
			err = multierr.Append(err, errors.New("grid 意图需要 0 < lower_price < upper_price"))
		}
		if i.Spacing != "" && i.Spacing != SpacingArithmetic && i.Spacing != SpacingGeometric {
			err = multierr.Append(err, fmt.Errorf("grid.spacing 非法: %q", i.Spacing))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("intent.kind 非法: %q", i.Kind))
	}

	if err != nil {
		return fmt.Errorf("订单意图校验失败: %w", err)
	}
	return nil
}
