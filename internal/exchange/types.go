package exchange

import "time"

// OrderType 表示原语订单类型。
type OrderType string

const (
	TypeMarket    OrderType = "market"
	TypeLimit     OrderType = "limit"
	TypeStopLimit OrderType = "stop_limit"
)

// OrderStatus 表示交易所侧订单状态。
type OrderStatus string

const (
	StatusNew             OrderStatus = "new"
	StatusPartiallyFilled OrderStatus = "partially_filled"
	StatusFilled          OrderStatus = "filled"
	StatusCancelled       OrderStatus = "cancelled"
	StatusRejected        OrderStatus = "rejected"
	StatusExpired         OrderStatus = "expired"
)

// Terminal 判断订单状态是否为终态。
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// OrderSpec 描述一笔待提交的原语订单。
type OrderSpec struct {
	Symbol      string
	Side        string // buy | sell
	Type        OrderType
	Quantity    float64
	Price       float64 // limit/stop_limit 的限价
	StopPrice   float64 // stop_limit 的触发价
	TimeInForce string  // GTC/IOC 等，空值交由交易所默认
	ClientID    string  // 幂等用客户端订单号
}

// Ack 为提交订单后的回执。
type Ack struct {
	OrderID string
	Status  OrderStatus
}

// EventType 表示回报事件类型。
type EventType string

const (
	EventFill   EventType = "fill"
	EventCancel EventType = "cancel"
	EventReject EventType = "reject"
)

// OrderEvent 为按订单号键控的成交/撤单/拒单回报。
// FilledQty 为累计成交量，重复投递同一事件不会造成重复计量。
type OrderEvent struct {
	OrderID   string
	Type      EventType
	Status    OrderStatus
	FilledQty float64
	AvgPrice  float64
	Code      string // 交易所错误码，原样透出
	Reason    string
	Timestamp time.Time
}
