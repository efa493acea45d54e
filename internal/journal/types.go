package journal

import (
	"time"

	"github.com/devansh0703/BinanceTradeBot/internal/order"
)

// EventType 表示日志事件类型。
type EventType string

const (
	EventIntentSubmitted EventType = "intent_submitted"
	EventStateChanged    EventType = "state_changed"
	EventChildSubmitted  EventType = "child_submitted"
	EventChildFill       EventType = "child_fill"
	EventChildCancelled  EventType = "child_cancelled"
	EventError           EventType = "error"
)

// Event 封装单条意图执行日志。
type Event struct {
	Type      EventType   `json:"type"`
	IntentID  string      `json:"intent_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// StateChangePayload 记录状态迁移。
type StateChangePayload struct {
	From   order.State `json:"from"`
	To     order.State `json:"to"`
	Reason string      `json:"reason"`
}

// ChildPayload 记录子订单提交与回报。
type ChildPayload struct {
	OrderID   string  `json:"order_id"`
	Side      string  `json:"side"`
	Quantity  float64 `json:"quantity"`
	Price     float64 `json:"price"`
	FilledQty float64 `json:"filled_qty"`
	Status    string  `json:"status"`
}

// ErrorPayload 记录执行错误。
type ErrorPayload struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
}
