package feed

import (
	"sync"

	"go.uber.org/zap"
)

// Hub 为进程内行情广播：同一交易对的行情按接收顺序投递给全部订阅者。
// 订阅者之间互不影响；某个订阅者消费过慢时丢弃其最新行情并计数，
// 不会阻塞其它订阅者，也不会打乱剩余行情的顺序。
type Hub struct {
	logger *zap.Logger
	buffer int

	mu      sync.RWMutex
	subs    map[string]map[int]chan PriceTick
	nextID  int
	dropped map[string]int64
}

// NewHub 创建行情广播器。
func NewHub(buffer int, logger *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger:  logger,
		buffer:  buffer,
		subs:    make(map[string]map[int]chan PriceTick),
		dropped: make(map[string]int64),
	}
}

// Subscribe 订阅指定交易对的行情。
func (h *Hub) Subscribe(symbol string) (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan PriceTick, h.buffer)
	if h.subs[symbol] == nil {
		h.subs[symbol] = make(map[int]chan PriceTick)
	}
	id := h.nextID
	h.nextID++
	h.subs[symbol][id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if set, ok := h.subs[symbol]; ok {
			if c, ok := set[id]; ok {
				delete(set, id)
				close(c)
			}
			if len(set) == 0 {
				delete(h.subs, symbol)
			}
		}
	}

	return &Subscription{C: ch, cancel: cancel}, nil
}

// Publish 向该交易对的全部订阅者广播一笔行情。
func (h *Hub) Publish(tick PriceTick) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.subs[tick.Symbol] {
		select {
		case ch <- tick:
		default:
			h.dropped[tick.Symbol]++
			if h.dropped[tick.Symbol]%1000 == 1 {
				h.logger.Warn("订阅者消费过慢，丢弃行情",
					zap.String("symbol", tick.Symbol),
					zap.Int64("dropped", h.dropped[tick.Symbol]),
				)
			}
		}
	}
}

// SubscriberCount 返回某交易对当前订阅数，主要用于监控与测试。
func (h *Hub) SubscriberCount(symbol string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[symbol])
}

var _ Feed = (*Hub)(nil)
