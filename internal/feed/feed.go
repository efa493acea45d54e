package feed

import "time"

// PriceTick 为一笔行情：交易对、最新价与时间戳。
// 不做持久化，观察者只保留各自的最近值。
type PriceTick struct {
	Symbol    string
	Price     float64
	Timestamp time.Time
}

// Feed 为价格流抽象：订阅得到按到达顺序投递的行情序列，
// 退订用于观察者清理。
type Feed interface {
	Subscribe(symbol string) (*Subscription, error)
}

// Subscription 为单个观察者的行情订阅。
type Subscription struct {
	C      <-chan PriceTick
	cancel func()
}

// Close 退订并释放资源，可重复调用。
func (s *Subscription) Close() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}
