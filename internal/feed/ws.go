package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/devansh0703/BinanceTradeBot/internal/config"
)

// Stream 通过 WebSocket 订阅 Binance 合约归集成交流，
// 将解析后的行情发布到 Hub。断线后按指数退避自动重连。
type Stream struct {
	cfg     config.FeedConfig
	hub     *Hub
	symbols []string
	logger  *zap.Logger
}

// NewStream 创建行情流。
func NewStream(cfg config.FeedConfig, hub *Hub, symbols []string, logger *zap.Logger) *Stream {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stream{
		cfg:     cfg,
		hub:     hub,
		symbols: symbols,
		logger:  logger,
	}
}

type aggTradeMessage struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	TradeTime int64  `json:"T"`
}

// streamSymbol 把统一格式交易对（如 BTC/USDT:USDT）转换为
// 行情流使用的原生符号（btcusdt）。
func streamSymbol(symbol string) string {
	if i := strings.Index(symbol, ":"); i >= 0 {
		symbol = symbol[:i]
	}
	symbol = strings.ReplaceAll(symbol, "/", "")
	return strings.ToLower(symbol)
}

// Run 维持 WebSocket 连接直到上下文取消。
func (s *Stream) Run(ctx context.Context) error {
	if len(s.symbols) == 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	delay := s.cfg.ReconnectDelay
	if delay <= 0 {
		delay = time.Second
	}
	maxDelay := s.cfg.MaxReconnect
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := s.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.logger.Warn("行情连接断开，准备重连",
			zap.Duration("wait", delay),
			zap.Error(err),
		)

		timer := time.NewTimer(delay)
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

func (s *Stream) runOnce(ctx context.Context) error {
	streams := make([]string, 0, len(s.symbols))
	// 原生符号 -> 统一格式，回放行情时还原为订阅方使用的交易对。
	canonical := make(map[string]string, len(s.symbols))
	for _, sym := range s.symbols {
		raw := streamSymbol(sym)
		streams = append(streams, fmt.Sprintf("%s@aggTrade", raw))
		canonical[strings.ToUpper(raw)] = sym
	}
	url := fmt.Sprintf("%s/%s", strings.TrimRight(s.cfg.WSBaseURL, "/"), strings.Join(streams, "/"))

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("连接行情流失败: %w", err)
	}
	defer conn.Close()

	s.logger.Info("行情流已连接", zap.String("url", url), zap.Strings("symbols", s.symbols))

	// 上下文取消时关闭连接，解除读阻塞。
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("读取行情消息失败: %w", err)
		}

		var msg aggTradeMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			s.logger.Warn("解析行情消息失败", zap.Error(err))
			continue
		}
		if msg.EventType != "aggTrade" || msg.Symbol == "" {
			continue
		}

		price, err := strconv.ParseFloat(msg.Price, 64)
		if err != nil || price <= 0 {
			continue
		}

		symbol := msg.Symbol
		if mapped, ok := canonical[symbol]; ok {
			symbol = mapped
		}

		s.hub.Publish(PriceTick{
			Symbol:    symbol,
			Price:     price,
			Timestamp: time.UnixMilli(msg.TradeTime).UTC(),
		})
	}
}
