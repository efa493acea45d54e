package config

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// Config 聚合了交易引擎运行所需的全部配置项。
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Exchange ExchangeConfig `mapstructure:"exchange"`
	Feed     FeedConfig     `mapstructure:"feed"`
	Risk     RiskConfig     `mapstructure:"risk"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// ExchangeConfig 描述交易所连接信息。
type ExchangeConfig struct {
	Name       string      `mapstructure:"name"`
	APIKey     string      `mapstructure:"api_key"`
	APISecret  string      `mapstructure:"api_secret"`
	UseSandbox bool        `mapstructure:"use_sandbox"`
	Retry      RetryConfig `mapstructure:"retry"`
	// PollInterval 控制订单状态轮询频率，成交/撤单事件由轮询合成。
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// RetryConfig 统一控制幂等查询的重试机制。
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// FeedConfig 描述行情流连接参数。
type FeedConfig struct {
	WSBaseURL string `mapstructure:"ws_base_url"`
	// Symbols 为启动时订阅行情的交易对列表。
	Symbols        []string      `mapstructure:"symbols"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	MaxReconnect   time.Duration `mapstructure:"max_reconnect_delay"`
	// SubscriberBuffer 为每个订阅者的通道缓冲，防止慢消费者阻塞广播。
	SubscriberBuffer int `mapstructure:"subscriber_buffer"`
}

// RiskConfig 管理子订单提交前的风控边界。
type RiskConfig struct {
	MaxPositionSize  float64 `mapstructure:"max_position_size"`
	MaxOrderNotional float64 `mapstructure:"max_order_notional"`
	MinPrice         float64 `mapstructure:"min_price"`
	MaxPrice         float64 `mapstructure:"max_price"`
	MinQuantity      float64 `mapstructure:"min_quantity"`
}

// EngineConfig 控制执行引擎行为。
type EngineConfig struct {
	// RequestsPerSecond/Burst 为所有控制器共享的网关请求预算。
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
	// GridSpacing 为网格间距模式: arithmetic | geometric。
	GridSpacing string `mapstructure:"grid_spacing"`
	// EventBuffer 为每个订单记录的事件通道缓冲。
	EventBuffer int `mapstructure:"event_buffer"`
}

// DatabaseConfig 管理数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// MonitorConfig 控制监控接口。
type MonitorConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.Exchange.Name == "" {
		err = multierr.Append(err, errors.New("exchange.name 不能为空"))
	}
	if c.Exchange.Retry.MaxAttempts <= 0 {
		err = multierr.Append(err, errors.New("exchange.retry.max_attempts 必须大于0"))
	}
	if c.Exchange.Retry.MinDelay <= 0 || c.Exchange.Retry.MaxDelay <= 0 {
		err = multierr.Append(err, errors.New("exchange.retry.delay 必须为正"))
	}
	if c.Exchange.Retry.MinDelay > c.Exchange.Retry.MaxDelay {
		err = multierr.Append(err, errors.New("exchange.retry.min_delay 不能大于 max_delay"))
	}
	if c.Exchange.PollInterval <= 0 {
		err = multierr.Append(err, errors.New("exchange.poll_interval 必须大于0"))
	}
	if c.Feed.WSBaseURL == "" {
		err = multierr.Append(err, errors.New("feed.ws_base_url 不能为空"))
	}
	if len(c.Feed.Symbols) == 0 {
		err = multierr.Append(err, errors.New("feed.symbols 至少包含一个交易对"))
	}
	if c.Feed.ReconnectDelay <= 0 || c.Feed.MaxReconnect <= 0 {
		err = multierr.Append(err, errors.New("feed.reconnect_delay 必须为正"))
	}
	if c.Feed.ReconnectDelay > c.Feed.MaxReconnect {
		err = multierr.Append(err, errors.New("feed.reconnect_delay 不能大于 max_reconnect_delay"))
	}
	if c.Feed.SubscriberBuffer <= 0 {
		err = multierr.Append(err, errors.New("feed.subscriber_buffer 必须大于0"))
	}
	if c.Risk.MaxPositionSize <= 0 {
		err = multierr.Append(err, errors.New("risk.max_position_size 必须大于0"))
	}
	if c.Risk.MaxOrderNotional <= 0 {
		err = multierr.Append(err, errors.New("risk.max_order_notional 必须大于0"))
	}
	if c.Risk.MinPrice < 0 {
		err = multierr.Append(err, errors.New("risk.min_price 不能为负"))
	}
	if c.Risk.MaxPrice <= c.Risk.MinPrice {
		err = multierr.Append(err, errors.New("risk.max_price 必须大于 min_price"))
	}
	if c.Risk.MinQuantity < 0 {
		err = multierr.Append(err, errors.New("risk.min_quantity 不能为负"))
	}
	if c.Engine.RequestsPerSecond <= 0 {
		err = multierr.Append(err, errors.New("engine.requests_per_second 必须大于0"))
	}
	if c.Engine.Burst <= 0 {
		err = multierr.Append(err, errors.New("engine.burst 必须大于0"))
	}
	if c.Engine.GridSpacing != "arithmetic" && c.Engine.GridSpacing != "geometric" {
		err = multierr.Append(err, errors.New("engine.grid_spacing 必须为 arithmetic 或 geometric"))
	}
	if c.Engine.EventBuffer <= 0 {
		err = multierr.Append(err, errors.New("engine.event_buffer 必须大于0"))
	}
	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}
	if c.Monitor.Enabled && (c.Monitor.Port <= 0 || c.Monitor.Port > 65535) {
		err = multierr.Append(err, errors.New("monitor.port 必须位于(0,65535]"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}
