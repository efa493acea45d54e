package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 汇总执行引擎的运行指标。
type Metrics struct {
	ActiveIntents      prometheus.Gauge
	IntentsSubmitted   *prometheus.CounterVec
	IntentsCompleted   *prometheus.CounterVec
	ChildSubmissions   *prometheus.CounterVec
	ChildFills         prometheus.Counter
	RiskDenials        prometheus.Counter
	TriggerFires       prometheus.Counter
	GridReplenishments prometheus.Counter
	OcoRaces           prometheus.Counter
}

// New 注册并返回指标集合。
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ActiveIntents: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "trade_bot",
			Name:      "active_intents",
			Help:      "当前活跃的订单意图数量。",
		}),
		IntentsSubmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trade_bot",
			Name:      "intents_submitted_total",
			Help:      "按类型统计的已提交意图总数。",
		}, []string{"kind", "side"}),
		IntentsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trade_bot",
			Name:      "intents_completed_total",
			Help:      "按终态统计的已完成意图总数。",
		}, []string{"state"}),
		ChildSubmissions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trade_bot",
			Name:      "child_orders_total",
			Help:      "按结果统计的子订单提交总数。",
		}, []string{"result"}),
		ChildFills: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "trade_bot",
			Name:      "child_fills_total",
			Help:      "子订单成交回报总数。",
		}),
		RiskDenials: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "trade_bot",
			Name:      "risk_denials_total",
			Help:      "风控拒绝总数。",
		}),
		TriggerFires: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "trade_bot",
			Name:      "trigger_fires_total",
			Help:      "条件单触发总数。",
		}),
		GridReplenishments: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "trade_bot",
			Name:      "grid_replenishments_total",
			Help:      "网格补单总数。",
		}),
		OcoRaces: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "trade_bot",
			Name:      "oco_double_fill_total",
			Help:      "OCO 双腿同时成交的交易所级竞态计数。",
		}),
	}
}
