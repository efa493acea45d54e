package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/devansh0703/BinanceTradeBot/internal/engine"
	"github.com/devansh0703/BinanceTradeBot/internal/journal"
	"github.com/devansh0703/BinanceTradeBot/internal/order"
)

type monitorDeps struct {
	supervisor *engine.Supervisor
	journal    *journal.Service
	registry   *prometheus.Registry
	// gridSpacing 为网格意图未指定间距模式时的缺省值。
	gridSpacing string
}

// intentRequest 为提交意图的请求体，时间字段以秒为单位。
type intentRequest struct {
	ID       string  `json:"id"`
	Symbol   string  `json:"symbol"`
	Kind     string  `json:"kind"`
	Side     string  `json:"side"`
	Quantity float64 `json:"quantity"`

	LimitPrice float64 `json:"limit_price,omitempty"`
	StopPrice  float64 `json:"stop_price,omitempty"`

	TakeProfitPrice    float64 `json:"take_profit_price,omitempty"`
	StopLossPrice      float64 `json:"stop_loss_price,omitempty"`
	StopLossLimitPrice float64 `json:"stop_loss_limit_price,omitempty"`

	Slices          int     `json:"slices,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`

	LowerPrice float64 `json:"lower_price,omitempty"`
	UpperPrice float64 `json:"upper_price,omitempty"`
	Levels     int     `json:"levels,omitempty"`
	Spacing    string  `json:"spacing,omitempty"`

	TimeInForceSeconds float64 `json:"time_in_force_seconds,omitempty"`
}

func (r intentRequest) toIntent(defaultSpacing string) order.Intent {
	spacing := r.Spacing
	if spacing == "" {
		spacing = defaultSpacing
	}
	return order.Intent{
		ID:                 r.ID,
		Symbol:             r.Symbol,
		Kind:               order.Kind(r.Kind),
		Side:               order.Side(r.Side),
		Quantity:           r.Quantity,
		LimitPrice:         r.LimitPrice,
		StopPrice:          r.StopPrice,
		TakeProfitPrice:    r.TakeProfitPrice,
		StopLossPrice:      r.StopLossPrice,
		StopLossLimitPrice: r.StopLossLimitPrice,
		Slices:             r.Slices,
		Duration:           time.Duration(r.DurationSeconds * float64(time.Second)),
		LowerPrice:         r.LowerPrice,
		UpperPrice:         r.UpperPrice,
		Levels:             r.Levels,
		Spacing:            order.Spacing(spacing),
		TimeInForce:        time.Duration(r.TimeInForceSeconds * float64(time.Second)),
	}
}

func startMonitorServer(ctx context.Context, deps monitorDeps, port int, logger *zap.Logger) error {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.HandlerFor(deps.registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("/intents", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, deps.supervisor.Snapshots(), logger)
		case http.MethodPost:
			var req intentRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, fmt.Sprintf("解析请求失败: %v", err), http.StatusBadRequest)
				return
			}
			id, err := deps.supervisor.SubmitIntent(req.toIntent(deps.gridSpacing))
			if err != nil {
				status := http.StatusBadRequest
				if errors.Is(err, engine.ErrDuplicateIntent) {
					status = http.StatusConflict
				}
				http.Error(w, err.Error(), status)
				return
			}
			w.WriteHeader(http.StatusAccepted)
			writeJSON(w, map[string]string{"intent_id": id}, logger)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/intents/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/intents/")
		if r.Method == http.MethodPost && strings.HasSuffix(rest, "/cancel") {
			intentID := strings.TrimSuffix(rest, "/cancel")
			if err := deps.supervisor.CancelIntent(intentID); err != nil {
				http.Error(w, err.Error(), http.StatusNotFound)
				return
			}
			w.WriteHeader(http.StatusAccepted)
			return
		}
		if r.Method == http.MethodGet {
			snap, err := deps.supervisor.QueryIntent(rest)
			if err != nil {
				http.Error(w, err.Error(), http.StatusNotFound)
				return
			}
			writeJSON(w, snap, logger)
			return
		}
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	})

	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit := 200
		if qs := q.Get("limit"); qs != "" {
			if v, err := strconv.Atoi(qs); err == nil && v > 0 {
				if v > 1000 {
					v = 1000
				}
				limit = v
			}
		}

		eventType := journal.EventType("")
		if typ := strings.TrimSpace(q.Get("type")); typ != "" {
			eventType = journal.EventType(strings.ToLower(typ))
		}

		events, err := deps.journal.ListEvents(r.Context(), eventType, limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, events, logger)
	})

	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
			logger.Warn("关闭监控服务失败", zap.Error(err))
		}
	}()

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("监控服务异常", zap.Error(err))
		}
	}()

	logger.Info("监控接口已启动", zap.String("addr", addr))
	return nil
}

func writeJSON(w http.ResponseWriter, payload interface{}, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Warn("写入监控响应失败", zap.Error(err))
	}
}
