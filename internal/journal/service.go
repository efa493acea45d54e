package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/devansh0703/BinanceTradeBot/internal/order"
	"github.com/devansh0703/BinanceTradeBot/internal/store"
)

// Service 负责持久化意图执行日志与记录快照。
// 每次提交、成交、状态迁移与错误都会落盘；任何终态都不会静默丢失原因。
type Service struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewService 初始化日志服务，创建所需表结构。
func NewService(store *store.Store, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("journal: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		db:     store.DB(),
		logger: logger,
	}

	if err := s.initSchema(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Service) initSchema() error {
	stmt := `
CREATE TABLE IF NOT EXISTS intent_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	intent_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_intent_events_intent ON intent_events(intent_id);
CREATE INDEX IF NOT EXISTS idx_intent_events_type ON intent_events(event_type);
CREATE TABLE IF NOT EXISTS intent_snapshots (
	intent_id TEXT PRIMARY KEY,
	snapshot TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`
	if _, err := s.db.Exec(stmt); err != nil {
		return fmt.Errorf("journal: 初始化表失败: %w", err)
	}
	return nil
}

// Record 写入单条事件。
func (s *Service) Record(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("journal: 序列化事件失败: %w", err)
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO intent_events (intent_id, event_type, payload, created_at) VALUES (?, ?, ?, ?)`,
		event.IntentID, string(event.Type), string(payload), event.Timestamp.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("journal: 写入事件失败: %w", err)
	}

	return nil
}

// RecordIntent 记录意图提交。
func (s *Service) RecordIntent(ctx context.Context, intent order.Intent) {
	s.recordOrWarn(ctx, Event{
		Type:     EventIntentSubmitted,
		IntentID: intent.ID,
		Payload:  intent,
	})
}

// RecordStateChange 记录状态迁移。
func (s *Service) RecordStateChange(ctx context.Context, intentID string, from, to order.State, reason string) {
	s.recordOrWarn(ctx, Event{
		Type:     EventStateChanged,
		IntentID: intentID,
		Payload:  StateChangePayload{From: from, To: to, Reason: reason},
	})
}

// RecordChild 记录子订单提交。
func (s *Service) RecordChild(ctx context.Context, intentID string, child order.Child) {
	s.recordOrWarn(ctx, Event{
		Type:     EventChildSubmitted,
		IntentID: intentID,
		Payload: ChildPayload{
			OrderID:  child.ID,
			Side:     string(child.Side),
			Quantity: child.Quantity,
			Price:    child.Price,
			Status:   string(child.Status),
		},
	})
}

// RecordFill 记录成交回报。
func (s *Service) RecordFill(ctx context.Context, intentID, orderID string, filledQty float64, status order.ChildStatus) {
	s.recordOrWarn(ctx, Event{
		Type:     EventChildFill,
		IntentID: intentID,
		Payload: ChildPayload{
			OrderID:   orderID,
			FilledQty: filledQty,
			Status:    string(status),
		},
	})
}

// RecordCancel 记录撤单回报。
func (s *Service) RecordCancel(ctx context.Context, intentID, orderID string, status order.ChildStatus) {
	s.recordOrWarn(ctx, Event{
		Type:     EventChildCancelled,
		IntentID: intentID,
		Payload: ChildPayload{
			OrderID: orderID,
			Status:  string(status),
		},
	})
}

// RecordError 记录执行错误。
func (s *Service) RecordError(ctx context.Context, intentID, stage string, err error) {
	if err == nil {
		return
	}
	s.recordOrWarn(ctx, Event{
		Type:     EventError,
		IntentID: intentID,
		Payload:  ErrorPayload{Stage: stage, Message: err.Error()},
	})
}

// SaveSnapshot 覆盖式保存记录快照，用作跨重启的可恢复日志。
func (s *Service) SaveSnapshot(ctx context.Context, snap order.Snapshot) {
	payload, err := json.Marshal(snap)
	if err != nil {
		s.logger.Warn("序列化快照失败", zap.String("intent_id", snap.IntentID), zap.Error(err))
		return
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO intent_snapshots (intent_id, snapshot, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(intent_id) DO UPDATE SET snapshot=excluded.snapshot, updated_at=excluded.updated_at`,
		snap.IntentID, string(payload), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		s.logger.Warn("保存快照失败", zap.String("intent_id", snap.IntentID), zap.Error(err))
	}
}

// ListEvents 按时间倒序返回事件，可按类型过滤。
func (s *Service) ListEvents(ctx context.Context, eventType EventType, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 200
	}

	query := `SELECT intent_id, event_type, payload, created_at FROM intent_events`
	args := make([]interface{}, 0, 2)
	if eventType != "" {
		query += ` WHERE event_type = ?`
		args = append(args, string(eventType))
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("journal: 查询事件失败: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0, limit)
	for rows.Next() {
		var (
			intentID  string
			eventKind string
			payload   string
			createdAt string
		)
		if err := rows.Scan(&intentID, &eventKind, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("journal: 读取事件失败: %w", err)
		}

		var decoded interface{}
		if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
			decoded = payload
		}

		ts, _ := time.Parse(time.RFC3339, createdAt)
		events = append(events, Event{
			Type:      EventType(eventKind),
			IntentID:  intentID,
			Timestamp: ts,
			Payload:   decoded,
		})
	}

	return events, rows.Err()
}

func (s *Service) recordOrWarn(ctx context.Context, event Event) {
	if err := s.Record(ctx, event); err != nil {
		s.logger.Warn("写入执行日志失败",
			zap.String("intent_id", event.IntentID),
			zap.String("type", string(event.Type)),
			zap.Error(err),
		)
	}
}
