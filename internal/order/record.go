package order

import (
	"math"
	"sync"
	"time"
)

// ChildStatus 表示子订单在交易所侧的状态。
type ChildStatus string

const (
	ChildOpen      ChildStatus = "open"
	ChildPartial   ChildStatus = "partially_filled"
	ChildFilled    ChildStatus = "filled"
	ChildCancelled ChildStatus = "cancelled"
	ChildRejected  ChildStatus = "rejected"
	ChildExpired   ChildStatus = "expired"
)

// Terminal 判断子订单状态是否为终态。
func (s ChildStatus) Terminal() bool {
	switch s {
	case ChildFilled, ChildCancelled, ChildRejected, ChildExpired:
		return true
	}
	return false
}

// Child 为实际提交到交易所的原语订单。
type Child struct {
	ID        string
	Side      Side
	Quantity  float64
	Price     float64
	FilledQty float64 // 累计成交量
	Status    ChildStatus
	Tag       string // 控制器内部标记，如 oco 腿、grid 层号
	CreatedAt time.Time
}

// LevelStatus 表示网格单层状态。
type LevelStatus string

const (
	LevelOpen      LevelStatus = "open"
	LevelFilled    LevelStatus = "filled"
	LevelReplacing LevelStatus = "replacing"
	// LevelRetired 表示补单价格越界后被停用的层，网格缺一层继续运行。
	LevelRetired LevelStatus = "retired"
)

// GridLevel 为网格的一层：价格、方向、状态与关联子订单。
type GridLevel struct {
	Index   int
	Price   float64
	Side    Side
	Status  LevelStatus
	OrderID string
}

// Record 为单个意图的可变执行状态，由执行监督器独占驱动；
// 读写锁仅用于并发快照读取，写入始终来自同一个控制器协程。
type Record struct {
	mu sync.RWMutex

	intent      Intent
	state       State
	children    map[string]*Child
	childOrder  []string
	filled      float64
	lastEval    time.Time
	history     []string
	annotations []string
	createdAt   time.Time
	updatedAt   time.Time
}

// NewRecord 为意图创建初始记录。
func NewRecord(intent Intent) *Record {
	now := time.Now().UTC()
	return &Record{
		intent:    intent,
		state:     StatePending,
		children:  make(map[string]*Child),
		createdAt: now,
		updatedAt: now,
	}
}

// Intent 返回意图副本。
func (r *Record) Intent() Intent {
	return r.intent
}

// State 返回当前状态。
func (r *Record) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Transition 执行一次状态迁移并记录原因。
func (r *Record) Transition(to State, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == to {
		return nil
	}
	if !CanTransition(r.state, to) {
		return &ErrInvalidTransition{From: r.state, To: to}
	}

	r.state = to
	if reason != "" {
		r.history = append(r.history, reason)
	}
	r.updatedAt = time.Now().UTC()
	return nil
}

// AddChild 登记一个新提交的子订单。
func (r *Record) AddChild(c Child) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c.Status == "" {
		c.Status = ChildOpen
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	cp := c
	r.children[c.ID] = &cp
	r.childOrder = append(r.childOrder, c.ID)
	r.updatedAt = time.Now().UTC()
}

// ApplyFill 按累计成交量更新子订单，返回本次新增的成交量。
// 事件携带的是累计值，重复投递同一事件不会重复计量。
// 非网格意图的总成交量不会超过意图总量（数量守恒）；
// 网格在震荡行情中反复收割，累计成交量可合法超过初始总量。
func (r *Record) ApplyFill(childID string, cumFilled float64, status ChildStatus) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	child, ok := r.children[childID]
	if !ok {
		return 0
	}

	if cumFilled > child.Quantity {
		cumFilled = child.Quantity
	}
	delta := cumFilled - child.FilledQty
	if delta < 0 {
		delta = 0
	}
	if r.intent.Kind != KindGrid {
		if remaining := r.intent.Quantity - r.filled; delta > remaining {
			delta = math.Max(0, remaining)
		}
	}

	child.FilledQty += delta
	if status != "" {
		child.Status = status
	}
	r.filled += delta
	r.updatedAt = time.Now().UTC()
	return delta
}

// SetChildStatus 更新子订单状态并记录原因。
func (r *Record) SetChildStatus(childID string, status ChildStatus, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	child, ok := r.children[childID]
	if !ok {
		return
	}
	child.Status = status
	if reason != "" {
		r.history = append(r.history, reason)
	}
	r.updatedAt = time.Now().UTC()
}

// Child 返回子订单副本。
func (r *Record) Child(id string) (Child, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	child, ok := r.children[id]
	if !ok {
		return Child{}, false
	}
	return *child, true
}

// Children 按提交顺序返回全部子订单副本。
func (r *Record) Children() []Child {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Child, 0, len(r.childOrder))
	for _, id := range r.childOrder {
		out = append(out, *r.children[id])
	}
	return out
}

// OpenChildren 返回所有未到终态的子订单。
func (r *Record) OpenChildren() []Child {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Child, 0, len(r.childOrder))
	for _, id := range r.childOrder {
		if !r.children[id].Status.Terminal() {
			out = append(out, *r.children[id])
		}
	}
	return out
}

// FilledQuantity 返回累计成交量。
func (r *Record) FilledQuantity() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.filled
}

// RemainingQuantity 返回剩余数量。
func (r *Record) RemainingQuantity() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return math.Max(0, r.intent.Quantity-r.filled)
}

// TouchEval 记录最近一次触发评估的行情时间戳。
func (r *Record) TouchEval(ts time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastEval = ts
}

// LastEval 返回最近一次评估时间。
func (r *Record) LastEval() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastEval
}

// Annotate 附加一条说明（如交易所级竞态）。
func (r *Record) Annotate(note string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.annotations = append(r.annotations, note)
	r.updatedAt = time.Now().UTC()
}

// Snapshot 为记录的只读快照。
type Snapshot struct {
	IntentID    string    `json:"intent_id"`
	Symbol      string    `json:"symbol"`
	Kind        Kind      `json:"kind"`
	Side        Side      `json:"side"`
	State       State     `json:"state"`
	Quantity    float64   `json:"quantity"`
	FilledQty   float64   `json:"filled_qty"`
	Remaining   float64   `json:"remaining_qty"`
	Children    []Child   `json:"children"`
	History     []string  `json:"history"`
	Annotations []string  `json:"annotations"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Snapshot 生成当前记录的只读快照。
func (r *Record) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	children := make([]Child, 0, len(r.childOrder))
	for _, id := range r.childOrder {
		children = append(children, *r.children[id])
	}
	history := make([]string, len(r.history))
	copy(history, r.history)
	annotations := make([]string, len(r.annotations))
	copy(annotations, r.annotations)

	return Snapshot{
		IntentID:    r.intent.ID,
		Symbol:      r.intent.Symbol,
		Kind:        r.intent.Kind,
		Side:        r.intent.Side,
		State:       r.state,
		Quantity:    r.intent.Quantity,
		FilledQty:   r.filled,
		Remaining:   math.Max(0, r.intent.Quantity-r.filled),
		Children:    children,
		History:     history,
		Annotations: annotations,
		CreatedAt:   r.createdAt,
		UpdatedAt:   r.updatedAt,
	}
}
