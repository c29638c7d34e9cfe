package models

import "time"

// Order represents a customer order
type Order struct {
	ID        int64     `db:"id" json:"id"`
	MemberID  int64     `db:"member_id" json:"member_id"`
	Amount    int64     `db:"amount" json:"amount"`
	CouponID  *int64    `db:"coupon_id" json:"coupon_id,omitempty"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Payment represents a payment attempt for an order
type Payment struct {
	ID        int64     `db:"id" json:"id"`
	OrderID   int64     `db:"order_id" json:"order_id"`
	Method    string    `db:"method" json:"method"`
	Amount    int64     `db:"amount" json:"amount"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CouponUsage tracks one member's reservation of a coupon. Reserved at order
// placement; the saga coordinator moves it to exactly one terminal state.
type CouponUsage struct {
	ID        int64     `db:"id" json:"id"`
	CouponID  int64     `db:"coupon_id" json:"coupon_id"`
	MemberID  int64     `db:"member_id" json:"member_id"`
	OrderID   int64     `db:"order_id" json:"order_id"`
	State     string    `db:"state" json:"state"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ProductScore is the aggregator's per-product accumulator. HistScore is the
// decayed historical component, IncrScore the current period's deltas. Rank
// is derived at materialization time, never authoritative.
type ProductScore struct {
	ProductID   int64     `db:"product_id" json:"product_id"`
	HistScore   float64   `db:"hist_score" json:"hist_score"`
	IncrScore   float64   `db:"incr_score" json:"incr_score"`
	LastDecayAt time.Time `db:"last_decay_at" json:"last_decay_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// RankedProduct is one row of a materialized leaderboard snapshot.
type RankedProduct struct {
	ProductID int64   `json:"product_id"`
	Score     float64 `json:"score"`
	Rank      int     `json:"rank"`
}

// Order statuses
const (
	OrderStatusCreated = "CREATED"
	OrderStatusPaid    = "PAID"
	OrderStatusFailed  = "FAILED"
)

// Payment statuses
const (
	PaymentStatusRequested = "REQUESTED"
	PaymentStatusCompleted = "COMPLETED"
	PaymentStatusFailed    = "FAILED"
)

// Coupon usage states. RESERVED is the only non-terminal state; the first
// terminal transition wins and is never overwritten.
const (
	CouponStateReserved  = "RESERVED"
	CouponStateUsed      = "USED"
	CouponStateCancelled = "CANCELLED"
)

// OutboxRecord is one committed envelope waiting to be forwarded to the
// cross-service channel.
type OutboxRecord struct {
	ID          int64     `db:"id"`
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	AggregateID string    `db:"aggregate_id"`
	Topic       string    `db:"topic"`
	Payload     []byte    `db:"payload"`
	OccurredAt  time.Time `db:"occurred_at"`
	Published   bool      `db:"published"`
	CreatedAt   time.Time `db:"created_at"`
}
