package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"commerce-backend/internal/models"

	"github.com/jmoiron/sqlx"
)

// Reserve creates a coupon usage in RESERVED state. It joins the caller's
// unit of work, so the reservation commits or rolls back together with the
// order that holds it. A coupon can only be reserved once per member; the
// unique constraint surfaces a second attempt as a validation error.
func (s *Store) Reserve(ctx context.Context, couponID, memberID, orderID int64) (*models.CouponUsage, error) {
	usage := &models.CouponUsage{
		CouponID: couponID,
		MemberID: memberID,
		OrderID:  orderID,
		State:    models.CouponStateReserved,
	}
	query := `
		INSERT INTO coupon_usages (coupon_id, member_id, order_id, state)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	err := sqlx.GetContext(ctx, s.q(ctx), usage, query,
		couponID, memberID, orderID, models.CouponStateReserved)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve coupon %d: %w", couponID, err)
	}
	return usage, nil
}

// MarkUsed transitions a reservation RESERVED -> USED. The WHERE clause is
// the optimistic version check: the write succeeds only while the row is
// still RESERVED. Marking an already USED reservation is an idempotent
// no-op; an already CANCELLED one is a conflict (terminal states are sinks).
func (s *Store) MarkUsed(ctx context.Context, reservationID int64) (string, error) {
	return s.transition(ctx, reservationID, models.CouponStateUsed)
}

// MarkCancelled transitions a reservation RESERVED -> CANCELLED, with the
// mirrored tie-break: cancelling twice is a no-op, cancelling a USED
// reservation is a conflict.
func (s *Store) MarkCancelled(ctx context.Context, reservationID int64) (string, error) {
	return s.transition(ctx, reservationID, models.CouponStateCancelled)
}

func (s *Store) transition(ctx context.Context, reservationID int64, to string) (string, error) {
	res, err := s.q(ctx).ExecContext(ctx,
		"UPDATE coupon_usages SET state = $1, updated_at = NOW() WHERE id = $2 AND state = $3",
		to, reservationID, models.CouponStateReserved)
	if err != nil {
		return "", fmt.Errorf("failed to transition reservation %d: %w", reservationID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", err
	}
	if n == 1 {
		return to, nil
	}

	// Lost the optimistic check. Look at what won.
	var current string
	err = sqlx.GetContext(ctx, s.q(ctx), &current,
		"SELECT state FROM coupon_usages WHERE id = $1", reservationID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("reservation %d: %w", reservationID, ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	if current == to {
		return current, nil // duplicate of the same transition
	}
	return current, fmt.Errorf("reservation %d is %s: %w", reservationID, current, ErrConflict)
}

// GetReservationByOrderID returns the coupon usage held by an order, or
// ErrNotFound when the order was placed without a coupon.
func (s *Store) GetReservationByOrderID(ctx context.Context, orderID int64) (*models.CouponUsage, error) {
	var usage models.CouponUsage
	err := sqlx.GetContext(ctx, s.q(ctx), &usage,
		"SELECT * FROM coupon_usages WHERE order_id = $1", orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("reservation for order %d: %w", orderID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &usage, nil
}
