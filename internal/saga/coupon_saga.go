package saga

import (
	"context"
	"errors"
	"fmt"

	"commerce-backend/internal/event"
	"commerce-backend/internal/models"
	"commerce-backend/internal/store"
	"commerce-backend/internal/util"

	"go.uber.org/zap"
)

// CouponStore is the reservation side of the coupon collaborator. Each mark
// operation returns the post-transition state; losing to the opposite
// terminal state surfaces as store.ErrConflict.
type CouponStore interface {
	Reserve(ctx context.Context, couponID, memberID, orderID int64) (*models.CouponUsage, error)
	MarkUsed(ctx context.Context, reservationID int64) (string, error)
	MarkCancelled(ctx context.Context, reservationID int64) (string, error)
	GetReservationByOrderID(ctx context.Context, orderID int64) (*models.CouponUsage, error)
}

// OrderStore is the slice of persistence the coordinator needs to settle an
// order's final status.
type OrderStore interface {
	UpdateOrderStatus(ctx context.Context, orderID int64, from, to string) (bool, error)
}

// Coordinator reacts to payment outcomes and finalizes or rolls back the
// coupon reservation made at order placement. It is the only actor that
// moves a reservation out of RESERVED. The first terminal transition wins;
// the losing side of the race is a conflict, logged and acknowledged, never
// retried.
type Coordinator struct {
	coupons CouponStore
	orders  OrderStore
	logger  *zap.Logger
}

func NewCoordinator(coupons CouponStore, orders OrderStore) *Coordinator {
	return &Coordinator{
		coupons: coupons,
		orders:  orders,
		logger:  util.GetLogger(),
	}
}

// ReserveForOrder reserves a coupon inside the order placement unit of work,
// so the reservation commits or rolls back with the order itself.
func (c *Coordinator) ReserveForOrder(ctx context.Context, couponID, memberID, orderID int64) (*models.CouponUsage, error) {
	usage, err := c.coupons.Reserve(ctx, couponID, memberID, orderID)
	if err != nil {
		return nil, err
	}
	c.logger.Info("Coupon reserved",
		zap.Int64("coupon_id", couponID),
		zap.Int64("order_id", orderID),
		zap.Int64("reservation_id", usage.ID))
	return usage, nil
}

// OnPaymentCompleted settles the order as PAID and the reservation as USED.
// Delivered post-commit and cross-service; it runs under the dedup guard and
// must be re-entrant. A reservation already CANCELLED (a failure event won
// the race) is a conflict: the coupon stays cancelled and the event is
// acknowledged.
func (c *Coordinator) OnPaymentCompleted(ctx context.Context, env event.Envelope) error {
	var p event.PaymentCompletedPayload
	if err := env.DecodePayload(&p); err != nil {
		return err
	}

	moved, err := c.orders.UpdateOrderStatus(ctx, p.OrderID, models.OrderStatusCreated, models.OrderStatusPaid)
	if err != nil {
		return fmt.Errorf("failed to mark order %d paid: %w", p.OrderID, err)
	}
	if !moved {
		c.logger.Info("Order already settled", zap.Int64("order_id", p.OrderID))
	} else {
		util.OrdersPaidTotal.Inc()
	}

	return c.finalizeReservation(ctx, p.OrderID, models.CouponStateUsed)
}

// OnPaymentFailed cancels the reservation. Registered pre-commit on the
// local bus, it runs in the same transaction that records the payment
// failure, so the coupon can never stay consumed for a payment that did not
// happen. The same method serves the cross-service consumer, where the
// redelivery policy makes the retried cancellation safe because cancelling
// twice is a no-op.
func (c *Coordinator) OnPaymentFailed(ctx context.Context, env event.Envelope) error {
	var p event.PaymentFailedPayload
	if err := env.DecodePayload(&p); err != nil {
		return err
	}

	c.logger.Warn("Payment failed, compensating coupon reservation",
		zap.Int64("order_id", p.OrderID),
		zap.Int64("payment_id", p.PaymentID),
		zap.String("reason", p.Reason))

	return c.finalizeReservation(ctx, p.OrderID, models.CouponStateCancelled)
}

func (c *Coordinator) finalizeReservation(ctx context.Context, orderID int64, target string) error {
	usage, err := c.coupons.GetReservationByOrderID(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil // order placed without a coupon
	}
	if err != nil {
		return fmt.Errorf("failed to load reservation for order %d: %w", orderID, err)
	}

	var state string
	switch target {
	case models.CouponStateUsed:
		state, err = c.coupons.MarkUsed(ctx, usage.ID)
	case models.CouponStateCancelled:
		state, err = c.coupons.MarkCancelled(ctx, usage.ID)
	default:
		return fmt.Errorf("invalid target state %s", target)
	}

	if errors.Is(err, store.ErrConflict) {
		// The opposite terminal transition won. Terminal states are sinks,
		// so this is resolved by the tie-break policy, not escalated.
		c.logger.Warn("Reservation already terminal, keeping first transition",
			zap.Int64("order_id", orderID),
			zap.Int64("reservation_id", usage.ID),
			zap.String("requested", target),
			zap.String("state", state))
		util.CouponConflictsTotal.Inc()
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to mark reservation %d %s: %w", usage.ID, target, err)
	}

	switch state {
	case models.CouponStateUsed:
		util.CouponsUsedTotal.Inc()
	case models.CouponStateCancelled:
		util.CouponsCancelledTotal.Inc()
	}
	c.logger.Info("Coupon reservation finalized",
		zap.Int64("reservation_id", usage.ID),
		zap.String("state", state))
	return nil
}
