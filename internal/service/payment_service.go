package service

import (
	"context"
	"fmt"
	"strconv"

	"commerce-backend/internal/event"
	"commerce-backend/internal/eventbus"
	"commerce-backend/internal/models"
	"commerce-backend/internal/store"
	"commerce-backend/internal/util"

	"go.uber.org/zap"
)

// PaymentService records payment outcomes reported by the gateway and
// publishes the matching facts. The completion effect on the order and the
// coupon flows through events, not through direct calls.
type PaymentService struct {
	store  *store.Store
	bus    *eventbus.Bus
	logger *zap.Logger
}

func NewPaymentService(store *store.Store, bus *eventbus.Bus) *PaymentService {
	return &PaymentService{
		store:  store,
		bus:    bus,
		logger: util.GetLogger(),
	}
}

// RequestPayment opens a payment attempt for an order.
func (ps *PaymentService) RequestPayment(ctx context.Context, orderID int64, method string) (*models.Payment, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.RequestPayment")
	defer span.End()

	order, err := ps.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderStatusCreated {
		return nil, fmt.Errorf("%w: order %d is %s", ErrValidation, orderID, order.Status)
	}

	payment := &models.Payment{
		OrderID: orderID,
		Method:  method,
		Amount:  order.Amount,
		Status:  models.PaymentStatusRequested,
	}
	if err := ps.store.CreatePayment(ctx, payment); err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}
	return payment, nil
}

// CompletePayment records a successful outcome and publishes
// PaymentCompleted. The order's PAID transition and the coupon's USED
// transition happen downstream, post-commit, under the dedup guard.
func (ps *PaymentService) CompletePayment(ctx context.Context, paymentID int64) error {
	ctx, span := util.StartSpan(ctx, "PaymentService.CompletePayment")
	defer span.End()

	return ps.bus.WithinTx(ctx, func(txCtx context.Context) error {
		payment, err := ps.store.GetPaymentByID(txCtx, paymentID)
		if err != nil {
			return err
		}
		if payment.Status == models.PaymentStatusCompleted {
			return nil // duplicate gateway callback
		}

		moved, err := ps.store.UpdatePaymentStatus(txCtx, paymentID,
			models.PaymentStatusRequested, models.PaymentStatusCompleted)
		if err != nil {
			return fmt.Errorf("failed to update payment status: %w", err)
		}
		if !moved {
			return fmt.Errorf("%w: payment %d is %s", ErrValidation, paymentID, payment.Status)
		}

		util.PaymentsCompletedTotal.Inc()
		ps.logger.Info("Payment completed",
			zap.Int64("payment_id", paymentID),
			zap.Int64("order_id", payment.OrderID))

		env, err := event.New(event.TypePaymentCompleted, strconv.FormatInt(payment.OrderID, 10),
			event.PaymentCompletedPayload{
				PaymentID: payment.ID,
				OrderID:   payment.OrderID,
				Amount:    payment.Amount,
			})
		if err != nil {
			return err
		}
		return ps.bus.Publish(txCtx, env)
	})
}

// FailPayment records a failed outcome, fails the order, and publishes
// PaymentFailed. The saga's pre-commit listener cancels the coupon
// reservation inside this same transaction, so the failure record and the
// compensation can never partially apply.
func (ps *PaymentService) FailPayment(ctx context.Context, paymentID int64, reason string) error {
	ctx, span := util.StartSpan(ctx, "PaymentService.FailPayment")
	defer span.End()

	return ps.bus.WithinTx(ctx, func(txCtx context.Context) error {
		payment, err := ps.store.GetPaymentByID(txCtx, paymentID)
		if err != nil {
			return err
		}
		if payment.Status == models.PaymentStatusFailed {
			return nil // duplicate gateway callback
		}

		moved, err := ps.store.UpdatePaymentStatus(txCtx, paymentID,
			models.PaymentStatusRequested, models.PaymentStatusFailed)
		if err != nil {
			return fmt.Errorf("failed to update payment status: %w", err)
		}
		if !moved {
			return fmt.Errorf("%w: payment %d is %s", ErrValidation, paymentID, payment.Status)
		}

		if _, err := ps.store.UpdateOrderStatus(txCtx, payment.OrderID,
			models.OrderStatusCreated, models.OrderStatusFailed); err != nil {
			return fmt.Errorf("failed to fail order %d: %w", payment.OrderID, err)
		}

		util.PaymentsFailedTotal.Inc()
		ps.logger.Warn("Payment failed",
			zap.Int64("payment_id", paymentID),
			zap.Int64("order_id", payment.OrderID),
			zap.String("reason", reason))

		env, err := event.New(event.TypePaymentFailed, strconv.FormatInt(payment.OrderID, 10),
			event.PaymentFailedPayload{
				PaymentID: payment.ID,
				OrderID:   payment.OrderID,
				Reason:    reason,
			})
		if err != nil {
			return err
		}
		return ps.bus.Publish(txCtx, env)
	})
}

// GetPayment retrieves a payment by ID
func (ps *PaymentService) GetPayment(ctx context.Context, paymentID int64) (*models.Payment, error) {
	return ps.store.GetPaymentByID(ctx, paymentID)
}
