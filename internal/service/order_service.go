package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"commerce-backend/internal/event"
	"commerce-backend/internal/eventbus"
	"commerce-backend/internal/models"
	"commerce-backend/internal/saga"
	"commerce-backend/internal/store"
	"commerce-backend/internal/util"

	"go.uber.org/zap"
)

// ErrValidation marks synchronous rejections. They surface to the caller and
// are never retried.
var ErrValidation = errors.New("validation failed")

// OrderService handles order placement.
type OrderService struct {
	store  *store.Store
	bus    *eventbus.Bus
	saga   *saga.Coordinator
	logger *zap.Logger
}

func NewOrderService(store *store.Store, bus *eventbus.Bus, coordinator *saga.Coordinator) *OrderService {
	return &OrderService{
		store:  store,
		bus:    bus,
		saga:   coordinator,
		logger: util.GetLogger(),
	}
}

// PlaceOrderRequest represents a request to place an order
type PlaceOrderRequest struct {
	MemberID   int64   `json:"member_id" binding:"required"`
	Amount     int64   `json:"amount" binding:"required"`
	CouponID   *int64  `json:"coupon_id,omitempty"`
	ProductIDs []int64 `json:"product_ids,omitempty"`
}

// PlaceOrderResponse represents the response after placing an order
type PlaceOrderResponse struct {
	OrderID int64  `json:"order_id"`
	Status  string `json:"status"`
}

// PlaceOrder creates the order, reserves the coupon, and enqueues the
// OrderCreated envelope, all in one unit of work. A rollback of any part
// drops the reservation and the event together.
func (s *OrderService) PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (*PlaceOrderResponse, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.PlaceOrder")
	defer span.End()

	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if req.MemberID <= 0 {
		return nil, fmt.Errorf("%w: member id required", ErrValidation)
	}

	order := &models.Order{
		MemberID: req.MemberID,
		Amount:   req.Amount,
		CouponID: req.CouponID,
		Status:   models.OrderStatusCreated,
	}

	err := s.bus.WithinTx(ctx, func(txCtx context.Context) error {
		if err := s.store.CreateOrder(txCtx, order); err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}

		if req.CouponID != nil {
			if _, err := s.saga.ReserveForOrder(txCtx, *req.CouponID, req.MemberID, order.ID); err != nil {
				return fmt.Errorf("failed to reserve coupon: %w", err)
			}
		}

		env, err := event.New(event.TypeOrderCreated, strconv.FormatInt(order.ID, 10), event.OrderCreatedPayload{
			OrderID:    order.ID,
			MemberID:   order.MemberID,
			Amount:     order.Amount,
			CouponID:   order.CouponID,
			ProductIDs: req.ProductIDs,
		})
		if err != nil {
			return err
		}
		return s.bus.Publish(txCtx, env)
	})
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("placement").Inc()
		return nil, err
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order placed",
		zap.Int64("order_id", order.ID),
		zap.Int64("member_id", order.MemberID))

	return &PlaceOrderResponse{OrderID: order.ID, Status: order.Status}, nil
}

// GetOrder retrieves an order by ID
func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	return s.store.GetOrderByID(ctx, orderID)
}
