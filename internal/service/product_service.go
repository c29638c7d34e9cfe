package service

import (
	"context"
	"fmt"
	"strconv"

	"commerce-backend/internal/event"
	"commerce-backend/internal/eventbus"
	"commerce-backend/internal/util"

	"go.uber.org/zap"
)

// ProductService publishes product interaction facts. Interactions have no
// local state to mutate; the unit of work exists so the envelope reaches the
// outbox atomically and a rollback drops it.
type ProductService struct {
	bus    *eventbus.Bus
	logger *zap.Logger
}

func NewProductService(bus *eventbus.Bus) *ProductService {
	return &ProductService{bus: bus, logger: util.GetLogger()}
}

// Like records a member liking a product.
func (s *ProductService) Like(ctx context.Context, productID, memberID int64) error {
	return s.publish(ctx, event.TypeProductLiked, productID,
		event.ProductLikedPayload{ProductID: productID, MemberID: memberID})
}

// Unlike records a member withdrawing a like.
func (s *ProductService) Unlike(ctx context.Context, productID, memberID int64) error {
	return s.publish(ctx, event.TypeProductUnliked, productID,
		event.ProductUnlikedPayload{ProductID: productID, MemberID: memberID})
}

// View records a product detail view.
func (s *ProductService) View(ctx context.Context, productID, memberID int64) error {
	return s.publish(ctx, event.TypeProductViewed, productID,
		event.ProductViewedPayload{ProductID: productID, MemberID: memberID})
}

// Browse records a product appearing in a browsed listing.
func (s *ProductService) Browse(ctx context.Context, productID, memberID int64) error {
	return s.publish(ctx, event.TypeProductListBrowsed, productID,
		event.ProductListBrowsedPayload{ProductID: productID, MemberID: memberID})
}

func (s *ProductService) publish(ctx context.Context, eventType string, productID int64, payload interface{}) error {
	if productID <= 0 {
		return fmt.Errorf("%w: product id required", ErrValidation)
	}

	err := s.bus.WithinTx(ctx, func(txCtx context.Context) error {
		env, err := event.New(eventType, strconv.FormatInt(productID, 10), payload)
		if err != nil {
			return err
		}
		return s.bus.Publish(txCtx, env)
	})
	if err != nil {
		return err
	}

	s.logger.Debug("Product interaction published",
		zap.String("event_type", eventType),
		zap.Int64("product_id", productID))
	return nil
}
