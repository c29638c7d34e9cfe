package event

// OrderCreatedPayload is published when an order is placed. ProductIDs feed
// the purchase weight of the ranking aggregator.
type OrderCreatedPayload struct {
	OrderID    int64   `json:"order_id"`
	MemberID   int64   `json:"member_id"`
	Amount     int64   `json:"amount"`
	CouponID   *int64  `json:"coupon_id,omitempty"`
	ProductIDs []int64 `json:"product_ids,omitempty"`
}

// PaymentCompletedPayload is published when a payment settles.
type PaymentCompletedPayload struct {
	PaymentID int64 `json:"payment_id"`
	OrderID   int64 `json:"order_id"`
	Amount    int64 `json:"amount"`
}

// PaymentFailedPayload is published when a payment is declined or errors out.
type PaymentFailedPayload struct {
	PaymentID int64  `json:"payment_id"`
	OrderID   int64  `json:"order_id"`
	Reason    string `json:"reason"`
}

// ProductLikedPayload / ProductUnlikedPayload are published on like toggles.
type ProductLikedPayload struct {
	ProductID int64 `json:"product_id"`
	MemberID  int64 `json:"member_id"`
}

type ProductUnlikedPayload struct {
	ProductID int64 `json:"product_id"`
	MemberID  int64 `json:"member_id"`
}

// ProductViewedPayload is published when a product detail page is opened.
type ProductViewedPayload struct {
	ProductID int64 `json:"product_id"`
	MemberID  int64 `json:"member_id"`
}

// ProductListBrowsedPayload is published when a product shows up in a
// browsed listing. Weighted far below a direct view.
type ProductListBrowsedPayload struct {
	ProductID int64 `json:"product_id"`
	MemberID  int64 `json:"member_id"`
}
