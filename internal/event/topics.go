package event

// Topics names the cross-service channel topics, one per bounded context.
type Topics struct {
	Order   string
	Payment string
	Product string
}

// TopicFor maps an event type to its topic. An empty result keeps the event
// local to the publishing service.
func TopicFor(topics Topics) func(eventType string) string {
	return func(eventType string) string {
		switch eventType {
		case TypeOrderCreated:
			return topics.Order
		case TypePaymentCompleted, TypePaymentFailed:
			return topics.Payment
		case TypeProductLiked, TypeProductUnliked, TypeProductViewed, TypeProductListBrowsed:
			return topics.Product
		}
		return ""
	}
}
