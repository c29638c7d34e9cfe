package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"commerce-backend/internal/util"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// DeadLetterMessage wraps an unprocessable payload with the failure cause.
type DeadLetterMessage struct {
	At      time.Time       `json:"at"`
	Topic   string          `json:"topic"`
	Error   string          `json:"error"`
	Payload json.RawMessage `json:"payload"`
}

// DeadLetter routes events that can never be processed (decode failures) to
// a Redis list so they stop blocking their partition.
type DeadLetter struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func NewDeadLetter(rdb *redis.Client) *DeadLetter {
	return &DeadLetter{rdb: rdb, logger: util.GetLogger()}
}

// Push appends the payload to the topic's dead-letter list. A push failure
// is logged and swallowed; losing a poison message beats blocking the
// partition behind it.
func (d *DeadLetter) Push(ctx context.Context, topic string, payload []byte, cause error) {
	msg := DeadLetterMessage{
		At:      time.Now().UTC(),
		Topic:   topic,
		Error:   cause.Error(),
		Payload: json.RawMessage(payload),
	}
	b, err := json.Marshal(msg)
	if err != nil {
		d.logger.Error("Failed to marshal dead-letter message", zap.Error(err))
		return
	}

	key := fmt.Sprintf("dlq:%s", topic)
	if err := d.rdb.LPush(ctx, key, b).Err(); err != nil {
		d.logger.Error("Failed to push to dead-letter queue",
			zap.String("topic", topic),
			zap.Error(err))
		return
	}
	util.EventsDeadLetteredTotal.WithLabelValues(topic).Inc()
}
