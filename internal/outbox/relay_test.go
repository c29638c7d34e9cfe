package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"commerce-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memOutbox queues records in enqueue order and marks a batch published only
// when the publish callback succeeds, mirroring the transactional store.
type memOutbox struct {
	mu      sync.Mutex
	records []models.OutboxRecord
}

func (m *memOutbox) append(topic, aggregateID, eventID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, models.OutboxRecord{
		ID:          int64(len(m.records) + 1),
		EventID:     eventID,
		AggregateID: aggregateID,
		Topic:       topic,
		Payload:     []byte(`{}`),
	})
}

func (m *memOutbox) ProcessOutboxBatch(
	ctx context.Context,
	batchSize int,
	publish func(ctx context.Context, records []models.OutboxRecord) error,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var batch []models.OutboxRecord
	for _, rec := range m.records {
		if rec.Published {
			continue
		}
		batch = append(batch, rec)
		if len(batch) == batchSize {
			break
		}
	}
	if len(batch) == 0 {
		return nil
	}
	if err := publish(ctx, batch); err != nil {
		return err
	}
	for _, rec := range batch {
		m.records[rec.ID-1].Published = true
	}
	return nil
}

func (m *memOutbox) unpublished() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, rec := range m.records {
		if !rec.Published {
			n++
		}
	}
	return n
}

type recordingPublisher struct {
	mu     sync.Mutex
	failOn string
	sent   map[string][]string // aggregateID -> event ids in send order
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{sent: make(map[string][]string)}
}

func (p *recordingPublisher) Publish(ctx context.Context, topic, aggregateID string, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failOn == aggregateID {
		return errors.New("broker unavailable")
	}
	p.sent[aggregateID] = append(p.sent[aggregateID], topic)
	return nil
}

func TestRelayForwardsInEnqueueOrderPerAggregate(t *testing.T) {
	ob := &memOutbox{}
	for i := 0; i < 5; i++ {
		ob.append(fmt.Sprintf("topic-%d", i), "agg-1", fmt.Sprintf("evt-%d", i))
	}

	pub := newRecordingPublisher()
	relay := NewRelay(ob, pub, 100, time.Hour)

	require.NoError(t, relay.processBatch(context.Background()))

	assert.Equal(t, []string{"topic-0", "topic-1", "topic-2", "topic-3", "topic-4"}, pub.sent["agg-1"])
	assert.Zero(t, ob.unpublished())
}

func TestRelayKeepsBatchOnPublishFailure(t *testing.T) {
	ob := &memOutbox{}
	ob.append("orders", "agg-1", "evt-1")
	ob.append("orders", "agg-2", "evt-2")

	pub := newRecordingPublisher()
	pub.failOn = "agg-2"
	relay := NewRelay(ob, pub, 100, time.Hour)

	err := relay.processBatch(context.Background())
	require.Error(t, err)
	assert.Equal(t, 2, ob.unpublished(), "a failed batch must stay queued for the next tick")

	// Broker recovers: the next tick forwards the whole batch.
	pub.failOn = ""
	require.NoError(t, relay.processBatch(context.Background()))
	assert.Zero(t, ob.unpublished())
}

func TestConcurrentRelaysPreserveEnqueueOrder(t *testing.T) {
	ob := &memOutbox{}
	var expected []string
	for i := 0; i < 20; i++ {
		topic := fmt.Sprintf("topic-%02d", i)
		ob.append(topic, "agg-1", fmt.Sprintf("evt-%d", i))
		expected = append(expected, topic)
	}

	// The fake holds the batch lock across publish, the same serialization
	// the store's FOR UPDATE fetch gives a second relay instance.
	pub := newRecordingPublisher()
	relayA := NewRelay(ob, pub, 3, time.Hour)
	relayB := NewRelay(ob, pub, 3, time.Hour)

	var wg sync.WaitGroup
	for _, relay := range []*Relay{relayA, relayB} {
		wg.Add(1)
		go func(r *Relay) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				assert.NoError(t, r.processBatch(context.Background()))
			}
		}(relay)
	}
	wg.Wait()

	assert.Zero(t, ob.unpublished())
	assert.Equal(t, expected, pub.sent["agg-1"],
		"a competing relay must never publish ahead of the in-flight batch")
}

func TestRelayRespectsBatchSize(t *testing.T) {
	ob := &memOutbox{}
	for i := 0; i < 7; i++ {
		ob.append("orders", "agg-1", fmt.Sprintf("evt-%d", i))
	}

	relay := NewRelay(ob, newRecordingPublisher(), 3, time.Hour)

	require.NoError(t, relay.processBatch(context.Background()))
	assert.Equal(t, 4, ob.unpublished())
}

func TestRelayStartStop(t *testing.T) {
	ob := &memOutbox{}
	ob.append("orders", "agg-1", "evt-1")

	pub := newRecordingPublisher()
	relay := NewRelay(ob, pub, 100, 5*time.Millisecond)

	relay.Start(context.Background())
	assert.Eventually(t, func() bool { return ob.unpublished() == 0 },
		time.Second, 5*time.Millisecond)
	relay.Stop()
}
