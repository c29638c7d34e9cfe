package eventbus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"commerce-backend/internal/event"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTx mimics the store's unit of work: fn either commits (nil) or rolls
// back (error). committed tracks whether the outbox writes survived.
type fakeTx struct {
	committed bool
}

func (f *fakeTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := fn(ctx); err != nil {
		return err
	}
	f.committed = true
	return nil
}

type fakeOutbox struct {
	mu     sync.Mutex
	staged map[string][]event.Envelope
}

func newFakeOutbox() *fakeOutbox {
	return &fakeOutbox{staged: make(map[string][]event.Envelope)}
}

func (f *fakeOutbox) AppendOutbox(ctx context.Context, topic string, envs []event.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.staged[topic] = append(f.staged[topic], envs...)
	return nil
}

func constTopic(string) string { return "test-topic" }

func mustEnvelope(t *testing.T, eventType string) event.Envelope {
	t.Helper()
	env, err := event.New(eventType, "agg-1", map[string]string{"k": "v"})
	require.NoError(t, err)
	return env
}

func TestWithinTxDeliversPostCommitAfterCommit(t *testing.T) {
	tx := &fakeTx{}
	outbox := newFakeOutbox()
	pool := NewPool(1, 16)
	defer pool.Stop()

	delivered := make(chan event.Envelope, 1)
	registry := NewRegistry()
	registry.Subscribe("THING_HAPPENED", PostCommit, func(ctx context.Context, env event.Envelope) error {
		delivered <- env
		return nil
	})

	bus := NewBus(registry, tx, outbox, constTopic, pool)
	env := mustEnvelope(t, "THING_HAPPENED")

	err := bus.WithinTx(context.Background(), func(ctx context.Context) error {
		return bus.Publish(ctx, env)
	})
	require.NoError(t, err)
	assert.True(t, tx.committed)

	select {
	case got := <-delivered:
		assert.Equal(t, env.EventID, got.EventID)
	case <-time.After(time.Second):
		t.Fatal("post-commit handler was not invoked")
	}
	assert.Len(t, outbox.staged["test-topic"], 1)
}

func TestWithinTxRollbackSuppressesAllDelivery(t *testing.T) {
	tx := &fakeTx{}
	outbox := newFakeOutbox()
	pool := NewPool(1, 16)
	defer pool.Stop()

	preCalled := false
	postCalled := false
	registry := NewRegistry()
	registry.Subscribe("THING_HAPPENED", PreCommit, func(ctx context.Context, env event.Envelope) error {
		preCalled = true
		return nil
	})
	registry.Subscribe("THING_HAPPENED", PostCommit, func(ctx context.Context, env event.Envelope) error {
		postCalled = true
		return nil
	})

	bus := NewBus(registry, tx, outbox, constTopic, pool)

	err := bus.WithinTx(context.Background(), func(ctx context.Context) error {
		if err := bus.Publish(ctx, mustEnvelope(t, "THING_HAPPENED")); err != nil {
			return err
		}
		return errors.New("business rule violated")
	})
	require.Error(t, err)

	pool.Stop()
	assert.False(t, tx.committed)
	assert.False(t, preCalled, "pre-commit handler ran for a rolled-back unit of work")
	assert.False(t, postCalled, "post-commit handler ran for a rolled-back unit of work")
	assert.Empty(t, outbox.staged)
}

func TestPreCommitHandlerErrorAbortsTransaction(t *testing.T) {
	tx := &fakeTx{}
	outbox := newFakeOutbox()
	pool := NewPool(1, 16)
	defer pool.Stop()

	registry := NewRegistry()
	registry.Subscribe("THING_HAPPENED", PreCommit, func(ctx context.Context, env event.Envelope) error {
		return errors.New("compensation failed")
	})

	bus := NewBus(registry, tx, outbox, constTopic, pool)

	err := bus.WithinTx(context.Background(), func(ctx context.Context) error {
		return bus.Publish(ctx, mustEnvelope(t, "THING_HAPPENED"))
	})
	require.Error(t, err)
	assert.False(t, tx.committed)
	assert.Empty(t, outbox.staged)
}

func TestPreCommitHandlerMayPublishFollowUps(t *testing.T) {
	tx := &fakeTx{}
	outbox := newFakeOutbox()
	pool := NewPool(1, 16)
	defer pool.Stop()

	registry := NewRegistry()
	bus := NewBus(registry, tx, outbox, constTopic, pool)

	registry.Subscribe("FIRST", PreCommit, func(ctx context.Context, env event.Envelope) error {
		return bus.Publish(ctx, mustEnvelope(t, "SECOND"))
	})
	secondPre := false
	registry.Subscribe("SECOND", PreCommit, func(ctx context.Context, env event.Envelope) error {
		secondPre = true
		return nil
	})

	err := bus.WithinTx(context.Background(), func(ctx context.Context) error {
		return bus.Publish(ctx, mustEnvelope(t, "FIRST"))
	})
	require.NoError(t, err)
	assert.True(t, secondPre, "follow-up event missed its pre-commit handler")
	assert.Len(t, outbox.staged["test-topic"], 2)
}

func TestPostCommitHandlerErrorDoesNotReachPublisher(t *testing.T) {
	tx := &fakeTx{}
	outbox := newFakeOutbox()
	pool := NewPool(1, 16)

	registry := NewRegistry()
	registry.Subscribe("THING_HAPPENED", PostCommit, func(ctx context.Context, env event.Envelope) error {
		return errors.New("downstream unavailable")
	})

	bus := NewBus(registry, tx, outbox, constTopic, pool)

	err := bus.WithinTx(context.Background(), func(ctx context.Context) error {
		return bus.Publish(ctx, mustEnvelope(t, "THING_HAPPENED"))
	})
	require.NoError(t, err, "post-commit failure must not propagate to the publishing path")
	pool.Stop()
	assert.True(t, tx.committed)
}

func TestPublishOutsideUnitOfWorkFails(t *testing.T) {
	bus := NewBus(NewRegistry(), &fakeTx{}, newFakeOutbox(), constTopic, NewPool(1, 1))
	err := bus.Publish(context.Background(), mustEnvelope(t, "THING_HAPPENED"))
	assert.Error(t, err)
}

func TestLocalOnlyEventsSkipOutbox(t *testing.T) {
	tx := &fakeTx{}
	outbox := newFakeOutbox()
	pool := NewPool(1, 16)
	defer pool.Stop()

	bus := NewBus(NewRegistry(), tx, outbox, func(string) string { return "" }, pool)

	err := bus.WithinTx(context.Background(), func(ctx context.Context) error {
		return bus.Publish(ctx, mustEnvelope(t, "LOCAL_ONLY"))
	})
	require.NoError(t, err)
	assert.Empty(t, outbox.staged)
}
