package eventbus

import (
	"context"
	"fmt"

	"commerce-backend/internal/event"
	"commerce-backend/internal/util"

	"go.uber.org/zap"
)

// Phase selects when a subscribed handler runs relative to the publishing
// transaction.
type Phase int

const (
	// PreCommit handlers run inside the publishing transaction, before
	// commit. Their side effects are atomic with the triggering change and
	// their error aborts the whole transaction.
	PreCommit Phase = iota
	// PostCommit handlers run after a successful commit, asynchronously.
	// Their errors are contained and never reach the publishing path.
	PostCommit
)

// Handler processes one envelope.
type Handler func(ctx context.Context, env event.Envelope) error

type registration struct {
	phase   Phase
	handler Handler
}

// Registry holds the event-type -> handler bindings. It is built explicitly
// at process startup and handed to the bus; there is no ambient lookup.
type Registry struct {
	handlers map[string][]registration
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string][]registration)}
}

// Subscribe binds a handler to an event type for the given phase.
// Registration happens before the bus starts dispatching, so no locking.
func (r *Registry) Subscribe(eventType string, phase Phase, h Handler) {
	r.handlers[eventType] = append(r.handlers[eventType], registration{phase: phase, handler: h})
}

func (r *Registry) handlersFor(eventType string, phase Phase) []Handler {
	var out []Handler
	for _, reg := range r.handlers[eventType] {
		if reg.phase == phase {
			out = append(out, reg.handler)
		}
	}
	return out
}

// Transactor runs a function inside a database unit of work.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OutboxAppender stages envelopes for cross-service forwarding within the
// publishing transaction.
type OutboxAppender interface {
	AppendOutbox(ctx context.Context, topic string, envs []event.Envelope) error
}

// TopicMapper maps an event type to its cross-service topic. An empty topic
// keeps the event local to the publishing service.
type TopicMapper func(eventType string) string

type pendingKey struct{}

type pendingSet struct {
	envs []event.Envelope
}

// Bus is the local transactional event bus. Publish enqueues against the
// active unit of work; delivery happens at the transaction boundary, phased
// per handler registration. On rollback nothing is delivered or forwarded.
type Bus struct {
	registry *Registry
	tx       Transactor
	outbox   OutboxAppender
	topics   TopicMapper
	pool     *Pool
	logger   *zap.Logger
}

// NewBus creates a bus over the given unit-of-work provider. The pool runs
// post-commit handlers off the publishing goroutine.
func NewBus(registry *Registry, tx Transactor, outbox OutboxAppender, topics TopicMapper, pool *Pool) *Bus {
	return &Bus{
		registry: registry,
		tx:       tx,
		outbox:   outbox,
		topics:   topics,
		pool:     pool,
		logger:   util.GetLogger(),
	}
}

// Publish enqueues an envelope against the currently active unit of work.
// It never notifies subscribers directly.
func (b *Bus) Publish(ctx context.Context, env event.Envelope) error {
	pending, ok := ctx.Value(pendingKey{}).(*pendingSet)
	if !ok {
		return fmt.Errorf("publish outside a unit of work: %s", env.EventType)
	}
	pending.envs = append(pending.envs, env)
	return nil
}

// WithinTx opens a unit of work, runs fn, and performs phased delivery of
// every envelope published during it:
//
//  1. pre-commit handlers run inside the transaction; their error aborts it
//  2. forwarded envelopes are staged to the outbox inside the transaction
//  3. after commit, post-commit handlers run on the worker pool
func (b *Bus) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	pending := &pendingSet{}
	ctx = context.WithValue(ctx, pendingKey{}, pending)

	err := b.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := fn(txCtx); err != nil {
			return err
		}

		// Pre-commit handlers may publish follow-up events; the loop picks
		// those up because the pending set keeps growing.
		for i := 0; i < len(pending.envs); i++ {
			env := pending.envs[i]
			for _, h := range b.registry.handlersFor(env.EventType, PreCommit) {
				if err := h(txCtx, env); err != nil {
					return fmt.Errorf("pre-commit handler for %s failed: %w", env.EventType, err)
				}
			}
		}

		return b.stageOutbox(txCtx, pending.envs)
	})
	if err != nil {
		return err
	}

	for _, env := range pending.envs {
		b.dispatchPostCommit(env)
	}
	return nil
}

func (b *Bus) stageOutbox(ctx context.Context, envs []event.Envelope) error {
	byTopic := make(map[string][]event.Envelope)
	for _, env := range envs {
		topic := b.topics(env.EventType)
		if topic == "" {
			continue
		}
		byTopic[topic] = append(byTopic[topic], env)
	}
	for topic, batch := range byTopic {
		if err := b.outbox.AppendOutbox(ctx, topic, batch); err != nil {
			return fmt.Errorf("failed to stage events for topic %s: %w", topic, err)
		}
	}
	return nil
}

// dispatchPostCommit hands the envelope to every post-commit handler via the
// pool. The transaction is already committed, so a handler error is logged
// and left to the consumer-side redelivery policy; it must never crash or
// stall the publishing path. A saturated queue drops the handler run and
// counts it; cross-service consumers still receive the event through the
// outbox.
func (b *Bus) dispatchPostCommit(env event.Envelope) {
	for _, h := range b.registry.handlersFor(env.EventType, PostCommit) {
		handler := h
		accepted := b.pool.Submit(func() {
			ctx := context.Background()
			if err := handler(ctx, env); err != nil {
				b.logger.Error("post-commit handler failed",
					zap.String("event_id", env.EventID),
					zap.String("event_type", env.EventType),
					zap.Error(err))
			}
		})
		if !accepted {
			util.PostCommitDroppedTotal.Inc()
			b.logger.Error("post-commit queue saturated, dropping handler run",
				zap.String("event_id", env.EventID),
				zap.String("event_type", env.EventType))
		}
	}
}
