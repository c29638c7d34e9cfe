package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders placed",
	})

	OrdersPaidTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_paid_total",
		Help: "Total number of orders settled as paid",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of failed orders",
	}, []string{"reason"})

	PaymentsCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_completed_total",
		Help: "Total number of completed payments",
	})

	PaymentsFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_failed_total",
		Help: "Total number of failed payments",
	})

	CouponsUsedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coupons_used_total",
		Help: "Total number of coupon reservations finalized as used",
	})

	CouponsCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coupons_cancelled_total",
		Help: "Total number of coupon reservations rolled back",
	})

	CouponConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coupon_conflicts_total",
		Help: "Late terminal transitions rejected by the first-wins policy",
	})

	EventsForwardedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_forwarded_total",
		Help: "Envelopes forwarded from the outbox to the channel",
	}, []string{"topic"})

	EventsDedupedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_deduped_total",
		Help: "Redelivered envelopes skipped by the idempotency guard",
	}, []string{"consumer"})

	EventsDeadLetteredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_dead_lettered_total",
		Help: "Undecodable envelopes routed to the dead-letter queue",
	}, []string{"topic"})

	PostCommitDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "post_commit_dropped_total",
		Help: "Post-commit handler runs dropped because the dispatch queue was full",
	})

	ScoreDeltasAppliedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "score_deltas_applied_total",
		Help: "Ranking score deltas applied, by event type",
	}, []string{"event_type"})

	RankingMaterializeLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ranking_materialize_latency_seconds",
		Help:    "Latency of leaderboard materialization",
		Buckets: prometheus.DefBuckets,
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
