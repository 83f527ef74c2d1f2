package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/HarshaVardhanRao/StudentActivityCentre/internal/attendance"
)

const namespace = "sac_attendance"

// Collector exposes service counters to Prometheus.
type Collector struct {
	sessionsOpened    *prometheus.CounterVec
	sessionsExtended  prometheus.Counter
	sessionsSubmitted prometheus.Counter
	recordsSaved      *prometheus.CounterVec
	refCodeCollisions prometheus.Counter
	verifications     *prometheus.CounterVec
	txRetries         prometheus.Counter
	overdueSessions   prometheus.Counter
}

var _ attendance.Metrics = (*Collector)(nil)

func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		sessionsOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_opened_total",
			Help:      "Attendance sessions created.",
		}, []string{"mode"}),
		sessionsExtended: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_extended_total",
			Help:      "Attendance window extensions.",
		}),
		sessionsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_submitted_total",
			Help:      "Attendance sessions submitted and locked.",
		}),
		recordsSaved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_saved_total",
			Help:      "Attendance records written.",
		}, []string{"op"}),
		refCodeCollisions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ref_code_collisions_total",
			Help:      "Reference code candidates that were already taken.",
		}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_total",
			Help:      "Public reference code lookups.",
		}, []string{"result"}),
		txRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tx_retries_total",
			Help:      "Transactions retried after a unique violation.",
		}),
		overdueSessions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "overdue_sessions_total",
			Help:      "Sessions reported as overdue.",
		}),
	}
	reg.MustRegister(
		c.sessionsOpened,
		c.sessionsExtended,
		c.sessionsSubmitted,
		c.recordsSaved,
		c.refCodeCollisions,
		c.verifications,
		c.txRetries,
		c.overdueSessions,
	)
	return c
}

func (c *Collector) SessionOpened(implicit bool) {
	mode := "explicit"
	if implicit {
		mode = "implicit"
	}
	c.sessionsOpened.WithLabelValues(mode).Inc()
}

func (c *Collector) SessionExtended() { c.sessionsExtended.Inc() }
func (c *Collector) SessionSubmitted() { c.sessionsSubmitted.Inc() }
func (c *Collector) RefCodeCollision() { c.refCodeCollisions.Inc() }
func (c *Collector) TxRetry() { c.txRetries.Inc() }

func (c *Collector) RecordSaved(created bool) {
	op := "update"
	if created {
		op = "create"
	}
	c.recordsSaved.WithLabelValues(op).Inc()
}

func (c *Collector) Verification(found bool) {
	result := "not_found"
	if found {
		result = "found"
	}
	c.verifications.WithLabelValues(result).Inc()
}

// OverdueReported is called by the overdue job.
func (c *Collector) OverdueReported(n int) {
	c.overdueSessions.Add(float64(n))
}
