package escrow

import (
	"errors"
	"strings"

	"crowdfund-escrow/pkg/errutil"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "escrow_operations_total",
		Help: "Escrow operations by outcome.",
	}, []string{"op", "result"})

	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "escrow_operation_duration_seconds",
		Help:    "Time spent inside escrow operations, including the commit.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	eventsRelayed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "escrow_events_relayed_total",
		Help: "Outbox events delivered to the event channel.",
	})
)

// resultLabel keeps label cardinality bounded to the status classes.
func resultLabel(err error) string {
	var be errutil.BaseError
	if errors.As(err, &be) {
		return strings.ToLower(string(be.Code))
	}
	return "error"
}
