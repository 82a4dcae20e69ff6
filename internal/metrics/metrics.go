package metrics

import (
	"bytes"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/prometheus/common/expfmt"
)

// Run holds the counters of a single pipeline invocation on a private registry.
type Run struct {
	reg *prometheus.Registry

	LocationsProcessed prometheus.Counter
	LocationsMissing   prometheus.Counter
	LocationsFailed    prometheus.Counter
	StationsProcessed  prometheus.Counter
	RowsSkipped        prometheus.Counter
	EventsInserted     *prometheus.CounterVec
	EventsFailed       *prometheus.CounterVec
	Duration           prometheus.Gauge
	LastSuccess        prometheus.Gauge
}

func NewRun() *Run {
	r := &Run{reg: prometheus.NewRegistry()}
	r.LocationsProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fuelprices",
		Name:      "locations_processed_total",
		Help:      "Locations whose report returned at least one row",
	})
	r.LocationsMissing = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fuelprices",
		Name:      "locations_missing_data_total",
		Help:      "Locations whose report was empty",
	})
	r.LocationsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fuelprices",
		Name:      "locations_failed_total",
		Help:      "Locations whose report could not be fetched or decoded",
	})
	r.StationsProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fuelprices",
		Name:      "stations_processed_total",
		Help:      "Price rows turned into records",
	})
	r.RowsSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fuelprices",
		Name:      "rows_skipped_total",
		Help:      "Price rows dropped because they could not be parsed",
	})
	r.EventsInserted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fuelprices",
		Name:      "events_inserted_total",
		Help:      "Events accepted by a sink",
	}, []string{"sink"})
	r.EventsFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fuelprices",
		Name:      "events_failed_total",
		Help:      "Events in batches a sink rejected",
	}, []string{"sink"})
	r.Duration = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fuelprices",
		Name:      "run_duration_seconds",
		Help:      "Wall time of the last run",
	})
	r.LastSuccess = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fuelprices",
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix timestamp of the last run that finished without a fatal error",
	})
	r.reg.MustRegister(
		r.LocationsProcessed, r.LocationsMissing, r.LocationsFailed,
		r.StationsProcessed, r.RowsSkipped,
		r.EventsInserted, r.EventsFailed,
		r.Duration, r.LastSuccess,
	)
	return r
}

// Finish records the run duration and, on success, the completion timestamp.
func (r *Run) Finish(start time.Time, ok bool) {
	r.Duration.Set(time.Since(start).Seconds())
	if ok {
		r.LastSuccess.SetToCurrentTime()
	}
}

// Dump returns the registry in the text exposition format (for logging).
func (r *Run) Dump() (string, error) {
	mfs, err := r.reg.Gather()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

// Push sends the run metrics to a Prometheus Pushgateway, replacing the job group.
func (r *Run) Push(url, job string) error {
	if err := push.New(url, job).Gatherer(r.reg).Push(); err != nil {
		return fmt.Errorf("pushgateway: %w", err)
	}
	return nil
}

func (r *Run) Registry() *prometheus.Registry { return r.reg }
