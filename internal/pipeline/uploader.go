package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/DataNerdsMX/fuel-prices-mx/internal/metrics"
	"github.com/DataNerdsMX/fuel-prices-mx/internal/model"
	"github.com/DataNerdsMX/fuel-prices-mx/internal/postprocess"
	"github.com/DataNerdsMX/fuel-prices-mx/internal/sink"
	"github.com/DataNerdsMX/fuel-prices-mx/internal/util"
)

// ToEvent maps a record to its destination event.
func ToEvent(eventType string, r model.PriceRecord) model.Event {
	return model.Event{
		EventType: eventType,
		Location:  r.Location.Name,
		State:     r.Location.State,
		Brand:     r.Brand,
		Station:   r.Station,
		Type:      string(r.Type),
		Product:   r.Product,
		Price:     r.Price.InexactFloat64(),
		AppliedAt: r.AppliedAt.Unix(),
	}
}

// SinkTotals counts events per outcome for one sink.
type SinkTotals struct {
	Inserted int
	Failed   int
}

type UploaderOptions struct {
	EventType    string
	BatchSize    int
	PostInterval time.Duration
}

// Uploader turns records into events and pushes them in batches to every sink.
type Uploader struct {
	sinks   []sink.Sink
	post    *postprocess.Engine
	opts    UploaderOptions
	limiter *rate.Limiter
	m       *metrics.Run
}

func NewUploader(sinks []sink.Sink, post *postprocess.Engine, opts UploaderOptions, m *metrics.Run) *Uploader {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1000
	}
	if opts.EventType == "" {
		opts.EventType = "FuelPriceSample"
	}
	return &Uploader{sinks: sinks, post: post, opts: opts, limiter: newLimiter(opts.PostInterval), m: m}
}

// Run uploads every record exactly once per sink. A rejected batch is counted as
// failed for that sink and the upload goes on.
func (u *Uploader) Run(ctx context.Context, records []model.PriceRecord) (map[string]SinkTotals, error) {
	totals := make(map[string]SinkTotals, len(u.sinks))
	for _, s := range u.sinks {
		totals[s.Name()] = SinkTotals{}
	}

	events := make([]model.Event, len(records))
	for i, r := range records {
		events[i] = ToEvent(u.opts.EventType, r)
	}
	if u.post != nil {
		events = u.post.Apply(events)
	}

	batches := util.Batch(events, u.opts.BatchSize)
	slog.Info("exporting the prices in batches...", "events", len(events), "batches", len(batches), "sinks", len(u.sinks))
	for i, batch := range batches {
		for _, s := range u.sinks {
			if err := u.limiter.Wait(ctx); err != nil {
				return totals, err
			}
			t := totals[s.Name()]
			if err := s.Push(ctx, batch); err != nil {
				if ctx.Err() != nil {
					return totals, ctx.Err()
				}
				t.Failed += len(batch)
				u.m.EventsFailed.WithLabelValues(s.Name()).Add(float64(len(batch)))
				slog.Warn("batch not inserted", "sink", s.Name(), "batch", i+1, "events", len(batch), "err", err)
			} else {
				t.Inserted += len(batch)
				u.m.EventsInserted.WithLabelValues(s.Name()).Add(float64(len(batch)))
				slog.Debug("batch inserted", "sink", s.Name(), "batch", i+1, "events", len(batch))
			}
			totals[s.Name()] = t
		}
	}

	for _, s := range u.sinks {
		t := totals[s.Name()]
		slog.Info("...done", "sink", s.Name(), "events_inserted", t.Inserted, "events_not_inserted", t.Failed)
	}
	return totals, nil
}
