package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/DataNerdsMX/fuel-prices-mx/internal/metrics"
	"github.com/DataNerdsMX/fuel-prices-mx/internal/model"
	"github.com/DataNerdsMX/fuel-prices-mx/internal/source"
	"github.com/DataNerdsMX/fuel-prices-mx/internal/store"
)

const (
	LocationsSnapshot = "locations"
	PricesSnapshot    = "prices"
)

// FetchTotals summarizes one fetch cycle.
type FetchTotals struct {
	LocationsProcessed int
	LocationsMissing   int
	LocationsFailed    int
	StationsProcessed  int
	RowsSkipped        int
}

// Fetcher pulls the catalog and the per-location reports and persists them as snapshots.
type Fetcher struct {
	src     source.Source
	store   store.Store
	limiter *rate.Limiter
	m       *metrics.Run
}

// NewFetcher paces report requests one every interval (0 disables pacing).
func NewFetcher(src source.Source, st store.Store, interval time.Duration, m *metrics.Run) *Fetcher {
	return &Fetcher{src: src, store: st, limiter: newLimiter(interval), m: m}
}

func newLimiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

// Locations returns today's catalog snapshot, importing it when missing or when refresh is set.
func (f *Fetcher) Locations(ctx context.Context, refresh bool) ([]model.Location, error) {
	if !refresh {
		var locs []model.Location
		ok, err := f.store.Load(ctx, LocationsSnapshot, &locs)
		if err != nil {
			return nil, err
		}
		if ok && len(locs) > 0 {
			return locs, nil
		}
	}

	slog.Info("getting the locations catalog...")
	locs, err := f.src.Locations(ctx)
	if err != nil {
		return nil, err
	}
	if len(locs) == 0 {
		return nil, errors.New("locations catalog is empty")
	}
	if err := f.store.Save(ctx, LocationsSnapshot, locs); err != nil {
		return nil, fmt.Errorf("save locations: %w", err)
	}
	slog.Info("...done", "locations", len(locs))
	return locs, nil
}

// Run fetches the report of every location and saves the prices snapshot. A location
// that fails is logged and counted; only catalog and store errors abort the cycle.
func (f *Fetcher) Run(ctx context.Context, refresh bool) ([]model.PriceRecord, FetchTotals, error) {
	var totals FetchTotals
	locs, err := f.Locations(ctx, refresh)
	if err != nil {
		return nil, totals, err
	}
	catalog := model.NewCatalog(locs)

	slog.Info("getting the prices for each location...", "locations", len(locs))
	records := make([]model.PriceRecord, 0, len(locs)*8)
	for _, loc := range locs {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, totals, err
		}
		slog.Debug("fetching location", "key", loc.Key(), "state", loc.State, "location", loc.Name)

		recs, skipped, err := f.src.Prices(ctx, loc, catalog)
		totals.RowsSkipped += skipped
		f.m.RowsSkipped.Add(float64(skipped))
		if err != nil {
			if ctx.Err() != nil {
				return nil, totals, ctx.Err()
			}
			totals.LocationsFailed++
			f.m.LocationsFailed.Inc()
			slog.Warn("fetch failed", "location", loc.Key(), "err", err)
			continue
		}
		if len(recs) == 0 {
			totals.LocationsMissing++
			f.m.LocationsMissing.Inc()
			slog.Warn("no data for location", "key", loc.Key(), "state", loc.State, "location", loc.Name)
			continue
		}
		records = append(records, recs...)
		totals.StationsProcessed += len(recs)
		totals.LocationsProcessed++
		f.m.StationsProcessed.Add(float64(len(recs)))
		f.m.LocationsProcessed.Inc()
	}

	if err := f.store.Save(ctx, PricesSnapshot, records); err != nil {
		return nil, totals, fmt.Errorf("save prices: %w", err)
	}
	slog.Info("...done",
		"locations_processed", totals.LocationsProcessed,
		"locations_missing_data", totals.LocationsMissing,
		"locations_failed", totals.LocationsFailed,
		"stations_processed", totals.StationsProcessed,
		"rows_skipped", totals.RowsSkipped,
	)
	return records, totals, nil
}
