package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/DataNerdsMX/fuel-prices-mx/internal/model"
	"github.com/DataNerdsMX/fuel-prices-mx/internal/store"
)

type Stage string

const (
	StageAll    Stage = "all"    // upload today's snapshot, fetching it first when missing
	StageFetch  Stage = "fetch"  // fetch and snapshot only
	StageUpload Stage = "upload" // upload an existing snapshot only
)

func ParseStage(s string) (Stage, error) {
	switch st := Stage(s); st {
	case StageAll, StageFetch, StageUpload:
		return st, nil
	case "":
		return StageAll, nil
	default:
		return "", fmt.Errorf("unknown stage: %s", s)
	}
}

// ErrNoSnapshot is returned by the upload stage when today's prices were never
// fetched or the snapshot holds no records.
var ErrNoSnapshot = errors.New("no prices snapshot for today, run the fetch stage first")

// Pipeline runs the fetch and upload stages in sequence.
type Pipeline struct {
	Store    store.Store
	Fetcher  *Fetcher
	Uploader *Uploader
}

// Result carries the totals of the stages that ran.
type Result struct {
	Fetched bool
	Fetch   FetchTotals
	Records int
	Upload  map[string]SinkTotals
}

func (p *Pipeline) Run(ctx context.Context, stage Stage, refresh bool) (Result, error) {
	var res Result
	if stage == StageFetch {
		recs, totals, err := p.Fetcher.Run(ctx, refresh)
		if err != nil {
			return res, fmt.Errorf("fetch: %w", err)
		}
		res.Fetched, res.Fetch, res.Records = true, totals, len(recs)
		return res, nil
	}

	if stage == StageUpload && refresh {
		slog.Warn("refresh has no effect on the upload stage, using today's snapshot")
		refresh = false
	}

	var records []model.PriceRecord
	found := false
	if !refresh {
		ok, err := p.Store.Load(ctx, PricesSnapshot, &records)
		if err != nil {
			return res, fmt.Errorf("load prices: %w", err)
		}
		// an empty snapshot is left by a run where no location answered
		found = ok && len(records) > 0
	}
	if !found {
		if stage == StageUpload {
			return res, ErrNoSnapshot
		}
		recs, totals, err := p.Fetcher.Run(ctx, refresh)
		if err != nil {
			return res, fmt.Errorf("fetch: %w", err)
		}
		records = recs
		res.Fetched, res.Fetch = true, totals
	} else {
		slog.Info("using today's prices snapshot", "records", len(records))
	}
	res.Records = len(records)

	up, err := p.Uploader.Run(ctx, records)
	res.Upload = up
	if err != nil {
		return res, fmt.Errorf("upload: %w", err)
	}
	return res, nil
}
