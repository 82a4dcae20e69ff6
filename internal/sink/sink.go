package sink

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/DataNerdsMX/fuel-prices-mx/internal/config"
	"github.com/DataNerdsMX/fuel-prices-mx/internal/model"
)

// Sink is the minimal interface all sinks must implement.
type Sink interface {
	Name() string
	Push(ctx context.Context, events []model.Event) error
}

// FromConfig builds every configured sink. The returned close func releases
// sink resources (database pools) and is never nil.
func FromConfig(ctx context.Context, cfg config.Config, runID string) ([]Sink, func(), error) {
	var sinks []Sink
	var closers []func()
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	if !cfg.NewRelic.Disable {
		sinks = append(sinks, NewNewRelic(cfg.NewRelic))
	}
	if strings.TrimSpace(cfg.Loki.URL) != "" {
		sinks = append(sinks, NewLoki(cfg.Loki))
	}
	if strings.TrimSpace(cfg.Victoria.URL) != "" {
		sinks = append(sinks, NewVictoria(cfg.Victoria))
	}
	if strings.TrimSpace(cfg.Postgres.DSN) != "" {
		pg, err := NewPostgres(ctx, cfg.Postgres, runID)
		if err != nil {
			closeAll()
			return nil, func() {}, fmt.Errorf("init postgres sink: %w", err)
		}
		sinks = append(sinks, pg)
		closers = append(closers, pg.Close)
	}
	if len(sinks) == 0 {
		return nil, func() {}, errors.New("no sinks configured")
	}
	return sinks, closeAll, nil
}
