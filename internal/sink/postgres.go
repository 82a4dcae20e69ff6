package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/DataNerdsMX/fuel-prices-mx/internal/config"
	"github.com/DataNerdsMX/fuel-prices-mx/internal/model"
)

// postgresSink archives every event of a run, tagged with the run id.
type postgresSink struct {
	pool  *pgxpool.Pool
	table string
	runID string
}

func NewPostgres(ctx context.Context, cfg config.PostgresConfig, runID string) (*postgresSink, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pg dsn: %w", err)
	}
	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 2
	}
	pcfg.MaxConns = int32(maxConns)
	pcfg.MaxConnLifetime = time.Hour
	if cfg.ViaBouncer {
		pcfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("pg connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg ping: %w", err)
	}
	s := &postgresSink{pool: pool, table: fmt.Sprintf(`"%s".fuel_price_events`, cfg.Schema), runID: runID}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (p *postgresSink) Name() string { return "postgres" }

func (p *postgresSink) initSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+p.table+` (
			id          BIGSERIAL PRIMARY KEY,
			run_id      UUID NOT NULL,
			event_type  TEXT NOT NULL,
			state       TEXT NOT NULL,
			location    TEXT NOT NULL,
			brand       TEXT NOT NULL,
			station     TEXT NOT NULL,
			fuel_type   TEXT NOT NULL,
			product     TEXT NOT NULL,
			price       DOUBLE PRECISION NOT NULL,
			applied_at  TIMESTAMPTZ NOT NULL,
			attrs       JSONB,
			inserted_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("pg schema: %w", err)
	}
	return nil
}

func (p *postgresSink) Push(ctx context.Context, events []model.Event) error {
	if len(events) == 0 {
		return nil
	}
	b := &pgx.Batch{}
	for _, e := range events {
		var attrs []byte
		if len(e.Attrs) > 0 {
			attrs, _ = json.Marshal(e.Attrs)
		}
		b.Queue(
			`INSERT INTO `+p.table+`
			(run_id, event_type, state, location, brand, station, fuel_type, product, price, applied_at, attrs)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			p.runID, e.EventType, e.State, e.Location, e.Brand, e.Station, e.Type, e.Product,
			e.Price, time.Unix(e.AppliedAt, 0).UTC(), attrs,
		)
	}
	br := p.pool.SendBatch(ctx, b)
	for i := 0; i < len(events); i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("pg insert: %w", err)
		}
	}
	return br.Close()
}

func (p *postgresSink) Close() { p.pool.Close() }
