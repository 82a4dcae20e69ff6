package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/DataNerdsMX/fuel-prices-mx/internal/config"
	"github.com/DataNerdsMX/fuel-prices-mx/internal/metrics"
	"github.com/DataNerdsMX/fuel-prices-mx/internal/pipeline"
	"github.com/DataNerdsMX/fuel-prices-mx/internal/postprocess"
	"github.com/DataNerdsMX/fuel-prices-mx/internal/sink"
	"github.com/DataNerdsMX/fuel-prices-mx/internal/source"
	"github.com/DataNerdsMX/fuel-prices-mx/internal/store"
)

// Version is set at build time via -ldflags "-X main.Version=..."
var Version = "dev"

func main() {
	var (
		cfgPath = flag.String("config", "", "path to YAML config (optional)")
		envPath = flag.String("env", ".env", "dotenv file with NR_ACCOUNT_ID / NR_INSIGHTS_INSERT_KEY")
		stage   = flag.String("stage", "all", "all | fetch | upload")
		refresh = flag.Bool("refresh", false, "ignore today's snapshots and fetch again")
		debug   = flag.Bool("debug", false, "enable debug logging (same as DEBUG=true)")
	)
	flag.Parse()

	if err := godotenv.Load(*envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("load env file", "path", *envPath, "err", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	st, err := pipeline.ParseStage(*stage)
	if err != nil {
		slog.Error("bad flag", "err", err)
		os.Exit(1)
	}

	runID := uuid.NewString()
	level := slog.LevelInfo
	if cfg.Debug || *debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})).With("run_id", runID))

	if err := run(cfg, st, *refresh, runID); err != nil {
		slog.Error("run failed", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, stage pipeline.Stage, refresh bool, runID string) error {
	slog.Info("fuel-prices-mx starting", "version", Version, "stage", stage, "refresh", refresh)
	start := time.Now()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	m := metrics.NewRun()
	defer func() {
		if cfg.Metrics.Snapshot {
			if snap, err := m.Dump(); err == nil && snap != "" {
				fmt.Println("METRICS SNAPSHOT:\n" + snap)
			}
		}
		if cfg.Metrics.PushgatewayURL != "" {
			if err := m.Push(cfg.Metrics.PushgatewayURL, cfg.Metrics.Job); err != nil {
				slog.Warn("push metrics", "err", err)
			}
		}
	}()

	clock, err := store.ZoneClock(cfg.CRE.Timezone)
	if err != nil {
		return err
	}
	snapshots, err := store.New(ctx, cfg.Store, clock)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	if c, ok := snapshots.(io.Closer); ok {
		defer c.Close()
	}
	slog.Info("snapshot store", "type", snapshots.Name())

	src, err := source.NewCRE(cfg.CRE)
	if err != nil {
		return err
	}

	var up *pipeline.Uploader
	if stage != pipeline.StageFetch {
		sinks, closeSinks, err := sink.FromConfig(ctx, cfg, runID)
		if err != nil {
			return err
		}
		defer closeSinks()
		for _, s := range sinks {
			slog.Info("configured sink", "sink", s.Name())
		}
		post, err := postprocess.New(cfg.Post)
		if err != nil {
			return err
		}
		up = pipeline.NewUploader(sinks, post, pipeline.UploaderOptions{
			EventType:    cfg.NewRelic.EventType,
			BatchSize:    cfg.Upload.BatchSize,
			PostInterval: cfg.Upload.PostInterval,
		}, m)
	}

	p := &pipeline.Pipeline{
		Store:    snapshots,
		Fetcher:  pipeline.NewFetcher(src, snapshots, cfg.CRE.RequestInterval, m),
		Uploader: up,
	}
	res, err := p.Run(ctx, stage, refresh)
	m.Finish(start, err == nil)
	if err != nil {
		return err
	}
	slog.Info("run finished", "records", res.Records, "fetched", res.Fetched, "elapsed", time.Since(start).Truncate(time.Millisecond))
	return nil
}
