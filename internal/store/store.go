package store

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/DataNerdsMX/fuel-prices-mx/internal/config"
)

// Store persists the intermediate snapshots shared by the fetch and upload stages.
// Snapshots are rotated per calendar day: a run only sees the ones written today.
type Store interface {
	Name() string
	Save(ctx context.Context, name string, v any) error
	// Load decodes today's snapshot into v. It reports false when there is none.
	Load(ctx context.Context, name string, v any) (bool, error)
}

// Clock returns the current time; snapshots rotate on its date.
type Clock func() time.Time

// ZoneClock returns a clock reading the current time in the named zone, so
// snapshots rotate on that zone's date rather than the host's.
func ZoneClock(name string) (Clock, error) {
	tz, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("store timezone: %w", err)
	}
	return func() time.Time { return time.Now().In(tz) }, nil
}

// RotatedPath inserts the date before the last extension of p:
// "data/prices.json" -> "data/prices.2026-10-18.json".
func RotatedPath(p string, day time.Time) string {
	dir, file := path.Split(p)
	date := day.Format("2006-01-02")
	i := strings.LastIndex(file, ".")
	if i < 0 {
		return dir + file + "." + date
	}
	return dir + file[:i] + "." + date + file[i:]
}

// New builds the store selected by cfg.Type.
func New(ctx context.Context, cfg config.StoreConfig, now Clock) (Store, error) {
	if now == nil {
		now = time.Now
	}
	switch cfg.Type {
	case "file", "":
		return NewFile(cfg.Dir, now), nil
	case "redis":
		r, err := NewRedis(ctx, cfg.Redis, now)
		if err != nil {
			return nil, err
		}
		return r, nil
	case "s3":
		s, err := NewS3(ctx, cfg.S3, now)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store type: %s", cfg.Type)
	}
}
