package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DataNerdsMX/fuel-prices-mx/internal/config"
	"github.com/DataNerdsMX/fuel-prices-mx/internal/model"
)

var day = time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return day }

func TestRotatedPath(t *testing.T) {
	tests := []struct{ given, want string }{
		{"foo.bar/baz.json", "foo.bar/baz.2026-10-18.json"},
		{"foo.bar/foo.bar.json", "foo.bar/foo.bar.2026-10-18.json"},
		{"data/prices.json", "data/prices.2026-10-18.json"},
		{"locations", "locations.2026-10-18"},
	}
	for _, tt := range tests {
		if got := RotatedPath(tt.given, day); got != tt.want {
			t.Errorf("RotatedPath(%q) = %q, want %q", tt.given, got, tt.want)
		}
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	s := NewFile(dir, fixedClock)
	ctx := context.Background()

	var missing []model.Location
	ok, err := s.Load(ctx, "locations", &missing)
	if err != nil || ok {
		t.Fatalf("expected no snapshot, got ok=%v err=%v", ok, err)
	}

	locs := []model.Location{{StateID: "02", LocationID: "012", State: "Baja California", Name: "Tijuana"}}
	if err := s.Save(ctx, "locations", locs); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "locations.2026-10-18.json")); err != nil {
		t.Fatalf("expected rotated file: %v", err)
	}

	var got []model.Location
	ok, err = s.Load(ctx, "locations", &got)
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if len(got) != 1 || got[0] != locs[0] {
		t.Fatalf("got %+v", got)
	}

	// the next day starts from scratch
	tomorrow := NewFile(dir, func() time.Time { return day.Add(24 * time.Hour) })
	ok, err = tomorrow.Load(ctx, "locations", &got)
	if err != nil || ok {
		t.Fatalf("expected rotation to hide yesterday's snapshot, ok=%v err=%v", ok, err)
	}
}

func TestFileStoreCorruptSnapshot(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "prices.2026-10-18.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	var v []model.PriceRecord
	if _, err := NewFile(dir, fixedClock).Load(context.Background(), "prices", &v); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestNewUnknownType(t *testing.T) {
	if _, err := New(context.Background(), config.StoreConfig{Type: "ftp"}, fixedClock); err == nil {
		t.Fatal("expected error")
	}
}

func TestRedisStoreRoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping integration test")
	}
	ctx := context.Background()
	s, err := NewRedis(ctx, config.RedisStoreConfig{Addr: addr, Prefix: "fuelprices-test", TTL: time.Minute}, fixedClock)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	in := map[string]int{"a": 1}
	if err := s.Save(ctx, "roundtrip", in); err != nil {
		t.Fatal(err)
	}
	var out map[string]int
	ok, err := s.Load(ctx, "roundtrip", &out)
	if err != nil || !ok || out["a"] != 1 {
		t.Fatalf("ok=%v err=%v out=%v", ok, err, out)
	}
	ok, err = s.Load(ctx, "absent", &out)
	if err != nil || ok {
		t.Fatalf("expected miss, ok=%v err=%v", ok, err)
	}
}

func TestS3StoreRoundTrip(t *testing.T) {
	bucket := os.Getenv("S3_BUCKET")
	if bucket == "" {
		t.Skip("S3_BUCKET not set, skipping integration test")
	}
	ctx := context.Background()
	s, err := NewS3(ctx, config.S3StoreConfig{
		Bucket:    bucket,
		Endpoint:  os.Getenv("S3_ENDPOINT"),
		Region:    "auto",
		AccessKey: os.Getenv("S3_ACCESS_KEY"),
		SecretKey: os.Getenv("S3_SECRET_KEY"),
		Prefix:    "fuelprices-test",
	}, fixedClock)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Save(ctx, "roundtrip", []string{"x"}); err != nil {
		t.Fatal(err)
	}
	var out []string
	ok, err := s.Load(ctx, "roundtrip", &out)
	if err != nil || !ok || len(out) != 1 {
		t.Fatalf("ok=%v err=%v out=%v", ok, err, out)
	}
}

func TestS3Key(t *testing.T) {
	s := &S3Store{prefix: "snapshots", now: fixedClock}
	if got := s.key("prices"); got != "snapshots/prices.2026-10-18.json" {
		t.Fatalf("key = %q", got)
	}
	s.prefix = ""
	if got := s.key("prices"); got != "prices.2026-10-18.json" {
		t.Fatalf("key = %q", got)
	}
}

func TestZoneClockRotatesOnZoneDate(t *testing.T) {
	clock, err := ZoneClock("America/Mexico_City")
	if err != nil {
		t.Fatal(err)
	}
	if got := clock().Location().String(); got != "America/Mexico_City" {
		t.Errorf("clock location = %s", got)
	}

	// 02:00 UTC on the 19th is still the evening of the 18th in Mexico City
	tz, _ := time.LoadLocation("America/Mexico_City")
	late := time.Date(2026, 10, 19, 2, 0, 0, 0, time.UTC)
	dir := t.TempDir()
	s := NewFile(dir, func() time.Time { return late.In(tz) })
	if err := s.Save(context.Background(), "prices", []model.PriceRecord{}); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "prices.2026-10-18.json")); err != nil {
		t.Fatalf("expected the Mexico City date in the name: %v", err)
	}

	if _, err := ZoneClock("Mars/Olympus_Mons"); err == nil {
		t.Error("expected error for unknown zone")
	}
}
