package sink

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/DataNerdsMX/fuel-prices-mx/internal/config"
	"github.com/DataNerdsMX/fuel-prices-mx/internal/model"
)

func sampleEvents() []model.Event {
	return []model.Event{
		{EventType: "FuelPriceSample", Location: "Tijuana", State: "Baja California", Brand: "PEMEX", Station: "UNO",
			Type: "gasoline", Product: "Regular", Price: 22.49, AppliedAt: 1760788800, Attrs: map[string]string{"region": "Noroeste"}},
		{EventType: "FuelPriceSample", Location: "Tijuana", State: "Baja California", Brand: "OXXO GAS", Station: "DOS \"B\"",
			Type: "diesel", Product: "Diésel", Price: 24.1, AppliedAt: 1760761800},
	}
}

func TestNewRelicPush(t *testing.T) {
	var got []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/accounts/42/events" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("X-Insert-Key") != "secret" || r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("headers = %v", r.Header)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewNewRelic(config.NewRelicConfig{BaseURL: srv.URL + "/", AccountID: "42", InsertKey: "secret"})
	if err := s.Push(context.Background(), sampleEvents()); err != nil {
		t.Fatalf("push: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0]["eventType"] != "FuelPriceSample" || got[0]["price"] != 22.49 || got[0]["region"] != "Noroeste" {
		t.Errorf("event 0 = %v", got[0])
	}
	if got[1]["applied_at"] != float64(1760761800) || got[1]["type"] != "diesel" {
		t.Errorf("event 1 = %v", got[1])
	}
}

func TestNewRelicPushGzip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Encoding") != "gzip" {
			t.Errorf("missing gzip encoding")
		}
		zr, err := gzip.NewReader(r.Body)
		if err != nil {
			t.Errorf("gzip: %v", err)
			return
		}
		var got []map[string]any
		if err := json.NewDecoder(zr).Decode(&got); err != nil || len(got) != 2 {
			t.Errorf("decode: %v (%d events)", err, len(got))
		}
	}))
	defer srv.Close()

	s := NewNewRelic(config.NewRelicConfig{BaseURL: srv.URL, AccountID: "42", InsertKey: "secret", Gzip: true})
	if err := s.Push(context.Background(), sampleEvents()); err != nil {
		t.Fatalf("push: %v", err)
	}
}

func TestNewRelicPushRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":"invalid key"}`))
	}))
	defer srv.Close()

	s := NewNewRelic(config.NewRelicConfig{BaseURL: srv.URL, AccountID: "42", InsertKey: "bad"})
	err := s.Push(context.Background(), sampleEvents())
	if err == nil || !strings.Contains(err.Error(), "invalid key") {
		t.Fatalf("expected rejection with body, got %v", err)
	}
}

func TestLokiPushGroupsStreams(t *testing.T) {
	var payload struct {
		Streams []struct {
			Stream map[string]string `json:"stream"`
			Values [][2]string       `json:"values"`
		} `json:"streams"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/loki/api/v1/push" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("X-Scope-OrgID") != "tenant" {
			t.Errorf("tenant header = %q", r.Header.Get("X-Scope-OrgID"))
		}
		json.NewDecoder(r.Body).Decode(&payload)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	events := append(sampleEvents(), sampleEvents()[0])
	s := NewLoki(config.LokiConfig{URL: srv.URL, TenantID: "tenant", Job: "fuel"})
	if err := s.Push(context.Background(), events); err != nil {
		t.Fatalf("push: %v", err)
	}
	if len(payload.Streams) != 2 {
		t.Fatalf("expected 2 streams, got %d", len(payload.Streams))
	}
	first := payload.Streams[0]
	if first.Stream["product"] != "Regular" || first.Stream["job"] != "fuel" || len(first.Values) != 2 {
		t.Errorf("first stream = %+v", first)
	}
	if first.Values[0][0] != "1760788800000000000" {
		t.Errorf("timestamp = %s", first.Values[0][0])
	}
}

func TestVictoriaPush(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/import/prometheus" {
			t.Errorf("path = %s", r.URL.Path)
		}
		b, _ := io.ReadAll(r.Body)
		body = string(b)
	}))
	defer srv.Close()

	s := NewVictoria(config.VictoriaConfig{URL: srv.URL})
	if err := s.Push(context.Background(), sampleEvents()); err != nil {
		t.Fatalf("push: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(body), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", body)
	}
	want0 := `fuel_price{brand="PEMEX",location="Tijuana",product="Regular",region="Noroeste",state="Baja California",station="UNO",type="gasoline"} 22.49 1760788800000`
	if lines[0] != want0 {
		t.Errorf("line 0 =\n%s\nwant\n%s", lines[0], want0)
	}
	if !strings.Contains(lines[1], `station="DOS \"B\""`) {
		t.Errorf("line 1 not escaped: %s", lines[1])
	}
}

func TestVictoriaPushFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad line", http.StatusBadRequest)
	}))
	defer srv.Close()

	if err := NewVictoria(config.VictoriaConfig{URL: srv.URL}).Push(context.Background(), sampleEvents()); err == nil {
		t.Fatal("expected error")
	}
}

func TestLabelName(t *testing.T) {
	tests := []struct{ given, want string }{
		{"region", "region"},
		{"zona-norte", "zona_norte"},
		{"2do_nivel", "_2do_nivel"},
		{" octane.ron ", "octane_ron"},
		{"marca_ñ", "marca___"},
		{"--", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := labelName(tt.given); got != tt.want {
			t.Errorf("labelName(%q) = %q, want %q", tt.given, got, tt.want)
		}
	}
}

func TestVictoriaLabelsFromAttributes(t *testing.T) {
	e := model.Event{State: "Sonora", Location: "Hermosillo", Attrs: map[string]string{"zona-norte": "si", "!": "x"}}
	got := promLabels(e)
	if !strings.Contains(got, `zona_norte="si"`) || strings.Contains(got, "zona-norte") || strings.Contains(got, `"x"`) {
		t.Errorf("labels = %s", got)
	}
}

func TestFromConfig(t *testing.T) {
	cfg := config.Config{
		NewRelic: config.NewRelicConfig{AccountID: "1", InsertKey: "k"},
		Loki:     config.LokiConfig{URL: "http://loki:3100"},
	}
	sinks, closeFn, err := FromConfig(context.Background(), cfg, "run")
	if err != nil {
		t.Fatal(err)
	}
	defer closeFn()
	if len(sinks) != 2 || sinks[0].Name() != "newrelic" || sinks[1].Name() != "loki" {
		t.Fatalf("unexpected sinks: %d", len(sinks))
	}

	cfg = config.Config{NewRelic: config.NewRelicConfig{Disable: true}}
	if _, _, err := FromConfig(context.Background(), cfg, "run"); err == nil {
		t.Fatal("expected error for no sinks")
	}
}

func TestPostgresPush(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set, skipping integration test")
	}
	ctx := context.Background()
	s, err := NewPostgres(ctx, config.PostgresConfig{DSN: dsn, Schema: "public"}, "6f1c1f4e-9c47-4c52-9c1e-5a9d1a0c1b11")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if err := s.Push(ctx, sampleEvents()); err != nil {
		t.Fatalf("push: %v", err)
	}
}
