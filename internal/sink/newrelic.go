package sink

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/DataNerdsMX/fuel-prices-mx/internal/config"
	"github.com/DataNerdsMX/fuel-prices-mx/internal/model"
	"github.com/DataNerdsMX/fuel-prices-mx/internal/util"
)

// newRelicSink posts custom events to the Insights insert API.
type newRelicSink struct {
	cfg      config.NewRelicConfig
	endpoint string
	client   *http.Client
}

func NewNewRelic(cfg config.NewRelicConfig) Sink {
	to := cfg.Timeout
	if to == 0 {
		to = 30 * time.Second
	}
	endpoint := fmt.Sprintf("%s/v1/accounts/%s/events", strings.TrimRight(cfg.BaseURL, "/"), cfg.AccountID)
	return &newRelicSink{cfg: cfg, endpoint: endpoint, client: util.NewHTTPClient(to)}
}

func (n *newRelicSink) Name() string { return "newrelic" }

func (n *newRelicSink) Push(ctx context.Context, events []model.Event) error {
	if len(events) == 0 {
		return nil
	}
	body, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("newrelic marshal: %w", err)
	}
	if n.cfg.Gzip {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(body); err != nil {
			return err
		}
		if err := zw.Close(); err != nil {
			return err
		}
		body = buf.Bytes()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Insert-Key", n.cfg.InsertKey)
	if n.cfg.Gzip {
		req.Header.Set("Content-Encoding", "gzip")
	}
	if ua := n.cfg.UserAgent; ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	// the collector answers 200 on accepted payloads only
	if resp.StatusCode != http.StatusOK {
		return util.StatusError("newrelic", resp)
	}
	resp.Body.Close()
	return nil
}
