package sink

import (
	"bytes"
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

type lokiSink struct {
	cfg    config.LokiConfig
	client *http.Client
}

func NewLoki(cfg config.LokiConfig) Sink {
	to := cfg.Timeout
	if to == 0 {
		to = 10 * time.Second
	}
	return &lokiSink{cfg: cfg, client: util.NewHTTPClient(to)}
}

func (l *lokiSink) Name() string { return "loki" }

func (l *lokiSink) Push(ctx context.Context, events []model.Event) error {
	if len(events) == 0 {
		return nil
	}

	type stream struct {
		Stream map[string]string `json:"stream"`
		Values [][2]string       `json:"values"`
	}
	// one stream per label set, low cardinality labels only
	streams := map[string]*stream{}
	var order []string
	for _, e := range events {
		line, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("loki marshal: %w", err)
		}
		lbls := map[string]string{
			"job":     l.cfg.Job,
			"source":  "cre",
			"state":   e.State,
			"type":    e.Type,
			"product": e.Product,
		}
		key := e.State + "|" + e.Type + "|" + e.Product
		s, ok := streams[key]
		if !ok {
			s = &stream{Stream: lbls}
			streams[key] = s
			order = append(order, key)
		}
		// Loki expects ns timestamp as a decimal string
		ts := time.Unix(e.AppliedAt, 0).UnixNano()
		s.Values = append(s.Values, [2]string{fmt.Sprintf("%d", ts), string(line)})
	}
	payload := struct {
		Streams []stream `json:"streams"`
	}{}
	for _, k := range order {
		payload.Streams = append(payload.Streams, *streams[k])
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(l.cfg.URL, "/")+"/loki/api/v1/push", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if l.cfg.TenantID != "" {
		req.Header.Set("X-Scope-OrgID", l.cfg.TenantID)
	}
	if ua := l.cfg.UserAgent; ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return err
	}
	if resp.StatusCode/100 != 2 {
		return util.StatusError("loki push failed", resp)
	}
	resp.Body.Close()
	return nil
}
