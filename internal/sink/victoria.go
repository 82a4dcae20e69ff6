package sink

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/DataNerdsMX/fuel-prices-mx/internal/config"
	"github.com/DataNerdsMX/fuel-prices-mx/internal/model"
	"github.com/DataNerdsMX/fuel-prices-mx/internal/util"
)

type victoriaSink struct {
	cfg    config.VictoriaConfig
	client *http.Client
}

func NewVictoria(cfg config.VictoriaConfig) Sink {
	to := cfg.Timeout
	if to == 0 {
		to = 10 * time.Second
	}
	if cfg.Metric == "" {
		cfg.Metric = "fuel_price"
	}
	return &victoriaSink{cfg: cfg, client: util.NewHTTPClient(to)}
}

func (v *victoriaSink) Name() string { return "victoria" }

// Push writes one sample per event in Prometheus text format, timestamped at applied_at.
func (v *victoriaSink) Push(ctx context.Context, events []model.Event) error {
	if len(events) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for _, e := range events {
		buf.WriteString(v.cfg.Metric)
		buf.WriteString(promLabels(e))
		fmt.Fprintf(&buf, " %s %d\n", strconv.FormatFloat(e.Price, 'f', -1, 64), e.AppliedAt*1000)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(v.cfg.URL, "/")+"/api/v1/import/prometheus", &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain")
	if ua := v.cfg.UserAgent; ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return err
	}
	if resp.StatusCode/100 != 2 {
		return util.StatusError("victoria push failed", resp)
	}
	resp.Body.Close()
	return nil
}

// promLabels renders {k="v",...} with deterministic ordering. Derived attributes
// are included after the record fields.
func promLabels(e model.Event) string {
	lbls := map[string]string{}
	for k, val := range e.Attrs {
		if name := labelName(k); name != "" {
			lbls[name] = val
		}
	}
	for _, k := range []string{"state", "location", "brand", "station", "type", "product"} {
		lbls[k] = e.Field(k)
	}
	keys := make([]string, 0, len(lbls))
	for k := range lbls {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s=\"%s\"", k, escape(lbls[k]))
	}
	b.WriteByte('}')
	return b.String()
}

// labelName maps an attribute key onto [a-zA-Z_][a-zA-Z0-9_]*, replacing any
// other byte with '_'. Keys without a letter or digit are dropped.
func labelName(k string) string {
	k = strings.TrimSpace(k)
	var b strings.Builder
	usable := false
	for i := 0; i < len(k); i++ {
		c := k[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
			usable = true
		case c >= '0' && c <= '9':
			usable = true
			if i == 0 {
				b.WriteByte('_')
			}
		default:
			c = '_'
		}
		b.WriteByte(c)
	}
	if !usable {
		return ""
	}
	return b.String()
}

func escape(s string) string {
	// minimal escape for label values
	res := make([]rune, 0, len(s))
	for _, r := range s {
		switch r {
		case '"':
			res = append(res, '\\', '"')
		case '\\':
			res = append(res, '\\', '\\')
		case '\n':
			res = append(res, '\\', 'n')
		default:
			res = append(res, r)
		}
	}
	return string(res)
}
