package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/DataNerdsMX/fuel-prices-mx/internal/config"
	"github.com/DataNerdsMX/fuel-prices-mx/internal/model"
	"github.com/DataNerdsMX/fuel-prices-mx/internal/util"
)

type creSource struct {
	cfg    config.CREConfig
	client *http.Client
	tz     *time.Location
	now    func() time.Time
}

type catalogRow struct {
	MunicipioID       flexID `json:"MunicipioId"`
	EntidadID         flexID `json:"EntidadFederativaId"`
	Nombre            string `json:"Nombre"`
	EntidadFederativa struct {
		Nombre string `json:"Nombre"`
	} `json:"EntidadFederativa"`
}

type reportRow struct {
	MunicipioID     flexID          `json:"MunicipioId"`
	EntidadID       flexID          `json:"EntidadFederativaId"`
	Marca           string          `json:"Marca"`
	Nombre          string          `json:"Nombre"`
	Producto        string          `json:"Producto"`
	SubProducto     string          `json:"SubProducto"`
	PrecioVigente   json.RawMessage `json:"PrecioVigente"`
	FechaAplicacion string          `json:"FechaAplicacion"`
}

// NewCRE builds the client for the CRE catalog and daily report APIs.
func NewCRE(cfg config.CREConfig) (Source, error) {
	tz, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("cre timezone: %w", err)
	}
	to := cfg.HTTP.Timeout
	if to == 0 {
		to = 30 * time.Second
	}
	return &creSource{cfg: cfg, client: util.NewHTTPClient(to), tz: tz, now: time.Now}, nil
}

func (c *creSource) Name() string { return "cre" }

// Locations fetches the municipalities catalog.
func (c *creSource) Locations(ctx context.Context) ([]model.Location, error) {
	var rows []catalogRow
	if err := c.getJSON(ctx, c.cfg.LocationsURL, &rows); err != nil {
		return nil, fmt.Errorf("cre locations: %w", err)
	}
	out := make([]model.Location, 0, len(rows))
	for _, r := range rows {
		if r.EntidadID == "" || r.MunicipioID == "" {
			slog.Warn("cre: catalog row without ids", "name", r.Nombre)
			continue
		}
		st, loc := LocationKey(string(r.EntidadID), string(r.MunicipioID))
		out = append(out, model.Location{
			StateID:    st,
			LocationID: loc,
			State:      strings.TrimSpace(r.EntidadFederativa.Nombre),
			Name:       strings.TrimSpace(r.Nombre),
		})
	}
	slog.Debug("cre: catalog parsed", "rows", len(rows), "locations", len(out))
	return out, nil
}

// Prices fetches the current daily report for loc.
func (c *creSource) Prices(ctx context.Context, loc model.Location, catalog model.Catalog) ([]model.PriceRecord, int, error) {
	u, err := url.Parse(c.cfg.PricesURL)
	if err != nil {
		return nil, 0, fmt.Errorf("cre prices url: %w", err)
	}
	q := u.Query()
	q.Set("entidadId", loc.StateID)
	q.Set("municipioId", loc.LocationID)
	q.Set("_", strconv.FormatInt(c.now().Unix(), 10)) // cache buster
	u.RawQuery = q.Encode()

	var rows []reportRow
	if err := c.getJSON(ctx, u.String(), &rows); err != nil {
		return nil, 0, fmt.Errorf("cre prices %s: %w", loc.Key(), err)
	}

	records := make([]model.PriceRecord, 0, len(rows))
	skipped := 0
	for _, r := range rows {
		applied, err := parseApplied(r.FechaAplicacion, c.tz)
		if err != nil {
			skipped++
			slog.Warn("cre: skipping row", "location", loc.Key(), "station", r.Nombre, "err", err)
			continue
		}
		price, err := parsePrice(r.PrecioVigente)
		if err != nil {
			skipped++
			slog.Warn("cre: skipping row", "location", loc.Key(), "station", r.Nombre, "err", err)
			continue
		}
		rowLoc := loc
		if r.EntidadID != "" && r.MunicipioID != "" {
			if l, ok := catalog[model.CatalogKey(LocationKey(string(r.EntidadID), string(r.MunicipioID)))]; ok {
				rowLoc = l
			}
		}
		fuel := model.Diesel
		if strings.TrimSpace(r.Producto) == "Gasolinas" {
			fuel = model.Gasoline
		}
		rec := model.PriceRecord{
			Location:  rowLoc,
			Brand:     strings.TrimSpace(r.Marca),
			Station:   strings.TrimSpace(r.Nombre),
			Type:      fuel,
			Product:   productName(r.SubProducto),
			Price:     price,
			AppliedAt: applied,
		}
		slog.Debug("cre: record", "location", rowLoc.Key(), "station", rec.Station, "product", rec.Product, "price", rec.Price.String())
		records = append(records, rec)
	}
	return records, skipped, nil
}

func (c *creSource) getJSON(ctx context.Context, endpoint string, out any) error {
	var body []byte
	err := util.Retry(ctx, c.cfg.MaxRetries, util.DefaultDur(c.cfg.Backoff, 500*time.Millisecond), util.DefaultDur(c.cfg.MaxBackoff, 5*time.Second), func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		if ua := c.cfg.HTTP.UserAgent; ua != "" {
			req.Header.Set("User-Agent", ua)
		}
		r, err := c.client.Do(req)
		if err != nil {
			return err
		}
		if r.StatusCode/100 != 2 {
			return util.StatusError("cre", r)
		}
		b, err := io.ReadAll(r.Body)
		r.Body.Close()
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		return err
	}

	if n := len(body); n > 0 {
		if n > 100 {
			n = 100
		}
		slog.Debug("cre: response", "url", endpoint, "bytes", len(body), "head", string(body[:n]))
	}
	// An empty body or a JSON null is an empty report, not an error.
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}
