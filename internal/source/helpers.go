package source

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// flexID accepts catalog ids sent either as JSON strings or numbers.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*f = flexID(n.String())
	return nil
}

// LocationKey normalizes raw ids into the zero padded (state, location) pair,
// e.g. ("2", "12") -> ("02", "012").
func LocationKey(stateID, locationID string) (string, string) {
	return leftPad(strings.TrimSpace(stateID), 2), leftPad(strings.TrimSpace(locationID), 3)
}

func leftPad(s string, n int) string {
	if len(s) >= n {
		return s
	}
	return strings.Repeat("0", n-len(s)) + s
}

// parsePrice reads PrecioVigente, sent as a JSON number or string. Missing, null
// and blank prices are errors so the row is never uploaded as zero.
func parsePrice(raw json.RawMessage) (decimal.Decimal, error) {
	b := bytes.TrimSpace(raw)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return decimal.Decimal{}, fmt.Errorf("missing PrecioVigente")
	}
	s := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return decimal.Decimal{}, fmt.Errorf("PrecioVigente: %w", err)
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return decimal.Decimal{}, fmt.Errorf("empty PrecioVigente")
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("PrecioVigente %q: %w", s, err)
	}
	return d, nil
}

const appliedLayout = "2006-01-02T15:04:05"

// parseApplied reads FechaAplicacion, a local timestamp without offset. A few
// deployments append fractional seconds or an offset, accept those too.
func parseApplied(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.ParseInLocation(appliedLayout, s, loc); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04:05.999999999", s, loc); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unsupported FechaAplicacion: %q", s)
}

func productName(sub string) string {
	f := strings.Fields(sub)
	if len(f) == 0 {
		return ""
	}
	return f[0]
}
