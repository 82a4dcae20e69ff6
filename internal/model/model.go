package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type FuelType string

const (
	Gasoline FuelType = "gasoline"
	Diesel   FuelType = "diesel"
)

// Location is one municipality of the CRE catalog.
type Location struct {
	StateID    string `json:"state_id"`    // 2 digits, zero padded
	LocationID string `json:"location_id"` // 3 digits, zero padded
	State      string `json:"state"`
	Name       string `json:"location"`
}

func (l Location) Key() string { return CatalogKey(l.StateID, l.LocationID) }

// Catalog indexes locations by CatalogKey.
type Catalog map[string]Location

func CatalogKey(stateID, locationID string) string { return stateID + "-" + locationID }

func NewCatalog(locs []Location) Catalog {
	c := make(Catalog, len(locs))
	for _, l := range locs {
		c[l.Key()] = l
	}
	return c
}

// PriceRecord is one fuel price observation for a station.
type PriceRecord struct {
	Location  Location        `json:"location"`
	Brand     string          `json:"brand"`
	Station   string          `json:"station"`
	Type      FuelType        `json:"type"`
	Product   string          `json:"product"` // first word of the sub-product, e.g. Regular
	Price     decimal.Decimal `json:"price"`
	AppliedAt time.Time       `json:"applied_at"`
}

// Event is the destination representation of a PriceRecord.
type Event struct {
	EventType string
	Location  string
	State     string
	Brand     string
	Station   string
	Type      string
	Product   string
	Price     float64
	AppliedAt int64 // unix seconds

	// Attrs holds derived attributes (postprocess); they never override the fields above.
	Attrs map[string]string
}

// Field returns a named event field as a string, used by rule matching and label builders.
func (e Event) Field(name string) string {
	switch name {
	case "location":
		return e.Location
	case "state":
		return e.State
	case "brand":
		return e.Brand
	case "station":
		return e.Station
	case "type":
		return e.Type
	case "product":
		return e.Product
	default:
		return e.Attrs[name]
	}
}

// MarshalJSON renders the flat object expected by the insights collector.
func (e Event) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, 9+len(e.Attrs))
	for k, v := range e.Attrs {
		m[k] = v
	}
	m["eventType"] = e.EventType
	m["location"] = e.Location
	m["state"] = e.State
	m["brand"] = e.Brand
	m["station"] = e.Station
	m["type"] = e.Type
	m["product"] = e.Product
	m["price"] = e.Price
	m["applied_at"] = e.AppliedAt
	return json.Marshal(m)
}
