package source

import (
	"context"

	"github.com/DataNerdsMX/fuel-prices-mx/internal/model"
)

// Source is the pricing report API queried by the fetcher.
type Source interface {
	Name() string
	Locations(ctx context.Context) ([]model.Location, error)
	// Prices returns the current report for loc. Rows that cannot be parsed are
	// skipped and counted; catalog resolves the location of each row.
	Prices(ctx context.Context, loc model.Location, catalog model.Catalog) ([]model.PriceRecord, int, error)
}
