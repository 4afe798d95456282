package interfaces

import (
	"context"
	"time"

	"github.com/simokitafresh/database-sub001/internal/models"
)

// PriceFeedClient fetches OHLCV rows from the external market-data provider.
type PriceFeedClient interface {
	// GetEOD retrieves daily bars for [from, to] inclusive. Failures are
	// returned as *models.FetchError with the transient/permanent
	// classification already applied; transient failures have been retried
	// per the client's policy before surfacing.
	GetEOD(ctx context.Context, symbol string, from, to time.Time) ([]models.ProviderBar, error)

	// Source identifies the provider for row provenance tags.
	Source() string
}
