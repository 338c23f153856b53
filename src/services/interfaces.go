package services

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/username/cointax/backend/src/models"
	"github.com/username/cointax/backend/src/processors"
)

var (
	ErrParsingFailed  = errors.New("parsing failed")
	ErrNoTransactions = errors.New("no transactions stored")
)

// UploadResult summarizes one ingested file. Skipped counts rows whose id
// was already stored; re-uploading the same export is a no-op by design.
type UploadResult struct {
	Parsed   int `json:"parsed"`
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
}

// UploadService ingests export files into the stored ledger.
type UploadService interface {
	ProcessUpload(fileReader io.Reader, source string) (*UploadResult, error)
	DeleteAllTransactions() error
}

// PriceService resolves historical USD prices. It doubles as the matching
// engine's PriceFetcher; Prefetch warms the cache for a whole run so the
// replay loop itself never blocks on the network for long.
type PriceService interface {
	processors.PriceFetcher
	Prefetch(ctx context.Context, coinDates map[string][]time.Time)
}

// TaxReportService computes and serves per-year tax results.
type TaxReportService interface {
	// ComputeYear recomputes a year (and any uncomputed prior years, so
	// carryover chains are always complete) and persists the results.
	ComputeYear(ctx context.Context, year int) (*models.TaxYearResult, error)
	// GetYear returns the cached or persisted result, computing it on a miss.
	GetYear(ctx context.Context, year int) (*models.TaxYearResult, error)
	// LotSnapshots returns the open lots held at the end of a year.
	LotSnapshots(ctx context.Context, year int) ([]models.LotSnapshot, error)
	// InvalidateCache drops cached and persisted derived results after the
	// ledger changes; they are recomputed on the next request.
	InvalidateCache()
}
