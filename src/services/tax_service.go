// backend/src/services/tax_service.go
package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/username/cointax/backend/src/config"
	"github.com/username/cointax/backend/src/database"
	"github.com/username/cointax/backend/src/ledger"
	"github.com/username/cointax/backend/src/logger"
	"github.com/username/cointax/backend/src/models"
	"github.com/username/cointax/backend/src/processors"
)

const (
	ckYearResult = "res_tax_year_%d"

	DefaultCacheExpiration = 15 * time.Minute
	CacheCleanupInterval   = 30 * time.Minute
)

type taxServiceImpl struct {
	policy      *config.PolicyConfig
	prices      PriceService
	reportCache *cache.Cache

	// mu serializes computations: the engine itself is single-threaded and
	// two concurrent recomputes of overlapping years would just waste work.
	mu sync.Mutex
}

func NewTaxReportService(policy *config.PolicyConfig, prices PriceService, reportCache *cache.Cache) TaxReportService {
	return &taxServiceImpl{
		policy:      policy,
		prices:      prices,
		reportCache: reportCache,
	}
}

// ComputeYear recomputes the target year and persists it. When the prior
// year has a stored summary its carryover is reused; otherwise every year
// from the earliest transaction forward is computed in order so the
// carryover chain is complete. A corrupt prior-year summary degrades to a
// zero-carryover full recompute with an anomaly, never a refusal to run.
func (s *taxServiceImpl) ComputeYear(ctx context.Context, year int) (*models.TaxYearResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.computeYearLocked(ctx, year)
}

func (s *taxServiceImpl) computeYearLocked(ctx context.Context, year int) (*models.TaxYearResult, error) {
	records, err := database.LoadTransactions()
	if err != nil {
		return nil, fmt.Errorf("loading transactions: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrNoTransactions
	}

	l := ledger.New(records)
	s.prices.Prefetch(ctx, l.CoinDates())

	startYear := year
	var corruptAnomaly *models.AnomalyRecord

	carry, found, err := database.LoadCarryover(year - 1)
	if err != nil {
		logger.L.Warn("Prior year summary unreadable, recomputing chain with zero carryover",
			"year", year-1, "error", err)
		corruptAnomaly = &models.AnomalyRecord{
			ID:      uuid.NewString(),
			Date:    time.Date(year-1, 12, 31, 0, 0, 0, 0, time.UTC),
			Kind:    models.AnomalyCorruptPriorYear,
			Message: fmt.Sprintf("stored summary for %d is corrupt, carryover rebuilt from full history: %v", year-1, err),
		}
		found = false
		carry = models.CarryoverState{}
	}
	if !found {
		startYear = earliestYear(records, year)
		carry = models.CarryoverState{}
	}

	engine := processors.NewEngine(s.policy, s.prices)
	var result *models.TaxYearResult
	for y := startYear; y <= year; y++ {
		result = engine.Run(processors.RunInput{
			Year:        y,
			Records:     records,
			CarryoverIn: carry,
		})
		carry = result.CarryoverOut
		if err := database.SaveYearResult(result); err != nil {
			return nil, fmt.Errorf("persisting year %d: %w", y, err)
		}
	}
	if corruptAnomaly != nil {
		result.Anomalies = append(result.Anomalies, *corruptAnomaly)
	}

	s.reportCache.Set(fmt.Sprintf(ckYearResult, year), result, cache.DefaultExpiration)
	return result, nil
}

// GetYear serves the year result from cache, then from the persisted
// summary, and only computes when neither exists.
func (s *taxServiceImpl) GetYear(ctx context.Context, year int) (*models.TaxYearResult, error) {
	key := fmt.Sprintf(ckYearResult, year)
	if cached, found := s.reportCache.Get(key); found {
		if result, ok := cached.(*models.TaxYearResult); ok {
			return result, nil
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := database.LoadYearResult(year)
	if err != nil {
		logger.L.Warn("Stored year result unreadable, recomputing", "year", year, "error", err)
	} else if stored != nil {
		s.reportCache.Set(key, stored, cache.DefaultExpiration)
		return stored, nil
	}
	return s.computeYearLocked(ctx, year)
}

// LotSnapshots returns the open lots at the end of a year, computing the
// year first if it has never been computed.
func (s *taxServiceImpl) LotSnapshots(ctx context.Context, year int) ([]models.LotSnapshot, error) {
	snaps, err := database.LoadLotSnapshots(year)
	if err != nil {
		return nil, err
	}
	if snaps != nil {
		return snaps, nil
	}
	result, err := s.GetYear(ctx, year)
	if err != nil {
		return nil, err
	}
	return result.LotSnapshots, nil
}

// InvalidateCache drops every derived result. Summaries and snapshots are
// deleted too; a summary computed from a ledger that has since changed is
// worse than no summary.
func (s *taxServiceImpl) InvalidateCache() {
	s.reportCache.Flush()
	if err := database.DeleteDerived(); err != nil {
		logger.L.Error("Failed to clear derived results", "error", err)
	}
}

// earliestYear finds the first transaction year, ignoring malformed rows
// with zero timestamps. fallback caps the chain at the requested year.
func earliestYear(records []models.TransactionRecord, fallback int) int {
	earliest := fallback
	for _, rec := range records {
		if rec.Timestamp.IsZero() {
			continue
		}
		if y := rec.Timestamp.Year(); y < earliest {
			earliest = y
		}
	}
	return earliest
}
