// backend/src/services/upload_service.go
package services

import (
	"fmt"
	"io"
	"time"

	"github.com/username/cointax/backend/src/database"
	"github.com/username/cointax/backend/src/logger"
	"github.com/username/cointax/backend/src/parsers"
)

type uploadServiceImpl struct {
	taxService TaxReportService
}

func NewUploadService(taxService TaxReportService) UploadService {
	return &uploadServiceImpl{taxService: taxService}
}

// ProcessUpload parses one export file and merges its rows into the stored
// ledger. Rows whose id is already stored are skipped, so re-uploading an
// overlapping export cannot duplicate transactions. Any change to the
// ledger invalidates computed tax results.
func (s *uploadServiceImpl) ProcessUpload(fileReader io.Reader, source string) (*UploadResult, error) {
	overallStartTime := time.Now()
	logger.L.Info("ProcessUpload START", "source", source)

	parser, err := parsers.GetParser(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}

	records, err := parser.Parse(fileReader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}

	inserted, err := database.SaveTransactions(records)
	if err != nil {
		return nil, fmt.Errorf("storing transactions: %w", err)
	}

	if inserted > 0 {
		s.taxService.InvalidateCache()
	}

	result := &UploadResult{
		Parsed:   len(records),
		Inserted: inserted,
		Skipped:  len(records) - inserted,
	}
	logger.L.Info("ProcessUpload END",
		"source", source, "parsed", result.Parsed, "inserted", result.Inserted,
		"skipped", result.Skipped, "duration", time.Since(overallStartTime))
	return result, nil
}

// DeleteAllTransactions clears the ledger and everything derived from it.
func (s *uploadServiceImpl) DeleteAllTransactions() error {
	if err := database.DeleteAllTransactions(); err != nil {
		return err
	}
	s.taxService.InvalidateCache()
	logger.L.Info("All transactions and derived results deleted")
	return nil
}
