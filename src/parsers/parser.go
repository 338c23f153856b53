// backend/src/parsers/parser.go
package parsers

import (
	"io"

	"github.com/username/cointax/backend/src/models"
)

// Parser converts one uploaded export file into normalized transaction
// records. Parsers are lenient: a row they cannot fully resolve still comes
// out as a record with zero-valued fields, and the ledger's validation pass
// turns it into an anomaly. Only structurally unreadable input is an error.
type Parser interface {
	Parse(file io.Reader) ([]models.TransactionRecord, error)
}
