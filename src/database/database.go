package database

import (
	"database/sql"
	stdlog "log"

	"github.com/username/cointax/backend/src/logger"
	_ "modernc.org/sqlite"
)

var DB *sql.DB

// InitDB opens the SQLite database and ensures the schema. Monetary columns
// are TEXT holding exact decimal strings; REAL would reintroduce the float
// rounding the whole engine exists to avoid.
func InitDB(databasePath string) {
	db, err := sql.Open("sqlite", databasePath)
	if err != nil {
		stdlog.Fatalf("failed to open database at %s: %v", databasePath, err)
	}

	DB = db

	if logger.L != nil {
		logger.L.Info("Checking database migrations", "databasePath", databasePath)
	} else {
		stdlog.Println("Checking database migrations for:", databasePath)
	}
	migrateTransactionsTable()

	createTableStatement := `
	CREATE TABLE IF NOT EXISTS transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tx_id TEXT NOT NULL UNIQUE,
		timestamp TEXT NOT NULL,
		action TEXT NOT NULL,
		coin TEXT NOT NULL,
		amount TEXT NOT NULL,
		price_usd TEXT NOT NULL,
		fee TEXT NOT NULL,
		fee_coin TEXT,
		source TEXT NOT NULL,
		destination TEXT
	);

	CREATE TABLE IF NOT EXISTS tax_year_summaries (
		year INTEGER PRIMARY KEY,
		net_short_term TEXT NOT NULL,
		net_long_term TEXT NOT NULL,
		total_income TEXT NOT NULL,
		carryover_short TEXT NOT NULL,
		carryover_long TEXT NOT NULL,
		result_json TEXT NOT NULL,
		computed_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS lot_snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		year INTEGER NOT NULL,
		coin TEXT NOT NULL,
		source TEXT NOT NULL,
		amount TEXT NOT NULL,
		unit_cost_basis TEXT NOT NULL,
		basis_adjustment TEXT NOT NULL,
		acquired_at TEXT NOT NULL,
		acquisition_tx_id TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_lot_snapshots_year ON lot_snapshots(year);
	`

	_, err = DB.Exec(createTableStatement)
	if err != nil {
		if logger.L != nil {
			logger.L.Error("failed to create tables", "error", err)
		}
		stdlog.Fatalf("failed to create tables: %v", err)
	}
	if logger.L != nil {
		logger.L.Info("Database tables ensured/created.")
	} else {
		stdlog.Println("Database tables ensured/created.")
	}
}

func migrateTransactionsTable() {
	var tableName string
	err := DB.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='transactions'").Scan(&tableName)
	if err != nil {
		if err == sql.ErrNoRows {
			if logger.L != nil {
				logger.L.Info("'transactions' table does not exist, no migration needed as table will be created.")
			} else {
				stdlog.Println("'transactions' table does not exist, no migration needed as table will be created.")
			}
			return
		}
		if logger.L != nil {
			logger.L.Error("Error checking for 'transactions' table", "error", err)
		} else {
			stdlog.Printf("Error checking for 'transactions' table: %v", err)
		}
		return
	}

	rows, err := DB.Query("PRAGMA table_info(transactions)")
	if err != nil {
		if logger.L != nil {
			logger.L.Error("Error querying table schema for 'transactions'", "error", err)
		} else {
			stdlog.Printf("Error querying table schema for 'transactions': %v", err)
		}
		return
	}
	defer rows.Close()

	columnExists := make(map[string]bool)
	for rows.Next() {
		var cid, pk int
		var name, dataType string
		var notnullVal int
		var dfltValue interface{}

		if err := rows.Scan(&cid, &name, &dataType, &notnullVal, &dfltValue, &pk); err != nil {
			if logger.L != nil {
				logger.L.Error("Error scanning column info for 'transactions'", "error", err)
			} else {
				stdlog.Printf("Error scanning column info for 'transactions': %v", err)
			}
			return
		}
		columnExists[name] = true
	}
	if err = rows.Err(); err != nil {
		if logger.L != nil {
			logger.L.Error("Error iterating over column info for 'transactions'", "error", err)
		} else {
			stdlog.Printf("Error iterating over column info for 'transactions': %v", err)
		}
		return
	}

	if _, ok := columnExists["fee_coin"]; !ok {
		_, err := DB.Exec("ALTER TABLE transactions ADD COLUMN fee_coin TEXT")
		if err != nil {
			logger.L.Error("Error adding 'fee_coin' column to 'transactions' table", "error", err)
		} else {
			logger.L.Info("Added 'fee_coin' column to 'transactions' table")
		}
	}
	if _, ok := columnExists["destination"]; !ok {
		_, err := DB.Exec("ALTER TABLE transactions ADD COLUMN destination TEXT")
		if err != nil {
			logger.L.Error("Error adding 'destination' column to 'transactions' table", "error", err)
		} else {
			logger.L.Info("Added 'destination' column to 'transactions' table")
		}
	}
}
