package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/username/cointax/backend/src/models"
	"github.com/username/cointax/backend/src/utils"
)

// SaveTransactions inserts a batch of normalized records, silently skipping
// ids already stored. Returns how many rows were actually inserted, which
// the upload response reports so the user can see duplicate filtering work.
func SaveTransactions(records []models.TransactionRecord) (int, error) {
	tx, err := DB.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO transactions
		(tx_id, timestamp, action, coin, amount, price_usd, fee, fee_coin, source, destination)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, rec := range records {
		res, err := stmt.Exec(
			rec.ID,
			rec.Timestamp.UTC().Format(time.RFC3339),
			string(rec.Action),
			rec.Coin,
			rec.Amount.String(),
			rec.PriceUSD.String(),
			rec.Fee.String(),
			rec.FeeCoin,
			rec.Source,
			rec.Destination,
		)
		if err != nil {
			return 0, fmt.Errorf("inserting transaction %s: %w", rec.ID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transactions: %w", err)
	}
	return inserted, nil
}

// LoadTransactions returns every stored record ordered by timestamp then id.
// The ledger re-sorts anyway, but a stable read order keeps logs comparable
// between runs.
func LoadTransactions() ([]models.TransactionRecord, error) {
	rows, err := DB.Query(`
		SELECT tx_id, timestamp, action, coin, amount, price_usd, fee, fee_coin, source, destination
		FROM transactions ORDER BY timestamp, tx_id`)
	if err != nil {
		return nil, fmt.Errorf("querying transactions: %w", err)
	}
	defer rows.Close()

	var out []models.TransactionRecord
	for rows.Next() {
		var rec models.TransactionRecord
		var ts, action, amount, price, fee string
		var feeCoin, destination sql.NullString
		if err := rows.Scan(&rec.ID, &ts, &action, &rec.Coin, &amount, &price, &fee, &feeCoin, &rec.Source, &destination); err != nil {
			return nil, fmt.Errorf("scanning transaction row: %w", err)
		}
		rec.Timestamp, err = time.Parse(time.RFC3339, ts)
		if err != nil {
			return nil, fmt.Errorf("transaction %s has corrupt timestamp %q: %w", rec.ID, ts, err)
		}
		rec.Action = models.Action(action)
		if rec.Amount, err = utils.ParseDecimal(amount); err != nil {
			return nil, fmt.Errorf("transaction %s has corrupt amount %q: %w", rec.ID, amount, err)
		}
		if rec.PriceUSD, err = utils.ParseDecimal(price); err != nil {
			return nil, fmt.Errorf("transaction %s has corrupt price %q: %w", rec.ID, price, err)
		}
		if rec.Fee, err = utils.ParseDecimal(fee); err != nil {
			return nil, fmt.Errorf("transaction %s has corrupt fee %q: %w", rec.ID, fee, err)
		}
		rec.FeeCoin = feeCoin.String
		rec.Destination = destination.String
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CountTransactions returns the number of stored ledger rows.
func CountTransactions() (int, error) {
	var n int
	err := DB.QueryRow("SELECT COUNT(*) FROM transactions").Scan(&n)
	return n, err
}

// DeleteAllTransactions clears the stored ledger. Summaries and snapshots
// are cleared with it; they are derived data and would be stale.
func DeleteAllTransactions() error {
	tx, err := DB.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()
	for _, stmt := range []string{
		"DELETE FROM transactions",
		"DELETE FROM tax_year_summaries",
		"DELETE FROM lot_snapshots",
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("clearing tables: %w", err)
		}
	}
	return tx.Commit()
}

// DeleteDerived clears persisted summaries and snapshots without touching
// the ledger, after the ledger they were computed from changes.
func DeleteDerived() error {
	tx, err := DB.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()
	for _, stmt := range []string{
		"DELETE FROM tax_year_summaries",
		"DELETE FROM lot_snapshots",
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("clearing derived tables: %w", err)
		}
	}
	return tx.Commit()
}

// SaveYearResult upserts the year summary and replaces the year's lot
// snapshots in one transaction, so a crash can never leave a summary whose
// snapshots belong to a previous computation.
func SaveYearResult(result *models.TaxYearResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshaling year result: %w", err)
	}

	tx, err := DB.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO tax_year_summaries
		(year, net_short_term, net_long_term, total_income, carryover_short, carryover_long, result_json, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(year) DO UPDATE SET
			net_short_term = excluded.net_short_term,
			net_long_term = excluded.net_long_term,
			total_income = excluded.total_income,
			carryover_short = excluded.carryover_short,
			carryover_long = excluded.carryover_long,
			result_json = excluded.result_json,
			computed_at = excluded.computed_at`,
		result.Year,
		result.NetShortTerm.String(),
		result.NetLongTerm.String(),
		result.TotalIncome.String(),
		result.CarryoverOut.ShortTermLoss.String(),
		result.CarryoverOut.LongTermLoss.String(),
		string(payload),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting year summary: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM lot_snapshots WHERE year = ?", result.Year); err != nil {
		return fmt.Errorf("clearing lot snapshots: %w", err)
	}
	stmt, err := tx.Prepare(`
		INSERT INTO lot_snapshots
		(year, coin, source, amount, unit_cost_basis, basis_adjustment, acquired_at, acquisition_tx_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing snapshot insert: %w", err)
	}
	defer stmt.Close()
	for _, snap := range result.LotSnapshots {
		_, err := stmt.Exec(
			result.Year,
			snap.Coin,
			snap.Source,
			snap.Lot.Amount.String(),
			snap.Lot.UnitCostBasis.String(),
			snap.Lot.BasisAdjustment.String(),
			snap.Lot.AcquiredAt.UTC().Format(time.RFC3339),
			snap.Lot.AcquisitionTxID,
		)
		if err != nil {
			return fmt.Errorf("inserting lot snapshot: %w", err)
		}
	}
	return tx.Commit()
}

// LoadYearResult returns the persisted result for a year, or nil when the
// year has never been computed.
func LoadYearResult(year int) (*models.TaxYearResult, error) {
	var payload string
	err := DB.QueryRow("SELECT result_json FROM tax_year_summaries WHERE year = ?", year).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying year summary: %w", err)
	}
	var result models.TaxYearResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, fmt.Errorf("year %d summary is corrupt: %w", year, err)
	}
	return &result, nil
}

// LoadCarryover reads the loss carryover leaving a year. The second return
// is false when that year has no stored summary.
func LoadCarryover(year int) (models.CarryoverState, bool, error) {
	var short, long string
	err := DB.QueryRow(
		"SELECT carryover_short, carryover_long FROM tax_year_summaries WHERE year = ?", year,
	).Scan(&short, &long)
	if err == sql.ErrNoRows {
		return models.CarryoverState{}, false, nil
	}
	if err != nil {
		return models.CarryoverState{}, false, fmt.Errorf("querying carryover for %d: %w", year, err)
	}
	var state models.CarryoverState
	if state.ShortTermLoss, err = utils.ParseDecimal(short); err != nil {
		return models.CarryoverState{}, false, fmt.Errorf("year %d carryover is corrupt: %w", year, err)
	}
	if state.LongTermLoss, err = utils.ParseDecimal(long); err != nil {
		return models.CarryoverState{}, false, fmt.Errorf("year %d carryover is corrupt: %w", year, err)
	}
	return state, true, nil
}

// LoadLotSnapshots returns the end-of-year open lots persisted for a year.
func LoadLotSnapshots(year int) ([]models.LotSnapshot, error) {
	rows, err := DB.Query(`
		SELECT coin, source, amount, unit_cost_basis, basis_adjustment, acquired_at, acquisition_tx_id
		FROM lot_snapshots WHERE year = ? ORDER BY coin, source, acquired_at, id`, year)
	if err != nil {
		return nil, fmt.Errorf("querying lot snapshots: %w", err)
	}
	defer rows.Close()

	var out []models.LotSnapshot
	for rows.Next() {
		var snap models.LotSnapshot
		var amount, unit, adj, acquired string
		var txID sql.NullString
		if err := rows.Scan(&snap.Coin, &snap.Source, &amount, &unit, &adj, &acquired, &txID); err != nil {
			return nil, fmt.Errorf("scanning lot snapshot: %w", err)
		}
		if snap.Lot.Amount, err = utils.ParseDecimal(amount); err != nil {
			return nil, fmt.Errorf("lot snapshot has corrupt amount %q: %w", amount, err)
		}
		if snap.Lot.UnitCostBasis, err = utils.ParseDecimal(unit); err != nil {
			return nil, fmt.Errorf("lot snapshot has corrupt basis %q: %w", unit, err)
		}
		if snap.Lot.BasisAdjustment, err = utils.ParseDecimal(adj); err != nil {
			return nil, fmt.Errorf("lot snapshot has corrupt adjustment %q: %w", adj, err)
		}
		if snap.Lot.AcquiredAt, err = time.Parse(time.RFC3339, acquired); err != nil {
			return nil, fmt.Errorf("lot snapshot has corrupt acquired_at %q: %w", acquired, err)
		}
		snap.Lot.AcquisitionTxID = txID.String
		out = append(out, snap)
	}
	return out, rows.Err()
}
