package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"rnav-scraper/models"

	"github.com/google/uuid"
)

// Run statuses
const (
	StatusCreated    = "created"
	StatusInProgress = "in_progress"
	StatusDone       = "done"
	StatusFailed     = "failed"
)

// Run represents one scrape of a group key
type Run struct {
	ID            int
	GroupKey      string
	Status        string // "created", "in_progress", "done", "failed"
	RecordsCount  int
	PagesCount    int
	RejectedCount int
	LastError     sql.NullString
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// executor is satisfied by *sql.DB and *sql.Tx
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// CreateRun inserts a run in the created state
func (db *DB) CreateRun(ctx context.Context, groupKey string) (*Run, error) {
	var run Run
	err := db.conn.QueryRowContext(ctx, `
		INSERT INTO `+runsTable+` (group_key, status)
		VALUES ($1, 'created')
		RETURNING id, group_key, status, records_count, pages_count, rejected_count, last_error, created_at, updated_at
	`, groupKey).Scan(
		&run.ID, &run.GroupKey, &run.Status, &run.RecordsCount, &run.PagesCount,
		&run.RejectedCount, &run.LastError, &run.CreatedAt, &run.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return &run, nil
}

// UpdateRunStatus updates the status of a run
func (db *DB) UpdateRunStatus(ctx context.Context, runID int, status string) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE `+runsTable+`
		SET status = $1, updated_at = CURRENT_TIMESTAMP
		WHERE id = $2
	`, status, runID)
	if err != nil {
		return fmt.Errorf("failed to update run %d status: %w", runID, err)
	}
	return nil
}

// FinishRun stores the outcome and counters of a run
func (db *DB) FinishRun(ctx context.Context, runID int, status string, records, pages, rejected int, runErr error) error {
	var lastError sql.NullString
	if runErr != nil {
		lastError = sql.NullString{String: runErr.Error(), Valid: true}
	}
	_, err := db.conn.ExecContext(ctx, `
		UPDATE `+runsTable+`
		SET status = $1, records_count = $2, pages_count = $3, rejected_count = $4, last_error = $5, updated_at = CURRENT_TIMESTAMP
		WHERE id = $6
	`, status, records, pages, rejected, lastError, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run %d: %w", runID, err)
	}
	return nil
}

// SaveRejections stores the invalid addresses found during a run
func (db *DB) SaveRejections(ctx context.Context, runID int, rejections []models.RejectedEmail) error {
	if len(rejections) == 0 {
		return nil
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, r := range rejections {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO `+rejectedTable+` (run_id, record_id, record_name, raw_value)
			VALUES ($1, $2, $3, $4)
		`, runID, r.RecordID, r.RecordName, r.RawValue)
		if err != nil {
			return fmt.Errorf("failed to save rejected email for %q: %w", r.RecordName, err)
		}
	}
	return tx.Commit()
}

// LatestRejections returns the unresolved invalid addresses of the most
// recent run of a group that produced any
func (db *DB) LatestRejections(ctx context.Context, groupKey string) ([]models.RejectedEmail, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT record_id, record_name, raw_value
		FROM `+rejectedTable+`
		WHERE run_id = (
			SELECT MAX(id) FROM `+runsTable+`
			WHERE group_key = $1 AND rejected_count > 0
		)
		AND resolved_at IS NULL
		ORDER BY id ASC
	`, groupKey)
	if err != nil {
		return nil, fmt.Errorf("failed to query rejected emails: %w", err)
	}
	defer rows.Close()

	var rejections []models.RejectedEmail
	for rows.Next() {
		var r models.RejectedEmail
		if err := rows.Scan(&r.RecordID, &r.RecordName, &r.RawValue); err != nil {
			return nil, fmt.Errorf("failed to scan rejected email: %w", err)
		}
		rejections = append(rejections, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rejected emails: %w", err)
	}
	return rejections, nil
}

// ResolveRejections marks the stored rejections of a group as corrected so
// they are not offered again
func (db *DB) ResolveRejections(ctx context.Context, groupKey string, resolved []models.RejectedEmail) error {
	if len(resolved) == 0 {
		return nil
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, r := range resolved {
		_, err := tx.ExecContext(ctx, `
			UPDATE `+rejectedTable+` SET resolved_at = CURRENT_TIMESTAMP
			WHERE record_id = $1 AND raw_value = $2 AND resolved_at IS NULL
			AND run_id IN (SELECT id FROM `+runsTable+` WHERE group_key = $3)
		`, r.RecordID, r.RawValue, groupKey)
		if err != nil {
			return fmt.Errorf("failed to resolve rejected email for %q: %w", r.RecordName, err)
		}
	}
	return tx.Commit()
}

// AppendRecords upserts records by id; records without one get a fresh id
func (db *DB) AppendRecords(ctx context.Context, groupKey string, records []models.Record) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertRecords(ctx, tx, groupKey, records); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit records: %w", err)
	}
	db.logger.Debugf("Saved %d records for %s", len(records), groupKey)
	return nil
}

// LoadLatest returns the stored records of a group in insertion order
func (db *DB) LoadLatest(ctx context.Context, groupKey string) ([]models.Record, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, name, phone, email, locality, group_key
		FROM `+recordsTable+`
		WHERE group_key = $1
		ORDER BY seq ASC
	`, groupKey)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var records []models.Record
	for rows.Next() {
		var r models.Record
		if err := rows.Scan(&r.ID, &r.Name, &r.Phone, &r.Email, &r.Locality, &r.GroupKey); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read records: %w", err)
	}
	return records, nil
}

// Overwrite replaces every record of a group in one transaction
func (db *DB) Overwrite(ctx context.Context, groupKey string, records []models.Record) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM `+recordsTable+` WHERE group_key = $1`, groupKey); err != nil {
		return fmt.Errorf("failed to clear records: %w", err)
	}
	if err := insertRecords(ctx, tx, groupKey, records); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit records: %w", err)
	}
	return nil
}

func insertRecords(ctx context.Context, ex executor, groupKey string, records []models.Record) error {
	for _, r := range records {
		id := r.ID
		if id == "" {
			id = uuid.NewString()
		}
		_, err := ex.ExecContext(ctx, `
			INSERT INTO `+recordsTable+` (id, group_key, name, phone, email, locality)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE
			SET group_key = EXCLUDED.group_key, name = EXCLUDED.name, phone = EXCLUDED.phone,
				email = EXCLUDED.email, locality = EXCLUDED.locality
		`, id, groupKey, r.Name, r.Phone, r.Email, r.Locality)
		if err != nil {
			return fmt.Errorf("failed to save record %q: %w", r.Name, err)
		}
	}
	return nil
}
