package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const batchColumns = `id, name, output_root, COALESCE(sources_json, ''), started_at, finished_at,
	status, total, processed, failed, skipped`

// CreateBatch inserts a new batch in the running state
func (s *Store) CreateBatch(b *Batch) error {
	if b.Status == "" {
		b.Status = BatchRunning
	}
	if b.StartedAt.IsZero() {
		b.StartedAt = time.Now()
	}
	sources, err := json.Marshal(b.Sources)
	if err != nil {
		return fmt.Errorf("failed to encode sources: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO batches (id, name, output_root, sources_json, started_at, status, total)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, b.ID, b.Name, b.OutputRoot, string(sources), b.StartedAt, b.Status, b.Total)
	if err != nil {
		return fmt.Errorf("failed to create batch: %w", err)
	}
	return nil
}

// ReopenBatch marks an existing batch as running again for a resumed run
func (s *Store) ReopenBatch(id string, total int) error {
	_, err := s.db.Exec(`
		UPDATE batches SET status = ?, finished_at = NULL, total = ? WHERE id = ?
	`, BatchRunning, total, id)
	if err != nil {
		return fmt.Errorf("failed to reopen batch: %w", err)
	}
	return nil
}

// UpdateBatchCounts stores progress counters
func (s *Store) UpdateBatchCounts(id string, processed, failed, skipped int) error {
	_, err := s.db.Exec(`
		UPDATE batches SET processed = ?, failed = ?, skipped = ? WHERE id = ?
	`, processed, failed, skipped, id)
	if err != nil {
		return fmt.Errorf("failed to update batch counts: %w", err)
	}
	return nil
}

// FinishBatch records the final status of a batch
func (s *Store) FinishBatch(id, status string) error {
	_, err := s.db.Exec(`
		UPDATE batches SET status = ?, finished_at = ? WHERE id = ?
	`, status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to finish batch: %w", err)
	}
	return nil
}

// GetBatch retrieves a batch by id. A missing batch returns nil, nil.
func (s *Store) GetBatch(id string) (*Batch, error) {
	return s.queryBatch(`SELECT `+batchColumns+` FROM batches WHERE id = ?`, id)
}

// GetBatchByName returns the most recent batch with the given name
func (s *Store) GetBatchByName(name string) (*Batch, error) {
	return s.queryBatch(`SELECT `+batchColumns+` FROM batches WHERE name = ?
		ORDER BY started_at DESC LIMIT 1`, name)
}

// LatestBatch returns the most recently started batch
func (s *Store) LatestBatch() (*Batch, error) {
	return s.queryBatch(`SELECT ` + batchColumns + ` FROM batches ORDER BY started_at DESC LIMIT 1`)
}

// ListBatches returns all batches, newest first
func (s *Store) ListBatches() ([]*Batch, error) {
	rows, err := s.db.Query(`SELECT ` + batchColumns + ` FROM batches ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query batches: %w", err)
	}
	defer rows.Close()

	var batches []*Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

func (s *Store) queryBatch(query string, args ...any) (*Batch, error) {
	b, err := scanBatch(s.db.QueryRow(query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return b, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBatch(row rowScanner) (*Batch, error) {
	b := &Batch{}
	var sources string
	var finished sql.NullTime
	err := row.Scan(&b.ID, &b.Name, &b.OutputRoot, &sources, &b.StartedAt, &finished,
		&b.Status, &b.Total, &b.Processed, &b.Failed, &b.Skipped)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan batch: %w", err)
	}
	if finished.Valid {
		t := finished.Time
		b.FinishedAt = &t
	}
	if sources != "" {
		if err := json.Unmarshal([]byte(sources), &b.Sources); err != nil {
			return nil, fmt.Errorf("failed to decode batch sources: %w", err)
		}
	}
	return b, nil
}
