package store

import (
	"database/sql"
	"fmt"
)

// InsertOutputs records written files in one transaction. Writing the
// same path again for a batch replaces the earlier row.
func (s *Store) InsertOutputs(outputs []*Output) error {
	if len(outputs) == 0 {
		return nil
	}

	return s.Transaction(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO outputs (batch_id, video_id, kind, path, bytes)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(batch_id, path) DO UPDATE SET
				video_id = excluded.video_id,
				kind = excluded.kind,
				bytes = excluded.bytes,
				created_at = CURRENT_TIMESTAMP
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, o := range outputs {
			var videoID sql.NullInt64
			if o.VideoID > 0 {
				videoID = sql.NullInt64{Int64: o.VideoID, Valid: true}
			}
			if _, err := stmt.Exec(o.BatchID, videoID, o.Kind, o.Path, o.Bytes); err != nil {
				return fmt.Errorf("failed to insert output %s: %w", o.Path, err)
			}
		}
		return nil
	})
}

// GetOutputs returns every output of a batch ordered by path
func (s *Store) GetOutputs(batchID string) ([]*Output, error) {
	rows, err := s.db.Query(`
		SELECT id, batch_id, COALESCE(video_id, 0), kind, path, COALESCE(bytes, 0), created_at
		FROM outputs WHERE batch_id = ?
		ORDER BY path
	`, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query outputs: %w", err)
	}
	defer rows.Close()

	var outputs []*Output
	for rows.Next() {
		o := &Output{}
		if err := rows.Scan(&o.ID, &o.BatchID, &o.VideoID, &o.Kind, &o.Path, &o.Bytes, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan output: %w", err)
		}
		outputs = append(outputs, o)
	}
	return outputs, rows.Err()
}

// CountOutputsByKind returns kind -> count for a batch
func (s *Store) CountOutputsByKind(batchID string) (map[string]int, error) {
	return s.countBy(`SELECT kind, COUNT(*) FROM outputs WHERE batch_id = ? GROUP BY kind`, batchID)
}
