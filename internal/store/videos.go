package store

import (
	"database/sql"
	"fmt"
	"time"
)

// InsertVideos adds discovered videos to a batch in one transaction.
// A video already known to the batch keeps its status and result; only
// its path and size are refreshed. IDs are filled in on return.
func (s *Store) InsertVideos(batchID string, videos []*Video) error {
	return s.Transaction(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO videos (batch_id, file_key, src_path, rel_path, size_bytes, mtime_unix, status)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(batch_id, file_key) DO UPDATE SET
				src_path = excluded.src_path,
				rel_path = excluded.rel_path,
				size_bytes = excluded.size_bytes,
				mtime_unix = excluded.mtime_unix,
				updated_at = CURRENT_TIMESTAMP
			RETURNING id, status, attempts
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, v := range videos {
			v.BatchID = batchID
			status := v.Status
			if status == "" {
				status = VideoPending
			}
			err := stmt.QueryRow(batchID, v.FileKey, v.SrcPath, v.RelPath, v.SizeBytes, v.MtimeUnix, status).
				Scan(&v.ID, &v.Status, &v.Attempts)
			if err != nil {
				return fmt.Errorf("failed to insert video %s: %w", v.SrcPath, err)
			}
		}
		return nil
	})
}

// SaveResult stores the extracted record and assignment of a video and
// marks it done, atomically.
func (s *Store) SaveResult(videoID int64, recordJSON string, a *Assignment, attempts int) error {
	return s.Transaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			UPDATE videos SET status = ?, error = NULL, record_json = ?, attempts = ?, updated_at = ?
			WHERE id = ?
		`, VideoDone, recordJSON, attempts, time.Now(), videoID)
		if err != nil {
			return fmt.Errorf("failed to update video: %w", err)
		}

		_, err = tx.Exec(`
			INSERT OR REPLACE INTO assignments (video_id, mission, confidence, bay, method, note)
			VALUES (?, ?, ?, ?, ?, ?)
		`, videoID, a.Mission, a.Confidence, a.Bay, a.Method, a.Note)
		if err != nil {
			return fmt.Errorf("failed to store assignment: %w", err)
		}
		return nil
	})
}

// MarkVideoFailed records a video that failed after all attempts
func (s *Store) MarkVideoFailed(videoID int64, errMsg string, attempts int) error {
	_, err := s.db.Exec(`
		UPDATE videos SET status = ?, error = ?, attempts = ?, updated_at = ?
		WHERE id = ?
	`, VideoFailed, errMsg, attempts, time.Now(), videoID)
	if err != nil {
		return fmt.Errorf("failed to update video status: %w", err)
	}
	return nil
}

// GetVideos returns every video of a batch with its assignment, ordered
// by source path
func (s *Store) GetVideos(batchID string) ([]*VideoResult, error) {
	return s.queryVideos(`WHERE v.batch_id = ? ORDER BY v.src_path`, batchID)
}

// GetVideosByStatus returns the videos of a batch in one status
func (s *Store) GetVideosByStatus(batchID, status string) ([]*VideoResult, error) {
	return s.queryVideos(`WHERE v.batch_id = ? AND v.status = ? ORDER BY v.src_path`, batchID, status)
}

// CompletedKeys returns the file keys of videos already done in a batch
func (s *Store) CompletedKeys(batchID string) (map[string]bool, error) {
	rows, err := s.db.Query(`SELECT file_key FROM videos WHERE batch_id = ? AND status = ?`, batchID, VideoDone)
	if err != nil {
		return nil, fmt.Errorf("failed to query completed videos: %w", err)
	}
	defer rows.Close()

	keys := make(map[string]bool)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan file key: %w", err)
		}
		keys[key] = true
	}
	return keys, rows.Err()
}

// CountVideosByStatus returns status -> count for a batch
func (s *Store) CountVideosByStatus(batchID string) (map[string]int, error) {
	return s.countBy(`SELECT status, COUNT(*) FROM videos WHERE batch_id = ? GROUP BY status`, batchID)
}

// CountByMission returns mission -> count of done videos for a batch
func (s *Store) CountByMission(batchID string) (map[string]int, error) {
	return s.countBy(`
		SELECT a.mission, COUNT(*) FROM assignments a
		JOIN videos v ON v.id = a.video_id
		WHERE v.batch_id = ? AND v.status = 'done'
		GROUP BY a.mission
	`, batchID)
}

func (s *Store) countBy(query string, args ...any) (map[string]int, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[key] = n
	}
	return counts, rows.Err()
}

func (s *Store) queryVideos(where string, args ...any) ([]*VideoResult, error) {
	rows, err := s.db.Query(`
		SELECT v.id, v.batch_id, v.file_key, v.src_path, COALESCE(v.rel_path, ''),
		       COALESCE(v.size_bytes, 0), COALESCE(v.mtime_unix, 0), v.status,
		       COALESCE(v.error, ''), COALESCE(v.attempts, 0), COALESCE(v.record_json, ''), v.updated_at,
		       a.mission, a.confidence, a.bay, a.method, a.note
		FROM videos v
		LEFT JOIN assignments a ON a.video_id = v.id
		`+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query videos: %w", err)
	}
	defer rows.Close()

	var results []*VideoResult
	for rows.Next() {
		r := &VideoResult{}
		var mission, bay, method, note sql.NullString
		var confidence sql.NullFloat64
		err := rows.Scan(
			&r.ID, &r.BatchID, &r.FileKey, &r.SrcPath, &r.RelPath,
			&r.SizeBytes, &r.MtimeUnix, &r.Status,
			&r.Error, &r.Attempts, &r.RecordJSON, &r.UpdatedAt,
			&mission, &confidence, &bay, &method, &note,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan video: %w", err)
		}
		if mission.Valid {
			r.Assignment = &Assignment{
				VideoID:    r.ID,
				Mission:    mission.String,
				Confidence: confidence.Float64,
				Bay:        bay.String,
				Method:     method.String,
				Note:       note.String,
			}
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
