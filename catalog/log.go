package catalog

import (
	"context"
	"time"
)

// InsertLog appends one log record. The logs table is append-only.
func (s *Store) InsertLog(ctx context.Context, rec *LogRecord) error {
	if rec.Timestamp == 0 {
		rec.Timestamp = time.Now().UnixMilli()
	}
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO logs (level, logger_name, message, timestamp) VALUES (?, ?, ?, ?)`,
		rec.Level, rec.LoggerName, rec.Message, rec.Timestamp)
	if err != nil {
		return persistErr("insert log", err)
	}
	rec.LogID, _ = res.LastInsertId()
	return nil
}

// RecentLogs returns the newest log records, most recent first.
func (s *Store) RecentLogs(ctx context.Context, limit int) ([]*LogRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.q.QueryContext(ctx,
		`SELECT log_id, level, logger_name, message, timestamp
		FROM logs ORDER BY timestamp DESC, log_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, persistErr("list logs", err)
	}
	defer rows.Close()

	var records []*LogRecord
	for rows.Next() {
		var rec LogRecord
		if err := rows.Scan(&rec.LogID, &rec.Level, &rec.LoggerName, &rec.Message, &rec.Timestamp); err != nil {
			return nil, persistErr("scan log", err)
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}
