package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// GetOrCreateSource returns the source named name, inserting it first if
// absent. Idempotent across sessions: two concurrent callers both receive
// the same row — the loser of the insert race re-reads the winner's row
// via the UNIQUE(name) constraint.
func (s *Store) GetOrCreateSource(ctx context.Context, name, description string) (*Source, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: source name is required", ErrValidation)
	}

	src, err := s.GetSourceByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if src != nil {
		return src, nil
	}

	now := time.Now().UnixMilli()
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO sources (name, description, created_at) VALUES (?, ?, ?)`,
		name, description, now)
	if err != nil {
		if isUniqueViolation(err) {
			// Lost the insert race: another session created it first.
			return s.GetSourceByName(ctx, name)
		}
		return nil, persistErr("insert source", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, persistErr("source id", err)
	}
	return &Source{SourceID: id, Name: name, Description: description, CreatedAt: now}, nil
}

// GetSourceByName returns the source with the given name, or nil.
func (s *Store) GetSourceByName(ctx context.Context, name string) (*Source, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT source_id, name, description, created_at FROM sources WHERE name = ?`, name)
	var src Source
	err := row.Scan(&src.SourceID, &src.Name, &src.Description, &src.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, persistErr("scan source", err)
	}
	return &src, nil
}

// GetSource returns the source with the given ID, or nil.
func (s *Store) GetSource(ctx context.Context, id int64) (*Source, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT source_id, name, description, created_at FROM sources WHERE source_id = ?`, id)
	var src Source
	err := row.Scan(&src.SourceID, &src.Name, &src.Description, &src.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, persistErr("scan source", err)
	}
	return &src, nil
}

// ListSources returns all sources ordered by name.
func (s *Store) ListSources(ctx context.Context) ([]*Source, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT source_id, name, description, created_at FROM sources ORDER BY name`)
	if err != nil {
		return nil, persistErr("list sources", err)
	}
	defer rows.Close()

	var sources []*Source
	for rows.Next() {
		var src Source
		if err := rows.Scan(&src.SourceID, &src.Name, &src.Description, &src.CreatedAt); err != nil {
			return nil, persistErr("scan source", err)
		}
		sources = append(sources, &src)
	}
	return sources, rows.Err()
}

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint error.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint")
}
