package catalog

import (
	"context"
	"fmt"
	"time"
)

// MediaInput carries the fields required to attach media to a question.
type MediaInput struct {
	MediaRole    string
	MediaType    string
	MimeType     string
	RelativePath string
}

// AddMediaToQuestion attaches a media row to an existing question.
// Duplicates (same relative_path for the same question) are allowed by
// design; callers achieve idempotency by computing stable paths.
func (s *Store) AddMediaToQuestion(ctx context.Context, questionID int64, in MediaInput) (*Media, error) {
	if in.RelativePath == "" {
		return nil, fmt.Errorf("%w: relative_path is required", ErrValidation)
	}
	if in.MediaRole == "" {
		in.MediaRole = "image"
	}
	if in.MediaType == "" {
		in.MediaType = "image"
	}

	q, err := s.GetQuestion(ctx, questionID)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, fmt.Errorf("%w: question %d not found", ErrValidation, questionID)
	}

	now := time.Now().UnixMilli()
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO media (question_id, media_role, media_type, mime_type, relative_path, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		questionID, in.MediaRole, in.MediaType, in.MimeType, in.RelativePath, now)
	if err != nil {
		return nil, persistErr("insert media", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, persistErr("media id", err)
	}
	return &Media{
		MediaID:      id,
		QuestionID:   questionID,
		MediaRole:    in.MediaRole,
		MediaType:    in.MediaType,
		MimeType:     in.MimeType,
		RelativePath: in.RelativePath,
		CreatedAt:    now,
	}, nil
}

// GetMediaForQuestion returns a question's media rows in insertion order.
func (s *Store) GetMediaForQuestion(ctx context.Context, questionID int64) ([]*Media, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT media_id, question_id, media_role, media_type, mime_type, relative_path, created_at
		FROM media WHERE question_id = ? ORDER BY media_id`, questionID)
	if err != nil {
		return nil, persistErr("list media", err)
	}
	defer rows.Close()

	var media []*Media
	for rows.Next() {
		var m Media
		if err := rows.Scan(&m.MediaID, &m.QuestionID, &m.MediaRole, &m.MediaType,
			&m.MimeType, &m.RelativePath, &m.CreatedAt); err != nil {
			return nil, persistErr("scan media", err)
		}
		media = append(media, &m)
	}
	return media, rows.Err()
}
