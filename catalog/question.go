package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// QuestionInput carries the fields required to insert a question.
type QuestionInput struct {
	SourceID          int64
	SourceQuestionKey string
	RawHTML           string
	RawMetadataJSON   string
	Status            string
	ExtractionPath    string
	Title             string
	PreviewMarkdown   string
	// CreatedAt overrides the insertion timestamp (UnixMilli) when
	// non-zero. Backfill uses it to preserve archive ordering.
	CreatedAt int64
}

func (in *QuestionInput) validate() error {
	switch {
	case in.SourceID <= 0:
		return fmt.Errorf("%w: source_id is required", ErrValidation)
	case in.SourceQuestionKey == "":
		return fmt.Errorf("%w: source_question_key is required", ErrValidation)
	case in.RawHTML == "":
		return fmt.Errorf("%w: raw_html is required", ErrValidation)
	case in.Status == "":
		return fmt.Errorf("%w: status is required", ErrValidation)
	case !ValidStatus(in.Status):
		return fmt.Errorf("%w: unknown status %q", ErrValidation, in.Status)
	}
	return nil
}

// AddQuestion inserts a question, or returns the existing row unchanged when
// the (source_id, source_question_key) business key is already present.
// The first writer wins; every caller receives the winner's row.
func (s *Store) AddQuestion(ctx context.Context, in QuestionInput) (*Question, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if in.RawMetadataJSON == "" {
		in.RawMetadataJSON = "{}"
	}

	existing, err := s.GetQuestionBySourceKey(ctx, in.SourceID, in.SourceQuestionKey)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	now := in.CreatedAt
	if now == 0 {
		now = time.Now().UnixMilli()
	}
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO questions (source_id, source_question_key, raw_html,
		raw_metadata_json, status, extraction_path, title, preview_markdown,
		created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.SourceID, in.SourceQuestionKey, in.RawHTML,
		in.RawMetadataJSON, in.Status, in.ExtractionPath, in.Title, in.PreviewMarkdown,
		now, now)
	if err != nil {
		if isUniqueViolation(err) {
			// Lost the insert race; the winner's row is authoritative.
			return s.GetQuestionBySourceKey(ctx, in.SourceID, in.SourceQuestionKey)
		}
		return nil, persistErr("insert question", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, persistErr("question id", err)
	}
	return &Question{
		QuestionID:        id,
		SourceID:          in.SourceID,
		SourceQuestionKey: in.SourceQuestionKey,
		RawHTML:           in.RawHTML,
		RawMetadataJSON:   in.RawMetadataJSON,
		Status:            in.Status,
		ExtractionPath:    in.ExtractionPath,
		Title:             in.Title,
		PreviewMarkdown:   in.PreviewMarkdown,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

const questionColumns = `question_id, source_id, source_question_key, raw_html,
	raw_metadata_json, status, extraction_path, title, preview_markdown,
	parent_id, created_at, updated_at`

// GetQuestionBySourceKey returns the question for the business key, or nil.
func (s *Store) GetQuestionBySourceKey(ctx context.Context, sourceID int64, key string) (*Question, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+questionColumns+` FROM questions
		WHERE source_id = ? AND source_question_key = ?`, sourceID, key)
	return scanQuestionRow(row)
}

// GetQuestion returns the question with the given ID, or nil.
func (s *Store) GetQuestion(ctx context.Context, id int64) (*Question, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE question_id = ?`, id)
	return scanQuestionRow(row)
}

// ListQuestions returns questions newest first, optionally filtered by
// source. sourceID <= 0 means all sources.
func (s *Store) ListQuestions(ctx context.Context, sourceID int64) ([]*Question, error) {
	query := `SELECT ` + questionColumns + ` FROM questions`
	var args []any
	if sourceID > 0 {
		query += ` WHERE source_id = ?`
		args = append(args, sourceID)
	}
	query += ` ORDER BY created_at DESC, question_id DESC`

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistErr("list questions", err)
	}
	defer rows.Close()

	var questions []*Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// UpdateQuestionStatus moves a question to a new lifecycle status.
func (s *Store) UpdateQuestionStatus(ctx context.Context, id int64, status string) error {
	if !ValidStatus(status) {
		return fmt.Errorf("%w: unknown status %q", ErrValidation, status)
	}
	res, err := s.q.ExecContext(ctx,
		`UPDATE questions SET status = ? WHERE question_id = ?`, status, id)
	if err != nil {
		return persistErr("update status", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: question %d not found", ErrValidation, id)
	}
	return nil
}

// SetParent links a question under a parent, or clears the link when
// parentID is nil. The parent must exist, belong to the same source, and
// differ from the child.
func (s *Store) SetParent(ctx context.Context, id int64, parentID *int64) error {
	if parentID == nil {
		_, err := s.q.ExecContext(ctx,
			`UPDATE questions SET parent_id = NULL WHERE question_id = ?`, id)
		if err != nil {
			return persistErr("clear parent", err)
		}
		return nil
	}
	if *parentID == id {
		return fmt.Errorf("%w: question cannot be its own parent", ErrValidation)
	}

	child, err := s.GetQuestion(ctx, id)
	if err != nil {
		return err
	}
	if child == nil {
		return fmt.Errorf("%w: question %d not found", ErrValidation, id)
	}
	parent, err := s.GetQuestion(ctx, *parentID)
	if err != nil {
		return err
	}
	if parent == nil {
		return fmt.Errorf("%w: parent %d not found", ErrValidation, *parentID)
	}
	if parent.SourceID != child.SourceID {
		return fmt.Errorf("%w: parent belongs to a different source", ErrValidation)
	}

	if _, err := s.q.ExecContext(ctx,
		`UPDATE questions SET parent_id = ? WHERE question_id = ?`, *parentID, id); err != nil {
		return persistErr("set parent", err)
	}
	return nil
}

// ListChildren returns the direct children of a question, oldest first.
// Loading is shallow: grandchildren are not followed.
func (s *Store) ListChildren(ctx context.Context, parentID int64) ([]*Question, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+questionColumns+` FROM questions
		WHERE parent_id = ? ORDER BY created_at ASC, question_id ASC`, parentID)
	if err != nil {
		return nil, persistErr("list children", err)
	}
	defer rows.Close()

	var children []*Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		children = append(children, q)
	}
	return children, rows.Err()
}

// LatestParentless returns the most recent question from the same source
// that has no parent, is not excludeID, and was created inside
// (before-window, before). Used by the grouping heuristic: the lower bound
// is strict, so a candidate created exactly window before is excluded.
func (s *Store) LatestParentless(ctx context.Context, sourceID, excludeID int64, before, window int64) (*Question, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+questionColumns+` FROM questions
		WHERE source_id = ?
		  AND parent_id IS NULL
		  AND question_id != ?
		  AND created_at > ?
		  AND created_at < ?
		ORDER BY created_at DESC, question_id DESC
		LIMIT 1`, sourceID, excludeID, before-window, before)
	return scanQuestionRow(row)
}

func scanQuestionRow(row *sql.Row) (*Question, error) {
	var q Question
	err := row.Scan(
		&q.QuestionID, &q.SourceID, &q.SourceQuestionKey, &q.RawHTML,
		&q.RawMetadataJSON, &q.Status, &q.ExtractionPath, &q.Title, &q.PreviewMarkdown,
		&q.ParentID, &q.CreatedAt, &q.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, persistErr("scan question", err)
	}
	return &q, nil
}

func scanQuestion(rows *sql.Rows) (*Question, error) {
	var q Question
	err := rows.Scan(
		&q.QuestionID, &q.SourceID, &q.SourceQuestionKey, &q.RawHTML,
		&q.RawMetadataJSON, &q.Status, &q.ExtractionPath, &q.Title, &q.PreviewMarkdown,
		&q.ParentID, &q.CreatedAt, &q.UpdatedAt,
	)
	if err != nil {
		return nil, persistErr("scan question", err)
	}
	return &q, nil
}
