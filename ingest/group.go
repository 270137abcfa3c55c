package ingest

import (
	"context"

	"github.com/Dogebooch/doughub/catalog"
)

// group applies the temporal grouping heuristic to a freshly ingested
// question: if the latest parentless question from the same source was
// created less than the window before it, link the new question under it.
//
// Questions that already carry a parent are left alone — re-ingesting an
// existing question never rewires an established link. No candidate in
// the window means the question stays parentless and may itself become a
// parent for the next arrival.
func (ing *Ingestor) group(ctx context.Context, tx *catalog.Store, q *catalog.Question) error {
	if q.ParentID != nil {
		return nil
	}

	candidate, err := tx.LatestParentless(ctx, q.SourceID, q.QuestionID, q.CreatedAt, ing.groupWindow.Milliseconds())
	if err != nil {
		return err
	}
	if candidate == nil {
		return nil
	}

	if err := tx.SetParent(ctx, q.QuestionID, &candidate.QuestionID); err != nil {
		return err
	}
	q.ParentID = &candidate.QuestionID
	ing.logger.Debug("ingest: grouped question under temporal sibling",
		"question_id", q.QuestionID, "parent_id", candidate.QuestionID)
	return nil
}
