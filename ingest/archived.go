package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Dogebooch/doughub/archive"
)

// ArchivedTriple is one already-archived extraction found on disk: the
// HTML file, its JSON sidecar, and any media files sharing the prefix.
// Paths are relative to the archive root.
type ArchivedTriple struct {
	HTMLPath   string
	JSONPath   string
	MediaPaths []string
	// CreatedAt is the timestamp parsed from the archive prefix. It
	// becomes the question's created_at so archive order survives
	// backfill.
	CreatedAt time.Time
}

// IngestArchived persists one archived triple into the catalog without
// touching the archive: the files on disk are already the ground truth.
// Idempotent — a triple whose business key is already cataloged resolves
// to the existing question.
func (ing *Ingestor) IngestArchived(ctx context.Context, t *ArchivedTriple) (*Outcome, error) {
	rawHTML, err := os.ReadFile(filepath.Join(ing.archiver.Root(), t.HTMLPath))
	if err != nil {
		return nil, fmt.Errorf("%w: read html: %v", ErrInvalidPayload, err)
	}
	sidecarRaw, err := os.ReadFile(filepath.Join(ing.archiver.Root(), t.JSONPath))
	if err != nil {
		return nil, fmt.Errorf("%w: read sidecar: %v", ErrInvalidPayload, err)
	}
	var sc sidecar
	if err := json.Unmarshal(sidecarRaw, &sc); err != nil {
		return nil, fmt.Errorf("%w: parse sidecar %s: %v", ErrInvalidPayload, t.JSONPath, err)
	}

	p := &Payload{
		OriginURL:    sc.URL,
		SiteHint:     sc.Site,
		RawHTML:      string(rawHTML),
		MetadataJSON: []byte(sc.Metadata),
	}
	if err := p.validate(); err != nil {
		return nil, err
	}

	sourceName := p.sourceName()
	key := p.questionKey()
	set := &archive.Set{
		HTMLPath:   t.HTMLPath,
		JSONPath:   t.JSONPath,
		MediaPaths: t.MediaPaths,
	}

	outcome := &Outcome{
		ArchiveHTMLPath:   set.HTMLPath,
		ArchiveJSONPath:   set.JSONPath,
		ArchiveMediaPaths: set.MediaPaths,
	}

	createdAt := t.CreatedAt
	if createdAt.IsZero() {
		createdAt = ing.now()
	}
	qid, mediaPaths, err := ing.persist(ctx, sourceName, key, p.OriginURL, p.RawHTML,
		string(normalizedMetadata(p.MetadataJSON)), set, createdAt.UnixMilli())
	if err != nil {
		return nil, err
	}

	outcome.CatalogPersisted = true
	outcome.QuestionID = &qid
	outcome.MediaPaths = mediaPaths
	return outcome, nil
}
