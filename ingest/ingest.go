// Package ingest is the end-to-end coordinator for one extraction: write
// the filesystem archive, upsert the question into the catalog, relocate
// media, and link temporal siblings.
//
// The two stores are deliberately isolated: an archive failure aborts the
// ingestion, but a catalog failure after a successful archive returns an
// Outcome with CatalogPersisted=false and leaves the archive in place for
// later backfill. No data that reached either store is ever lost to a
// failure in the other.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/Dogebooch/doughub/archive"
	"github.com/Dogebooch/doughub/catalog"
	"github.com/Dogebooch/doughub/htmlmeta"
	"github.com/Dogebooch/doughub/mediastore"
)

// DefaultGroupWindow is the temporal grouping window: a new question is
// linked under the latest parentless same-source question created less
// than this long before it.
const DefaultGroupWindow = 5 * time.Minute

// Outcome reports what one ingestion achieved in each store.
type Outcome struct {
	ArchiveHTMLPath  string   `json:"archive_html_path"`
	ArchiveJSONPath  string   `json:"archive_json_path"`
	ArchiveMediaPaths []string `json:"archive_media_paths"`
	// MediaPaths are the canonical media-root-relative paths recorded in
	// the catalog. Empty when the catalog write failed.
	MediaPaths       []string `json:"media_paths"`
	CatalogPersisted bool     `json:"catalog_persisted"`
	CatalogError     string   `json:"catalog_error,omitempty"`
	QuestionID       *int64   `json:"question_id,omitempty"`
}

// Ingestor coordinates the archiver, the catalog, and the media store.
type Ingestor struct {
	store       *catalog.Store
	archiver    *archive.Archiver
	media       *mediastore.Store
	deriver     *htmlmeta.Deriver
	logger      *slog.Logger
	groupWindow time.Duration
	now         func() time.Time
}

// Option configures an Ingestor.
type Option func(*Ingestor)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(ing *Ingestor) { ing.logger = l }
}

// WithGroupWindow overrides the temporal grouping window.
func WithGroupWindow(d time.Duration) Option {
	return func(ing *Ingestor) { ing.groupWindow = d }
}

// WithClock overrides the time source. Test seam.
func WithClock(now func() time.Time) Option {
	return func(ing *Ingestor) { ing.now = now }
}

// New creates an Ingestor over an open catalog store, an archiver, and a
// media store.
func New(store *catalog.Store, ar *archive.Archiver, media *mediastore.Store, opts ...Option) *Ingestor {
	ing := &Ingestor{
		store:       store,
		archiver:    ar,
		media:       media,
		deriver:     htmlmeta.NewDeriver(),
		logger:      slog.Default(),
		groupWindow: DefaultGroupWindow,
		now:         time.Now,
	}
	for _, o := range opts {
		o(ing)
	}
	return ing
}

// IngestOne runs the full pipeline for one payload.
//
// Returns an error only for invalid payloads (ErrInvalidPayload) and
// archive failures (archive.ErrArchive). Catalog failures are folded into
// the Outcome: the archive already holds the data, so the caller gets the
// archive paths plus CatalogPersisted=false.
func (ing *Ingestor) IngestOne(ctx context.Context, p *Payload) (*Outcome, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	sourceName := p.sourceName()
	key := p.questionKey()
	log := ing.logger.With("source", sourceName, "key", key)

	sidecarJSON, err := p.sidecarJSON()
	if err != nil {
		return nil, fmt.Errorf("%w: marshal sidecar: %v", ErrInvalidPayload, err)
	}

	// Durable ground truth first. A failure here aborts the ingestion.
	set, err := ing.archiver.WriteExtraction(sourceName, []byte(p.RawHTML), sidecarJSON, p.Media)
	if err != nil {
		log.Error("ingest: archive write failed", "error", err)
		return nil, err
	}

	outcome := &Outcome{
		ArchiveHTMLPath:   set.HTMLPath,
		ArchiveJSONPath:   set.JSONPath,
		ArchiveMediaPaths: set.MediaPaths,
	}

	// The archive already holds the data, so the catalog commit must run
	// to completion even if the client hangs up mid-request.
	qid, mediaPaths, err := ing.persist(context.WithoutCancel(ctx), sourceName, key, p.OriginURL, p.RawHTML, string(normalizedMetadata(p.MetadataJSON)), set, ing.now().UnixMilli())
	if err != nil {
		// The archive stands; record the failure and report success-of-archive.
		log.Warn("ingest: catalog persist failed, archive retained", "error", err)
		outcome.CatalogError = err.Error()
		return outcome, nil
	}

	outcome.CatalogPersisted = true
	outcome.QuestionID = &qid
	outcome.MediaPaths = mediaPaths
	log.Info("ingest: extraction persisted",
		"question_id", qid, "media", len(mediaPaths), "html", set.HTMLPath)
	return outcome, nil
}

// persist runs the catalog side of an ingestion in one transaction:
// source upsert, question upsert, media attach, temporal grouping.
func (ing *Ingestor) persist(ctx context.Context, sourceName, key, originURL, rawHTML, metadataJSON string, set *archive.Set, createdAt int64) (int64, []string, error) {
	meta := ing.deriver.Derive(rawHTML, originURL)

	var qid int64
	var mediaPaths []string

	err := ing.store.WithTx(ctx, func(tx *catalog.Store) error {
		src, err := tx.GetOrCreateSource(ctx, sourceName, "")
		if err != nil {
			return err
		}

		q, err := tx.AddQuestion(ctx, catalog.QuestionInput{
			SourceID:          src.SourceID,
			SourceQuestionKey: key,
			RawHTML:           rawHTML,
			RawMetadataJSON:   metadataJSON,
			Status:            catalog.StatusExtracted,
			ExtractionPath:    set.HTMLPath,
			Title:             meta.Title,
			PreviewMarkdown:   meta.Markdown,
			CreatedAt:         createdAt,
		})
		if err != nil {
			return err
		}
		qid = q.QuestionID

		for i, archivedPath := range set.MediaPaths {
			res, err := ing.media.Relocate(
				filepath.Join(ing.archiver.Root(), archivedPath),
				sourceName, key, i)
			if err != nil {
				return err
			}
			if _, err := tx.AddMediaToQuestion(ctx, q.QuestionID, catalog.MediaInput{
				MediaRole:    "image",
				MediaType:    res.MediaType,
				MimeType:     mimeForPath(archivedPath),
				RelativePath: res.RelativePath,
			}); err != nil {
				return err
			}
			mediaPaths = append(mediaPaths, res.RelativePath)
		}

		return ing.group(ctx, tx, q)
	})
	if err != nil {
		return 0, nil, err
	}
	return qid, mediaPaths, nil
}

func normalizedMetadata(raw []byte) []byte {
	if len(raw) == 0 {
		return []byte("{}")
	}
	return raw
}

// mimeForPath recovers a MIME type from an archived media file's
// extension. The wire payload's declared type already chose the
// extension, so this round-trips for receiver ingests and gives
// backfilled triples (which declare nothing) a sensible type.
func mimeForPath(archivedPath string) string {
	switch filepath.Ext(archivedPath) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".svg":
		return "image/svg+xml"
	case ".pdf":
		return "application/pdf"
	}
	return "application/octet-stream"
}
