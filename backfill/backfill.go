// Package backfill rebuilds the catalog from the filesystem archive: it
// scans the archive root for extraction triples (HTML, JSON sidecar,
// media) and replays each through the ingestion pipeline's catalog path.
//
// The archive is the ground truth, so backfill is always safe to re-run:
// triples whose business key is already cataloged resolve to the
// existing row and count as already present.
package backfill

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Dogebooch/doughub/archive"
	"github.com/Dogebooch/doughub/idgen"
	"github.com/Dogebooch/doughub/ingest"
)

// Summary tallies one backfill run.
type Summary struct {
	Scanned   int // triples discovered
	Ingested  int // persisted (new or already present)
	Malformed int // skipped: incomplete or unparseable triple
	Failed    int // catalog persistence errors
	Elapsed   time.Duration
}

// Runner scans an archive root and replays triples into the catalog.
type Runner struct {
	root     string
	ingestor *ingest.Ingestor
	logger   *slog.Logger
	newRunID idgen.Generator
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// New creates a Runner over the archive root and an ingestor.
func New(root string, ing *ingest.Ingestor, opts ...Option) *Runner {
	r := &Runner{
		root:     root,
		ingestor: ing,
		logger:   slog.Default(),
		newRunID: idgen.Prefixed("bf_", idgen.Default),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run scans the archive and ingests every complete triple, oldest first.
// A malformed triple is logged and skipped; it never aborts the run.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()
	runID := r.newRunID()
	log := r.logger.With("run_id", runID)

	triples, malformed, err := r.scan()
	if err != nil {
		return nil, err
	}

	sum := &Summary{Scanned: len(triples) + malformed, Malformed: malformed}
	log.Info("backfill: scan complete", "triples", len(triples), "malformed", malformed)

	for _, t := range triples {
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
		if _, err := r.ingestor.IngestArchived(ctx, t); err != nil {
			sum.Failed++
			log.Warn("backfill: triple failed", "html", t.HTMLPath, "error", err)
			continue
		}
		sum.Ingested++
	}

	sum.Elapsed = time.Since(start)
	log.Info("backfill: run complete",
		"ingested", sum.Ingested, "malformed", sum.Malformed,
		"failed", sum.Failed, "elapsed", sum.Elapsed.String())
	return sum, nil
}

// archivePrefixLayout is the timestamp part of an archive file name.
const archivePrefixLayout = "20060102_150405"

// scan walks the archive root and groups files by their shared prefix.
// Complete triples come back sorted by prefix, which is chronological
// because the prefix starts with the timestamp.
func (r *Runner) scan() ([]*ingest.ArchivedTriple, int, error) {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("backfill: read archive root: %w", err)
	}

	type group struct {
		html  string
		json  string
		media []string
	}
	groups := map[string]*group{}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if name == archive.LockFileName || strings.HasSuffix(name, ".tmp") {
			continue
		}

		prefix, kind, ok := classify(name)
		if !ok {
			r.logger.Debug("backfill: unrecognized file", "name", name)
			continue
		}
		g := groups[prefix]
		if g == nil {
			g = &group{}
			groups[prefix] = g
		}
		switch kind {
		case "html":
			g.html = name
		case "json":
			g.json = name
		default:
			g.media = append(g.media, name)
		}
	}

	prefixes := make([]string, 0, len(groups))
	for p := range groups {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)

	var triples []*ingest.ArchivedTriple
	malformed := 0
	for _, p := range prefixes {
		g := groups[p]
		if g.html == "" || g.json == "" {
			// An interrupted archive write: HTML without sidecar (or a
			// stray sidecar). Left on disk, reported, skipped.
			malformed++
			r.logger.Warn("backfill: incomplete triple skipped",
				"prefix", p, "html", g.html != "", "json", g.json != "")
			continue
		}
		sort.Strings(g.media)
		triples = append(triples, &ingest.ArchivedTriple{
			HTMLPath:   g.html,
			JSONPath:   g.json,
			MediaPaths: g.media,
			CreatedAt:  prefixTime(p),
		})
	}
	return triples, malformed, nil
}

// classify splits an archive file name into its triple prefix and kind.
// Names look like {ts}_{source}_{idx}.html, .json, or _img{N}{ext}.
func classify(name string) (prefix, kind string, ok bool) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	if i := strings.LastIndex(stem, "_img"); i > 0 {
		tail := stem[i+len("_img"):]
		if tail != "" && isDigits(tail) {
			return stem[:i], "media", true
		}
	}

	switch ext {
	case ".html":
		return stem, "html", true
	case ".json":
		return stem, "json", true
	}
	return "", "", false
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// prefixTime parses the timestamp that opens an archive prefix. Zero
// time when unparseable; the ingestor falls back to now.
func prefixTime(prefix string) time.Time {
	if len(prefix) < len(archivePrefixLayout) {
		return time.Time{}
	}
	t, err := time.ParseInLocation(archivePrefixLayout, prefix[:len(archivePrefixLayout)], time.Local)
	if err != nil {
		return time.Time{}
	}
	return t
}
