// Package archive writes the append-only filesystem record of each
// extraction: raw HTML, a JSON metadata sidecar, and any media blobs,
// all sharing one timestamped prefix.
//
// Files are written atomically (write .tmp then rename) so a consumer
// never observes a partial file, and in a fixed order (HTML, JSON, media)
// so an interrupted archive is detectable as "JSON missing" during
// backfill. Archive files are never renamed or deleted.
package archive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// ErrArchive is returned when a filesystem write fails. Fatal to ingestion:
// the archive is the durable ground truth, so there is nothing to fall
// back to.
var ErrArchive = errors.New("archive: write failure")

// ErrLocked is returned when another process already holds the archive
// root. The per-day name counter is process-local, so two writers on one
// root could collide.
var ErrLocked = errors.New("archive: root locked by another process")

// LockFileName is the flock file created inside the archive root.
const LockFileName = "archive.lock"

// Blob is one media attachment to archive alongside the HTML.
type Blob struct {
	Data     []byte
	Filename string // suggested name from the userscript; only its extension is used
	MimeType string
}

// Set lists the files written for one extraction, as paths relative to
// the archive root.
type Set struct {
	HTMLPath  string
	JSONPath  string
	MediaPaths []string
}

// Archiver generates unique timestamped names and writes extraction sets
// under a single archive root.
type Archiver struct {
	root string
	now  func() time.Time

	mu      sync.Mutex
	day     string
	counter int
	lock    *flock.Flock
}

// Option configures an Archiver.
type Option func(*Archiver)

// WithClock overrides the time source. Test seam.
func WithClock(now func() time.Time) Option {
	return func(ar *Archiver) { ar.now = now }
}

// New creates an Archiver rooted at root. The directory is created on
// first write.
func New(root string, opts ...Option) *Archiver {
	ar := &Archiver{root: root, now: time.Now}
	for _, o := range opts {
		o(ar)
	}
	return ar
}

// Root returns the archive root path.
func (ar *Archiver) Root() string { return ar.root }

// Lock acquires the archive root for this process. It fails with
// ErrLocked when another process holds it. Call Unlock on shutdown.
func (ar *Archiver) Lock() error {
	if err := os.MkdirAll(ar.root, 0o755); err != nil {
		return fmt.Errorf("%w: mkdir %s: %v", ErrArchive, ar.root, err)
	}
	fl := flock.New(filepath.Join(ar.root, LockFileName))
	ok, err := fl.TryLock()
	if err != nil {
		return fmt.Errorf("%w: lock: %v", ErrArchive, err)
	}
	if !ok {
		return ErrLocked
	}
	ar.lock = fl
	return nil
}

// Unlock releases the archive root lock, if held.
func (ar *Archiver) Unlock() {
	if ar.lock != nil {
		ar.lock.Unlock()
		ar.lock = nil
	}
}

// WriteExtraction archives one extraction: HTML first, then the JSON
// sidecar, then each media blob. Returns the root-relative paths.
func (ar *Archiver) WriteExtraction(source string, html, metaJSON []byte, media []Blob) (*Set, error) {
	if err := os.MkdirAll(ar.root, 0o755); err != nil {
		return nil, fmt.Errorf("%w: mkdir %s: %v", ErrArchive, ar.root, err)
	}

	prefix := ar.nextPrefix(source)
	set := &Set{
		HTMLPath: prefix + ".html",
		JSONPath: prefix + ".json",
	}

	if err := ar.writeAtomic(set.HTMLPath, html); err != nil {
		return nil, err
	}
	if err := ar.writeAtomic(set.JSONPath, metaJSON); err != nil {
		return nil, err
	}
	for i, blob := range media {
		name := fmt.Sprintf("%s_img%d%s", prefix, i, ExtFor(blob.Filename, blob.MimeType))
		if err := ar.writeAtomic(name, blob.Data); err != nil {
			return nil, err
		}
		set.MediaPaths = append(set.MediaPaths, name)
	}
	return set, nil
}

// nextPrefix builds {YYYYMMDD_HHMMSS}_{source}_{index}. The index is a
// per-process counter reset when the date changes, which keeps bursty
// submissions within one second unique.
func (ar *Archiver) nextPrefix(source string) string {
	now := ar.now()
	day := now.Format("20060102")

	ar.mu.Lock()
	if ar.day != day {
		ar.day = day
		ar.counter = 0
	}
	idx := ar.counter
	ar.counter++
	ar.mu.Unlock()

	return fmt.Sprintf("%s_%s_%03d", now.Format("20060102_150405"), NormalizeSource(source), idx)
}

// writeAtomic writes rel (root-relative) via tmp+rename.
func (ar *Archiver) writeAtomic(rel string, data []byte) error {
	target := filepath.Join(ar.root, rel)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrArchive, rel, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: rename %s: %v", ErrArchive, rel, err)
	}
	return nil
}

// NormalizeSource lowercases a source name and collapses everything
// outside [a-z0-9] into underscores, so it is safe inside file names.
func NormalizeSource(source string) string {
	source = strings.ToLower(strings.TrimSpace(source))
	var sb strings.Builder
	lastUnderscore := false
	for _, r := range source {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore && sb.Len() > 0 {
				sb.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.TrimSuffix(sb.String(), "_")
	if out == "" {
		return "unknown"
	}
	return out
}

// ExtFor picks a file extension from a suggested filename, falling back
// to the declared MIME type, then to ".bin".
func ExtFor(filename, mimeType string) string {
	if ext := strings.ToLower(filepath.Ext(filename)); ext != "" && ext != "." {
		return ext
	}
	switch strings.ToLower(strings.TrimSpace(mimeType)) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/svg+xml":
		return ".svg"
	case "application/pdf":
		return ".pdf"
	}
	return ".bin"
}
