// Package mediastore relocates media files from the timestamped archive
// into the canonical per-source media root, under deterministic names the
// catalog can reference.
//
// Destination layout: {media_root}/{source_name}/{source_question_key}_img{N}.{ext}.
// The destination path is a pure function of (source, key, index, ext), so
// re-ingesting the same extraction lands on the same file. Identical bytes
// are skipped; differing bytes are overwritten — the latest capture of a
// question's media is authoritative.
package mediastore

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// Result describes one relocation.
type Result struct {
	// RelativePath is relative to the media root, so the catalog stays
	// portable if the root is relocated.
	RelativePath string
	// MediaType is the catalog media_type: "image", "pdf", or
	// "pdf_invalid" when a PDF fails structural validation.
	MediaType string
	// Skipped is true when the destination already held identical bytes.
	Skipped bool
}

// Store relocates archived media under a canonical root.
type Store struct {
	root string
}

// New creates a Store rooted at root.
func New(root string) *Store {
	return &Store{root: root}
}

// Root returns the media root path.
func (s *Store) Root() string { return s.root }

// DestPath computes the root-relative destination for media index idx of
// a question. ext must include the leading dot.
func DestPath(sourceName, sourceQuestionKey string, idx int, ext string) string {
	return filepath.Join(sourceName, fmt.Sprintf("%s_img%d%s", sourceQuestionKey, idx, ext))
}

// Relocate copies the archived file at srcPath into the canonical layout.
// The extension is taken from the archived file's name.
func (s *Store) Relocate(srcPath, sourceName, sourceQuestionKey string, idx int) (*Result, error) {
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return nil, fmt.Errorf("mediastore: read %s: %w", srcPath, err)
	}

	ext := strings.ToLower(filepath.Ext(srcPath))
	rel := DestPath(sourceName, sourceQuestionKey, idx, ext)
	target := filepath.Join(s.root, rel)

	res := &Result{RelativePath: rel, MediaType: mediaTypeFor(ext)}
	if res.MediaType == "pdf" && !validPDF(srcPath) {
		res.MediaType = "pdf_invalid"
	}

	if existing, err := os.ReadFile(target); err == nil && bytes.Equal(existing, data) {
		res.Skipped = true
		return res, nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, fmt.Errorf("mediastore: mkdir: %w", err)
	}
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return nil, fmt.Errorf("mediastore: write %s: %w", rel, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("mediastore: rename %s: %w", rel, err)
	}
	return res, nil
}

func mediaTypeFor(ext string) string {
	switch ext {
	case ".pdf":
		return "pdf"
	default:
		return "image"
	}
}

// validPDF runs pdfcpu structural validation. Invalid PDFs are still
// relocated — the raw bytes stay available — but flagged in the catalog.
func validPDF(path string) bool {
	return api.ValidateFile(path, nil) == nil
}
