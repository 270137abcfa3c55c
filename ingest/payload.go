package ingest

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/Dogebooch/doughub/archive"
)

// ErrInvalidPayload is returned when an extraction payload violates the
// documented contract. Nothing is archived or persisted for invalid
// payloads.
var ErrInvalidPayload = errors.New("ingest: invalid payload")

// Payload is one extraction received from the userscript, already decoded
// from the wire.
type Payload struct {
	OriginURL    string
	SiteHint     string
	RawHTML      string
	MetadataJSON []byte // the userscript's metadata object, as JSON
	Media        []archive.Blob
}

func (p *Payload) validate() error {
	if strings.TrimSpace(p.RawHTML) == "" {
		return fmt.Errorf("%w: html is required", ErrInvalidPayload)
	}
	if len(p.MetadataJSON) > 0 && !json.Valid(p.MetadataJSON) {
		return fmt.Errorf("%w: metadata is not valid JSON", ErrInvalidPayload)
	}
	return nil
}

// sourceName normalizes the site hint into the catalog source name.
func (p *Payload) sourceName() string {
	name := strings.TrimSpace(p.SiteHint)
	if name == "" {
		return "unknown"
	}
	return name
}

// questionKey derives the business key: the last non-empty path segment
// of the origin URL. When the URL is unusable the key falls back to a
// content hash, so re-extractions of the same HTML still collapse into
// one question.
func (p *Payload) questionKey() string {
	if u, err := url.Parse(p.OriginURL); err == nil {
		segments := strings.Split(u.Path, "/")
		for i := len(segments) - 1; i >= 0; i-- {
			if seg := strings.TrimSpace(segments[i]); seg != "" {
				return seg
			}
		}
	}
	sum := sha256.Sum256([]byte(p.RawHTML))
	return fmt.Sprintf("content_%x", sum[:8])
}

// sidecar is the JSON document archived next to the HTML. It carries
// enough to re-derive the business key during backfill.
type sidecar struct {
	URL      string          `json:"url"`
	Site     string          `json:"site"`
	Metadata json.RawMessage `json:"metadata"`
}

func (p *Payload) sidecarJSON() ([]byte, error) {
	meta := json.RawMessage(p.MetadataJSON)
	if len(meta) == 0 {
		meta = json.RawMessage("{}")
	}
	return json.MarshalIndent(sidecar{URL: p.OriginURL, Site: p.SiteHint, Metadata: meta}, "", "  ")
}
