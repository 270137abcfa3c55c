// Package receiver exposes the HTTP surface the browser userscript talks
// to: POST /extract accepts one extraction payload, GET /status reports
// liveness and a running counter, and read-only question endpoints let
// local tooling browse the catalog.
package receiver

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/Dogebooch/doughub/archive"
	"github.com/Dogebooch/doughub/catalog"
	"github.com/Dogebooch/doughub/idgen"
	"github.com/Dogebooch/doughub/ingest"
)

// MaxBodyBytes caps an /extract request body. Extractions carry full page
// HTML plus inline images, so the cap is generous.
const MaxBodyBytes = 64 << 20 // 64 MiB

// Server handles receiver HTTP traffic.
type Server struct {
	ingestor *ingest.Ingestor
	store    *catalog.Store
	logger   *slog.Logger

	received  atomic.Int64
	startedAt time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a receiver Server over an ingestor and a catalog store.
func New(ing *ingest.Ingestor, store *catalog.Store, opts ...Option) *Server {
	s := &Server{
		ingestor:  ing,
		store:     store,
		logger:    slog.Default(),
		startedAt: time.Now(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Router builds the chi router. CORS is fully permissive: the userscript
// posts from arbitrary third-party question-bank origins.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))
	r.Use(requestID)

	r.Post("/extract", s.handleExtract)
	r.Get("/status", s.handleStatus)
	r.Get("/questions", s.handleListQuestions)
	r.Get("/questions/{id}", s.handleGetQuestion)
	r.Get("/questions/{id}/media", s.handleQuestionMedia)

	return r
}

var newRequestID = idgen.Prefixed("req_", idgen.Default)

// requestID tags each request with a generated ID for log correlation.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-ID", newRequestID())
		next.ServeHTTP(w, r)
	})
}

// extractRequest is the wire format posted by the userscript. Image data
// travels base64-encoded inside the JSON body.
type extractRequest struct {
	URL      string          `json:"url"`
	Site     string          `json:"site"`
	HTML     string          `json:"html"`
	Metadata json.RawMessage `json:"metadata"`
	Images   []struct {
		Filename string `json:"filename"`
		MimeType string `json:"mime_type"`
		Data     string `json:"data_base64"`
	} `json:"images"`
}

// extractResponse reports both halves of the dual write separately, so
// the userscript can surface "archived but not cataloged" to the user.
type extractResponse struct {
	Status          string          `json:"status"`
	ExtractionCount int64           `json:"extraction_count"`
	Files           extractFiles    `json:"files"`
	Database        extractDatabase `json:"database"`
}

type extractFiles struct {
	HTML   string   `json:"html"`
	JSON   string   `json:"json"`
	Images []string `json:"images"`
}

type extractDatabase struct {
	Persisted  bool   `json:"persisted"`
	QuestionID *int64 `json:"question_id,omitempty"`
	Error      string `json:"error,omitempty"`
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)

	var req extractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, err)
		return
	}

	payload := &ingest.Payload{
		OriginURL:    req.URL,
		SiteHint:     req.Site,
		RawHTML:      req.HTML,
		MetadataJSON: []byte(req.Metadata),
	}
	for _, img := range req.Images {
		data, err := base64.StdEncoding.DecodeString(img.Data)
		if err != nil {
			writeError(w, 400, errors.New("image data is not valid base64"))
			return
		}
		payload.Media = append(payload.Media, archive.Blob{
			Data:     data,
			Filename: img.Filename,
			MimeType: img.MimeType,
		})
	}

	outcome, err := s.ingestor.IngestOne(r.Context(), payload)
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrInvalidPayload):
			writeError(w, 400, err)
		case errors.Is(err, archive.ErrArchive):
			writeError(w, 500, err)
		default:
			writeError(w, 500, err)
		}
		return
	}

	count := s.received.Add(1)
	resp := extractResponse{
		Status:          "success",
		ExtractionCount: count,
		Files: extractFiles{
			HTML:   outcome.ArchiveHTMLPath,
			JSON:   outcome.ArchiveJSONPath,
			Images: outcome.ArchiveMediaPaths,
		},
		Database: extractDatabase{
			Persisted:  outcome.CatalogPersisted,
			QuestionID: outcome.QuestionID,
			Error:      outcome.CatalogError,
		},
	}
	if resp.Files.Images == nil {
		resp.Files.Images = []string{}
	}
	writeJSON(w, 200, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, 200, map[string]any{
		"status":         "ok",
		"total_received": s.received.Load(),
		"started_at":     s.startedAt.UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	sourceID := queryInt64(r, "source_id", 0)
	questions, err := s.store.ListQuestions(r.Context(), sourceID)
	if err != nil {
		writeError(w, 500, err)
		return
	}
	if questions == nil {
		questions = []*catalog.Question{}
	}
	writeJSON(w, 200, questions)
}

func (s *Server) handleGetQuestion(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, 400, errors.New("invalid question id"))
		return
	}
	q, err := s.store.GetQuestion(r.Context(), id)
	if err != nil {
		writeError(w, 500, err)
		return
	}
	if q == nil {
		writeError(w, 404, errors.New("question not found"))
		return
	}
	children, err := s.store.ListChildren(r.Context(), id)
	if err != nil {
		writeError(w, 500, err)
		return
	}
	if children == nil {
		children = []*catalog.Question{}
	}
	writeJSON(w, 200, map[string]any{"question": q, "children": children})
}

func (s *Server) handleQuestionMedia(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, 400, errors.New("invalid question id"))
		return
	}
	media, err := s.store.GetMediaForQuestion(r.Context(), id)
	if err != nil {
		writeError(w, 500, err)
		return
	}
	if media == nil {
		media = []*catalog.Media{}
	}
	writeJSON(w, 200, media)
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"status": "error", "error": err.Error()})
}

func queryInt64(r *http.Request, key string, def int64) int64 {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return def
	}
	return v
}
