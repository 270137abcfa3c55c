// Package preflight validates the runtime environment before the
// receiver starts taking traffic. Checks run in a fixed order, each
// graded FATAL (the service cannot work) or WARN (degraded but usable).
package preflight

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/Dogebooch/doughub/catalog"
	"github.com/Dogebooch/doughub/config"
	"github.com/Dogebooch/doughub/dbopen"
)

// Severity grades a failed check.
type Severity string

const (
	SeverityOK    Severity = "ok"
	SeverityWarn  Severity = "warn"
	SeverityFatal Severity = "fatal"
)

// Result is the outcome of one check.
type Result struct {
	Name     string
	Severity Severity
	Message  string
}

// Report aggregates all check results.
type Report struct {
	Results []Result
	Elapsed time.Duration
}

// HasFatal reports whether any check failed fatally.
func (r *Report) HasFatal() bool {
	for _, res := range r.Results {
		if res.Severity == SeverityFatal {
			return true
		}
	}
	return false
}

// HasWarnings reports whether any check produced a warning.
func (r *Report) HasWarnings() bool {
	for _, res := range r.Results {
		if res.Severity == SeverityWarn {
			return true
		}
	}
	return false
}

// Summary renders one line per check plus a verdict.
func (r *Report) Summary() string {
	var sb strings.Builder
	for _, res := range r.Results {
		mark := "PASS"
		switch res.Severity {
		case SeverityWarn:
			mark = "WARN"
		case SeverityFatal:
			mark = "FAIL"
		}
		fmt.Fprintf(&sb, "[%s] %-24s %s\n", mark, res.Name, res.Message)
	}
	switch {
	case r.HasFatal():
		sb.WriteString("preflight: FATAL — fix the failures above before starting\n")
	case r.HasWarnings():
		sb.WriteString("preflight: passed with warnings\n")
	default:
		sb.WriteString("preflight: all checks passed\n")
	}
	return sb.String()
}

// ExitCode maps the report to a process exit code: 0 clean, 1 fatal,
// 2 warnings only.
func (r *Report) ExitCode() int {
	if r.HasFatal() {
		return 1
	}
	if r.HasWarnings() {
		return 2
	}
	return 0
}

// check is one named validation with a fixed failure severity.
type check struct {
	name     string
	severity Severity // severity when the check fails
	run      func(ctx context.Context) error
}

// Runner executes the check sequence for one configuration.
type Runner struct {
	cfg    *config.Config
	logger *slog.Logger
	client *http.Client
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// New creates a Runner for cfg.
func New(cfg *config.Config, opts ...Option) *Runner {
	r := &Runner{
		cfg:    cfg,
		logger: slog.Default(),
		client: &http.Client{Timeout: 2 * time.Second},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run executes every check in order and returns the full report. Checks
// keep running after failures so the report is complete.
func (r *Runner) Run(ctx context.Context) *Report {
	start := time.Now()
	report := &Report{}

	for _, c := range r.checks() {
		res := Result{Name: c.name, Severity: SeverityOK, Message: "ok"}
		if err := c.run(ctx); err != nil {
			res.Severity = c.severity
			res.Message = err.Error()
		}
		report.Results = append(report.Results, res)
		r.logger.Debug("preflight check", "name", res.Name, "severity", string(res.Severity))
	}

	report.Elapsed = time.Since(start)
	return report
}

const minGoMajor, minGoMinor = 1, 22

func (r *Runner) checks() []check {
	cfg := r.cfg
	return []check{
		{"runtime_version", SeverityFatal, checkRuntimeVersion},
		{"sqlite_driver", SeverityFatal, checkSQLiteDriver},
		// LOG_DIR is optional; once configured it must be writable or the
		// rotating file sink cannot open.
		{"log_dir", SeverityFatal, func(ctx context.Context) error {
			if cfg.LogDir == "" {
				return nil
			}
			return checkWritableDir(cfg.LogDir)
		}},
		{"configuration", SeverityFatal, func(ctx context.Context) error {
			return cfg.Validate()
		}},
		{"archive_media_roots", SeverityFatal, func(ctx context.Context) error {
			if err := checkWritableDir(cfg.ArchiveRoot); err != nil {
				return err
			}
			return checkWritableDir(cfg.MediaRoot)
		}},
		{"notes_dir", SeverityWarn, func(ctx context.Context) error {
			return checkWritableDir(cfg.NoteServer.NotesDir)
		}},
		{"catalog_database", SeverityFatal, func(ctx context.Context) error {
			return checkCatalog(ctx, cfg.DatabasePath)
		}},
		{"flashcard_backend", SeverityWarn, func(ctx context.Context) error {
			return r.checkBackend(ctx)
		}},
		{"note_server", SeverityWarn, func(ctx context.Context) error {
			return r.checkNoteServer(ctx)
		}},
		// Headless deployment: a missing display degrades nothing this
		// service does itself, so the check only warns.
		{"display", SeverityWarn, checkDisplay},
	}
}

func checkRuntimeVersion(context.Context) error {
	var major, minor int
	if _, err := fmt.Sscanf(runtime.Version(), "go%d.%d", &major, &minor); err != nil {
		return nil // non-standard toolchain version string, let it pass
	}
	if major < minGoMajor || (major == minGoMajor && minor < minGoMinor) {
		return fmt.Errorf("go runtime %s below minimum go%d.%d",
			runtime.Version(), minGoMajor, minGoMinor)
	}
	return nil
}

// checkSQLiteDriver proves the driver is linked and functional by
// opening an in-memory database.
func checkSQLiteDriver(ctx context.Context) error {
	db, err := dbopen.Open(":memory:", dbopen.WithoutForeignKeys())
	if err != nil {
		return fmt.Errorf("sqlite driver unusable: %v", err)
	}
	defer db.Close()
	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("sqlite probe query: %v", err)
	}
	return nil
}

// checkWritableDir creates the directory if needed and proves a file can
// be written inside it.
func checkWritableDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("directory not configured")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %v", dir, err)
	}
	probe := filepath.Join(dir, ".preflight")
	if err := os.WriteFile(probe, []byte("probe"), 0o644); err != nil {
		return fmt.Errorf("%s not writable: %v", dir, err)
	}
	os.Remove(probe)
	return nil
}

// checkCatalog opens the catalog, applies the schema, runs an integrity
// check, and verifies the expected tables exist.
func checkCatalog(ctx context.Context, path string) error {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(catalog.Schema))
	if err != nil {
		return fmt.Errorf("open catalog: %v", err)
	}
	defer db.Close()

	if err := dbopen.IntegrityCheck(db); err != nil {
		return err
	}

	for _, table := range catalog.ExpectedTables {
		var name string
		err := db.QueryRowContext(ctx,
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		if err != nil {
			return fmt.Errorf("expected table %s missing", table)
		}
	}
	return nil
}

func (r *Runner) checkBackend(ctx context.Context) error {
	url := r.cfg.Flashcard.BackendURL
	if url == "" {
		return fmt.Errorf("flashcard backend not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("bad backend url %q: %v", url, err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("backend unreachable at %s: %v", url, err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("backend at %s answered %d", url, resp.StatusCode)
	}
	return nil
}

func (r *Runner) checkNoteServer(ctx context.Context) error {
	if r.cfg.NoteServer.Disabled {
		return nil
	}
	if _, err := exec.LookPath(r.cfg.NoteServer.Binary); err != nil {
		return fmt.Errorf("note-server binary %q not on PATH", r.cfg.NoteServer.Binary)
	}
	return nil
}

func checkDisplay(context.Context) error {
	if runtime.GOOS == "linux" && os.Getenv("DISPLAY") == "" && os.Getenv("WAYLAND_DISPLAY") == "" {
		return fmt.Errorf("no display available (headless host)")
	}
	return nil
}
