// Command doughub runs the extraction receiver: preflight checks, the
// SQLite catalog, the filesystem archive, the HTTP endpoint the
// userscript posts to, and the supervised note server.
package main

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
	_ "modernc.org/sqlite"

	"github.com/Dogebooch/doughub/archive"
	"github.com/Dogebooch/doughub/catalog"
	"github.com/Dogebooch/doughub/config"
	"github.com/Dogebooch/doughub/dblog"
	"github.com/Dogebooch/doughub/dbopen"
	"github.com/Dogebooch/doughub/ingest"
	"github.com/Dogebooch/doughub/mediastore"
	"github.com/Dogebooch/doughub/notesrv"
	"github.com/Dogebooch/doughub/preflight"
	"github.com/Dogebooch/doughub/receiver"
)

func main() {
	configPath := flag.String("config", "doughub.yaml", "path to YAML config")
	skipPreflight := flag.Bool("skip-preflight", false, "bypass startup environment checks")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}

	logger := buildLogger(cfg)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Preflight gate.
	if !cfg.SkipPreflight && !*skipPreflight {
		report := preflight.New(cfg, preflight.WithLogger(logger)).Run(ctx)
		os.Stderr.WriteString(report.Summary())
		if report.HasFatal() {
			os.Exit(1)
		}
	} else {
		logger.Warn("preflight skipped")
	}

	// Catalog.
	db, err := dbopen.Open(cfg.DatabasePath, dbopen.WithMkdirAll(), dbopen.WithSchema(catalog.Schema))
	if err != nil {
		logger.Error("open catalog", "error", err)
		os.Exit(1)
	}
	store := catalog.NewStore(db)
	defer store.Close()

	// Mirror warnings and errors into the catalog logs table.
	logger = slog.New(dblog.New(logger.Handler(), store, dblog.WithMinLevel(slog.LevelWarn)))
	slog.SetDefault(logger)

	// Archive, single-process guard first.
	archiver := archive.New(cfg.ArchiveRoot)
	if err := archiver.Lock(); err != nil {
		logger.Error("archive lock", "error", err)
		os.Exit(1)
	}
	defer archiver.Unlock()

	media := mediastore.New(cfg.MediaRoot)
	ingestor := ingest.New(store, archiver, media,
		ingest.WithLogger(logger), ingest.WithGroupWindow(cfg.GroupWindow))

	// Note server.
	var supervisor *notesrv.Supervisor
	if !cfg.NoteServer.Disabled {
		supervisor = notesrv.New(cfg.NoteServer.Binary, cfg.NoteServer.Port, cfg.NoteServer.NotesDir,
			notesrv.WithLogger(logger))
		if err := supervisor.Start(ctx); err != nil {
			// Degraded, not fatal: extractions still archive and catalog.
			logger.Warn("note server unavailable", "error", err)
		}
		defer supervisor.Stop()
	}

	// HTTP receiver.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           receiver.New(ingestor, store, receiver.WithLogger(logger)).Router(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("receiver starting", "port", cfg.Port,
			"archive", cfg.ArchiveRoot, "database", cfg.DatabasePath)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
	logger.Info("receiver stopped")
}

// buildLogger emits JSON to stdout, teed into a rotating file under
// LOG_DIR when configured.
func buildLogger(cfg *config.Config) *slog.Logger {
	var lvl slog.Level
	switch cfg.LogLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	var out io.Writer = os.Stdout
	if cfg.LogDir != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   filepath.Join(cfg.LogDir, "doughub.log"),
			MaxSize:    50, // MB
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		})
	}
	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: lvl}))
}
