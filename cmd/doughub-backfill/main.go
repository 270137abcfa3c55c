// Command doughub-backfill rebuilds the catalog from the filesystem
// archive. One-shot: scan, replay, print a summary, exit.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "modernc.org/sqlite"

	"github.com/Dogebooch/doughub/archive"
	"github.com/Dogebooch/doughub/backfill"
	"github.com/Dogebooch/doughub/catalog"
	"github.com/Dogebooch/doughub/config"
	"github.com/Dogebooch/doughub/dbopen"
	"github.com/Dogebooch/doughub/ingest"
	"github.com/Dogebooch/doughub/mediastore"
)

func main() {
	configPath := flag.String("config", "doughub.yaml", "path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := dbopen.Open(cfg.DatabasePath, dbopen.WithMkdirAll(), dbopen.WithSchema(catalog.Schema))
	if err != nil {
		logger.Error("open catalog", "error", err)
		os.Exit(1)
	}
	store := catalog.NewStore(db)
	defer store.Close()

	archiver := archive.New(cfg.ArchiveRoot)
	media := mediastore.New(cfg.MediaRoot)
	ingestor := ingest.New(store, archiver, media,
		ingest.WithLogger(logger), ingest.WithGroupWindow(cfg.GroupWindow))

	runner := backfill.New(cfg.ArchiveRoot, ingestor, backfill.WithLogger(logger))
	sum, err := runner.Run(ctx)
	if err != nil {
		logger.Error("backfill", "error", err)
		os.Exit(1)
	}

	fmt.Printf("backfill: %d scanned, %d ingested, %d malformed, %d failed in %s\n",
		sum.Scanned, sum.Ingested, sum.Malformed, sum.Failed, sum.Elapsed)
	if sum.Failed > 0 {
		os.Exit(1)
	}
}
