package dblog

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/Dogebooch/doughub/catalog"
	"github.com/Dogebooch/doughub/dbopen"
	_ "modernc.org/sqlite"
)

func newTestLogger(t *testing.T, minLevel slog.Level) (*slog.Logger, *catalog.Store, *bytes.Buffer) {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(catalog.Schema))
	store := catalog.NewStore(db)
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(New(inner, store, WithMinLevel(minLevel))), store, &buf
}

func TestHandle_PersistsAtOrAboveMinLevel(t *testing.T) {
	logger, store, buf := newTestLogger(t, slog.LevelWarn)

	logger.Info("below threshold")
	logger.Warn("archive degraded", "source", "uworld")
	logger.Error("catalog down")

	rows, err := store.RecentLogs(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("persisted rows: got %d want 2", len(rows))
	}
	if rows[0].Level != "ERROR" || rows[1].Level != "WARN" {
		t.Fatalf("levels: %q %q", rows[0].Level, rows[1].Level)
	}
	if !strings.Contains(rows[1].Message, "source=uworld") {
		t.Fatalf("attrs not folded into message: %q", rows[1].Message)
	}

	// Everything still reaches the inner handler.
	for _, msg := range []string{"below threshold", "archive degraded", "catalog down"} {
		if !strings.Contains(buf.String(), msg) {
			t.Fatalf("inner handler missing %q", msg)
		}
	}
}

func TestWithGroupAndAttrs(t *testing.T) {
	logger, store, _ := newTestLogger(t, slog.LevelInfo)

	logger.WithGroup("ingest").With("run", "r1").Info("started")

	rows, err := store.RecentLogs(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatal("record not persisted")
	}
	if rows[0].LoggerName != "ingest" {
		t.Fatalf("logger name: %q", rows[0].LoggerName)
	}
	if !strings.Contains(rows[0].Message, "run=r1") {
		t.Fatalf("bound attrs missing: %q", rows[0].Message)
	}
}

func TestHandle_StoreFailureDoesNotPanic(t *testing.T) {
	logger, store, buf := newTestLogger(t, slog.LevelInfo)
	store.DB.Close()

	// Insert fails; the record must still reach the inner handler.
	logger.Info("after close")
	if !strings.Contains(buf.String(), "after close") {
		t.Fatal("inner handler lost the record")
	}
}
