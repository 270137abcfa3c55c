package backfill

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Dogebooch/doughub/archive"
	"github.com/Dogebooch/doughub/catalog"
	"github.com/Dogebooch/doughub/dbopen"
	"github.com/Dogebooch/doughub/ingest"
	"github.com/Dogebooch/doughub/mediastore"
	_ "modernc.org/sqlite"
)

// seedArchive runs live ingestions against a throwaway catalog so the
// archive root ends up holding realistic triples, then returns the root.
func seedArchive(t *testing.T, n int) string {
	t.Helper()
	root := t.TempDir()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(catalog.Schema))
	store := catalog.NewStore(db)

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	ing := ingest.New(store, archive.New(root, archive.WithClock(clock)),
		mediastore.New(t.TempDir()), ingest.WithClock(clock))

	for i := 0; i < n; i++ {
		p := &ingest.Payload{
			OriginURL: "https://q.example.com/questions/" + string(rune('a'+i)),
			SiteHint:  "uworld",
			RawHTML:   "<p>question " + string(rune('a'+i)) + "</p>",
			Media: []archive.Blob{
				{Data: []byte("img"), Filename: "fig.png", MimeType: "image/png"},
			},
		}
		if _, err := ing.IngestOne(context.Background(), p); err != nil {
			t.Fatal(err)
		}
		now = now.Add(10 * time.Minute) // keep questions outside the grouping window
	}
	return root
}

func newRunner(t *testing.T, root string) (*Runner, *catalog.Store) {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(catalog.Schema))
	store := catalog.NewStore(db)
	ing := ingest.New(store, archive.New(root), mediastore.New(t.TempDir()))
	return New(root, ing), store
}

func TestRun_RebuildsCatalogFromArchive(t *testing.T) {
	root := seedArchive(t, 3)
	runner, store := newRunner(t, root)

	sum, err := runner.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.Ingested != 3 || sum.Malformed != 0 || sum.Failed != 0 {
		t.Fatalf("summary: %+v", sum)
	}

	questions, err := store.ListQuestions(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(questions) != 3 {
		t.Fatalf("catalog rows: got %d want 3", len(questions))
	}
	for _, q := range questions {
		media, _ := store.GetMediaForQuestion(context.Background(), q.QuestionID)
		if len(media) != 1 {
			t.Fatalf("question %d media: %d", q.QuestionID, len(media))
		}
	}
}

func TestRun_Idempotent(t *testing.T) {
	root := seedArchive(t, 2)
	runner, store := newRunner(t, root)
	ctx := context.Background()

	if _, err := runner.Run(ctx); err != nil {
		t.Fatal(err)
	}
	sum, err := runner.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Ingested != 2 {
		t.Fatalf("second run summary: %+v", sum)
	}

	questions, _ := store.ListQuestions(ctx, 0)
	if len(questions) != 2 {
		t.Fatalf("re-run duplicated questions: %d", len(questions))
	}
}

func TestRun_MalformedTripleSkipped(t *testing.T) {
	root := seedArchive(t, 1)

	// An HTML file with no sidecar: an interrupted archive write.
	orphan := filepath.Join(root, "20260301_100000_uworld_005.html")
	if err := os.WriteFile(orphan, []byte("<p>orphan</p>"), 0o644); err != nil {
		t.Fatal(err)
	}

	runner, store := newRunner(t, root)
	sum, err := runner.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.Ingested != 1 || sum.Malformed != 1 {
		t.Fatalf("summary: %+v", sum)
	}
	// The orphan stays on disk untouched.
	if _, err := os.Stat(orphan); err != nil {
		t.Fatalf("malformed file removed: %v", err)
	}
	questions, _ := store.ListQuestions(context.Background(), 0)
	if len(questions) != 1 {
		t.Fatalf("catalog rows: %d", len(questions))
	}
}

func TestRun_EmptyOrMissingRoot(t *testing.T) {
	runner, _ := newRunner(t, filepath.Join(t.TempDir(), "never-created"))
	sum, err := runner.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.Scanned != 0 {
		t.Fatalf("summary: %+v", sum)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name, prefix, kind string
		ok                 bool
	}{
		{"20260301_090000_uworld_000.html", "20260301_090000_uworld_000", "html", true},
		{"20260301_090000_uworld_000.json", "20260301_090000_uworld_000", "json", true},
		{"20260301_090000_uworld_000_img0.png", "20260301_090000_uworld_000", "media", true},
		{"20260301_090000_uworld_000_img12.pdf", "20260301_090000_uworld_000", "media", true},
		{"notes.txt", "", "", false},
	}
	for _, c := range cases {
		prefix, kind, ok := classify(c.name)
		if ok != c.ok || prefix != c.prefix || kind != c.kind {
			t.Errorf("classify(%q) = (%q, %q, %v), want (%q, %q, %v)",
				c.name, prefix, kind, ok, c.prefix, c.kind, c.ok)
		}
	}
}
