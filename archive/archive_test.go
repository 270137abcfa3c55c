package archive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestWriteExtraction_FileLayout(t *testing.T) {
	root := t.TempDir()
	ts := time.Date(2026, 3, 1, 14, 30, 5, 0, time.UTC)
	ar := New(root, WithClock(fixedClock(ts)))

	set, err := ar.WriteExtraction("UWorld", []byte("<html/>"), []byte("{}"), []Blob{
		{Data: []byte{0xFF, 0xD8}, Filename: "fig1.jpg", MimeType: "image/jpeg"},
		{Data: []byte{0x89, 0x50}, Filename: "", MimeType: "image/png"},
	})
	if err != nil {
		t.Fatal(err)
	}

	wantHTML := "20260301_143005_uworld_000.html"
	if set.HTMLPath != wantHTML {
		t.Fatalf("html path: got %q want %q", set.HTMLPath, wantHTML)
	}
	if set.JSONPath != "20260301_143005_uworld_000.json" {
		t.Fatalf("json path: %q", set.JSONPath)
	}
	wantMedia := []string{
		"20260301_143005_uworld_000_img0.jpg",
		"20260301_143005_uworld_000_img1.png",
	}
	for i, want := range wantMedia {
		if set.MediaPaths[i] != want {
			t.Fatalf("media[%d]: got %q want %q", i, set.MediaPaths[i], want)
		}
	}

	// All files exist with the right content, no .tmp leftovers.
	data, err := os.ReadFile(filepath.Join(root, set.HTMLPath))
	if err != nil || string(data) != "<html/>" {
		t.Fatalf("html content: %q, %v", data, err)
	}
	entries, _ := os.ReadDir(root)
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
}

func TestWriteExtraction_CounterIncrements(t *testing.T) {
	root := t.TempDir()
	ts := time.Date(2026, 3, 1, 14, 30, 5, 0, time.UTC)
	ar := New(root, WithClock(fixedClock(ts)))

	// Two extractions in the same second must not collide.
	for i := 0; i < 2; i++ {
		set, err := ar.WriteExtraction("src", []byte("x"), []byte("{}"), nil)
		if err != nil {
			t.Fatal(err)
		}
		want := fmt.Sprintf("20260301_143005_src_%03d.html", i)
		if set.HTMLPath != want {
			t.Fatalf("iteration %d: got %q want %q", i, set.HTMLPath, want)
		}
	}
}

func TestWriteExtraction_CounterResetsOnNewDay(t *testing.T) {
	root := t.TempDir()
	now := time.Date(2026, 3, 1, 23, 59, 59, 0, time.UTC)
	ar := New(root, WithClock(func() time.Time { return now }))

	if _, err := ar.WriteExtraction("src", []byte("x"), []byte("{}"), nil); err != nil {
		t.Fatal(err)
	}
	now = now.Add(2 * time.Second) // crosses midnight
	set, err := ar.WriteExtraction("src", []byte("x"), []byte("{}"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if set.HTMLPath != "20260302_000001_src_000.html" {
		t.Fatalf("counter did not reset: %q", set.HTMLPath)
	}
}

func TestLock_SecondProcessRejected(t *testing.T) {
	root := t.TempDir()
	a := New(root)
	b := New(root)

	if err := a.Lock(); err != nil {
		t.Fatal(err)
	}
	defer a.Unlock()

	if err := b.Lock(); !errors.Is(err, ErrLocked) {
		t.Fatalf("second lock: want ErrLocked, got %v", err)
	}

	a.Unlock()
	if err := b.Lock(); err != nil {
		t.Fatalf("lock after release: %v", err)
	}
	b.Unlock()
}

func TestNormalizeSource(t *testing.T) {
	cases := map[string]string{
		"UWorld":         "uworld",
		"AMBOSS Step 2":  "amboss_step_2",
		"  weird--name ": "weird_name",
		"***":            "unknown",
		"":               "unknown",
	}
	for in, want := range cases {
		if got := NormalizeSource(in); got != want {
			t.Errorf("NormalizeSource(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestExtFor(t *testing.T) {
	cases := []struct{ filename, mime, want string }{
		{"fig.PNG", "", ".png"},
		{"", "image/jpeg", ".jpg"},
		{"", "application/pdf", ".pdf"},
		{"", "application/x-mystery", ".bin"},
		{"noext", "image/webp", ".webp"},
	}
	for _, c := range cases {
		if got := ExtFor(c.filename, c.mime); got != c.want {
			t.Errorf("ExtFor(%q, %q) = %q, want %q", c.filename, c.mime, got, c.want)
		}
	}
}
