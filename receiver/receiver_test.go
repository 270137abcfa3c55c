package receiver

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Dogebooch/doughub/archive"
	"github.com/Dogebooch/doughub/catalog"
	"github.com/Dogebooch/doughub/dbopen"
	"github.com/Dogebooch/doughub/ingest"
	"github.com/Dogebooch/doughub/mediastore"
	_ "modernc.org/sqlite"
)

func newTestServer(t *testing.T) (*httptest.Server, *catalog.Store) {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(catalog.Schema))
	store := catalog.NewStore(db)
	ing := ingest.New(store, archive.New(t.TempDir()), mediastore.New(t.TempDir()))
	ts := httptest.NewServer(New(ing, store).Router())
	t.Cleanup(ts.Close)
	return ts, store
}

func postExtract(t *testing.T, ts *httptest.Server, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(ts.URL+"/extract", "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestExtract_Success(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postExtract(t, ts, map[string]any{
		"url":      "https://q.example.com/questions/42",
		"site":     "uworld",
		"html":     "<html><title>Q42</title><p>stem</p></html>",
		"metadata": map[string]string{"difficulty": "hard"},
		"images": []map[string]string{
			{
				"filename":    "fig.png",
				"mime_type":   "image/png",
				"data_base64": base64.StdEncoding.EncodeToString([]byte("png-bytes")),
			},
		},
	})
	if resp.StatusCode != 200 {
		t.Fatalf("status: %d", resp.StatusCode)
	}

	var out extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Status != "success" || out.ExtractionCount != 1 {
		t.Fatalf("response: %+v", out)
	}
	if out.Files.HTML == "" || out.Files.JSON == "" || len(out.Files.Images) != 1 {
		t.Fatalf("files: %+v", out.Files)
	}
	if !out.Database.Persisted || out.Database.QuestionID == nil {
		t.Fatalf("database: %+v", out.Database)
	}
}

func TestExtract_MalformedJSON(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Post(ts.URL+"/extract", "application/json", bytes.NewReader([]byte("{broken")))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 400 {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	var body struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "error" || body.Error == "" {
		t.Fatalf("error body: %+v", body)
	}
}

func TestExtract_MissingHTML(t *testing.T) {
	ts, _ := newTestServer(t)
	resp := postExtract(t, ts, map[string]any{"url": "https://x/q/1", "site": "s"})
	if resp.StatusCode != 400 {
		t.Fatalf("status: %d", resp.StatusCode)
	}
}

func TestExtract_BadBase64Image(t *testing.T) {
	ts, _ := newTestServer(t)
	resp := postExtract(t, ts, map[string]any{
		"url": "https://x/q/1", "site": "s", "html": "<p>x</p>",
		"images": []map[string]string{{"filename": "a.png", "data_base64": "!!!not-base64!!!"}},
	})
	if resp.StatusCode != 400 {
		t.Fatalf("status: %d", resp.StatusCode)
	}
}

func TestStatus_CountsReceived(t *testing.T) {
	ts, _ := newTestServer(t)

	postExtract(t, ts, map[string]any{"url": "https://x/questions/1", "site": "s", "html": "<p>a</p>"})
	postExtract(t, ts, map[string]any{"url": "https://x/questions/2", "site": "s", "html": "<p>b</p>"})

	resp, err := http.Get(ts.URL + "/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var status struct {
		Status        string `json:"status"`
		TotalReceived int64  `json:"total_received"`
		StartedAt     string `json:"started_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatal(err)
	}
	if status.Status != "ok" || status.TotalReceived != 2 {
		t.Fatalf("status: %+v", status)
	}
	if _, err := time.Parse(time.RFC3339, status.StartedAt); err != nil {
		t.Fatalf("started_at: %q", status.StartedAt)
	}
}

func TestQuestions_ReadEndpoints(t *testing.T) {
	ts, _ := newTestServer(t)

	postExtract(t, ts, map[string]any{"url": "https://x/questions/q1", "site": "s", "html": "<p>a</p>"})

	resp, err := http.Get(ts.URL + "/questions")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var questions []*catalog.Question
	if err := json.NewDecoder(resp.Body).Decode(&questions); err != nil {
		t.Fatal(err)
	}
	if len(questions) != 1 || questions[0].SourceQuestionKey != "q1" {
		t.Fatalf("questions: %+v", questions)
	}

	// Detail + media for the ingested question.
	detail, err := http.Get(ts.URL + "/questions/1/media")
	if err != nil {
		t.Fatal(err)
	}
	defer detail.Body.Close()
	if detail.StatusCode != 200 {
		t.Fatalf("media status: %d", detail.StatusCode)
	}

	// Unknown question is a 404.
	missing, err := http.Get(ts.URL + "/questions/999")
	if err != nil {
		t.Fatal(err)
	}
	defer missing.Body.Close()
	if missing.StatusCode != 404 {
		t.Fatalf("missing question status: %d", missing.StatusCode)
	}
}

func TestRequestIDHeader(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("X-Request-ID header missing")
	}
}
