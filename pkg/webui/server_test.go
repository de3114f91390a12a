package webui

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"automd/pkg/aggregate"
)

func TestProcessAndDownloadSingleFile(t *testing.T) {
	t.Parallel()

	s := NewServer(zap.NewNop())
	defer s.Close()
	ts := httptest.NewServer(s.Routes())
	defer ts.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("files", "readme.md")
	if err != nil {
		t.Fatalf("creating form file: %v", err)
	}
	if _, err := fw.Write([]byte("hello from upload\n")); err != nil {
		t.Fatalf("writing form file: %v", err)
	}
	if err := mw.WriteField("single_file", "true"); err != nil {
		t.Fatalf("writing field: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("closing form: %v", err)
	}

	resp, err := http.Post(ts.URL+"/process", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("POST /process: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var result struct {
		ID      string               `json:"id"`
		Summary aggregate.RunSummary `json:"summary"`
		Error   string               `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if result.Error != "" {
		t.Fatalf("run error: %s", result.Error)
	}
	if result.Summary.Processed != 1 {
		t.Errorf("processed = %d, want 1", result.Summary.Processed)
	}
	if result.ID == "" {
		t.Fatal("missing run id")
	}

	dl, err := http.Get(ts.URL + "/download?id=" + result.ID)
	if err != nil {
		t.Fatalf("GET /download: %v", err)
	}
	defer dl.Body.Close()
	if dl.StatusCode != http.StatusOK {
		t.Fatalf("download status = %d", dl.StatusCode)
	}
	body, err := io.ReadAll(dl.Body)
	if err != nil {
		t.Fatalf("reading download: %v", err)
	}
	if !strings.Contains(string(body), "hello from upload") {
		t.Errorf("download missing content:\n%s", body)
	}
}

func TestDownloadUnknownID(t *testing.T) {
	t.Parallel()

	s := NewServer(zap.NewNop())
	defer s.Close()
	ts := httptest.NewServer(s.Routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/download?id=nope")
	if err != nil {
		t.Fatalf("GET /download: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestProcessRejectsGet(t *testing.T) {
	t.Parallel()

	s := NewServer(zap.NewNop())
	defer s.Close()
	ts := httptest.NewServer(s.Routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/process")
	if err != nil {
		t.Fatalf("GET /process: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", resp.StatusCode)
	}
}

func TestWSReportsRunError(t *testing.T) {
	t.Parallel()

	s := NewServer(zap.NewNop())
	defer s.Close()
	ts := httptest.NewServer(s.Routes())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dialing: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(runRequest{GithubURLs: []string{"not-a-url"}}); err != nil {
		t.Fatalf("sending request: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("reading: %v", err)
		}
		if msg["kind"] == "done" {
			if errMsg, _ := msg["error"].(string); !strings.Contains(errMsg, "not a repository URL") {
				t.Errorf("done message error = %v", msg["error"])
			}
			return
		}
	}
}

func TestPushWSDropsWhenConnectionGone(t *testing.T) {
	t.Parallel()

	ch := make(chan any, 1)
	ch <- "backlog" // full buffer, no drainer
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		pushWS(ctx, ch, "final")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pushWS blocked on a full buffer after the connection was gone")
	}
}

func TestRequestFromForm(t *testing.T) {
	t.Parallel()

	form := strings.NewReader("single_file=true&repo_depth=3&include_toc=false&github_urls=https%3A%2F%2Fgithub.com%2Fa%2Fb%0A%0A&ignore_paths=tests%2C+vendor")
	r := httptest.NewRequest(http.MethodPost, "/process", form)
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	req := requestFromForm(r)
	if !req.SingleFile {
		t.Error("single_file not parsed")
	}
	if req.RepoDepth != 3 {
		t.Errorf("repo_depth = %d", req.RepoDepth)
	}
	if req.IncludeTOC == nil || *req.IncludeTOC {
		t.Error("include_toc=false not parsed")
	}
	if req.IncludeMetadata == nil || !*req.IncludeMetadata {
		t.Error("include_metadata should default to true")
	}
	if len(req.GithubURLs) != 1 || req.GithubURLs[0] != "https://github.com/a/b" {
		t.Errorf("github_urls = %v", req.GithubURLs)
	}
	if len(req.IgnorePaths) != 2 || req.IgnorePaths[0] != "tests" || req.IgnorePaths[1] != "vendor" {
		t.Errorf("ignore_paths = %v", req.IgnorePaths)
	}
}
