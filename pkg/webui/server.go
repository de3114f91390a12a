// Package webui is the web front-end over the aggregation pipeline:
// uploads and repository URLs come in over HTTP, progress events stream
// out over a websocket, and the rendered documents are served back for
// download.
package webui

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"automd/pkg/aggregate"
	"automd/pkg/gitrepo"
)

const (
	wsWriteWait = 10 * time.Second
	wsPongWait  = 60 * time.Second
	wsPingEvery = (wsPongWait * 9) / 10

	cloneTimeout = 5 * time.Minute
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// Server holds per-run output locations so completed documents can be
// downloaded after the run finishes.
type Server struct {
	logger *zap.Logger

	mu   sync.Mutex
	runs map[string]runRecord
}

type runRecord struct {
	workspace  string // temp dir holding uploads, clones, and output
	output     string // file in single-file mode, directory otherwise
	singleFile bool
}

// runRequest is the option surface exposed to web clients. Boolean
// pointers distinguish "absent" from "false" so defaults survive.
type runRequest struct {
	GithubURLs      []string `json:"githubUrls"`
	SingleFile      bool     `json:"singleFile"`
	IncludeMetadata *bool    `json:"includeMetadata"`
	IncludeTOC      *bool    `json:"includeToc"`
	RepoDepth       int      `json:"repoDepth"`
	IgnorePaths     []string `json:"ignorePaths"`
	CountTokens     bool     `json:"countTokens"`
	Title           string   `json:"title"`
}

func (r runRequest) options() aggregate.Options {
	opts := aggregate.DefaultOptions()
	opts.SingleFile = r.SingleFile
	if r.IncludeMetadata != nil {
		opts.IncludeMetadata = *r.IncludeMetadata
	}
	if r.IncludeTOC != nil {
		opts.IncludeTOC = *r.IncludeTOC
	}
	opts.RepoDepth = r.RepoDepth
	opts.IgnorePaths = r.IgnorePaths
	opts.CountTokens = r.CountTokens
	opts.Title = r.Title
	return opts
}

// NewServer builds the web front-end.
func NewServer(logger *zap.Logger) *Server {
	return &Server{
		logger: logger,
		runs:   make(map[string]runRecord),
	}
}

// Routes returns the handler tree.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/process", s.handleProcess)
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/download", s.handleDownload)
	return mux
}

// Close removes every run workspace.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, rec := range s.runs {
		if err := os.RemoveAll(rec.workspace); err != nil {
			s.logger.Warn("Failed to remove run workspace",
				zap.String("id", id),
				zap.Error(err))
		}
		delete(s.runs, id)
	}
}

// handleProcess runs the pipeline synchronously over a multipart
// upload: files under "files", repository URLs one per line under
// "github_urls", plus option fields. Responds with the run id and
// summary; the document is fetched separately via /download.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		http.Error(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}

	req := requestFromForm(r)
	id := uuid.NewString()
	workspace, err := os.MkdirTemp("", "automd-web-")
	if err != nil {
		http.Error(w, "creating workspace: "+err.Error(), http.StatusInternalServerError)
		return
	}

	var inputs []string
	if r.MultipartForm != nil {
		uploadDir := filepath.Join(workspace, "uploads")
		for _, header := range r.MultipartForm.File["files"] {
			saved, err := saveUpload(header, uploadDir)
			if err != nil {
				os.RemoveAll(workspace)
				http.Error(w, "saving upload: "+err.Error(), http.StatusBadRequest)
				return
			}
			inputs = append(inputs, saved)
		}
	}

	summary, err := s.run(r.Context(), id, workspace, req, inputs, nil)
	s.respondJSON(w, map[string]any{
		"id":      id,
		"summary": summary,
		"error":   errString(err),
	})
}

// handleWS accepts one JSON runRequest, streams pipeline events back as
// JSON, and finishes with the run summary. Upload-based runs use
// /process; the websocket path covers repository inputs, the way the
// original web front-end streamed clone-and-process logs live.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := conn.SetReadDeadline(time.Now().Add(wsPongWait)); err != nil {
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	var req runRequest
	if err := conn.ReadJSON(&req); err != nil {
		return
	}

	writeCh := make(chan any, 32)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(wsPingEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case out, ok := <-writeCh:
				if !ok {
					return
				}
				if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
					return
				}
				if err := conn.WriteJSON(out); err != nil {
					return
				}
			case <-ticker.C:
				if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
					return
				}
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// Reads after the request only service pong frames; a client close
	// cancels the run.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	id := uuid.NewString()
	workspace, err := os.MkdirTemp("", "automd-web-")
	if err != nil {
		pushWS(ctx, writeCh, map[string]any{"kind": "fatal", "error": err.Error()})
		close(writeCh)
		<-writerDone
		return
	}

	progress := func(ev aggregate.Event) {
		pushWS(ctx, writeCh, ev)
	}
	_, runErr := s.run(ctx, id, workspace, req, nil, progress)

	pushWS(ctx, writeCh, map[string]any{"kind": "done", "id": id, "error": errString(runErr)})
	close(writeCh)
	<-writerDone
}

// pushWS queues an outbound message unless the connection is gone; a
// disconnect cancels ctx while the writer goroutine stops draining, so
// a plain send could block forever on a full buffer.
func pushWS(ctx context.Context, ch chan<- any, msg any) {
	select {
	case ch <- msg:
	case <-ctx.Done():
	}
}

// handleDownload serves a completed run's output: the document itself
// in single-file mode, a zip of the section files otherwise.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	s.mu.Lock()
	rec, ok := s.runs[id]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "unknown run id", http.StatusNotFound)
		return
	}

	if rec.singleFile {
		w.Header().Set("Content-Disposition", `attachment; filename="output.md"`)
		http.ServeFile(w, r, rec.output)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="output.zip"`)
	if err := zipDir(w, rec.output); err != nil {
		s.logger.Warn("Zipping output failed",
			zap.String("id", id),
			zap.Error(err))
	}
}

// run clones any repository inputs, executes the pipeline into the run
// workspace, and registers the output for download.
func (s *Server) run(ctx context.Context, id, workspace string, req runRequest, inputs []string, progress aggregate.ProgressFunc) (aggregate.RunSummary, error) {
	for _, url := range req.GithubURLs {
		url = strings.TrimSpace(url)
		if url == "" {
			continue
		}
		if !gitrepo.IsRepoURL(url) {
			os.RemoveAll(workspace)
			return aggregate.RunSummary{}, fmt.Errorf("not a repository URL: %s", url)
		}
		cloneCtx, cancel := context.WithTimeout(ctx, cloneTimeout)
		dir, _, err := gitrepo.Clone(cloneCtx, url, req.RepoDepth, s.logger)
		cancel()
		if err != nil {
			os.RemoveAll(workspace)
			return aggregate.RunSummary{}, err
		}
		// Clones live until the workspace-owning run record is cleaned
		// up, so sections can reference extracted files lazily.
		moved := filepath.Join(workspace, "repo-"+uuid.NewString()[:8])
		if err := os.Rename(dir, moved); err != nil {
			moved = dir
		}
		inputs = append(inputs, moved)
	}

	opts := req.options()
	opts.Progress = progress

	output := filepath.Join(workspace, "output")
	if opts.SingleFile {
		output += ".md"
	}

	logger := s.logger.With(zap.String("runId", id))
	summary, err := aggregate.New(opts, logger).Run(ctx, inputs, output)

	s.mu.Lock()
	s.runs[id] = runRecord{workspace: workspace, output: output, singleFile: opts.SingleFile}
	s.mu.Unlock()
	return summary, err
}

func (s *Server) respondJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("Writing response failed", zap.Error(err))
	}
}

// requestFromForm decodes the multipart form's option fields.
func requestFromForm(r *http.Request) runRequest {
	req := runRequest{
		SingleFile:  formBool(r, "single_file", false),
		RepoDepth:   formInt(r, "repo_depth", 0),
		CountTokens: formBool(r, "count_tokens", false),
		Title:       r.FormValue("title"),
	}
	meta := formBool(r, "include_metadata", true)
	toc := formBool(r, "include_toc", true)
	req.IncludeMetadata = &meta
	req.IncludeTOC = &toc

	for _, line := range strings.Split(r.FormValue("github_urls"), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			req.GithubURLs = append(req.GithubURLs, line)
		}
	}
	for _, p := range strings.Split(r.FormValue("ignore_paths"), ",") {
		if p = strings.TrimSpace(p); p != "" {
			req.IgnorePaths = append(req.IgnorePaths, p)
		}
	}
	return req
}

func formBool(r *http.Request, key string, fallback bool) bool {
	v := r.FormValue(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func formInt(r *http.Request, key string, fallback int) int {
	v := r.FormValue(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return parsed
}

// saveUpload writes one uploaded file under dir, keeping only the base
// name so uploads cannot escape the workspace.
func saveUpload(header *multipart.FileHeader, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	name := filepath.Base(filepath.FromSlash(header.Filename))
	if name == "." || name == string(os.PathSeparator) {
		return "", fmt.Errorf("invalid upload name %q", header.Filename)
	}

	src, err := header.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	target := filepath.Join(dir, name)
	dst, err := os.Create(target)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return "", err
	}
	return target, dst.Close()
}

// zipDir streams dir's files into a zip archive on w.
func zipDir(w io.Writer, dir string) error {
	zw := zip.NewWriter(w)
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		entry, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(entry, f)
		return err
	})
	if err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
