// Package analysistest runs a scripted fake of the analysis service.
package analysistest

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/cvsift/internal/match"
)

// Script controls how the fake service answers.
type Script struct {
	// Lines are written, in order and flushed one by one, to streaming
	// uploads. Use the Progress, Results and Failure helpers to build them.
	Lines []string
	// Results answers non-streaming uploads.
	Results []match.MatchResult
	// RateLimit answers the first N uploads with 429.
	RateLimit int
	// UploadStatus, when set, answers every upload with this status and
	// UploadDetail as the FastAPI detail.
	UploadStatus int
	UploadDetail string
	// Hold keeps a streaming response open after Lines until it is closed
	// or the client goes away.
	Hold chan struct{}
	// Documents are served by GET /api/file/{id}.
	Documents map[string]Document
	// Token, when set, is required as a bearer token on every route.
	Token string
}

// Document is a stored file served by the fake.
type Document struct {
	ContentType string
	Data        []byte
}

// File is one files part received by an upload.
type File struct {
	Name      string
	MediaType string
	Data      []byte
}

// Upload records one POST /api/upload.
type Upload struct {
	Accept       string
	Requirements string
	Files        []File
}

// Server is a running fake.
type Server struct {
	*httptest.Server
	script Script

	mu       sync.Mutex
	uploads  []Upload
	attempts int
}

// New starts a fake service and closes it when the test ends.
func New(t *testing.T, script Script) *Server {
	t.Helper()
	s := &Server{script: script}

	r := chi.NewRouter()
	if script.Token != "" {
		r.Use(bearerAuth(script.Token))
	}
	r.Route("/api", func(r chi.Router) {
		r.Post("/upload", s.handleUpload)
		r.Get("/file/{id}", s.handleFile)
		r.Get("/file/{id}/preview", s.handleFile)
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
		})
	})

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

// Uploads returns the uploads accepted so far.
func (s *Server) Uploads() []Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Upload, len(s.uploads))
	copy(out, s.uploads)
	return out
}

// Attempts counts every upload request, rate-limited ones included.
func (s *Server) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.attempts++
	limited := s.attempts <= s.script.RateLimit
	s.mu.Unlock()

	if limited {
		detail(w, http.StatusTooManyRequests, "slow down")
		return
	}
	if s.script.UploadStatus != 0 {
		detail(w, s.script.UploadStatus, s.script.UploadDetail)
		return
	}

	up, err := readUpload(r)
	if err != nil {
		detail(w, http.StatusBadRequest, err.Error())
		return
	}
	s.mu.Lock()
	s.uploads = append(s.uploads, up)
	s.mu.Unlock()

	if !strings.Contains(up.Accept, "text/event-stream") {
		results := s.script.Results
		if results == nil {
			results = []match.MatchResult{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"results": results, "total_cvs": len(results)})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	for _, line := range s.script.Lines {
		if _, err := io.WriteString(w, line); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
	if s.script.Hold != nil {
		select {
		case <-s.script.Hold:
		case <-r.Context().Done():
		}
	}
}

func readUpload(r *http.Request) (Upload, error) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return Upload{}, fmt.Errorf("invalid form: %v", err)
	}
	up := Upload{
		Accept:       r.Header.Get("Accept"),
		Requirements: r.FormValue("requirements"),
	}
	for _, fh := range r.MultipartForm.File["files"] {
		f, err := fh.Open()
		if err != nil {
			return Upload{}, err
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return Upload{}, err
		}
		up.Files = append(up.Files, File{Name: fh.Filename, MediaType: fh.Header.Get("Content-Type"), Data: data})
	}
	return up, nil
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.script.Documents[chi.URLParam(r, "id")]
	if !ok {
		detail(w, http.StatusNotFound, "File not found")
		return
	}
	w.Header().Set("Content-Type", doc.ContentType)
	w.WriteHeader(http.StatusOK)
	w.Write(doc.Data)
}

func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(auth, prefix) || subtle.ConstantTimeCompare([]byte(auth[len(prefix):]), []byte(token)) != 1 {
				detail(w, http.StatusUnauthorized, "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func detail(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"detail": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// Progress renders a progress event line.
func Progress(filename string, status match.Status, percent float64, step string) string {
	return line(map[string]any{
		"type": "progress",
		"data": match.AnalysisItem{Filename: filename, Status: status, Progress: percent, CurrentStep: step},
	})
}

// Results renders a results event line.
func Results(results ...match.MatchResult) string {
	if results == nil {
		results = []match.MatchResult{}
	}
	return line(map[string]any{
		"type": "results",
		"data": map[string]any{"results": results},
	})
}

// Failure renders an error event line.
func Failure(message string) string {
	return line(map[string]any{"type": "error", "message": message})
}

func line(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return "data: " + string(b) + "\n\n"
}
