// Package intake turns criteria text and local files into a validated
// submission. Nothing here touches the network: a submission that fails
// validation never reaches the analysis service.
package intake

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/cvsift/internal/match"
)

const (
	defaultMaxFileSize = 10 << 20
	defaultMaxFiles    = 50
	defaultConcurrency = 4
)

// ValidationError reports a submission rejected before any request is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Options bounds what a submission may contain. Zero values use defaults.
type Options struct {
	MaxFileSize int64
	MaxFiles    int
	Concurrency int
}

func (o Options) withDefaults() Options {
	if o.MaxFileSize <= 0 {
		o.MaxFileSize = defaultMaxFileSize
	}
	if o.MaxFiles <= 0 {
		o.MaxFiles = defaultMaxFiles
	}
	if o.Concurrency <= 0 {
		o.Concurrency = defaultConcurrency
	}
	return o
}

// Load reads and validates the files at paths. Documents are named after the
// file's base name and keep the order of paths.
func Load(ctx context.Context, criteria string, paths []string, opts Options) (match.Submission, error) {
	opts = opts.withDefaults()
	if err := checkShape(criteria, len(paths), opts); err != nil {
		return match.Submission{}, err
	}
	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		name := filepath.Base(p)
		if seen[name] {
			return match.Submission{}, invalid("files", "duplicate file name %q", name)
		}
		seen[name] = true
	}

	docs := make([]match.Document, len(paths))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for i, p := range paths {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			doc, err := readDocument(p, opts.MaxFileSize)
			if err != nil {
				return err
			}
			docs[i] = doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return match.Submission{}, err
	}

	return match.Submission{Criteria: strings.TrimSpace(criteria), Documents: docs}, nil
}

// New validates documents already held in memory. MediaType is filled in
// from the content when empty.
func New(criteria string, docs []match.Document, opts Options) (match.Submission, error) {
	opts = opts.withDefaults()
	if err := checkShape(criteria, len(docs), opts); err != nil {
		return match.Submission{}, err
	}
	seen := make(map[string]bool, len(docs))
	out := make([]match.Document, len(docs))
	for i, d := range docs {
		if d.Name == "" {
			return match.Submission{}, invalid("files", "document %d has no name", i+1)
		}
		if seen[d.Name] {
			return match.Submission{}, invalid("files", "duplicate file name %q", d.Name)
		}
		seen[d.Name] = true
		if int64(len(d.Data)) > opts.MaxFileSize {
			return match.Submission{}, invalid(d.Name, "file is %s, limit is %s", humanSize(int64(len(d.Data))), humanSize(opts.MaxFileSize))
		}
		mt, err := Detect(d.Name, d.Data)
		if err != nil {
			return match.Submission{}, err
		}
		if d.MediaType != "" && d.MediaType != mt {
			return match.Submission{}, invalid(d.Name, "declared type %s does not match content (%s)", d.MediaType, mt)
		}
		out[i] = match.Document{Name: d.Name, MediaType: mt, Data: d.Data}
	}
	return match.Submission{Criteria: strings.TrimSpace(criteria), Documents: out}, nil
}

func checkShape(criteria string, n int, opts Options) error {
	if strings.TrimSpace(criteria) == "" {
		return invalid("criteria", "job criteria must not be empty")
	}
	if n == 0 {
		return invalid("files", "at least one CV file is required")
	}
	if n > opts.MaxFiles {
		return invalid("files", "%d files submitted, limit is %d", n, opts.MaxFiles)
	}
	return nil
}

func readDocument(path string, maxSize int64) (match.Document, error) {
	name := filepath.Base(path)
	info, err := os.Stat(path)
	if err != nil {
		return match.Document{}, fmt.Errorf("reading %s: %w", path, err)
	}
	if info.IsDir() {
		return match.Document{}, invalid(name, "is a directory")
	}
	if info.Size() > maxSize {
		return match.Document{}, invalid(name, "file is %s, limit is %s", humanSize(info.Size()), humanSize(maxSize))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return match.Document{}, fmt.Errorf("reading %s: %w", path, err)
	}
	mt, err := Detect(name, data)
	if err != nil {
		return match.Document{}, err
	}
	return match.Document{Name: name, MediaType: mt, Data: data}, nil
}

func humanSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}
