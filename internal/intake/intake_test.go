package intake

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kalambet/cvsift/internal/intake/intaketest"
	"github.com/kalambet/cvsift/internal/match"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		data    []byte
		want    string
		wantErr string
	}{
		{"pdf", "cv.pdf", intaketest.PDF(2), match.MediaTypePDF, ""},
		{"upper-case ext", "CV.PDF", intaketest.PDF(1), match.MediaTypePDF, ""},
		{"docx", "cv.docx", intaketest.DOCX(), match.MediaTypeDOCX, ""},
		{"legacy doc", "cv.doc", []byte("x"), "", "legacy .doc"},
		{"txt", "cv.txt", []byte("hello"), "", "unsupported file type .txt"},
		{"no ext", "cv", []byte("hello"), "", "missing file extension"},
		{"pdf without header", "cv.pdf", []byte("hello world"), "", "missing %PDF header"},
		{"pdf without pages", "cv.pdf", intaketest.PDF(0), "", "no pages"},
		{"docx not zip", "cv.docx", []byte("hello"), "", "not a zip"},
		{"zip without document", "cv.docx", zipWithout(t), "", "word/document.xml not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Detect(tt.file, tt.data)
			if tt.wantErr != "" {
				var ve *ValidationError
				if !errors.As(err, &ve) {
					t.Fatalf("err = %v, want ValidationError", err)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("err = %q, want it to contain %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Detect: %v", err)
			}
			if got != tt.want {
				t.Errorf("Detect = %q, want %q", got, tt.want)
			}
		})
	}
}

func zipWithout(t *testing.T) []byte {
	t.Helper()
	// A DOCX fixture with the document part renamed.
	data := intaketest.DOCX()
	return []byte(strings.Replace(string(data), "word/document.xml", "word/documenX.xml", -1))
}

func TestPageCount(t *testing.T) {
	n, err := PageCount(intaketest.PDF(3))
	if err != nil {
		t.Fatalf("PageCount: %v", err)
	}
	if n != 3 {
		t.Errorf("PageCount = %d, want 3", n)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	a := intaketest.WriteFile(t, dir, "alice.pdf", intaketest.PDF(1))
	b := intaketest.WriteFile(t, dir, "bob.docx", intaketest.DOCX())

	sub, err := Load(context.Background(), "  Senior Go engineer  ", []string{b, a}, Options{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if sub.Criteria != "Senior Go engineer" {
		t.Errorf("Criteria = %q", sub.Criteria)
	}
	if len(sub.Documents) != 2 {
		t.Fatalf("len(Documents) = %d", len(sub.Documents))
	}
	if sub.Documents[0].Name != "bob.docx" || sub.Documents[0].MediaType != match.MediaTypeDOCX {
		t.Errorf("Documents[0] = %s %s", sub.Documents[0].Name, sub.Documents[0].MediaType)
	}
	if sub.Documents[1].Name != "alice.pdf" || sub.Documents[1].MediaType != match.MediaTypePDF {
		t.Errorf("Documents[1] = %s %s", sub.Documents[1].Name, sub.Documents[1].MediaType)
	}
}

func TestLoad_Validation(t *testing.T) {
	dir := t.TempDir()
	ok := intaketest.WriteFile(t, dir, "ok.pdf", intaketest.PDF(1))
	other := filepath.Join(t.TempDir(), "ok.pdf")
	if err := os.WriteFile(other, intaketest.PDF(1), 0o644); err != nil {
		t.Fatal(err)
	}
	big := intaketest.WriteFile(t, dir, "big.pdf", append(intaketest.PDF(1), make([]byte, 2048)...))
	txt := intaketest.WriteFile(t, dir, "notes.txt", []byte("hi"))

	tests := []struct {
		name     string
		criteria string
		paths    []string
		opts     Options
		field    string
	}{
		{"empty criteria", "   ", []string{ok}, Options{}, "criteria"},
		{"no files", "go", nil, Options{}, "files"},
		{"too many files", "go", []string{ok, big}, Options{MaxFiles: 1}, "files"},
		{"duplicate names", "go", []string{ok, other}, Options{}, "files"},
		{"oversize", "go", []string{big}, Options{MaxFileSize: 1024}, "big.pdf"},
		{"unsupported", "go", []string{ok, txt}, Options{}, "notes.txt"},
		{"directory", "go", []string{dir}, Options{}, filepath.Base(dir)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(context.Background(), tt.criteria, tt.paths, tt.opts)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
			if ve.Field != tt.field {
				t.Errorf("Field = %q, want %q", ve.Field, tt.field)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(context.Background(), "go", []string{filepath.Join(t.TempDir(), "nope.pdf")}, Options{})
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want not-exist", err)
	}
}

func TestNew(t *testing.T) {
	sub, err := New("go", []match.Document{
		{Name: "a.pdf", Data: intaketest.PDF(1)},
		{Name: "b.docx", MediaType: match.MediaTypeDOCX, Data: intaketest.DOCX()},
	}, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if sub.Documents[0].MediaType != match.MediaTypePDF {
		t.Errorf("MediaType = %q", sub.Documents[0].MediaType)
	}

	_, err = New("go", []match.Document{{Name: "a.pdf", MediaType: match.MediaTypeDOCX, Data: intaketest.PDF(1)}}, Options{})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want ValidationError for mismatched type", err)
	}
}
