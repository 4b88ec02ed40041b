package intake

import (
	"archive/zip"
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kalambet/cvsift/internal/match"
)

var (
	pdfMagic = []byte("%PDF-")
	zipMagic = []byte("PK\x03\x04")
)

// Detect returns the media type of a document, checking both the file
// extension and the content. Only PDF and DOCX are accepted.
func Detect(name string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".pdf":
		if err := checkPDF(data); err != nil {
			return "", invalid(name, "not a readable PDF: %v", err)
		}
		return match.MediaTypePDF, nil
	case ".docx":
		if err := checkDOCX(data); err != nil {
			return "", invalid(name, "not a readable Word document: %v", err)
		}
		return match.MediaTypeDOCX, nil
	case ".doc":
		return "", invalid(name, "legacy .doc files are not supported, convert to .docx")
	case "":
		return "", invalid(name, "missing file extension, allowed types: .pdf, .docx")
	default:
		return "", invalid(name, "unsupported file type %s, allowed types: .pdf, .docx", ext)
	}
}

// PageCount returns the number of pages of a PDF document.
func PageCount(data []byte) (n int, err error) {
	// The pdf package panics on some corrupt cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parsing pdf: %v", r)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, err
	}
	return r.NumPage(), nil
}

func checkPDF(data []byte) error {
	if !bytes.HasPrefix(data, pdfMagic) {
		return fmt.Errorf("missing %%PDF header")
	}
	n, err := PageCount(data)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("document has no pages")
	}
	return nil
}

func checkDOCX(data []byte) error {
	if !bytes.HasPrefix(data, zipMagic) {
		return fmt.Errorf("not a zip container")
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return err
	}
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			return nil
		}
	}
	return fmt.Errorf("word/document.xml not found")
}
