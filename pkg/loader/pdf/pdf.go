package pdf

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/crosscheck/pkg/loader"

	lpdf "github.com/ledongthuc/pdf"
)

// PDFFileLoader extracts the text layer of PDF files loaded through another
// FileLoader. Pages are joined with a newline.
type PDFFileLoader struct {
	loader loader.FileLoader

	cache *loader.Cache
}

// NewPDFFileLoader creates a PDF loader reading raw files through l.
func NewPDFFileLoader(l loader.FileLoader, opts ...loader.Option) *PDFFileLoader {
	return &PDFFileLoader{
		loader: l,
		cache:  loader.ApplyOptions(opts...).Cache,
	}
}

// GetFileText extracts text from the PDF at source.
func (l *PDFFileLoader) GetFileText(ctx context.Context, source string) ([]byte, error) {
	return l.cache.Load(loader.CacheKey(source), func() ([]byte, error) {
		content, err := l.loader.GetFileText(ctx, source)
		if err != nil {
			return nil, err
		}

		text, err := ExtractText(content)
		if err != nil {
			return nil, fmt.Errorf("pdf %s: %w", source, err)
		}
		return []byte(text), nil
	})
}

// ExtractText returns the plain text of every page in content.
func ExtractText(content []byte) (text string, err error) {
	// the reader panics on some malformed cross reference tables
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	r, err := lpdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", err
	}

	pages := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		t, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, strings.TrimRight(t, "\n"))
	}
	return strings.Join(pages, "\n"), nil
}
