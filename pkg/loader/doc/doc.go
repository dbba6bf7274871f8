package doc

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/crosscheck/pkg/loader"
)

const docXMLMax = 50 << 20

// DocxFileLoader extracts the text of Word documents (.docx) loaded through
// another FileLoader. Deleted revisions are skipped and table cells are
// separated by tabs.
type DocxFileLoader struct {
	loader loader.FileLoader

	cache *loader.Cache
}

// NewDocxFileLoader creates a new DocxFileLoader reading raw files through l.
func NewDocxFileLoader(l loader.FileLoader, opts ...loader.Option) *DocxFileLoader {
	return &DocxFileLoader{
		loader: l,
		cache:  loader.ApplyOptions(opts...).Cache,
	}
}

// GetFileText extracts text content from the Word document at source.
func (l *DocxFileLoader) GetFileText(ctx context.Context, source string) ([]byte, error) {
	return l.cache.Load(loader.CacheKey(source), func() ([]byte, error) {
		content, err := l.loader.GetFileText(ctx, source)
		if err != nil {
			return nil, err
		}

		text, err := ParseDocx(content)
		if err != nil {
			return nil, fmt.Errorf("docx %s: %w", source, err)
		}
		return text, nil
	})
}
