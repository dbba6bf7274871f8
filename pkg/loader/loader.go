package loader

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/OFFIS-RIT/crosscheck/pkg/common"
	"github.com/OFFIS-RIT/crosscheck/pkg/logger"
)

// FileLoader returns the content of a source. Source loaders (filesystem,
// web, S3) return raw bytes; format loaders such as pdf wrap a source loader
// and return extracted text.
type FileLoader interface {
	GetFileText(ctx context.Context, source string) ([]byte, error)
}

// Extractor turns a source reference into a plain text document.
type Extractor interface {
	Extract(ctx context.Context, source string) (common.Document, error)
}

// CacheKey returns the cache key used by loaders for source.
func CacheKey(source string) string {
	return strings.TrimSpace(source)
}

// Scheme returns the lower-cased scheme of source, or "" for plain paths.
func Scheme(source string) string {
	u, err := url.Parse(source)
	if err != nil || len(u.Scheme) < 2 {
		// single letter schemes are windows drive letters
		return ""
	}
	return strings.ToLower(u.Scheme)
}

// Ext returns the lower-cased file extension of source, ignoring any query
// string or fragment.
func Ext(source string) string {
	p := source
	if u, err := url.Parse(source); err == nil && u.Scheme != "" {
		p = u.Path
	}
	return strings.ToLower(path.Ext(p))
}

// SchemeRouter dispatches to a source loader by URL scheme: http and https
// go to Web, s3 to S3 and plain paths and file URLs to Local.
//
// Allowed lists the schemes callers may use, with "file" standing for plain
// paths too. A nil Allowed permits every scheme that has a loader.
type SchemeRouter struct {
	Local FileLoader
	Web   FileLoader
	S3    FileLoader

	Allowed []string
}

func (r *SchemeRouter) allows(scheme string) bool {
	if r.Allowed == nil {
		return true
	}
	if scheme == "" {
		scheme = "file"
	}
	return slices.Contains(r.Allowed, scheme)
}

// GetFileText implements FileLoader.
func (r *SchemeRouter) GetFileText(ctx context.Context, source string) ([]byte, error) {
	if !r.allows(Scheme(source)) {
		return nil, fmt.Errorf("%w: scheme of %q is not allowed", common.ErrSourceForbidden, source)
	}

	var l FileLoader
	switch Scheme(source) {
	case "http", "https":
		l = r.Web
	case "s3":
		l = r.S3
	case "", "file":
		l = r.Local
	default:
		return nil, common.InvalidConfiguration("unsupported source scheme %q", Scheme(source))
	}
	if l == nil {
		return nil, common.InvalidConfiguration("no loader configured for %q", source)
	}
	return l.GetFileText(ctx, source)
}

// DocumentExtractor implements Extractor on top of a source loader and a set
// of format loaders chosen by file extension.
type DocumentExtractor struct {
	source  FileLoader
	formats map[string]FileLoader
}

// NewDocumentExtractor creates a DocumentExtractor. Sources whose extension
// has no entry in formats are read from source as plain text.
func NewDocumentExtractor(source FileLoader, formats map[string]FileLoader) *DocumentExtractor {
	normalized := make(map[string]FileLoader, len(formats))
	for ext, l := range formats {
		normalized[strings.ToLower(ext)] = l
	}
	return &DocumentExtractor{source: source, formats: normalized}
}

// Extract loads source and returns its text. Invalid UTF-8 is dropped.
func (e *DocumentExtractor) Extract(ctx context.Context, source string) (common.Document, error) {
	if strings.TrimSpace(source) == "" {
		return common.Document{}, common.InvalidConfiguration("empty source")
	}

	l := e.source
	if f, ok := e.formats[Ext(source)]; ok {
		l = f
	}

	content, err := l.GetFileText(ctx, source)
	if err != nil {
		return common.Document{}, err
	}

	text := string(content)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "")
	}
	doc := common.Document{Source: source, Text: text}
	logger.Debug("[Loader] extracted document", "source", source, "characters", doc.Len())
	return doc, nil
}
