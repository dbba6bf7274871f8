package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/OFFIS-RIT/crosscheck/pkg/common"
	"github.com/OFFIS-RIT/crosscheck/pkg/loader"

	"codeberg.org/readeck/go-readability/v2"
)

// WebFileLoader loads content from web URLs. For HTML pages, it uses
// readability to extract the main content; other content types are returned
// as fetched.
type WebFileLoader struct {
	client *http.Client
	cache  *loader.Cache
}

// NewWebFileLoader creates a new web loader. A nil client selects a client
// with a one minute timeout.
func NewWebFileLoader(client *http.Client, opts ...loader.Option) *WebFileLoader {
	if client == nil {
		client = &http.Client{Timeout: time.Minute}
	}
	return &WebFileLoader{
		client: client,
		cache:  loader.ApplyOptions(opts...).Cache,
	}
}

// GetFileText fetches a URL and extracts readable text content.
func (l *WebFileLoader) GetFileText(ctx context.Context, source string) ([]byte, error) {
	key := loader.CacheKey(source)

	return l.cache.Load(key, func() ([]byte, error) {
		u, err := url.Parse(key)
		if err != nil {
			return nil, fmt.Errorf("failed to parse url: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := l.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch url: %w", err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
			return nil, fmt.Errorf("%w: %s", common.ErrSourceNotFound, source)
		case resp.StatusCode >= 400:
			return nil, fmt.Errorf("failed to fetch url: status %d", resp.StatusCode)
		}

		var result []byte
		if strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
			article, err := readability.FromReader(resp.Body, u)
			if err != nil {
				return nil, fmt.Errorf("failed to parse html: %w", err)
			}
			var builder strings.Builder
			if err := article.RenderText(&builder); err != nil {
				return nil, fmt.Errorf("failed to render article text: %w", err)
			}
			result = []byte(builder.String())
		} else {
			result, err = io.ReadAll(resp.Body)
			if err != nil {
				return nil, err
			}
		}
		return result, nil
	})
}
