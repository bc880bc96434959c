package headless

import (
	"context"
	"fmt"

	"github.com/JakeFAU/menu-crawler/internal/menu"
)

// Static implements menu.Renderer over a plain fetcher. It is used when
// headless rendering is disabled, so lazily loaded items are not seen.
type Static struct {
	fetcher menu.Fetcher
}

// NewStatic wraps fetcher as a Renderer.
func NewStatic(fetcher menu.Fetcher) *Static {
	return &Static{fetcher: fetcher}
}

// Render returns the raw HTML served at url.
func (s *Static) Render(ctx context.Context, url string) (string, error) {
	res, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return "", fmt.Errorf("static render %s: %w", url, err)
	}
	return string(res.Body), nil
}
