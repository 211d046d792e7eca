package headless

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/shufersal-scraper/internal/catalog"
)

// Detector decides whether a static page must be rendered.
type Detector interface {
	ShouldPromote(page catalog.Page) bool
}

// Promoter fetches statically and re-fetches through a browser when the
// detector flags the static document.
type Promoter struct {
	static   catalog.Fetcher
	rendered catalog.Fetcher
	detector Detector
	logger   *zap.Logger
}

var _ catalog.Fetcher = (*Promoter)(nil)

// NewPromoter wires a static fetcher, a rendering fetcher, and a detector.
func NewPromoter(static, rendered catalog.Fetcher, detector Detector, logger *zap.Logger) *Promoter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Promoter{static: static, rendered: rendered, detector: detector, logger: logger}
}

// Fetch implements catalog.Fetcher. A failed render falls back to the static
// page.
func (p *Promoter) Fetch(ctx context.Context, rawURL string) (catalog.Page, error) {
	page, err := p.static.Fetch(ctx, rawURL)
	if err != nil {
		return catalog.Page{}, err
	}
	if p.rendered == nil || p.detector == nil || !p.detector.ShouldPromote(page) {
		return page, nil
	}
	rendered, err := p.rendered.Fetch(ctx, rawURL)
	if err != nil {
		p.logger.Debug("headless render failed, using static page",
			zap.String("url", rawURL),
			zap.Error(err),
		)
		return page, nil
	}
	return rendered, nil
}
