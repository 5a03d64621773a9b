// Package convert turns a URL or an HTML document into a PDF using a
// leased browser instance from the pool.
package convert

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"html2pdf/pkg/logger"
	"html2pdf/pkg/metrics"
	"html2pdf/pkg/pool"
)

// chromeContexter is satisfied by pool.Underlying implementations that can
// also hand back a chromedp context, which is everything a
// pool.ChromeFactory produces. Type-asserting to this keeps Service decoupled
// from the concrete factory type.
type chromeContexter interface {
	Context() context.Context
}

// Options tunes a single conversion.
type Options struct {
	// Landscape renders the page in landscape orientation.
	Landscape bool
	// PrintBackground includes background graphics.
	PrintBackground bool
	// PaperWidth and PaperHeight are in inches. Zero means chromedp's
	// defaults (US Letter).
	PaperWidth  float64
	PaperHeight float64
	// NavigateTimeout bounds the navigation and the PDF print together.
	NavigateTimeout time.Duration
}

// DefaultOptions returns US Letter, portrait, backgrounds included, a 30s
// navigate timeout.
func DefaultOptions() Options {
	return Options{
		PrintBackground: true,
		NavigateTimeout: 30 * time.Second,
	}
}

// Service converts URLs and raw HTML documents to PDF bytes, acquiring one
// pooled browser instance per call and releasing it when done.
type Service struct {
	pool    *pool.Pool
	log     *logger.Logger
	metrics *metrics.Collector
}

// New returns a Service backed by the given pool.
func New(p *pool.Pool, log *logger.Logger, mc *metrics.Collector) *Service {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Service{pool: p, log: log, metrics: mc}
}

// ConvertURL renders the page at targetURL to PDF.
func (s *Service) ConvertURL(ctx context.Context, targetURL string, opts Options) ([]byte, error) {
	return s.convert(ctx, "url", targetURL, opts)
}

// ConvertHTML renders the given HTML document to PDF. The document is
// embedded as a base64 data: URI, so it never touches the network and
// needs no temporary file.
func (s *Service) ConvertHTML(ctx context.Context, html string, opts Options) ([]byte, error) {
	encoded := base64.StdEncoding.EncodeToString([]byte(html))
	dataURI := fmt.Sprintf("data:text/html;base64,%s", encoded)
	return s.convert(ctx, "html", dataURI, opts)
}

func (s *Service) convert(ctx context.Context, kind, target string, opts Options) ([]byte, error) {
	start := time.Now()
	pdf, err := s.doConvert(ctx, target, opts)
	if s.metrics != nil {
		s.metrics.ObserveConversion(kind, time.Since(start), err)
	}
	if err != nil {
		s.log.Error("conversion failed", zap.String("kind", kind), zap.Error(err))
		return nil, err
	}
	return pdf, nil
}

func (s *Service) doConvert(ctx context.Context, target string, opts Options) ([]byte, error) {
	lease, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring browser: %w", err)
	}
	defer lease.Release()

	cc, ok := lease.Underlying().(chromeContexter)
	if !ok {
		return nil, fmt.Errorf("leased instance does not support chrome-level PDF printing")
	}

	tabCtx, tabCancel := chromedp.NewContext(cc.Context())
	defer tabCancel()

	navCtx, navCancel := context.WithTimeout(tabCtx, opts.NavigateTimeout)
	defer navCancel()

	var pdf []byte
	err = chromedp.Run(navCtx,
		chromedp.Navigate(target),
		chromedp.ActionFunc(func(ctx context.Context) error {
			params := page.PrintToPDF().
				WithLandscape(opts.Landscape).
				WithPrintBackground(opts.PrintBackground)
			if opts.PaperWidth > 0 {
				params = params.WithPaperWidth(opts.PaperWidth)
			}
			if opts.PaperHeight > 0 {
				params = params.WithPaperHeight(opts.PaperHeight)
			}
			data, _, err := params.Do(ctx)
			if err != nil {
				return err
			}
			pdf = data
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("rendering pdf: %w", err)
	}

	return pdf, nil
}
