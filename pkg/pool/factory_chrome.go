package pool

import (
	"context"
	"fmt"
	"net/url"

	"github.com/chromedp/chromedp"
)

// ChromeFactoryConfig tunes the launch flags used by ChromeFactory. The flag
// set hardens headless Chrome for server use (disable-gpu, no-sandbox,
// disabled automation-controlled blink feature, and so on).
type ChromeFactoryConfig struct {
	// ExecPath overrides the Chrome/Chromium binary; empty auto-detects.
	ExecPath string
	// Headless runs Chrome without a UI. Almost always true in production.
	Headless bool
	// ProxyURL optionally routes all traffic through a proxy. Credentials
	// embedded in the URL's userinfo are stripped before it is passed as a
	// launch flag; they are not used anywhere else.
	ProxyURL string
	// ExtraFlags are appended verbatim as additional chromedp.Flag options,
	// each "name=value" (value "true"/"false" parsed as a bool flag).
	ExtraFlags map[string]string
}

// ChromeFactory creates real chromedp-backed browser instances. It holds no
// mutable state, so Create is safe to call concurrently from many
// goroutines — each call spawns an independent OS process.
type ChromeFactory struct {
	cfg ChromeFactoryConfig
}

// NewChromeFactory returns a Factory that launches real Chrome processes
// per the given configuration.
func NewChromeFactory(cfg ChromeFactoryConfig) *ChromeFactory {
	return &ChromeFactory{cfg: cfg}
}

func (f *ChromeFactory) Create(ctx context.Context) (Underlying, error) {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", f.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-background-timer-throttling", true),
		chromedp.Flag("disable-backgrounding-occluded-windows", true),
		chromedp.Flag("disable-renderer-backgrounding", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
		chromedp.Flag("disable-hang-monitor", true),
		chromedp.Flag("disable-prompt-on-repost", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("disable-extensions", true),
	)

	if f.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(f.cfg.ExecPath))
	}

	if f.cfg.ProxyURL != "" {
		proxyURL := f.cfg.ProxyURL
		if parsed, err := url.Parse(proxyURL); err == nil && parsed.User != nil {
			proxyURL = fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host)
		}
		opts = append(opts, chromedp.ProxyServer(proxyURL))
	}

	for name, value := range f.cfg.ExtraFlags {
		switch value {
		case "true":
			opts = append(opts, chromedp.Flag(name, true))
		case "false":
			opts = append(opts, chromedp.Flag(name, false))
		default:
			opts = append(opts, chromedp.Flag(name, value))
		}
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	// Force the allocator to actually launch the process now rather than
	// lazily on first use, so a dead Chrome binary surfaces here and not
	// on the construction-time validation ping two lines later.
	bootCtx, bootCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(bootCtx); err != nil {
		bootCancel()
		allocCancel()
		return nil, fmt.Errorf("launching chrome: %w", err)
	}

	return &chromeUnderlying{allocCtx: allocCtx, allocCancel: allocCancel, rootCtx: bootCtx, rootCancel: bootCancel}, nil
}

// chromeUnderlying adapts a chromedp allocator context to the pool's
// Underlying interface.
type chromeUnderlying struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	rootCtx     context.Context
	rootCancel  context.CancelFunc
}

func (u *chromeUnderlying) OpenSurface(ctx context.Context) (Surface, error) {
	tabCtx, tabCancel := chromedp.NewContext(u.allocCtx)
	// chromedp.Run with no actions merely ensures the target exists.
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		return nil, fmt.Errorf("opening tab: %w", err)
	}
	return &chromeSurface{ctx: tabCtx, cancel: tabCancel}, nil
}

func (u *chromeUnderlying) Close(ctx context.Context) error {
	u.rootCancel()
	u.allocCancel()
	return nil
}

// Context returns the chromedp allocator context, for callers (the convert
// service) that need to drive CDP commands beyond the pool's own
// Surface/ping primitives.
func (u *chromeUnderlying) Context() context.Context {
	return u.allocCtx
}

type chromeSurface struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func (s *chromeSurface) Navigate(ctx context.Context, urlOrDataURI string) error {
	return chromedp.Run(s.ctx, chromedp.Navigate(urlOrDataURI))
}

func (s *chromeSurface) Close(ctx context.Context) error {
	s.cancel()
	return nil
}
