package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// Renderer loads a URL in a headless browser and returns the settled DOM
type Renderer interface {
	Render(ctx context.Context, rawURL string) (string, error)
	Close() error
}

// RodRenderer renders pages with a lazily launched headless Chrome
type RodRenderer struct {
	mu        sync.Mutex
	browser   *rod.Browser
	bin       string
	userAgent string
	settle    time.Duration
	logger    *zap.Logger
}

// NewRodRenderer creates a renderer; Chrome starts on first use
func NewRodRenderer(bin, userAgent string, logger *zap.Logger) *RodRenderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RodRenderer{
		bin:       bin,
		userAgent: userAgent,
		settle:    1500 * time.Millisecond,
		logger:    logger.With(zap.String("component", "renderer")),
	}
}

func (r *RodRenderer) ensureStarted() (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser != nil {
		if _, err := r.browser.Version(); err == nil {
			return r.browser, nil
		}
		r.logger.Warn("stale browser connection, relaunching")
		_ = r.browser.Close()
		r.browser = nil
	}

	l := launcher.New().Headless(true)
	if r.bin != "" {
		l = l.Bin(r.bin)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chrome: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}

	r.browser = browser
	r.logger.Debug("browser started", zap.String("control_url", controlURL))
	return browser, nil
}

// Render navigates an incognito page to rawURL and returns its HTML once the
// load event fired and scripts had a moment to settle
func (r *RodRenderer) Render(ctx context.Context, rawURL string) (string, error) {
	browser, err := r.ensureStarted()
	if err != nil {
		return "", err
	}

	incognito, err := browser.Incognito()
	if err != nil {
		return "", fmt.Errorf("incognito context: %w", err)
	}
	defer func() { _ = incognito.Close() }()

	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", fmt.Errorf("create page: %w", err)
	}
	defer func() { _ = page.Close() }()

	p := page.Context(ctx)
	if r.userAgent != "" {
		if err := p.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: r.userAgent}); err != nil {
			r.logger.Debug("user agent override failed", zap.Error(err))
		}
	}

	if err := p.Navigate(rawURL); err != nil {
		return "", fmt.Errorf("navigate: %w", err)
	}
	if err := p.WaitLoad(); err != nil {
		return "", fmt.Errorf("wait load: %w", err)
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(r.settle):
	}

	body, err := p.HTML()
	if err != nil {
		return "", fmt.Errorf("read html: %w", err)
	}
	return body, nil
}

// Close shuts the browser down if it was started
func (r *RodRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser == nil {
		return nil
	}
	err := r.browser.Close()
	r.browser = nil
	return err
}

// errNoRenderer marks render stages skipped for lack of a renderer
var errNoRenderer = errors.New("headless rendering disabled")
