// Package renderer prints web articles to PDF with headless Chrome.
package renderer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"ReaderSync/internal/domain"
	"ReaderSync/internal/ports"
)

// Config tunes the browser session.
type Config struct {
	// ExecPath points at a Chrome binary; empty lets chromedp find one.
	ExecPath string
	Timeout  time.Duration
	// Paper size in inches. The defaults match the reMarkable 2 screen aspect.
	PaperWidth  float64
	PaperHeight float64
	// MinArticleChars below which a page is treated as a login wall.
	MinArticleChars int
	LoginRetryDelay time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:         90 * time.Second,
		PaperWidth:      6.18,
		PaperHeight:     8.24,
		MinArticleChars: 280,
		LoginRetryDelay: 5 * time.Second,
	}
}

// CookieSource supplies the session cookies injected before navigation.
type CookieSource interface {
	All() []*http.Cookie
}

// capture is one browser visit: the page DOM and its print rendering.
type capture struct {
	html string
	pdf  []byte
}

type captureFunc func(ctx context.Context, pageURL string) (capture, error)

// pdfcpu would otherwise install its config and fonts under the user config dir.
var configOnce sync.Once

// Chrome is the PageRenderer backed by chromedp.
type Chrome struct {
	cfg     Config
	cookies CookieSource
	logger  *slog.Logger
	sleep   ports.Sleeper
	capture captureFunc
}

var _ ports.PageRenderer = (*Chrome)(nil)

// NewChrome builds a renderer. cookies may be nil.
func NewChrome(cfg Config, cookies CookieSource, logger *slog.Logger) *Chrome {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.PaperWidth <= 0 || cfg.PaperHeight <= 0 {
		cfg.PaperWidth, cfg.PaperHeight = def.PaperWidth, def.PaperHeight
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	configOnce.Do(api.DisableConfigDir)
	c := &Chrome{cfg: cfg, cookies: cookies, logger: logger, sleep: ports.Sleep}
	c.capture = c.captureWithChrome
	return c
}

// Render prints sourceURL into outputPath and returns its page count.
func (c *Chrome) Render(ctx context.Context, sourceURL, outputPath string, budget *ports.RetryBudget) (int, error) {
	var shot capture
	for {
		var err error
		shot, err = c.capture(ctx, sourceURL)
		if err != nil {
			return 0, fmt.Errorf("render %s: %w: %v", sourceURL, domain.ErrRenderFailure, err)
		}

		reason, err := DetectLoginWall(shot.html, sourceURL, c.cfg.MinArticleChars)
		if err != nil {
			return 0, fmt.Errorf("render %s: %w: %v", sourceURL, domain.ErrRenderFailure, err)
		}
		if reason == "" {
			break
		}
		if !budget.Spend() {
			return 0, fmt.Errorf("render %s: %w: %s", sourceURL, domain.ErrAuthRequired, reason)
		}
		c.logger.Warn("login wall detected, retrying", "url", sourceURL, "reason", reason, "retries_left", budget.Remaining())
		if err := c.sleep(ctx, c.cfg.LoginRetryDelay); err != nil {
			return 0, err
		}
	}

	if err := writeAtomic(outputPath, shot.pdf); err != nil {
		return 0, fmt.Errorf("render %s: %w: %v", sourceURL, domain.ErrRenderFailure, err)
	}
	pages, err := api.PageCountFile(outputPath)
	if err != nil {
		_ = os.Remove(outputPath)
		return 0, fmt.Errorf("render %s: %w: count pages: %v", sourceURL, domain.ErrRenderFailure, err)
	}
	c.logger.Debug("rendered", "url", sourceURL, "pages", pages, "bytes", len(shot.pdf))
	return pages, nil
}

func (c *Chrome) captureWithChrome(ctx context.Context, pageURL string) (capture, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.Flag("headless", true))
	if c.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(c.cfg.ExecPath))
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()
	runCtx, cancelRun := context.WithTimeout(browserCtx, c.cfg.Timeout)
	defer cancelRun()

	var shot capture
	err := chromedp.Run(runCtx,
		network.Enable(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			params := c.cookieParams()
			if len(params) == 0 {
				return nil
			}
			return network.SetCookies(params).Do(ctx)
		}),
		emulation.SetEmulatedMedia().WithMedia("print"),
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &shot.html, chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			buf, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(c.cfg.PaperWidth).
				WithPaperHeight(c.cfg.PaperHeight).
				Do(ctx)
			shot.pdf = buf
			return err
		}),
	)
	if err != nil {
		return capture{}, err
	}
	if len(shot.pdf) == 0 {
		return capture{}, errors.New("empty pdf")
	}
	return shot, nil
}

func (c *Chrome) cookieParams() []*network.CookieParam {
	if c.cookies == nil {
		return nil
	}
	var out []*network.CookieParam
	for _, ck := range c.cookies.All() {
		p := &network.CookieParam{
			Name:     ck.Name,
			Value:    ck.Value,
			Domain:   ck.Domain,
			Path:     ck.Path,
			Secure:   ck.Secure,
			HTTPOnly: ck.HttpOnly,
		}
		if !ck.Expires.IsZero() {
			exp := cdp.TimeSinceEpoch(ck.Expires)
			p.Expires = &exp
		}
		out = append(out, p)
	}
	return out
}

// writeAtomic leaves either the complete file at path or nothing.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".render-*.pdf")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
