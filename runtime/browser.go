package runtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/justapithecus/chartd/types"
)

// DefaultLaunchTimeout bounds how long LaunchBrowser waits for the
// DevTools endpoint of a freshly started browser.
const DefaultLaunchTimeout = 30 * time.Second

// BrowserConfig configures the shared browser.
type BrowserConfig struct {
	// Bin is the browser executable. Empty lets the launcher resolve one.
	Bin string
	// WSEndpoint connects to an already running browser instead of launching.
	WSEndpoint string
	Headless   bool
	NoSandbox  bool
	// LaunchTimeout defaults to DefaultLaunchTimeout.
	LaunchTimeout time.Duration
}

// RodEngine is an Engine backed by a Chromium instance driven through go-rod.
type RodEngine struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	// owned is false when connected to an external browser; Close then
	// leaves the remote process running.
	owned bool
}

// LaunchBrowser starts (or connects to) the shared browser.
func LaunchBrowser(ctx context.Context, cfg BrowserConfig) (*RodEngine, error) {
	if cfg.WSEndpoint != "" {
		b := rod.New().Context(ctx).ControlURL(cfg.WSEndpoint)
		if err := b.Connect(); err != nil {
			return nil, fmt.Errorf("failed to connect to browser at %s: %w", cfg.WSEndpoint, err)
		}
		return &RodEngine{browser: b.Context(context.Background())}, nil
	}

	timeout := cfg.LaunchTimeout
	if timeout <= 0 {
		timeout = DefaultLaunchTimeout
	}

	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox)
	if cfg.Bin != "" {
		l = l.Bin(cfg.Bin)
	}

	// Launch in the background so a hung browser cannot outlive the timeout.
	urlCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		u, err := l.Launch()
		if err != nil {
			errCh <- fmt.Errorf("failed to launch browser: %w", err)
			return
		}
		urlCh <- u
	}()

	var controlURL string
	select {
	case controlURL = <-urlCh:
	case err := <-errCh:
		l.Cleanup()
		return nil, err
	case <-time.After(timeout):
		l.Kill()
		l.Cleanup()
		return nil, errors.New("timed out waiting for browser DevTools endpoint")
	case <-ctx.Done():
		l.Kill()
		l.Cleanup()
		return nil, ctx.Err()
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		l.Cleanup()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	return &RodEngine{browser: b, launcher: l, owned: true}, nil
}

// NewSession opens an incognito context with one blank page.
func (e *RodEngine) NewSession(ctx context.Context) (Session, error) {
	incognito, err := e.browser.Context(ctx).Incognito()
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}
	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = incognito.Close()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	return &rodSession{incognito: incognito, page: page}, nil
}

// Close shuts down the browser if it was launched by this process.
func (e *RodEngine) Close() error {
	if !e.owned {
		return nil
	}
	err := e.browser.Close()
	e.launcher.Kill()
	e.launcher.Cleanup()
	return err
}

type rodSession struct {
	incognito *rod.Browser
	page      *rod.Page
}

func (s *rodSession) Navigate(ctx context.Context, url string) error {
	return s.page.Context(ctx).Navigate(url)
}

func (s *rodSession) WaitReady(ctx context.Context, selector, errorSelector string) error {
	page := s.page.Context(ctx)
	if errorSelector == "" {
		_, err := page.Element(selector)
		return err
	}
	_, err := page.Race().
		Element(selector).
		Element(errorSelector).Handle(func(el *rod.Element) error {
		return markerError(el.Text())
	}).
		Do()
	return err
}

func (s *rodSession) Screenshot(ctx context.Context, selector string, format types.ImageFormat, quality int) ([]byte, error) {
	el, err := s.page.Context(ctx).Element(selector)
	if err != nil {
		return nil, err
	}
	return el.Screenshot(screenshotFormat(format), quality)
}

// Close closes the page and disposes of its browser context. Both carry the
// render context, which may already be done, so cleanup runs without it.
func (s *rodSession) Close() error {
	return errors.Join(
		s.page.Context(context.Background()).Close(),
		s.incognito.Context(context.Background()).Close(),
	)
}

// markerError turns the UI error marker's text into a ClientError.
func markerError(text string, err error) error {
	if err != nil {
		return &ClientError{Message: fmt.Sprintf("error marker unreadable: %v", err)}
	}
	return &ClientError{Message: strings.TrimSpace(text)}
}

func screenshotFormat(f types.ImageFormat) proto.PageCaptureScreenshotFormat {
	if f == types.FormatJPEG {
		return proto.PageCaptureScreenshotFormatJpeg
	}
	return proto.PageCaptureScreenshotFormatPng
}
