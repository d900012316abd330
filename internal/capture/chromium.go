// Package capture renders the briefing widget page to a PNG with headless
// Chromium.
package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"

	appLog "schoolsync/internal/log"
)

// Phone-sized viewport; the widget is laid out for a narrow column.
const (
	DefaultWidth   = 480
	DefaultHeight  = 900
	DefaultTimeout = 30 * time.Second

	// readySelector is set by the widget once it has rendered its data.
	readySelector = `[data-ready="true"]`
)

// SnapshotOptions defines parameters for a Chromium-based screenshot.
type SnapshotOptions struct {
	// URL to capture, e.g. "http://127.0.0.1:8080/widget/briefing?range=week".
	URL string

	// OutputPath is where the PNG is written. Parent directories are created.
	OutputPath string

	// Width and Height are the viewport in pixels. Zero means the defaults.
	Width  int
	Height int

	// Timeout bounds the whole capture. Zero means DefaultTimeout.
	Timeout time.Duration
}

func (o *SnapshotOptions) normalize() error {
	if o.URL == "" {
		return errors.New("capture: URL is required")
	}
	if o.OutputPath == "" {
		return errors.New("capture: OutputPath is required")
	}
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return nil
}

// SnapshotPNG launches headless Chromium via chromedp, opens opts.URL, waits
// until the widget marks itself ready and writes a full-page PNG.
func SnapshotPNG(parentCtx context.Context, opts SnapshotOptions) error {
	if err := opts.normalize(); err != nil {
		return err
	}

	ctx, cancel := chromedp.NewContext(parentCtx)
	defer cancel()

	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	start := time.Now()
	var png []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)),
		chromedp.Navigate(opts.URL),
		chromedp.WaitVisible(readySelector, chromedp.ByQuery),
		// 폰트 렌더링이 끝날 시간을 조금 준다.
		chromedp.Sleep(300 * time.Millisecond),
		chromedp.FullScreenshot(&png, 100),
	}
	if err := chromedp.Run(ctx, tasks); err != nil {
		return fmt.Errorf("capture: chromedp run failed: %w", err)
	}

	if dir := filepath.Dir(opts.OutputPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("capture: create output dir: %w", err)
		}
	}
	if err := os.WriteFile(opts.OutputPath, png, 0o644); err != nil {
		return fmt.Errorf("capture: failed to write PNG: %w", err)
	}

	appLog.Info("widget snapshot written",
		"path", opts.OutputPath,
		"bytes", len(png),
		"duration", time.Since(start).String(),
	)
	return nil
}
