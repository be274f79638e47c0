package htmlutil

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

// RenderOptions configures headless rendering.
type RenderOptions struct {
	Timeout time.Duration
	// Wait is extra time after the body is ready, for client-side rendering to settle.
	Wait time.Duration
	// ExecPath overrides the Chrome binary.
	ExecPath string
}

// DefaultRenderOptions returns the default rendering options.
func DefaultRenderOptions() RenderOptions {
	return RenderOptions{
		Timeout: 30 * time.Second,
		Wait:    500 * time.Millisecond,
	}
}

// RenderHTML loads url in headless Chrome and returns the rendered document HTML.
func RenderHTML(ctx context.Context, url string, opts RenderOptions) (string, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.DisableGPU,
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultRenderOptions().Timeout
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()
	runCtx, cancel := context.WithTimeout(browserCtx, opts.Timeout)
	defer cancel()

	var out string
	err := chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(opts.Wait),
		chromedp.OuterHTML("html", &out, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", url, err)
	}
	return out, nil
}
