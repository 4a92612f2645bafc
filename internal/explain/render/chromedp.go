// Package render turns explanation HTML into PNG or PDF with headless Chrome.
package render

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/fraud-detection/internal/explain"
)

// Config controls the headless renderer.
type Config struct {
	// ExecPath overrides the Chrome binary lookup.
	ExecPath string
	Timeout  time.Duration
}

// Chromedp renders report HTML in a headless browser.
type Chromedp struct {
	cfg         Config
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewChromedp prepares a browser allocator. Chrome starts lazily on the first Render.
func NewChromedp(cfg Config) (*Chromedp, error) {
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("render timeout must be >= 0")
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.WindowSize(1024, 768),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &Chromedp{cfg: cfg, allocator: allocCtx, allocCancel: allocCancel}, nil
}

// Close shuts the browser down.
func (r *Chromedp) Close() {
	r.allocCancel()
}

func (r *Chromedp) timeout() time.Duration {
	if r.cfg.Timeout <= 0 {
		return 30 * time.Second
	}
	return r.cfg.Timeout
}

// Render loads html into a blank page and captures it in the requested format.
func (r *Chromedp) Render(ctx context.Context, html []byte, format explain.Format) ([]byte, error) {
	if _, err := explain.ParseFormat(string(format)); err != nil {
		return nil, err
	}
	taskCtx, taskCancel := chromedp.NewContext(r.allocator)
	defer taskCancel()
	taskCtx, cancel := context.WithTimeout(taskCtx, r.timeout())
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var out []byte
	actions := []chromedp.Action{
		chromedp.Navigate("about:blank"),
		setContent(string(html)),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	switch format {
	case explain.FormatPNG:
		actions = append(actions, chromedp.FullScreenshot(&out, 100))
	case explain.FormatPDF:
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			data, _, err := page.PrintToPDF().WithPrintBackground(true).Do(ctx)
			if err != nil {
				return fmt.Errorf("print to pdf: %w", err)
			}
			out = data
			return nil
		}))
	}
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return nil, fmt.Errorf("chromedp run: %w", err)
	}
	return out, nil
}

func setContent(html string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		tree, err := page.GetFrameTree().Do(ctx)
		if err != nil {
			return fmt.Errorf("get frame tree: %w", err)
		}
		if err := page.SetDocumentContent(tree.Frame.ID, html).Do(ctx); err != nil {
			return fmt.Errorf("set document content: %w", err)
		}
		return nil
	})
}
