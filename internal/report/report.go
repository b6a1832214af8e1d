// Package report renders assessment reports to PDF through headless
// Chrome. The HTML document is built from an embedded template and
// printed via the devtools protocol.
package report

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/inframind/inframind/core"
	"github.com/inframind/inframind/schema"
	"pkt.systems/pslog"
)

//go:embed report.html.tmpl
var reportTemplate string

const renderTimeout = 60 * time.Second

// Renderer implements core.ReportRenderer. A remote devtools URL reuses
// an already running browser; without one a local Chrome binary is
// launched per render.
type Renderer struct {
	chromeURL string
	tmpl      *template.Template
	log       pslog.Logger
}

var _ core.ReportRenderer = (*Renderer)(nil)

// NewRenderer parses the report template. chromeURL may be empty.
func NewRenderer(chromeURL string, logger pslog.Logger) (*Renderer, error) {
	tmpl, err := template.New("report").Parse(reportTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse report template: %w", err)
	}
	return &Renderer{
		chromeURL: strings.TrimSpace(chromeURL),
		tmpl:      tmpl,
		log:       logger,
	}, nil
}

type document struct {
	Assessment  schema.Assessment
	Report      schema.Report
	Savings     float64
	GeneratedAt string
}

// HTML renders the report document markup.
func (r *Renderer) HTML(a schema.Assessment, rep schema.Report) ([]byte, error) {
	savings := 0.0
	for _, rec := range rep.Recommendations {
		savings += rec.MonthlySavingsUSD
	}
	doc := document{
		Assessment:  a,
		Report:      rep,
		Savings:     savings,
		GeneratedAt: rep.GeneratedAt.UTC().Format("Jan 2, 2006 15:04 UTC"),
	}
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, doc); err != nil {
		return nil, fmt.Errorf("render report html: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderPDF prints the report document to PDF.
func (r *Renderer) RenderPDF(ctx context.Context, a schema.Assessment, rep schema.Report) ([]byte, error) {
	html, err := r.HTML(a, rep)
	if err != nil {
		return nil, err
	}
	if r.log != nil {
		r.log.Debug("report render start", "assessment", a.ID, "remote", r.chromeURL != "")
	}

	browserCtx, cancel := r.browserContext(ctx)
	defer cancel()
	runCtx, cancelTimeout := context.WithTimeout(browserCtx, renderTimeout)
	defer cancelTimeout()

	var pdf []byte
	err = chromedp.Run(runCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			frameTree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(frameTree.Frame.ID, string(html)).Do(ctx)
		}),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			pdf, _, err = page.PrintToPDF().
				WithPrintBackground(true).
				WithPreferCSSPageSize(true).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		if r.log != nil {
			r.log.Warn("report render failed", "assessment", a.ID, "err", err)
		}
		return nil, fmt.Errorf("print report pdf: %w", err)
	}
	if r.log != nil {
		r.log.Info("report render ok", "assessment", a.ID, "bytes", len(pdf))
	}
	return pdf, nil
}

func (r *Renderer) browserContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.chromeURL != "" {
		allocCtx, cancelAlloc := chromedp.NewRemoteAllocator(ctx, r.chromeURL)
		taskCtx, cancelTask := chromedp.NewContext(allocCtx)
		return taskCtx, func() {
			cancelTask()
			cancelAlloc()
		}
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	taskCtx, cancelTask := chromedp.NewContext(allocCtx)
	return taskCtx, func() {
		cancelTask()
		cancelAlloc()
	}
}
