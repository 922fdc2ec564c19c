// Package pdf prints rendered documents to PDF through a headless Chromium
// driven by go-rod.
package pdf

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"invoicer/internal/log"
	"invoicer/internal/metrics"
)

// A4 in inches.
const (
	paperWidth  = 8.27
	paperHeight = 11.69
)

var ErrEmptyDocument = errors.New("empty html document")

// Exporter owns one browser, launched on first use and shared by all
// exports. Each export gets its own page.
type Exporter struct {
	bin     string
	timeout time.Duration
	logger  *log.Logger

	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
}

// NewExporter returns an exporter using bin, or the browser rod downloads
// when bin is empty.
func NewExporter(bin string, timeout time.Duration, logger *log.Logger) *Exporter {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Exporter{bin: bin, timeout: timeout, logger: logger.WithComponent(log.ComponentPDF)}
}

func (e *Exporter) connect() (*rod.Browser, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.browser != nil {
		return e.browser, nil
	}

	l := launcher.New().Headless(true).NoSandbox(true)
	if e.bin != "" {
		l = l.Bin(e.bin)
	}
	url, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	b := rod.New().ControlURL(url)
	if err := b.Connect(); err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	e.launcher, e.browser = l, b
	e.logger.Info("Browser started", "control_url", url)
	return b, nil
}

// RenderPDF implements ports.PDFRenderer.
func (e *Exporter) RenderPDF(ctx context.Context, html []byte, w io.Writer) (err error) {
	if len(html) == 0 {
		return ErrEmptyDocument
	}
	start := time.Now()
	defer func() {
		result := "success"
		if err != nil {
			result = "error"
		}
		metrics.PDFExports.WithLabelValues(result).Inc()
		metrics.PDFDuration.Observe(time.Since(start).Seconds())
	}()

	browser, err := e.connect()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	page, err := browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return fmt.Errorf("open page: %w", err)
	}
	defer page.Close()

	if err := page.SetDocumentContent(string(html)); err != nil {
		return fmt.Errorf("load document: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("wait load: %w", err)
	}

	stream, err := page.PDF(printOptions())
	if err != nil {
		return fmt.Errorf("print to pdf: %w", err)
	}
	if _, err := io.Copy(w, stream); err != nil {
		return fmt.Errorf("copy pdf: %w", err)
	}
	return nil
}

func printOptions() *proto.PagePrintToPDF {
	zero := 0.0
	width, height := paperWidth, paperHeight
	return &proto.PagePrintToPDF{
		PaperWidth:        &width,
		PaperHeight:       &height,
		MarginTop:         &zero,
		MarginBottom:      &zero,
		MarginLeft:        &zero,
		MarginRight:       &zero,
		PrintBackground:   true,
		PreferCSSPageSize: true,
	}
}

// Close shuts the browser down if it was started.
func (e *Exporter) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.browser == nil {
		return nil
	}
	err := e.browser.Close()
	e.launcher.Cleanup()
	e.browser, e.launcher = nil, nil
	return err
}
