package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/local/sheetify/internal/metrics"
	"github.com/local/sheetify/internal/retry"
	"github.com/local/sheetify/internal/sheet"
)

// Renderer rasterizes one page of the document under processing.
type Renderer interface {
	NumPages() int
	RenderPage(page int) ([]byte, error)
}

// Uploader pushes an image to the remote inference store.
type Uploader interface {
	Upload(ctx context.Context, data []byte, mimeType string) (string, error)
}

// Extractor runs the per-page extraction and accumulates rows.
type Extractor interface {
	Extract(ctx context.Context, page int, imageURI string) ([]sheet.Row, error)
	Sheet() sheet.Sheet
}

// Driver walks a page range through the two pipeline phases for one session:
// a concurrent scan phase (render + upload, cached per page) and a strictly
// sequential extraction phase. Extraction must stay sequential: concurrent
// calls would race on the shared conversation and break user/model pairing.
type Driver struct {
	sessionID string
	renderer  Renderer
	uploader  Uploader
	extractor Extractor
	progress  Publisher
	caller    retry.Caller
	scanLimit int

	mu      sync.Mutex
	images  map[int]string
	scanned int
}

func NewDriver(sessionID string, r Renderer, u Uploader, e Extractor, p Publisher, caller retry.Caller, scanLimit int) *Driver {
	return &Driver{
		sessionID: sessionID,
		renderer:  r,
		uploader:  u,
		extractor: e,
		progress:  p,
		caller:    caller,
		scanLimit: scanLimit,
		images:    make(map[int]string),
	}
}

// Run processes pages [startPage, endPage]. Whatever the outcome, the
// returned sheet holds every row accumulated before the error, so the caller
// can persist a partial result.
func (d *Driver) Run(ctx context.Context, startPage, endPage int) (sheet.Sheet, error) {
	if startPage < 1 || endPage < startPage {
		return nil, fmt.Errorf("invalid page range [%d, %d]", startPage, endPage)
	}
	total := endPage - startPage + 1

	// Scan phase: every page rendered and uploaded concurrently.
	g, gctx := errgroup.WithContext(ctx)
	if d.scanLimit > 0 {
		g.SetLimit(d.scanLimit)
	}
	for page := startPage; page <= endPage; page++ {
		g.Go(func() error {
			return d.scanPage(gctx, page, total)
		})
	}
	if err := g.Wait(); err != nil {
		return d.extractor.Sheet(), err
	}

	// Extraction phase: sequential, shared conversation and sheet.
	docPages := d.renderer.NumPages()
	for page := startPage; page <= endPage; page++ {
		uri, ok := d.imageFor(page)
		if !ok {
			// render failed for this page; it contributes zero rows
			continue
		}
		rows, err := d.extractor.Extract(ctx, page, uri)
		if err != nil {
			return d.extractor.Sheet(), err
		}
		if rows == nil {
			// a page yielding nothing still publishes an array, not null
			rows = []sheet.Row{}
		}
		details, _ := json.Marshal(sheet.Sheet(rows))
		if err := d.progress.SetProgress(ctx, d.sessionID, Progress{
			Stage:   StageExtracting,
			Cursor:  page,
			Percent: percent(page, docPages),
			Details: string(details),
		}); err != nil {
			return d.extractor.Sheet(), fmt.Errorf("publish progress: %w", err)
		}
	}

	return d.extractor.Sheet(), nil
}

// scanPage renders one page and uploads it, caching the remote reference for
// the extraction phase. Render failures are page-level: logged, skipped, the
// scan counter still advances. Upload failures escalate after retries.
func (d *Driver) scanPage(ctx context.Context, page, total int) error {
	img, err := d.renderer.RenderPage(page)
	if err != nil {
		log.Warn().Err(err).Int("page", page).Str("session", d.sessionID).Msg("render failed; skipping page")
		metrics.IncScanned("render_error")
		return d.publishScanned(ctx, page, total)
	}

	uri, err := retry.Call(ctx, d.caller, "upload", func(ctx context.Context) (string, error) {
		return d.uploader.Upload(ctx, img, "image/png")
	})
	if err != nil {
		metrics.IncScanned("upload_error")
		return fmt.Errorf("upload page %d: %w", page, err)
	}

	d.mu.Lock()
	d.images[page] = uri
	d.mu.Unlock()
	metrics.IncScanned("ok")

	return d.publishScanned(ctx, page, total)
}

func (d *Driver) publishScanned(ctx context.Context, page, total int) error {
	d.mu.Lock()
	d.scanned++
	done := d.scanned
	d.mu.Unlock()

	return d.progress.SetProgress(ctx, d.sessionID, Progress{
		Stage:   StageScanning,
		Cursor:  page,
		Percent: percent(done, total),
	})
}

func (d *Driver) imageFor(page int) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	uri, ok := d.images[page]
	return uri, ok
}

// Images returns the cached page-image references, for reuse by later
// download or export calls.
func (d *Driver) Images() map[int]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[int]string, len(d.images))
	for k, v := range d.images {
		out[k] = v
	}
	return out
}

func percent(done, total int) int {
	if total <= 0 {
		return 0
	}
	return done * 100 / total
}
