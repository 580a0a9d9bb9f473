package render

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/rs/zerolog/log"
)

// Renderer rasterizes pages of one PDF document to PNG. It keeps the raw PDF
// bytes and opens a fresh MuPDF document per render call, so concurrent
// RenderPage calls are safe.
type Renderer struct {
	data  []byte
	dpi   int
	pages int
}

// NewRenderer validates the document and counts its pages up front.
func NewRenderer(pdf []byte, dpi int) (*Renderer, error) {
	if dpi <= 0 {
		dpi = 150
	}
	n, err := api.PageCount(bytes.NewReader(pdf), nil)
	if err != nil {
		return nil, fmt.Errorf("pdf page count failed: %w", err)
	}
	return &Renderer{data: pdf, dpi: dpi, pages: n}, nil
}

// NumPages reports the document's page count.
func (r *Renderer) NumPages() int { return r.pages }

// RenderPage rasterizes a 1-based page to PNG bytes.
func (r *Renderer) RenderPage(page int) ([]byte, error) {
	if page < 1 || page > r.pages {
		return nil, fmt.Errorf("page %d out of range: document has %d pages", page, r.pages)
	}

	doc, err := fitz.NewFromMemory(r.data)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	// go-fitz uses 0-based indexing
	img, err := doc.ImageDPI(page-1, float64(r.dpi))
	if err != nil {
		return nil, fmt.Errorf("failed to render page %d: %w", page, err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}

	bounds := img.Bounds()
	log.Debug().
		Int("page", page).
		Int("width", bounds.Dx()).
		Int("height", bounds.Dy()).
		Int("png_size", buf.Len()).
		Int("dpi", r.dpi).
		Msg("rendered page")

	return buf.Bytes(), nil
}
