package pdf

import (
	"fmt"
	"image"
	"sync"

	"github.com/gen2brain/go-fitz"

	"github.com/spherical/pagesnap/internal/domain"
)

// rasterSource is the subset of *fitz.Document the package relies on.
type rasterSource interface {
	NumPage() int
	Bound(pageNumber int) (image.Rectangle, error)
	ImageDPI(pageNumber int, dpi float64) (*image.RGBA, error)
	Close() error
}

var _ rasterSource = (*fitz.Document)(nil)

// Document is a decoded PDF backed by MuPDF. Pages are 1-based.
type Document struct {
	mu     sync.Mutex
	src    rasterSource
	pages  int
	closed bool
}

var _ domain.Document = (*Document)(nil)

func newDocument(src rasterSource) (*Document, error) {
	pages := src.NumPage()
	if pages <= 0 {
		src.Close()
		return nil, domain.DecodeError("document has no pages", nil)
	}
	return &Document{src: src, pages: pages}, nil
}

// PageCount returns the number of pages.
func (d *Document) PageCount() int {
	return d.pages
}

func (d *Document) checkPage(page int) error {
	if d.closed {
		return domain.RenderError("document already released", nil)
	}
	if page < 1 || page > d.pages {
		return domain.RenderError(fmt.Sprintf("page %d out of range [1, %d]", page, d.pages), nil)
	}
	return nil
}

// Bound returns the page box in PDF points.
func (d *Document) Bound(page int) (image.Rectangle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkPage(page); err != nil {
		return image.Rectangle{}, err
	}
	r, err := d.src.Bound(page - 1)
	if err != nil {
		return image.Rectangle{}, domain.RenderError(fmt.Sprintf("failed to read bounds of page %d", page), err)
	}
	return r, nil
}

// RenderDPI rasterizes a page at the given resolution.
func (d *Document) RenderDPI(page int, dpi float64) (image.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkPage(page); err != nil {
		return nil, err
	}
	img, err := d.src.ImageDPI(page-1, dpi)
	if err != nil {
		return nil, domain.RenderError(fmt.Sprintf("failed to rasterize page %d", page), err)
	}
	return img, nil
}

// Release closes the MuPDF document. Later calls are no-ops.
func (d *Document) Release() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	return d.src.Close()
}
