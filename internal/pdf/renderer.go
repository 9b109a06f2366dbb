package pdf

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"sync/atomic"

	"github.com/disintegration/imaging"

	"github.com/spherical/pagesnap/internal/domain"
)

// MinThumbnailScale is the lower bound RenderToWidth applies to the derived scale.
const MinThumbnailScale = 0.1

// pointsPerInch is the resolution at which a page renders at scale 1.
const pointsPerInch = 72.0

// Renderer rasterizes pages onto background-filled surfaces.
type Renderer struct {
	logger *domain.Logger
	live   atomic.Int64
}

var _ domain.PageRenderer = (*Renderer)(nil)

// NewRenderer creates a new page renderer
func NewRenderer() *Renderer {
	return &Renderer{logger: domain.DefaultLogger().WithPrefix("render")}
}

// Live returns the number of surfaces handed out and not yet released.
func (r *Renderer) Live() int {
	return int(r.live.Load())
}

// SurfaceSize returns floor(natural * scale * dpr) per axis, at least 1px.
func SurfaceSize(natural image.Rectangle, scale, dpr float64) (int, int) {
	w := int(math.Floor(float64(natural.Dx()) * scale * dpr))
	h := int(math.Floor(float64(natural.Dy()) * scale * dpr))
	return max(w, 1), max(h, 1)
}

// Render rasterizes a 1-based page at scale*dpr.
func (r *Renderer) Render(ctx context.Context, doc domain.Document, page int, scale, dpr float64, background color.Color) (*domain.Surface, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, domain.RenderError("no document", nil)
	}
	if page < 1 || page > doc.PageCount() {
		return nil, domain.RenderError(fmt.Sprintf("page %d out of range [1, %d]", page, doc.PageCount()), nil)
	}
	if scale <= 0 {
		scale = 1
	}
	if dpr <= 0 {
		dpr = 1
	}
	if background == nil {
		background = color.White
	}

	natural, err := doc.Bound(page)
	if err != nil {
		return nil, domain.RenderError(fmt.Sprintf("failed to measure page %d", page), err)
	}
	width, height := SurfaceSize(natural, scale, dpr)

	raster, err := doc.RenderDPI(page, pointsPerInch*scale*dpr)
	if err != nil {
		return nil, domain.RenderError(fmt.Sprintf("failed to render page %d", page), err)
	}

	// MuPDF rounds the pixmap outward; snap it to the computed surface size.
	if b := raster.Bounds(); b.Dx() != width || b.Dy() != height {
		r.logger.Debug("resizing page %d raster from %dx%d to %dx%d", page, b.Dx(), b.Dy(), width, height)
		raster = imaging.Resize(raster, width, height, imaging.Lanczos)
	}

	surface := imaging.Overlay(imaging.New(width, height, background), raster, image.Pt(0, 0), 1.0)

	r.live.Add(1)
	return domain.NewSurface(surface, func() { r.live.Add(-1) }), nil
}

// RenderToWidth renders a page scaled so its width approaches targetWidth
// pixels. The scale never drops below MinThumbnailScale.
func (r *Renderer) RenderToWidth(ctx context.Context, doc domain.Document, page, targetWidth int, dpr float64, background color.Color) (*domain.Surface, error) {
	if doc == nil {
		return nil, domain.RenderError("no document", nil)
	}
	natural, err := doc.Bound(page)
	if err != nil {
		return nil, domain.RenderError(fmt.Sprintf("failed to measure page %d", page), err)
	}

	scale := 1.0
	if natural.Dx() > 0 && targetWidth > 0 {
		scale = math.Max(float64(targetWidth)/float64(natural.Dx()), MinThumbnailScale)
	}
	return r.Render(ctx, doc, page, scale, dpr, background)
}
