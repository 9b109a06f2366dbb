package domain

import (
	"context"
	"image"
	"image/color"
)

// Document is a decoded paged document. It owns native decoder memory and
// must be released exactly once by its owner.
type Document interface {
	// PageCount returns the number of pages, fixed at load time
	PageCount() int

	// Bound returns the natural page size at scale 1 (PDF points) for a 1-based page
	Bound(page int) (image.Rectangle, error)

	// RenderDPI rasterizes a 1-based page at the given resolution
	RenderDPI(page int, dpi float64) (image.Image, error)

	// Release frees the underlying decoder resources
	Release() error
}

// PageRenderer rasterizes single pages into pixel surfaces.
type PageRenderer interface {
	Render(ctx context.Context, doc Document, page int, scale, dpr float64, background color.Color) (*Surface, error)
}

// ImageEncoder serializes pixel surfaces.
type ImageEncoder interface {
	// EffectiveFormat applies capability fallback to the requested format
	EffectiveFormat(requested Format) Format

	// Encode serializes img for the given MIME type
	Encode(img image.Image, mime string, quality float64) ([]byte, error)
}

// Packager combines named blobs into a single archive.
type Packager interface {
	Pack(entries []NamedBlob) ([]byte, error)
}

// Deliverer saves blobs.
type Deliverer interface {
	DeliverOne(ctx context.Context, data []byte, filename string) error
	DeliverMany(ctx context.Context, files []NamedBlob) error
}
