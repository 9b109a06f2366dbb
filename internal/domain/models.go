package domain

import (
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"
)

// Format is an output image format.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatWebP Format = "webp"
)

// Supported ranges for export options
const (
	MinPageScale = 1.0
	MaxPageScale = 4.0
	MinQuality   = 0.7
	MaxQuality   = 1.0

	// DefaultQuality is used by encoders when no quality was requested.
	DefaultQuality = 0.92
)

// PasswordReason tells a password callback why it is being asked.
type PasswordReason int

const (
	NeedPassword      PasswordReason = 1
	IncorrectPassword PasswordReason = 2
)

func (r PasswordReason) String() string {
	switch r {
	case NeedPassword:
		return "password required"
	case IncorrectPassword:
		return "incorrect password"
	default:
		return fmt.Sprintf("PasswordReason(%d)", int(r))
	}
}

// PasswordFunc supplies a password for an encrypted document. Returning an
// empty string gives up.
type PasswordFunc func(reason PasswordReason) string

// ExportOptions controls how selected pages are turned into images.
type ExportOptions struct {
	Format     Format
	PageScale  float64     // 1..4, multiplied by DPR
	Quality    float64     // 0.7..1.0, jpeg/webp only
	DPR        float64     // device pixel ratio, 1 when unset
	Background color.Color // nil means opaque white
	BaseName   string      // overrides the per-document name used for filenames
}

// DefaultExportOptions mirrors the defaults of the export controls.
func DefaultExportOptions() ExportOptions {
	return ExportOptions{
		Format:     FormatJPEG,
		PageScale:  2,
		Quality:    0.95,
		DPR:        1,
		Background: color.White,
	}
}

// Validate checks the option ranges.
func (o ExportOptions) Validate() error {
	switch o.Format {
	case FormatPNG, FormatJPEG, FormatWebP:
	default:
		return ValidationError(fmt.Sprintf("unsupported format %q", o.Format), nil)
	}
	if o.PageScale < MinPageScale || o.PageScale > MaxPageScale {
		return ValidationError(fmt.Sprintf("page scale must be between %.0f and %.0f, got %g", MinPageScale, MaxPageScale, o.PageScale), nil)
	}
	if o.Format != FormatPNG && (o.Quality < MinQuality || o.Quality > MaxQuality) {
		return ValidationError(fmt.Sprintf("quality must be between %.1f and %.1f, got %g", MinQuality, MaxQuality, o.Quality), nil)
	}
	if o.DPR < 0 {
		return ValidationError(fmt.Sprintf("device pixel ratio must be positive, got %g", o.DPR), nil)
	}
	return nil
}

// EffectiveDPR returns DPR, defaulting to 1.
func (o ExportOptions) EffectiveDPR() float64 {
	if o.DPR <= 0 {
		return 1
	}
	return o.DPR
}

// EffectiveBackground returns Background, defaulting to opaque white.
func (o ExportOptions) EffectiveBackground() color.Color {
	if o.Background == nil {
		return color.White
	}
	return o.Background
}

// ExportUnit is one (document, page) pair slated for conversion.
type ExportUnit struct {
	DocumentID  string
	DisplayName string
	BaseName    string // filename stem source, see codec.FilenameFor
	Document    Document
	Page        int
}

// PageExportResult is one encoded page.
type PageExportResult struct {
	Bytes      []byte
	Filename   string
	Width      int
	Height     int
	Format     Format
	DocumentID string
	Page       int
}

// NamedBlob is a byte payload with the name it is saved or archived under.
type NamedBlob struct {
	Name string
	Data []byte
}

// Progress reports a completed step out of a known total.
type Progress struct {
	Done       int
	Total      int
	DocumentID string
	Name       string
	Page       int
	Err        error
}

// Fraction returns Done/Total in [0,1].
func (p Progress) Fraction() float64 {
	if p.Total <= 0 {
		return 0
	}
	return float64(p.Done) / float64(p.Total)
}

// ProgressFunc receives progress updates. It may be nil.
type ProgressFunc func(Progress)

// Surface is a rasterized page. It must be released once read.
type Surface struct {
	Image *image.NRGBA

	once    sync.Once
	release func()
}

// NewSurface wraps img; release runs once on Release.
func NewSurface(img *image.NRGBA, release func()) *Surface {
	return &Surface{Image: img, release: release}
}

// Width returns the pixel width.
func (s *Surface) Width() int {
	if s.Image == nil {
		return 0
	}
	return s.Image.Bounds().Dx()
}

// Height returns the pixel height.
func (s *Surface) Height() int {
	if s.Image == nil {
		return 0
	}
	return s.Image.Bounds().Dy()
}

// Release drops the pixel buffer. Safe to call more than once.
func (s *Surface) Release() {
	s.once.Do(func() {
		s.Image = nil
		if s.release != nil {
			s.release()
		}
	})
}

// EventType represents the type of stream event
type EventType string

const (
	EventImportProgress EventType = "import_progress"
	EventImportFailed   EventType = "import_failed"
	EventExportStart    EventType = "export_start"
	EventPageExported   EventType = "page_exported"
	EventPackaging      EventType = "packaging"
	EventError          EventType = "error"
	EventComplete       EventType = "complete"
)

// StreamEvent represents an event emitted during processing
type StreamEvent struct {
	Type       EventType   `json:"type"`
	DocumentID string      `json:"document_id,omitempty"`
	PageNumber int         `json:"page_number,omitempty"`
	Done       int         `json:"done,omitempty"`
	Total      int         `json:"total,omitempty"`
	Payload    interface{} `json:"payload,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}
