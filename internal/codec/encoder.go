package codec

import (
	"bytes"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/webp"

	"github.com/spherical/pagesnap/internal/domain"
)

// Encoder serializes surfaces to PNG, JPEG or WEBP.
type Encoder struct {
	logger       *domain.Logger
	supportsWebP func() bool
}

// NewEncoder creates an encoder that consults the process-wide WEBP capability check.
func NewEncoder() *Encoder {
	return &Encoder{
		logger:       domain.DefaultLogger().WithPrefix("codec"),
		supportsWebP: SupportsWebP,
	}
}

// WithWebPSupport overrides the capability check. Used by tests.
func (e *Encoder) WithWebPSupport(supported func() bool) *Encoder {
	e.supportsWebP = supported
	return e
}

// EffectiveFormat downgrades webp to png when the host cannot encode WEBP.
func (e *Encoder) EffectiveFormat(requested domain.Format) domain.Format {
	if requested == domain.FormatWebP && !e.supportsWebP() {
		e.logger.Debug("webp encoding unavailable, falling back to png")
		return domain.FormatPNG
	}
	return requested
}

// Encode serializes img as mime. Quality in [0,1] applies to jpeg and webp;
// zero selects the default.
func (e *Encoder) Encode(img image.Image, mime string, quality float64) ([]byte, error) {
	if img == nil {
		return nil, domain.EncodeError("no image to encode", nil)
	}

	var buf bytes.Buffer
	var err error
	switch mime {
	case MimePNG:
		err = imaging.Encode(&buf, img, imaging.PNG)
	case MimeJPEG:
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(qualityPercent(quality)))
	case MimeWebP:
		if !e.supportsWebP() {
			return nil, domain.EncodeError("webp encoding is not supported on this host", nil)
		}
		err = webp.Encode(&buf, img, webp.Options{Quality: qualityPercent(quality)})
	default:
		return nil, domain.EncodeError(fmt.Sprintf("unsupported mime type %q", mime), nil)
	}

	if err != nil {
		return nil, domain.EncodeError(fmt.Sprintf("encode %s", mime), err)
	}
	if buf.Len() == 0 {
		return nil, domain.EncodeError(fmt.Sprintf("encoder produced no data for %s", mime), nil)
	}
	return buf.Bytes(), nil
}

// qualityPercent maps [0,1] to 1..100.
func qualityPercent(q float64) int {
	if q <= 0 {
		q = domain.DefaultQuality
	}
	p := int(math.Round(q * 100))
	if p < 1 {
		return 1
	}
	if p > 100 {
		return 100
	}
	return p
}
