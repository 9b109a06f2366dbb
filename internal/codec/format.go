// Package codec turns rendered page surfaces into encoded image files.
package codec

import (
	"fmt"
	"strings"

	"github.com/spherical/pagesnap/internal/domain"
	"github.com/spherical/pagesnap/internal/naming"
)

const (
	MimePNG  = "image/png"
	MimeJPEG = "image/jpeg"
	MimeWebP = "image/webp"
)

// MimeFor returns the MIME type of an output format.
func MimeFor(format domain.Format) string {
	switch format {
	case domain.FormatJPEG:
		return MimeJPEG
	case domain.FormatWebP:
		return MimeWebP
	default:
		return MimePNG
	}
}

// ExtFor returns the file extension (without dot) of an output format.
func ExtFor(format domain.Format) string {
	if format == domain.FormatJPEG {
		return "jpg"
	}
	return string(format)
}

// ParseFormat accepts png, jpeg, jpg and webp in any case.
func ParseFormat(s string) (domain.Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "png":
		return domain.FormatPNG, nil
	case "jpeg", "jpg":
		return domain.FormatJPEG, nil
	case "webp":
		return domain.FormatWebP, nil
	default:
		return "", domain.ValidationError(fmt.Sprintf("unknown image format %q (want png, jpeg or webp)", s), nil)
	}
}

// FilenameFor builds "{base without last extension}-p{NN}.{ext}". Padding is
// fixed at two digits.
func FilenameFor(baseName string, page int, format domain.Format) string {
	return fmt.Sprintf("%s-p%02d.%s", naming.SafeBaseName(baseName), page, ExtFor(format))
}

// ThumbnailFilenameFor builds "{base}/{base}-thumb-p{NN}.jpg" for a display
// name, stripping only its last extension.
func ThumbnailFilenameFor(displayName string, page int) string {
	base := naming.SafeBaseName(displayName)
	return fmt.Sprintf("%s/%s-thumb-p%02d.%s", base, base, page, ExtFor(domain.FormatJPEG))
}
