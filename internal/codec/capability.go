package codec

import (
	"bytes"
	"image"
	"image/color"
	"sync"

	"github.com/gen2brain/webp"
)

// webpProbe reports whether WEBP encoding works on this host. Tests swap it.
var webpProbe = func() bool {
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.White)

	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, webp.Options{Quality: 80}); err != nil {
		return false
	}
	return buf.Len() > 0
}

var capabilities struct {
	mu       sync.Mutex
	probed   bool
	webp     bool
	disabled bool
}

// SupportsWebP reports whether WEBP can be encoded. The check runs once per
// process and the answer is cached.
func SupportsWebP() bool {
	capabilities.mu.Lock()
	defer capabilities.mu.Unlock()

	if capabilities.disabled {
		return false
	}
	if !capabilities.probed {
		capabilities.webp = webpProbe()
		capabilities.probed = true
	}
	return capabilities.webp
}

// DisableWebP forces SupportsWebP to report false until ResetCapabilities.
func DisableWebP() {
	capabilities.mu.Lock()
	capabilities.disabled = true
	capabilities.mu.Unlock()
}

// ResetCapabilities clears the cached capability result.
func ResetCapabilities() {
	capabilities.mu.Lock()
	capabilities.probed = false
	capabilities.webp = false
	capabilities.disabled = false
	capabilities.mu.Unlock()
}
