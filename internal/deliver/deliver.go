// Package deliver saves exported files into an output directory.
package deliver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/spherical/pagesnap/internal/domain"
)

// DefaultPause separates consecutive saves in DeliverMany.
const DefaultPause = 10 * time.Millisecond

// Saver writes files below a root directory of an afero filesystem.
type Saver struct {
	fs     afero.Fs
	root   string
	pause  time.Duration
	logger *domain.Logger

	// OnSaved runs after each successful write with the path written.
	OnSaved func(path string)
}

var _ domain.Deliverer = (*Saver)(nil)

// NewSaverFs creates a saver rooted at dir on fs. A negative pause disables
// the delay between saves.
func NewSaverFs(fs afero.Fs, dir string, pause time.Duration) *Saver {
	if dir == "" {
		dir = "."
	}
	if pause < 0 {
		pause = 0
	}
	return &Saver{
		fs:     fs,
		root:   dir,
		pause:  pause,
		logger: domain.DefaultLogger().WithPrefix("deliver"),
	}
}

// Root returns the output directory.
func (s *Saver) Root() string {
	return s.root
}

// resolve joins filename under root and refuses paths that escape it.
func (s *Saver) resolve(filename string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(filename))
	if clean == "." || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", domain.DeliveryError(fmt.Sprintf("invalid output filename %q", filename), nil)
	}
	return filepath.Join(s.root, clean), nil
}

// DeliverOne writes data to root/filename, creating directories as needed.
// The slice is not retained after return.
func (s *Saver) DeliverOne(ctx context.Context, data []byte, filename string) error {
	if err := ctx.Err(); err != nil {
		return domain.DeliveryError(fmt.Sprintf("save of %s cancelled", filename), err)
	}

	path, err := s.resolve(filename)
	if err != nil {
		return err
	}
	if err := s.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return domain.DeliveryError(fmt.Sprintf("failed to create directory for %s", filename), err)
	}
	if err := afero.WriteFile(s.fs, path, data, 0o644); err != nil {
		return domain.DeliveryError(fmt.Sprintf("failed to write %s", filename), err)
	}

	s.logger.Debug("saved %s (%d bytes)", path, len(data))
	if s.OnSaved != nil {
		s.OnSaved(path)
	}
	return nil
}

// DeliverMany saves files in order, pausing between consecutive saves.
func (s *Saver) DeliverMany(ctx context.Context, files []domain.NamedBlob) error {
	for i, f := range files {
		if i > 0 && s.pause > 0 {
			timer := time.NewTimer(s.pause)
			select {
			case <-ctx.Done():
				timer.Stop()
				return domain.DeliveryError(fmt.Sprintf("delivery cancelled after %d of %d files", i, len(files)), ctx.Err())
			case <-timer.C:
			}
		}
		if err := s.DeliverOne(ctx, f.Data, f.Name); err != nil {
			return err
		}
	}
	return nil
}

// EnsureRoot creates the output directory so an unwritable destination fails
// before any page is rendered.
func (s *Saver) EnsureRoot() error {
	if err := s.fs.MkdirAll(s.root, os.ModePerm); err != nil {
		return domain.DeliveryError(fmt.Sprintf("failed to create output directory %s", s.root), err)
	}
	return nil
}
