// Package archive packs exported images into a single ZIP file.
package archive

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"

	"github.com/spherical/pagesnap/internal/domain"
)

// DefaultLevel is the deflate level used when none is configured.
const DefaultLevel = 6

// modTime is stamped on every entry so identical input packs identically.
var modTime = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// Entry is one file inside the archive.
type Entry struct {
	Path string
	Data []byte
}

// Packer writes deflate-compressed ZIP archives.
type Packer struct {
	level int
}

var _ domain.Packager = (*Packer)(nil)

// NewPacker creates a packer. Levels outside 1..9 fall back to DefaultLevel.
func NewPacker(level int) *Packer {
	if level < flate.BestSpeed || level > flate.BestCompression {
		level = DefaultLevel
	}
	return &Packer{level: level}
}

// Level returns the deflate level in use.
func (p *Packer) Level() int {
	return p.level
}

// PackEntries builds an archive holding entries in order. Duplicate paths are
// written as-is.
func (p *Packer) PackEntries(entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, p.level)
	})

	for _, e := range entries {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     e.Path,
			Method:   zip.Deflate,
			Modified: modTime,
		})
		if err != nil {
			return nil, domain.ArchiveError(fmt.Sprintf("failed to add %s", e.Path), err)
		}
		if _, err := w.Write(e.Data); err != nil {
			return nil, domain.ArchiveError(fmt.Sprintf("failed to write %s", e.Path), err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, domain.ArchiveError("failed to finalize archive", err)
	}
	return buf.Bytes(), nil
}

// Pack implements domain.Packager.
func (p *Packer) Pack(blobs []domain.NamedBlob) ([]byte, error) {
	entries := make([]Entry, len(blobs))
	for i, b := range blobs {
		entries[i] = Entry{Path: b.Name, Data: b.Data}
	}
	return p.PackEntries(entries)
}

// FileInfo describes one archived file.
type FileInfo struct {
	Path           string
	Size           uint64
	CompressedSize uint64
}

// List returns the files inside an archive in stored order.
func List(data []byte) ([]FileInfo, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, domain.ArchiveError("failed to read archive", err)
	}

	files := make([]FileInfo, 0, len(zr.File))
	for _, f := range zr.File {
		files = append(files, FileInfo{
			Path:           f.Name,
			Size:           f.UncompressedSize64,
			CompressedSize: f.CompressedSize64,
		})
	}
	return files, nil
}

// ReadFile returns the content of the first file stored under path.
func ReadFile(data []byte, path string) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, domain.ArchiveError("failed to read archive", err)
	}
	for _, f := range zr.File {
		if f.Name != path {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, domain.ArchiveError(fmt.Sprintf("failed to open %s", path), err)
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, domain.ArchiveError(fmt.Sprintf("%s not found in archive", path), nil)
}
