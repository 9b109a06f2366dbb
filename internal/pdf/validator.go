package pdf

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/spherical/pagesnap/internal/domain"
)

// largeFileThreshold triggers a warning, not a rejection.
const largeFileThreshold = 100 * 1024 * 1024

var pdfMagic = []byte("%PDF-")

// Validator provides input validation for PDF files
type Validator struct {
	fs     afero.Fs
	logger *domain.Logger
}

// NewValidatorFs creates a validator over fs
func NewValidatorFs(fs afero.Fs) *Validator {
	return &Validator{fs: fs, logger: domain.DefaultLogger().WithPrefix("pdf")}
}

// ValidatePDFPath validates that a file path is valid and points to a PDF
func (v *Validator) ValidatePDFPath(path string) error {
	if strings.TrimSpace(path) == "" {
		return domain.ValidationError("file path cannot be empty", nil)
	}

	info, err := v.fs.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.ValidationError(fmt.Sprintf("file does not exist: %s", path), err)
		}
		return domain.ValidationError(fmt.Sprintf("cannot access file: %s", path), err)
	}

	if info.IsDir() {
		return domain.ValidationError(fmt.Sprintf("path is a directory, not a file: %s", path), nil)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".pdf" {
		return domain.ValidationError(fmt.Sprintf("file is not a PDF (has extension %s)", ext), nil)
	}

	if info.Size() > largeFileThreshold {
		v.logger.Warn("PDF file is very large (%d MB), processing may take a while", info.Size()/(1024*1024))
	}

	file, err := v.fs.Open(path)
	if err != nil {
		return domain.ValidationError(fmt.Sprintf("cannot open file: %s", path), err)
	}
	defer file.Close()

	header := make([]byte, len(pdfMagic))
	if _, err := io.ReadFull(file, header); err != nil || !bytes.Equal(header, pdfMagic) {
		return domain.ValidationError(fmt.Sprintf("file does not start with a PDF header: %s", path), err)
	}

	return nil
}
