package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/spf13/afero"

	"github.com/spherical/pagesnap/internal/domain"
)

// DefaultMaxPasswordAttempts bounds the password challenge loop.
const DefaultMaxPasswordAttempts = 3

var (
	// ErrPasswordRequired is returned when an encrypted document is opened
	// without a usable password.
	ErrPasswordRequired = errors.New("password required")

	// ErrIncorrectPassword is returned when every offered password was rejected.
	ErrIncorrectPassword = errors.New("incorrect password")
)

var disableConfigDir sync.Once

// Loader decodes PDF bytes into Documents.
type Loader struct {
	logger      *domain.Logger
	maxAttempts int
	fs          afero.Fs
	validator   *Validator

	open    func(data []byte) (rasterSource, error)
	decrypt func(data []byte, password string) ([]byte, error)
}

// NewLoaderFs creates a loader that reads files from fs.
func NewLoaderFs(fs afero.Fs, maxAttempts int) *Loader {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxPasswordAttempts
	}
	return &Loader{
		logger:      domain.DefaultLogger().WithPrefix("pdf"),
		maxAttempts: maxAttempts,
		fs:          fs,
		validator:   NewValidatorFs(fs),
		open:        openFitz,
		decrypt:     decryptPDF,
	}
}

// newFitz wraps fitz.NewFromMemory, keeping a nil *fitz.Document out of the
// interface.
var newFitz = func(data []byte) (rasterSource, error) {
	doc, err := fitz.NewFromMemory(data)
	if doc == nil {
		return nil, err
	}
	return doc, err
}

// openFitz opens data with MuPDF. MuPDF hands back a live document alongside
// ErrNeedsPassword and some open errors; it is closed before returning.
func openFitz(data []byte) (rasterSource, error) {
	src, err := newFitz(data)
	if err != nil {
		if src != nil {
			_ = src.Close()
		}
		return nil, err
	}
	return src, nil
}

// decryptPDF strips encryption with pdfcpu so MuPDF can open the result.
func decryptPDF(data []byte, password string) ([]byte, error) {
	disableConfigDir.Do(api.DisableConfigDir)

	conf := model.NewDefaultConfiguration()
	conf.UserPW = password
	conf.OwnerPW = password
	conf.ValidationMode = model.ValidationRelaxed

	var out bytes.Buffer
	if err := api.Decrypt(bytes.NewReader(data), &out, conf); err != nil {
		if errors.Is(err, pdfcpu.ErrWrongPassword) {
			return nil, ErrIncorrectPassword
		}
		return nil, err
	}
	return out.Bytes(), nil
}

// ReadFile validates path as a PDF and returns its bytes.
func (l *Loader) ReadFile(path string) ([]byte, error) {
	if err := l.validator.ValidatePDFPath(path); err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(l.fs, path)
	if err != nil {
		return nil, domain.IOError(fmt.Sprintf("failed to read %s", path), err)
	}
	return data, nil
}

// OpenFile reads path with ReadFile and decodes it.
func (l *Loader) OpenFile(ctx context.Context, path string, prompt domain.PasswordFunc) (*Document, error) {
	data, err := l.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return l.Open(ctx, data, prompt)
}

// Open decodes data. Encrypted documents trigger prompt with NeedPassword
// first and IncorrectPassword after each rejected attempt.
func (l *Loader) Open(ctx context.Context, data []byte, prompt domain.PasswordFunc) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, domain.DecodeError("document is empty", nil)
	}

	src, err := l.open(data)
	switch {
	case errors.Is(err, fitz.ErrNeedsPassword):
		src, err = l.unlock(ctx, data, prompt)
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, domain.DecodeError("failed to open document", err)
	}

	doc, err := newDocument(src)
	if err != nil {
		return nil, err
	}
	l.logger.Debug("opened document with %d pages", doc.PageCount())
	return doc, nil
}

// Load is Open returning the domain interface.
func (l *Loader) Load(ctx context.Context, data []byte, prompt domain.PasswordFunc) (domain.Document, error) {
	doc, err := l.Open(ctx, data, prompt)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (l *Loader) unlock(ctx context.Context, data []byte, prompt domain.PasswordFunc) (rasterSource, error) {
	if prompt == nil {
		return nil, domain.DecodeError("password required", ErrPasswordRequired)
	}

	reason := domain.NeedPassword
	for attempt := 1; attempt <= l.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		password := prompt(reason)
		if password == "" {
			if reason == domain.IncorrectPassword {
				return nil, domain.DecodeError("password rejected", ErrIncorrectPassword)
			}
			return nil, domain.DecodeError("password required", ErrPasswordRequired)
		}

		plain, err := l.decrypt(data, password)
		if errors.Is(err, ErrIncorrectPassword) {
			l.logger.Warn("password attempt %d/%d rejected", attempt, l.maxAttempts)
			reason = domain.IncorrectPassword
			continue
		}
		if err != nil {
			return nil, domain.DecodeError("failed to decrypt document", err)
		}

		src, err := l.open(plain)
		if err != nil {
			return nil, domain.DecodeError("failed to open decrypted document", err)
		}
		return src, nil
	}

	return nil, domain.DecodeError(fmt.Sprintf("password rejected %d times", l.maxAttempts), ErrIncorrectPassword)
}
