package pagesnap

import (
	"context"
	"image"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/pagesnap/internal/archive"
	"github.com/spherical/pagesnap/internal/codec"
	"github.com/spherical/pagesnap/internal/config"
	"github.com/spherical/pagesnap/internal/deliver"
	"github.com/spherical/pagesnap/internal/domain"
	"github.com/spherical/pagesnap/internal/pdf"
	"github.com/spherical/pagesnap/internal/workspace"
)

func newTestClient(t *testing.T) (*Client, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	cfg := config.DefaultConfig()
	cfg.Delivery.OutputDir = "/out"
	c, err := NewClientFs(fs, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, fs
}

func TestNewClientFs_RejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Archive.Level = 42

	_, err := NewClientFs(afero.NewMemMapFs(), cfg)
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeConfig))
}

func TestNewClientFs_NilConfigUsesDefaults(t *testing.T) {
	c, err := NewClientFs(afero.NewMemMapFs(), nil)
	require.NoError(t, err)
	defer c.Close()

	opts, err := c.DefaultExportOptions()
	require.NoError(t, err)
	assert.Equal(t, FormatJPEG, opts.Format)
	assert.Equal(t, 2.0, opts.PageScale)
	assert.Equal(t, ".", c.OutputDir())
}

func TestImport_UnreadableFilesAreReported(t *testing.T) {
	c, fs := newTestClient(t)
	require.NoError(t, afero.WriteFile(fs, "/in/notes.txt", []byte("hello"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/in/fake.pdf", []byte("not a pdf"), 0o644))

	report := c.Import(context.Background(), []string{"/in/missing.pdf", "/in/notes.txt", "/in/fake.pdf"}, nil, nil)

	assert.Empty(t, report.Added)
	require.Len(t, report.Failures, 3)
	assert.Equal(t, "missing.pdf", report.Failures[0].Name)
	assert.Equal(t, "notes.txt", report.Failures[1].Name)
	assert.Equal(t, "fake.pdf", report.Failures[2].Name)
	for _, f := range report.Failures {
		assert.True(t, domain.IsType(f.Err, domain.ErrorTypeValidation), f.Name)
	}
	assert.Contains(t, report.Message, "Failed to open fake.pdf: ")
	assert.Equal(t, "0 files loaded · 0 pages selected", c.StatusLine())
}

func TestExport_NothingSelected(t *testing.T) {
	c, _ := newTestClient(t)

	_, err := c.Export(context.Background(), Archive, domain.DefaultExportOptions())
	require.Error(t, err)
	assert.Equal(t, "No pages selected.", err.(*domain.DomainError).Message)

	report, err := c.ExportSync(context.Background(), Individual, domain.DefaultExportOptions(), nil)
	require.Error(t, err)
	assert.Equal(t, "No pages selected.", report.Message)
}

func TestExport_InvalidOptions(t *testing.T) {
	c, _ := newTestClient(t)

	opts := domain.DefaultExportOptions()
	opts.Quality = 0.1
	_, err := c.Export(context.Background(), Individual, opts)
	assert.True(t, domain.IsType(err, domain.ErrorTypeValidation))
}

func TestSelectPages_UnknownDocument(t *testing.T) {
	c, _ := newTestClient(t)
	err := c.SelectPages("nope", "1-2")
	assert.True(t, domain.IsType(err, domain.ErrorTypeValidation))
	assert.False(t, c.Remove("nope"))
	assert.Empty(t, c.Documents())
}

func TestMode_String(t *testing.T) {
	assert.Equal(t, "individual", Individual.String())
	assert.Equal(t, "zip", Archive.String())
}

type blankDoc struct{ pages int }

func (d *blankDoc) PageCount() int { return d.pages }

func (d *blankDoc) Bound(int) (image.Rectangle, error) { return image.Rect(0, 0, 20, 30), nil }

func (d *blankDoc) RenderDPI(_ int, dpi float64) (image.Image, error) {
	s := dpi / 72
	return image.NewRGBA(image.Rect(0, 0, int(20*s), int(30*s))), nil
}

func (d *blankDoc) Release() error { return nil }

type blankLoader struct{ pages int }

func (l blankLoader) Load(context.Context, []byte, domain.PasswordFunc) (domain.Document, error) {
	return &blankDoc{pages: l.pages}, nil
}

// newLoadedClient builds a client around a stub loader and imports one
// document with the given page count.
func newLoadedClient(t *testing.T, fs afero.Fs, pages int) *Client {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Delivery.OutputDir = "/out"
	saver := deliver.NewSaverFs(fs, cfg.Delivery.OutputDir, 0)
	c := &Client{
		cfg:    cfg,
		loader: pdf.NewLoaderFs(fs, 0),
		saver:  saver,
		ws: workspace.New(workspace.Options{
			Loader:    blankLoader{pages: pages},
			Renderer:  pdf.NewRenderer(),
			Encoder:   codec.NewEncoder().WithWebPSupport(func() bool { return false }),
			Packager:  archive.NewPacker(archive.DefaultLevel),
			Deliverer: saver,
		}),
		logger: domain.NopLogger(),
	}
	t.Cleanup(func() { _ = c.Close() })

	report := c.ws.AddFiles(context.Background(), []workspace.Source{{Name: "blank.pdf", Data: []byte("x")}}, nil, nil)
	require.Len(t, report.Added, 1)
	return c
}

func pngOptions() ExportOptions {
	opts := domain.DefaultExportOptions()
	opts.Format = FormatPNG
	opts.PageScale = 1
	return opts
}

func TestExport_StreamEndsWithComplete(t *testing.T) {
	fs := afero.NewMemMapFs()
	c := newLoadedClient(t, fs, 3)

	events, err := c.Export(context.Background(), Individual, pngOptions())
	require.NoError(t, err)

	var last StreamEvent
	completes := 0
	for e := range events {
		if e.Type == EventComplete {
			completes++
		}
		last = e
	}
	assert.Equal(t, 1, completes)
	assert.Equal(t, EventComplete, last.Type)
	report, ok := last.Payload.(Report)
	require.True(t, ok)
	assert.Equal(t, 3, report.Count)
}

func TestExport_UndrainedStreamReleasedByCancel(t *testing.T) {
	fs := afero.NewMemMapFs()
	c := newLoadedClient(t, fs, 250)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stuck, err := c.Export(ctx, Individual, pngOptions())
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(stuck) == cap(stuck) }, 10*time.Second, 5*time.Millisecond)
	cancel()

	next, err := c.Export(context.Background(), Archive, pngOptions())
	require.NoError(t, err)

	done := make(chan StreamEvent)
	go func() {
		var last StreamEvent
		for e := range next {
			last = e
		}
		done <- last
	}()

	select {
	case last := <-done:
		assert.Equal(t, EventComplete, last.Type)
	case <-time.After(10 * time.Second):
		t.Fatal("second export never started while the first stream was not drained")
	}
}

func TestExportSync_UnwritableOutputFailsBeforeRendering(t *testing.T) {
	c := newLoadedClient(t, afero.NewReadOnlyFs(afero.NewMemMapFs()), 2)

	rendered := 0
	report, err := c.ExportSync(context.Background(), Individual, pngOptions(), func(Progress) { rendered++ })
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeDelivery))
	assert.Contains(t, report.Message, "Export failed: ")
	assert.Zero(t, rendered)

	_, err = c.SaveThumbnails(context.Background(), 40, nil)
	assert.True(t, domain.IsType(err, domain.ErrorTypeDelivery))
}

func TestExportSync_CreatesOutputDir(t *testing.T) {
	fs := afero.NewMemMapFs()
	c := newLoadedClient(t, fs, 1)

	report, err := c.ExportSync(context.Background(), Individual, pngOptions(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"blank-p01.png"}, report.Files)

	ok, err := afero.DirExists(fs, "/out")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestImport_ReadsThroughLoader(t *testing.T) {
	c, fs := newTestClient(t)
	require.NoError(t, afero.WriteFile(fs, "/in/dir.pdf/x", []byte("x"), 0o644))

	report := c.Import(context.Background(), []string{"/in/dir.pdf"}, nil, nil)
	require.Len(t, report.Failures, 1)
	assert.Contains(t, report.Failures[0].Err.Error(), "is a directory")
}
