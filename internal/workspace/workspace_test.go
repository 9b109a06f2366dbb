package workspace

import (
	"context"
	"fmt"
	"image"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/pagesnap/internal/archive"
	"github.com/spherical/pagesnap/internal/codec"
	"github.com/spherical/pagesnap/internal/deliver"
	"github.com/spherical/pagesnap/internal/domain"
	"github.com/spherical/pagesnap/internal/naming"
	"github.com/spherical/pagesnap/internal/pdf"
)

type fakeDoc struct {
	pages    int
	released int
}

func (d *fakeDoc) PageCount() int { return d.pages }

func (d *fakeDoc) Bound(page int) (image.Rectangle, error) {
	if page < 1 || page > d.pages {
		return image.Rectangle{}, fmt.Errorf("page %d out of range", page)
	}
	return image.Rect(0, 0, 100, 200), nil
}

func (d *fakeDoc) RenderDPI(page int, dpi float64) (image.Image, error) {
	s := dpi / 72
	return image.NewRGBA(image.Rect(0, 0, int(100*s), int(200*s))), nil
}

func (d *fakeDoc) Release() error {
	d.released++
	return nil
}

// fakeLoader understands "pages:N", "locked:N:password" and anything else
// as a corrupt file.
type fakeLoader struct {
	docs []*fakeDoc
}

func (l *fakeLoader) Load(_ context.Context, data []byte, prompt domain.PasswordFunc) (domain.Document, error) {
	parts := strings.Split(string(data), ":")
	switch parts[0] {
	case "pages":
		return l.doc(parts[1]), nil
	case "locked":
		if prompt == nil {
			return nil, domain.DecodeError("password required", pdf.ErrPasswordRequired)
		}
		reason := domain.NeedPassword
		for i := 0; i < 3; i++ {
			pw := prompt(reason)
			if pw == "" {
				return nil, domain.DecodeError("password required", pdf.ErrPasswordRequired)
			}
			if pw == parts[2] {
				return l.doc(parts[1]), nil
			}
			reason = domain.IncorrectPassword
		}
		return nil, domain.DecodeError("password rejected 3 times", pdf.ErrIncorrectPassword)
	}
	return nil, domain.DecodeError("failed to open document", nil)
}

func (l *fakeLoader) doc(n string) *fakeDoc {
	pages, _ := strconv.Atoi(n)
	d := &fakeDoc{pages: pages}
	l.docs = append(l.docs, d)
	return d
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type fixture struct {
	ws     *Workspace
	loader *fakeLoader
	fs     afero.Fs
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fs := afero.NewMemMapFs()
	loader := &fakeLoader{}
	n := 0
	ws := New(Options{
		Loader:    loader,
		Renderer:  pdf.NewRenderer(),
		Encoder:   codec.NewEncoder().WithWebPSupport(func() bool { return false }),
		Packager:  archive.NewPacker(archive.DefaultLevel),
		Deliverer: deliver.NewSaverFs(fs, "out", 0),
		Clock:     fixedClock{t: time.Date(2024, 1, 2, 3, 4, 5, 678e6, time.UTC)},
		IDs: naming.GeneratorFunc(func() string {
			n++
			return "doc-" + strconv.Itoa(n)
		}),
	})
	t.Cleanup(ws.Close)
	return &fixture{ws: ws, loader: loader, fs: fs}
}

func smallOptions() domain.ExportOptions {
	opts := domain.DefaultExportOptions()
	opts.PageScale = 1
	opts.Format = domain.FormatPNG
	return opts
}

func TestAddFiles_UniqueNamesAndDefaultSelection(t *testing.T) {
	f := newFixture(t)

	var progress [][2]int
	report := f.ws.AddFiles(context.Background(), []Source{
		{Name: "a.pdf", Data: []byte("pages:2")},
		{Name: "a.pdf", Data: []byte("pages:3")},
	}, nil, func(p domain.Progress) {
		progress = append(progress, [2]int{p.Done, p.Total})
	})

	require.Len(t, report.Added, 2)
	assert.Empty(t, report.Failures)
	assert.Empty(t, report.Message)
	assert.Equal(t, "a.pdf", report.Added[0].DisplayName)
	assert.Equal(t, "a (2).pdf", report.Added[1].DisplayName)
	assert.Equal(t, []int{1, 2}, report.Added[0].Selected)
	assert.Equal(t, []int{1, 2, 3}, report.Added[1].Selected)
	assert.Equal(t, [][2]int{{1, 2}, {2, 2}}, progress)

	// A later batch still avoids existing names.
	report = f.ws.AddFiles(context.Background(), []Source{{Name: "a.pdf", Data: []byte("pages:1")}}, nil, nil)
	require.Len(t, report.Added, 1)
	assert.Equal(t, "a (3).pdf", report.Added[0].DisplayName)
	assert.Equal(t, "3 files loaded · 6 pages selected", f.ws.StatusLine())
}

func TestAddFiles_FailureIsSkippedAndCounted(t *testing.T) {
	f := newFixture(t)

	var errs []error
	report := f.ws.AddFiles(context.Background(), []Source{
		{Name: "good.pdf", Data: []byte("pages:1")},
		{Name: "broken.pdf", Data: []byte("garbage")},
		{Name: "other.pdf", Data: []byte("pages:2")},
	}, nil, func(p domain.Progress) {
		errs = append(errs, p.Err)
	})

	assert.Len(t, report.Added, 2)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "broken.pdf", report.Failures[0].Name)
	assert.True(t, strings.HasPrefix(report.Message, "Failed to open broken.pdf: "))
	require.Len(t, errs, 3)
	assert.NoError(t, errs[0])
	assert.Error(t, errs[1])
	assert.NoError(t, errs[2])
}

func TestAddFiles_FailedFileDoesNotTakeName(t *testing.T) {
	f := newFixture(t)

	report := f.ws.AddFiles(context.Background(), []Source{
		{Name: "a.pdf", Data: []byte("garbage")},
		{Name: "a.pdf", Data: []byte("pages:1")},
	}, nil, nil)

	require.Len(t, report.Failures, 1)
	require.Len(t, report.Added, 1)
	assert.Equal(t, "a.pdf", report.Added[0].DisplayName)
	assert.Equal(t, "doc-1", report.Added[0].ID)
}

func TestAddFiles_PasswordPrompt(t *testing.T) {
	f := newFixture(t)

	var reasons []domain.PasswordReason
	answers := []string{"wrong", "s3cret"}
	prompt := func(name string) domain.PasswordFunc {
		assert.Equal(t, "locked.pdf", name)
		return func(r domain.PasswordReason) string {
			reasons = append(reasons, r)
			a := answers[0]
			answers = answers[1:]
			return a
		}
	}

	report := f.ws.AddFiles(context.Background(), []Source{{Name: "locked.pdf", Data: []byte("locked:2:s3cret")}}, prompt, nil)
	require.Len(t, report.Added, 1)
	assert.Equal(t, []domain.PasswordReason{domain.NeedPassword, domain.IncorrectPassword}, reasons)
}

func TestAddFiles_PasswordDeclined(t *testing.T) {
	f := newFixture(t)

	report := f.ws.AddFiles(context.Background(), []Source{{Name: "locked.pdf", Data: []byte("locked:2:pw")}}, nil, nil)
	assert.Empty(t, report.Added)
	require.Len(t, report.Failures, 1)
	assert.ErrorIs(t, report.Failures[0].Err, pdf.ErrPasswordRequired)
	assert.Equal(t, "0 files loaded · 0 pages selected", f.ws.StatusLine())
}

func TestExportIndividually(t *testing.T) {
	f := newFixture(t)
	f.ws.AddFiles(context.Background(), []Source{
		{Name: "report.pdf", Data: []byte("pages:3")},
		{Name: "notes.v2.pdf", Data: []byte("pages:1")},
	}, nil, nil)
	ids := f.ws.Session().IDs()
	f.ws.Session().SetSelection(ids[0], []int{3, 1})

	var done []int
	report, err := f.ws.ExportIndividually(context.Background(), smallOptions(), func(p domain.Progress) {
		done = append(done, p.Done)
	})
	require.NoError(t, err)

	assert.Equal(t, 3, report.Count)
	assert.Equal(t, []string{"report-p01.png", "report-p03.png", "notes.v2-p01.png"}, report.Files)
	assert.Equal(t, "Downloaded 3 images.", report.Message)
	assert.Equal(t, []int{1, 2, 3}, done)

	for _, name := range report.Files {
		ok, err := afero.Exists(f.fs, filepath.Join("out", name))
		require.NoError(t, err)
		assert.True(t, ok, name)
	}
}

func TestExportIndividually_SingleImageMessage(t *testing.T) {
	f := newFixture(t)
	f.ws.AddFiles(context.Background(), []Source{{Name: "one.pdf", Data: []byte("pages:1")}}, nil, nil)

	report, err := f.ws.ExportIndividually(context.Background(), smallOptions(), nil)
	require.NoError(t, err)
	assert.Equal(t, "Downloaded 1 image.", report.Message)
}

func TestExport_EmptySelection(t *testing.T) {
	f := newFixture(t)
	f.ws.AddFiles(context.Background(), []Source{{Name: "one.pdf", Data: []byte("pages:2")}}, nil, nil)
	f.ws.Session().ClearSelection(f.ws.Session().IDs()[0])

	report, err := f.ws.ExportIndividually(context.Background(), smallOptions(), nil)
	assert.True(t, domain.IsType(err, domain.ErrorTypeEmptySelection))
	assert.Equal(t, "No pages selected.", report.Message)

	report, err = f.ws.ExportArchive(context.Background(), smallOptions(), nil)
	assert.True(t, domain.IsType(err, domain.ErrorTypeEmptySelection))
	assert.Equal(t, "No pages selected.", report.Message)

	entries, _ := afero.ReadDir(f.fs, "out")
	assert.Empty(t, entries)
}

func TestExportIndividually_FailureSavesNothing(t *testing.T) {
	f := newFixture(t)
	f.ws.AddFiles(context.Background(), []Source{{Name: "one.pdf", Data: []byte("pages:2")}}, nil, nil)

	opts := smallOptions()
	opts.PageScale = 9
	report, err := f.ws.ExportIndividually(context.Background(), opts, nil)
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(report.Message, "Export failed: "))

	entries, _ := afero.ReadDir(f.fs, "out")
	assert.Empty(t, entries)
}

func TestExportArchive(t *testing.T) {
	f := newFixture(t)
	f.ws.AddFiles(context.Background(), []Source{
		{Name: "my.file.name.pdf", Data: []byte("pages:2")},
		{Name: "plain.pdf", Data: []byte("pages:1")},
	}, nil, nil)

	report, err := f.ws.ExportArchive(context.Background(), smallOptions(), nil)
	require.NoError(t, err)

	assert.Equal(t, "export-2024-01-02T03-04-05-678Z.zip", report.ArchiveName)
	assert.Equal(t, 3, report.Count)
	assert.Equal(t, "ZIP created with 3 images.", report.Message)

	data, err := afero.ReadFile(f.fs, filepath.Join("out", report.ArchiveName))
	require.NoError(t, err)
	assert.Equal(t, len(data), report.Bytes)

	files, err := archive.List(data)
	require.NoError(t, err)
	var paths []string
	for _, fi := range files {
		paths = append(paths, fi.Path)
	}
	assert.Equal(t, []string{
		"my.file.name/my.file-p01.png",
		"my.file.name/my.file-p02.png",
		"plain/plain-p01.png",
	}, paths)
}

func TestExportArchive_CancelledSavesNothing(t *testing.T) {
	f := newFixture(t)
	f.ws.AddFiles(context.Background(), []Source{{Name: "one.pdf", Data: []byte("pages:2")}}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := f.ws.ExportArchive(ctx, smallOptions(), nil)
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(report.Message, "ZIP export failed: "))

	entries, _ := afero.ReadDir(f.fs, "out")
	assert.Empty(t, entries)
}

func TestThumbnail(t *testing.T) {
	f := newFixture(t)
	report := f.ws.AddFiles(context.Background(), []Source{{Name: "one.pdf", Data: []byte("pages:2")}}, nil, nil)
	id := report.Added[0].ID

	data, err := f.ws.Thumbnail(context.Background(), id, 2, 0)
	require.NoError(t, err)
	assert.True(t, len(data) > 2 && data[0] == 0xFF && data[1] == 0xD8, "expected JPEG")

	_, err = f.ws.Thumbnail(context.Background(), "missing", 1, 0)
	assert.True(t, domain.IsType(err, domain.ErrorTypeValidation))

	_, err = f.ws.Thumbnail(context.Background(), id, 5, 0)
	assert.Error(t, err)
}

func TestSaveThumbnails(t *testing.T) {
	f := newFixture(t)
	f.ws.AddFiles(context.Background(), []Source{{Name: "deck.pdf", Data: []byte("pages:2")}}, nil, nil)

	report, err := f.ws.SaveThumbnails(context.Background(), 50, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"deck/deck-thumb-p01.jpg", "deck/deck-thumb-p02.jpg"}, report.Files)
	assert.Equal(t, "Saved 2 thumbnails.", report.Message)
}

func TestSaveThumbnails_DottedName(t *testing.T) {
	f := newFixture(t)
	f.ws.AddFiles(context.Background(), []Source{{Name: "my.file.name.pdf", Data: []byte("pages:1")}}, nil, nil)

	report, err := f.ws.SaveThumbnails(context.Background(), 50, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"my.file.name/my.file.name-thumb-p01.jpg"}, report.Files)

	ok, err := afero.Exists(f.fs, filepath.Join("out", "my.file.name", "my.file.name-thumb-p01.jpg"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRemoveReleasesDocument(t *testing.T) {
	f := newFixture(t)
	report := f.ws.AddFiles(context.Background(), []Source{{Name: "one.pdf", Data: []byte("pages:1")}}, nil, nil)

	assert.True(t, f.ws.Remove(report.Added[0].ID))
	assert.False(t, f.ws.Remove(report.Added[0].ID))
	assert.Equal(t, 1, f.loader.docs[0].released)
	assert.Equal(t, "0 files loaded · 0 pages selected", f.ws.StatusLine())
}

func TestStatusLine_Singular(t *testing.T) {
	f := newFixture(t)
	f.ws.AddFiles(context.Background(), []Source{{Name: "one.pdf", Data: []byte("pages:1")}}, nil, nil)
	assert.Equal(t, "1 file loaded · 1 page selected", f.ws.StatusLine())
}

func TestArchiveName(t *testing.T) {
	ts := time.Date(2025, 12, 31, 23, 59, 58, 0, time.FixedZone("X", 3600))
	assert.Equal(t, "pages-2025-12-31T22-59-58-000Z.zip", ArchiveName("pages", ts))
}

func TestEvents(t *testing.T) {
	f := newFixture(t)
	events := make(chan domain.StreamEvent, 32)
	f.ws.SetEvents(events)

	f.ws.AddFiles(context.Background(), []Source{
		{Name: "one.pdf", Data: []byte("pages:1")},
		{Name: "bad.pdf", Data: []byte("nope")},
	}, nil, nil)
	_, err := f.ws.ExportArchive(context.Background(), smallOptions(), nil)
	require.NoError(t, err)
	f.ws.SetEvents(nil)
	close(events)

	var types []domain.EventType
	for e := range events {
		types = append(types, e.Type)
	}
	assert.Equal(t, []domain.EventType{
		domain.EventImportProgress,
		domain.EventImportFailed,
		domain.EventImportProgress,
		domain.EventExportStart,
		domain.EventPageExported,
		domain.EventComplete,
		domain.EventPackaging,
	}, types)
}
