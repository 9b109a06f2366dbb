// Package workspace ties the session, the export pipeline and delivery
// together into the operations a user drives: import files, export pages
// one by one or as a ZIP, preview pages.
package workspace

import (
	"context"
	"fmt"
	"image/color"
	"strings"
	"sync"
	"time"

	"github.com/spherical/pagesnap/internal/codec"
	"github.com/spherical/pagesnap/internal/domain"
	"github.com/spherical/pagesnap/internal/export"
	"github.com/spherical/pagesnap/internal/naming"
	"github.com/spherical/pagesnap/internal/session"
)

// Defaults for page previews
const (
	DefaultThumbnailWidth   = 160
	DefaultThumbnailQuality = 0.8
	DefaultArchivePrefix    = "export"
)

// Loader decodes document bytes.
type Loader interface {
	Load(ctx context.Context, data []byte, prompt domain.PasswordFunc) (domain.Document, error)
}

// Renderer rasterizes pages at a scale or a target width.
type Renderer interface {
	domain.PageRenderer
	RenderToWidth(ctx context.Context, doc domain.Document, page, targetWidth int, dpr float64, background color.Color) (*domain.Surface, error)
}

// Clock abstracts time so archive names are deterministic in tests.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// Options wires a Workspace.
type Options struct {
	Loader    Loader
	Renderer  Renderer
	Encoder   domain.ImageEncoder
	Packager  domain.Packager
	Deliverer domain.Deliverer

	Clock            Clock
	IDs              naming.Generator
	ArchivePrefix    string
	ThumbnailWidth   int
	ThumbnailQuality float64

	// Events receives stream events from imports and exports. Optional.
	Events chan<- domain.StreamEvent
}

// Workspace is one user session.
type Workspace struct {
	store  *session.Store
	opts   Options
	logger *domain.Logger

	mu     sync.RWMutex
	events chan<- domain.StreamEvent
}

// New creates a workspace with an empty session.
func New(opts Options) *Workspace {
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.IDs == nil {
		opts.IDs = naming.UUIDGenerator{}
	}
	if opts.ArchivePrefix == "" {
		opts.ArchivePrefix = DefaultArchivePrefix
	}
	if opts.ThumbnailWidth <= 0 {
		opts.ThumbnailWidth = DefaultThumbnailWidth
	}
	if opts.ThumbnailQuality <= 0 {
		opts.ThumbnailQuality = DefaultThumbnailQuality
	}
	return &Workspace{
		store:  session.New(),
		opts:   opts,
		logger: domain.DefaultLogger().WithPrefix("workspace"),
		events: opts.Events,
	}
}

// SetEvents replaces the stream event channel. nil stops events.
func (w *Workspace) SetEvents(ch chan<- domain.StreamEvent) {
	w.mu.Lock()
	w.events = ch
	w.mu.Unlock()
}

func (w *Workspace) eventSink() chan<- domain.StreamEvent {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.events
}

// Session exposes the selection state.
func (w *Workspace) Session() *session.Store {
	return w.store
}

// Close releases every loaded document.
func (w *Workspace) Close() {
	w.store.Close()
}

// Source is a file offered for import.
type Source struct {
	Name string
	Data []byte
}

// ImportFailure records a file that could not be opened.
type ImportFailure struct {
	Name    string
	Err     error
	Message string
}

// ImportReport summarizes an import batch.
type ImportReport struct {
	Added    []session.DocumentSnapshot
	Failures []ImportFailure
	// Message is the status of the last failure, empty when all succeeded.
	Message string
}

// PromptFunc returns the password callback for a named file. It may be nil.
type PromptFunc func(name string) domain.PasswordFunc

// AddFiles imports files one at a time. A file that fails to open is
// recorded and skipped; progress counts it as processed.
func (w *Workspace) AddFiles(ctx context.Context, files []Source, prompt PromptFunc, onProgress domain.ProgressFunc) ImportReport {
	var report ImportReport
	alloc := naming.NewAllocator(w.opts.IDs, w.store.IDs(), w.store.Names())
	total := len(files)

	pending := make([]session.Entry, 0, total)
	for i, f := range files {
		var pw domain.PasswordFunc
		if prompt != nil {
			pw = prompt(f.Name)
		}

		entry, err := w.open(ctx, alloc, f, pw)
		if err != nil {
			failure := ImportFailure{Name: f.Name, Err: err, Message: fmt.Sprintf("Failed to open %s: %v", f.Name, err)}
			report.Failures = append(report.Failures, failure)
			report.Message = failure.Message
			w.logger.Warn("%s", failure.Message)
			w.emitEvent(domain.StreamEvent{Type: domain.EventImportFailed, Done: i + 1, Total: total, Payload: failure.Message, Timestamp: time.Now()})
		} else {
			pending = append(pending, entry)
		}

		w.emitEvent(domain.StreamEvent{Type: domain.EventImportProgress, Done: i + 1, Total: total, Payload: f.Name, Timestamp: time.Now()})
		if onProgress != nil {
			onProgress(domain.Progress{Done: i + 1, Total: total, DocumentID: entry.ID, Name: f.Name, Err: err})
		}
	}

	if len(pending) > 0 {
		if err := w.store.Add(pending...); err != nil {
			// Allocator names are unique against the store, so this is a
			// concurrent edit; release what we opened.
			for _, e := range pending {
				_ = e.Handle.Release()
			}
			report.Message = fmt.Sprintf("Failed to add files: %v", err)
			return report
		}
		for _, e := range pending {
			if snap, ok := w.store.Get(e.ID); ok {
				report.Added = append(report.Added, snap)
			}
		}
	}

	w.logger.Info("Imported %d of %d file(s)", len(report.Added), total)
	return report
}

func (w *Workspace) open(ctx context.Context, alloc *naming.Allocator, f Source, pw domain.PasswordFunc) (session.Entry, error) {
	doc, err := w.opts.Loader.Load(ctx, f.Data, pw)
	if err != nil {
		return session.Entry{}, err
	}
	return session.Entry{
		ID:          alloc.ID(),
		DisplayName: alloc.DisplayName(f.Name),
		Handle:      doc,
	}, nil
}

// Remove drops a document from the session and releases it.
func (w *Workspace) Remove(id string) bool {
	return w.store.Remove(id)
}

// Report summarizes an export.
type Report struct {
	Count       int
	Files       []string
	ArchiveName string
	Bytes       int
	Message     string
}

// ExportIndividually exports every selected page and saves each image as its
// own file. Nothing is saved unless every page exported.
func (w *Workspace) ExportIndividually(ctx context.Context, opts domain.ExportOptions, onProgress domain.ProgressFunc) (Report, error) {
	snap := w.store.Snapshot()
	if snap.TotalSelected() == 0 {
		return Report{Message: "No pages selected."}, domain.EmptySelectionError()
	}

	results, err := w.pipeline().Run(ctx, snap, opts, onProgress)
	if err != nil {
		return Report{Message: "Export failed: " + err.Error()}, err
	}

	files := export.IndividualFiles(results)
	if err := w.opts.Deliverer.DeliverMany(ctx, files); err != nil {
		return Report{Message: "Export failed: " + err.Error()}, err
	}

	report := Report{
		Count: len(files),
		Files: make([]string, len(files)),
		Bytes: export.TotalBytes(results),
	}
	for i, f := range files {
		report.Files[i] = f.Name
	}
	report.Message = fmt.Sprintf("Downloaded %d %s.", report.Count, plural(report.Count, "image"))
	return report, nil
}

// ExportArchive exports every selected page into one ZIP with a folder per
// document and saves it as export-{timestamp}.zip.
func (w *Workspace) ExportArchive(ctx context.Context, opts domain.ExportOptions, onProgress domain.ProgressFunc) (Report, error) {
	snap := w.store.Snapshot()
	if snap.TotalSelected() == 0 {
		return Report{Message: "No pages selected."}, domain.EmptySelectionError()
	}

	results, err := w.pipeline().RunQueue(ctx, export.NewQueue(snap, export.ArchiveBaseName), opts, onProgress)
	if err != nil {
		return Report{Message: "ZIP export failed: " + err.Error()}, err
	}

	entries := export.ArchiveEntries(results, snap)
	w.emitEvent(domain.StreamEvent{Type: domain.EventPackaging, Total: len(entries), Timestamp: time.Now()})
	data, err := w.opts.Packager.Pack(entries)
	if err != nil {
		return Report{Message: "ZIP export failed: " + err.Error()}, err
	}

	name := ArchiveName(w.opts.ArchivePrefix, w.opts.Clock.Now())
	if err := w.opts.Deliverer.DeliverOne(ctx, data, name); err != nil {
		return Report{Message: "ZIP export failed: " + err.Error()}, err
	}

	return Report{
		Count:       len(entries),
		Files:       []string{name},
		ArchiveName: name,
		Bytes:       len(data),
		Message:     fmt.Sprintf("ZIP created with %d %s.", len(entries), plural(len(entries), "image")),
	}, nil
}

// Thumbnail renders a page preview about width pixels wide as JPEG.
func (w *Workspace) Thumbnail(ctx context.Context, id string, page, width int) ([]byte, error) {
	doc, ok := w.store.Get(id)
	if !ok {
		return nil, domain.ValidationError(fmt.Sprintf("unknown document %q", id), nil)
	}
	if width <= 0 {
		width = w.opts.ThumbnailWidth
	}

	surface, err := w.opts.Renderer.RenderToWidth(ctx, doc.Handle, page, width, 1, color.White)
	if err != nil {
		return nil, err
	}
	defer surface.Release()

	return w.opts.Encoder.Encode(surface.Image, codec.MimeJPEG, w.opts.ThumbnailQuality)
}

// SaveThumbnails writes a preview of every selected page as
// "{base}/{base}-thumb-pNN.jpg".
func (w *Workspace) SaveThumbnails(ctx context.Context, width int, onProgress domain.ProgressFunc) (Report, error) {
	snap := w.store.Snapshot()
	total := snap.TotalSelected()
	if total == 0 {
		return Report{Message: "No pages selected."}, domain.EmptySelectionError()
	}

	var report Report
	for _, doc := range snap.Documents {
		for _, page := range doc.Selected {
			data, err := w.Thumbnail(ctx, doc.ID, page, width)
			if err != nil {
				return Report{Message: "Thumbnail failed: " + err.Error()}, err
			}
			name := codec.ThumbnailFilenameFor(doc.DisplayName, page)
			if err := w.opts.Deliverer.DeliverOne(ctx, data, name); err != nil {
				return Report{Message: "Thumbnail failed: " + err.Error()}, err
			}
			report.Files = append(report.Files, name)
			report.Bytes += len(data)
			report.Count++
			if onProgress != nil {
				onProgress(domain.Progress{Done: report.Count, Total: total, DocumentID: doc.ID, Name: doc.DisplayName, Page: page})
			}
		}
	}
	report.Message = fmt.Sprintf("Saved %d %s.", report.Count, plural(report.Count, "thumbnail"))
	return report, nil
}

// StatusLine summarizes the session, e.g. "2 files loaded · 5 pages selected".
func (w *Workspace) StatusLine() string {
	files := w.store.Len()
	pages := w.store.TotalSelectedPages()
	return fmt.Sprintf("%d %s loaded · %d %s selected", files, plural(files, "file"), pages, plural(pages, "page"))
}

// ArchiveName returns "{prefix}-{UTC ISO-8601 with ':' and '.' as '-'}.zip".
func ArchiveName(prefix string, t time.Time) string {
	stamp := t.UTC().Format("2006-01-02T15:04:05.000Z")
	stamp = strings.NewReplacer(":", "-", ".", "-").Replace(stamp)
	return fmt.Sprintf("%s-%s.zip", prefix, stamp)
}

func (w *Workspace) pipeline() *export.Pipeline {
	return export.NewPipeline(w.opts.Renderer, w.opts.Encoder).WithEvents(w.eventSink())
}

func (w *Workspace) emitEvent(event domain.StreamEvent) {
	ch := w.eventSink()
	if ch == nil {
		return
	}
	select {
	case ch <- event:
	default:
		w.logger.Warn("Event channel full, dropping event: %s", event.Type)
	}
}

func plural(n int, noun string) string {
	if n == 1 {
		return noun
	}
	return noun + "s"
}
