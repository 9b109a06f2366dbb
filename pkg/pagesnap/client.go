// Package pagesnap exports PDF pages as images. It loads documents, tracks
// which pages are selected, and saves the selection as image files or one
// ZIP archive.
package pagesnap

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/spherical/pagesnap/internal/archive"
	"github.com/spherical/pagesnap/internal/codec"
	"github.com/spherical/pagesnap/internal/config"
	"github.com/spherical/pagesnap/internal/deliver"
	"github.com/spherical/pagesnap/internal/domain"
	"github.com/spherical/pagesnap/internal/pdf"
	"github.com/spherical/pagesnap/internal/session"
	"github.com/spherical/pagesnap/internal/workspace"
)

// Re-export types for the public API
type (
	Config        = config.Config
	StreamEvent   = domain.StreamEvent
	EventType     = domain.EventType
	ExportOptions = domain.ExportOptions
	Format        = domain.Format
	Progress      = domain.Progress
	ImportReport  = workspace.ImportReport
	ImportFailure = workspace.ImportFailure
	Report        = workspace.Report
	PromptFunc    = workspace.PromptFunc
	Document      = session.DocumentSnapshot
)

// Event type constants
const (
	EventImportProgress = domain.EventImportProgress
	EventImportFailed   = domain.EventImportFailed
	EventExportStart    = domain.EventExportStart
	EventPageExported   = domain.EventPageExported
	EventPackaging      = domain.EventPackaging
	EventError          = domain.EventError
	EventComplete       = domain.EventComplete
)

// Format constants
const (
	FormatPNG  = domain.FormatPNG
	FormatJPEG = domain.FormatJPEG
	FormatWebP = domain.FormatWebP
)

// Mode selects how exported images are saved.
type Mode int

const (
	// Individual saves one file per page.
	Individual Mode = iota
	// Archive saves one ZIP with a folder per document.
	Archive
)

func (m Mode) String() string {
	if m == Archive {
		return "zip"
	}
	return "individual"
}

// Client is the main entry point for the library.
type Client struct {
	cfg    *config.Config
	loader *pdf.Loader
	saver  *deliver.Saver
	ws     *workspace.Workspace
	logger *domain.Logger

	// serializes exports so each stream sees only its own events
	exportMu sync.Mutex
}

// NewClient creates a client from PAGESNAP_* environment variables and an
// optional .env file.
func NewClient() (*Client, error) {
	if err := config.LoadDotEnv(""); err != nil {
		return nil, err
	}
	cfg, err := config.Load("")
	if err != nil {
		return nil, err
	}
	return NewClientWithConfig(cfg)
}

// NewClientWithConfig creates a client on the OS filesystem.
func NewClientWithConfig(cfg *Config) (*Client, error) {
	return NewClientFs(afero.NewOsFs(), cfg)
}

// NewClientFs creates a client that reads inputs from and writes outputs to fs.
func NewClientFs(fs afero.Fs, cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Encoding.DisableWebP {
		codec.DisableWebP()
	}

	loader := pdf.NewLoaderFs(fs, cfg.Import.MaxPasswordAttempts)
	saver := deliver.NewSaverFs(fs, cfg.Delivery.OutputDir, cfg.Delivery.Pause)
	ws := workspace.New(workspace.Options{
		Loader:           loader,
		Renderer:         pdf.NewRenderer(),
		Encoder:          codec.NewEncoder(),
		Packager:         archive.NewPacker(cfg.Archive.Level),
		Deliverer:        saver,
		ArchivePrefix:    cfg.Archive.NamePrefix,
		ThumbnailWidth:   cfg.Thumbnail.Width,
		ThumbnailQuality: cfg.Thumbnail.Quality,
	})

	return &Client{
		cfg:    cfg,
		loader: loader,
		saver:  saver,
		ws:     ws,
		logger: domain.DefaultLogger().WithPrefix("client"),
	}, nil
}

// Config returns the configuration the client was built with.
func (c *Client) Config() *Config {
	return c.cfg
}

// OutputDir is where exports are saved.
func (c *Client) OutputDir() string {
	return c.saver.Root()
}

// DefaultExportOptions returns the configured export options.
func (c *Client) DefaultExportOptions() (ExportOptions, error) {
	return c.cfg.ExportOptions()
}

// Import opens PDF files in order. Files that cannot be read or decoded are
// reported and skipped.
func (c *Client) Import(ctx context.Context, paths []string, prompt PromptFunc, onProgress func(Progress)) ImportReport {
	var failures []ImportFailure
	sources := make([]workspace.Source, 0, len(paths))
	for _, p := range paths {
		name := filepath.Base(p)
		data, err := c.loader.ReadFile(p)
		if err != nil {
			failures = append(failures, ImportFailure{Name: name, Err: err, Message: fmt.Sprintf("Failed to open %s: %v", name, err)})
			continue
		}
		sources = append(sources, workspace.Source{Name: name, Data: data})
	}

	report := c.ws.AddFiles(ctx, sources, prompt, onProgress)
	if len(failures) > 0 {
		report.Failures = append(failures, report.Failures...)
		if report.Message == "" {
			report.Message = failures[len(failures)-1].Message
		}
	}
	return report
}

// Documents lists loaded documents with their current selection.
func (c *Client) Documents() []Document {
	return c.ws.Session().Entries()
}

// Session gives direct access to page selection.
func (c *Client) Session() *session.Store {
	return c.ws.Session()
}

// SelectPages replaces a document's selection with a range list such as
// "1-3,7,10-".
func (c *Client) SelectPages(id, ranges string) error {
	doc, ok := c.ws.Session().Get(id)
	if !ok {
		return domain.ValidationError(fmt.Sprintf("unknown document %q", id), nil)
	}
	pages, err := session.ParsePageRanges(ranges, doc.PageCount)
	if err != nil {
		return err
	}
	c.ws.Session().SetSelection(id, pages)
	return nil
}

// Remove unloads a document.
func (c *Client) Remove(id string) bool {
	return c.ws.Remove(id)
}

// StatusLine summarizes loaded files and selected pages.
func (c *Client) StatusLine() string {
	return c.ws.StatusLine()
}

// Export runs an export in the background. The returned channel streams
// progress events and ends with exactly one EventComplete carrying the Report
// or one EventError carrying the message, then closes.
//
// Callers must drain the channel or cancel ctx. Once ctx is done, events that
// do not fit in the buffer are dropped so the export can finish and release
// the client for the next one.
func (c *Client) Export(ctx context.Context, mode Mode, opts ExportOptions) (<-chan StreamEvent, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if c.ws.Session().TotalSelectedPages() == 0 {
		return nil, domain.EmptySelectionError()
	}

	eventCh := make(chan StreamEvent, 100)
	go func() {
		defer close(eventCh)

		c.exportMu.Lock()
		defer c.exportMu.Unlock()

		// Pipeline events go to a side channel so the final event below is
		// always the last one on eventCh.
		inner := make(chan StreamEvent, 100)
		forwarded := make(chan struct{})
		go func() {
			defer close(forwarded)
			for e := range inner {
				if e.Type == EventComplete || e.Type == EventError {
					continue
				}
				send(ctx, eventCh, e)
			}
		}()

		c.ws.SetEvents(inner)
		report, err := c.ExportSync(ctx, mode, opts, nil)
		c.ws.SetEvents(nil)
		close(inner)
		<-forwarded

		if err != nil {
			send(ctx, eventCh, StreamEvent{Type: EventError, Payload: report.Message, Timestamp: time.Now()})
			return
		}
		send(ctx, eventCh, StreamEvent{Type: EventComplete, Done: report.Count, Total: report.Count, Payload: report, Timestamp: time.Now()})
	}()

	return eventCh, nil
}

// send delivers e, giving up once ctx is done and the buffer is full.
func send(ctx context.Context, ch chan<- StreamEvent, e StreamEvent) {
	select {
	case ch <- e:
		return
	default:
	}
	select {
	case ch <- e:
	case <-ctx.Done():
	}
}

// ExportSync runs an export and waits for it.
func (c *Client) ExportSync(ctx context.Context, mode Mode, opts ExportOptions, onProgress func(Progress)) (Report, error) {
	if err := c.prepareOutput(); err != nil {
		return Report{Message: "Export failed: " + err.Error()}, err
	}
	c.logger.Debug("Starting %s export to %s", mode, c.saver.Root())
	if mode == Archive {
		return c.ws.ExportArchive(ctx, opts, onProgress)
	}
	return c.ws.ExportIndividually(ctx, opts, onProgress)
}

// Thumbnail renders a JPEG preview of one page. width <= 0 uses the
// configured width.
func (c *Client) Thumbnail(ctx context.Context, id string, page, width int) ([]byte, error) {
	return c.ws.Thumbnail(ctx, id, page, width)
}

// SaveThumbnails saves a preview of every selected page.
func (c *Client) SaveThumbnails(ctx context.Context, width int, onProgress func(Progress)) (Report, error) {
	if err := c.prepareOutput(); err != nil {
		return Report{Message: "Thumbnail failed: " + err.Error()}, err
	}
	return c.ws.SaveThumbnails(ctx, width, onProgress)
}

// prepareOutput creates the output directory when there is something to save.
func (c *Client) prepareOutput() error {
	if c.ws.Session().TotalSelectedPages() == 0 {
		return nil
	}
	return c.saver.EnsureRoot()
}

// Close releases every loaded document.
func (c *Client) Close() error {
	c.ws.Close()
	return nil
}
