// Package export runs batches of page exports: render, encode and collect,
// one page at a time.
package export

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spherical/pagesnap/internal/codec"
	"github.com/spherical/pagesnap/internal/domain"
	"github.com/spherical/pagesnap/internal/session"
)

// State of a pipeline run
type State int

const (
	Idle State = iota
	Running
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Pipeline orchestrates a batch export
type Pipeline struct {
	renderer domain.PageRenderer
	encoder  domain.ImageEncoder
	logger   *domain.Logger
	eventCh  chan<- domain.StreamEvent

	mu    sync.Mutex
	state State
}

// NewPipeline creates a new export pipeline
func NewPipeline(renderer domain.PageRenderer, encoder domain.ImageEncoder) *Pipeline {
	return &Pipeline{
		renderer: renderer,
		encoder:  encoder,
		logger:   domain.DefaultLogger().WithPrefix("export"),
	}
}

// WithEvents makes the pipeline publish stream events on ch. Sends never
// block; events are dropped when ch is full.
func (p *Pipeline) WithEvents(ch chan<- domain.StreamEvent) *Pipeline {
	p.eventCh = ch
	return p
}

// State returns the state of the most recent run.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Pipeline) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// Run exports every selected page of snap. Filenames derive from
// opts.BaseName when set, otherwise from each document's display name.
func (p *Pipeline) Run(ctx context.Context, snap session.Snapshot, opts domain.ExportOptions, progress domain.ProgressFunc) ([]domain.PageExportResult, error) {
	baseName := DisplayBaseName
	if opts.BaseName != "" {
		baseName = FixedBaseName(opts.BaseName)
	}
	return p.RunQueue(ctx, NewQueue(snap, baseName), opts, progress)
}

// RunQueue drains q. Any failure discards every result of the run.
func (p *Pipeline) RunQueue(ctx context.Context, q *Queue, opts domain.ExportOptions, progress domain.ProgressFunc) ([]domain.PageExportResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if q.Len() == 0 {
		return nil, domain.EmptySelectionError()
	}

	p.mu.Lock()
	if p.state == Running {
		p.mu.Unlock()
		return nil, domain.ValidationError("an export is already running", nil)
	}
	p.state = Running
	p.mu.Unlock()

	startTime := time.Now()
	total := q.Len()
	format := p.encoder.EffectiveFormat(opts.Format)
	mime := codec.MimeFor(format)

	p.logger.Info("Exporting %d page(s) as %s", total, format)
	p.emitEvent(domain.StreamEvent{
		Type:      domain.EventExportStart,
		Total:     total,
		Payload:   fmt.Sprintf("Exporting %d page(s) as %s", total, format),
		Timestamp: time.Now(),
	})

	results := make([]domain.PageExportResult, 0, total)
	for unit, ok := q.Pop(); ok; unit, ok = q.Pop() {
		if err := ctx.Err(); err != nil {
			return nil, p.fail(fmt.Errorf("export cancelled before %s page %d: %w", unit.DisplayName, unit.Page, err))
		}

		result, err := p.exportUnit(ctx, unit, opts, format, mime)
		if err != nil {
			return nil, p.fail(err)
		}
		results = append(results, result)

		done := len(results)
		p.logger.Debug("Exported %s page %d (%d/%d)", unit.DisplayName, unit.Page, done, total)
		if progress != nil {
			progress(domain.Progress{
				Done:       done,
				Total:      total,
				DocumentID: unit.DocumentID,
				Name:       unit.DisplayName,
				Page:       unit.Page,
			})
		}
		p.emitEvent(domain.StreamEvent{
			Type:       domain.EventPageExported,
			DocumentID: unit.DocumentID,
			PageNumber: unit.Page,
			Done:       done,
			Total:      total,
			Payload:    result.Filename,
			Timestamp:  time.Now(),
		})
	}

	p.setState(Completed)
	p.logger.Info("Export complete: %d page(s) in %v", len(results), time.Since(startTime))
	p.emitEvent(domain.StreamEvent{
		Type:      domain.EventComplete,
		Done:      len(results),
		Total:     total,
		Payload:   fmt.Sprintf("Exported %d page(s)", len(results)),
		Timestamp: time.Now(),
	})
	return results, nil
}

// exportUnit renders and encodes one page. The surface is released before
// returning.
func (p *Pipeline) exportUnit(ctx context.Context, unit domain.ExportUnit, opts domain.ExportOptions, format domain.Format, mime string) (domain.PageExportResult, error) {
	surface, err := p.renderer.Render(ctx, unit.Document, unit.Page, opts.PageScale, opts.EffectiveDPR(), opts.EffectiveBackground())
	if err != nil {
		return domain.PageExportResult{}, unitError(domain.ErrorTypeRender, unit, err)
	}
	defer surface.Release()

	width, height := surface.Width(), surface.Height()
	data, err := p.encoder.Encode(surface.Image, mime, opts.Quality)
	if err != nil {
		return domain.PageExportResult{}, unitError(domain.ErrorTypeEncode, unit, err)
	}
	if len(data) == 0 {
		return domain.PageExportResult{}, unitError(domain.ErrorTypeEncode, unit, errors.New("encoder returned no data"))
	}

	return domain.PageExportResult{
		Bytes:      data,
		Filename:   codec.FilenameFor(unit.BaseName, unit.Page, format),
		Width:      width,
		Height:     height,
		Format:     format,
		DocumentID: unit.DocumentID,
		Page:       unit.Page,
	}, nil
}

// unitError names the failing document and page, keeping the type of err
// when it already is a DomainError.
func unitError(fallback domain.ErrorType, unit domain.ExportUnit, err error) error {
	errType := fallback
	var de *domain.DomainError
	if errors.As(err, &de) {
		errType = de.Type
	}
	return domain.NewError(errType, fmt.Sprintf("%s page %d", unit.DisplayName, unit.Page), err)
}

func (p *Pipeline) fail(err error) error {
	p.setState(Failed)
	p.logger.Error("Export failed: %v", err)
	p.emitEvent(domain.StreamEvent{
		Type:      domain.EventError,
		Payload:   err.Error(),
		Timestamp: time.Now(),
	})
	return err
}

// emitEvent safely emits an event to the channel
func (p *Pipeline) emitEvent(event domain.StreamEvent) {
	if p.eventCh == nil {
		return
	}
	select {
	case p.eventCh <- event:
	default:
		p.logger.Warn("Event channel full, dropping event: %s", event.Type)
	}
}
