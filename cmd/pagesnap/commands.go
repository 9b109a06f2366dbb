package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/spherical/pagesnap/internal/domain"
	"github.com/spherical/pagesnap/internal/ui"
	"github.com/spherical/pagesnap/pkg/pagesnap"
)

func newExportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export FILE...",
		Short: "Export selected pages as images",
		Long: `Export renders the selected pages of every file and saves them to the
output directory as {name}-pNN.{ext}, or with --zip as one archive
export-{timestamp}.zip holding a folder per document.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := readExportOptions(cmd, a.cfg, args)
			if err != nil {
				return err
			}
			return a.runExport(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringP("format", "f", "", "Image format: png, jpeg or webp (default from config)")
	cmd.Flags().Float64("scale", 0, "Page scale from 1 to 4 (default from config)")
	cmd.Flags().Float64("quality", 0, "JPEG/WEBP quality from 0.7 to 1 (default from config)")
	cmd.Flags().Float64("dpr", 0, "Device pixel ratio multiplier (default from config)")
	cmd.Flags().String("background", "", `Background color, e.g. "#ffffff" or "transparent"`)
	cmd.Flags().Bool("zip", false, "Pack all images into one ZIP archive")
	addSelectionFlags(cmd)

	return cmd
}

func newInspectCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect FILE...",
		Short: "Show page counts and page sizes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sel, err := readSelectionOptions(cmd, args)
			if err != nil {
				return err
			}
			return a.runInspect(cmd.Context(), sel)
		},
	}
	addSelectionFlags(cmd)
	return cmd
}

func newThumbsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "thumbs FILE...",
		Short: "Save small JPEG previews of selected pages",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := readThumbsOptions(cmd, a.cfg, args)
			if err != nil {
				return err
			}
			return a.runThumbs(cmd.Context(), opts)
		},
	}
	cmd.Flags().Int("width", 0, "Preview width in pixels (default from config)")
	addSelectionFlags(cmd)
	return cmd
}

// open builds a client, imports the inputs and applies the page selection.
func (a *app) open(ctx context.Context, sel selectionOptions) (*pagesnap.Client, error) {
	client, err := pagesnap.NewClientWithConfig(a.cfg)
	if err != nil {
		return nil, err
	}

	bar := a.console.Progress(len(sel.Inputs), "Importing PDFs…")
	report := client.Import(ctx, sel.Inputs, a.prompter(sel.Password), bar.Update)
	bar.Finish()

	for _, f := range report.Failures {
		a.console.Warning("%s", f.Message)
	}
	if len(report.Added) == 0 {
		_ = client.Close()
		return nil, errors.New("no documents could be opened")
	}

	for _, doc := range report.Added {
		if sel.Pages != "" {
			if err := client.SelectPages(doc.ID, sel.Pages); err != nil {
				_ = client.Close()
				return nil, fmt.Errorf("--pages for %s: %w", doc.DisplayName, err)
			}
		}
		if sel.Invert {
			client.Session().InvertSelection(doc.ID)
		}
	}

	a.console.Info("%s", client.StatusLine())
	return client, nil
}

// prompter answers password challenges from --password, or interactively
// when stdin is a terminal.
func (a *app) prompter(password string) pagesnap.PromptFunc {
	if password != "" {
		return func(string) domain.PasswordFunc { return ui.Fixed(password) }
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil
	}
	p := ui.NewTerminalPrompter(a.console.Err)
	return p.For
}

func (a *app) runExport(ctx context.Context, opts exportCLIOptions) error {
	client, err := a.open(ctx, opts.selectionOptions)
	if err != nil {
		return err
	}
	defer client.Close()

	events, err := client.Export(ctx, opts.Mode, opts.Export)
	if err != nil {
		if domain.IsType(err, domain.ErrorTypeEmptySelection) {
			a.console.Warning("No pages selected.")
			return nil
		}
		return err
	}

	startTime := time.Now()
	bar := a.console.Progress(client.Session().TotalSelectedPages(), "Exporting")
	var spin *ui.Spinner
	var failure error

	for event := range events {
		switch event.Type {
		case pagesnap.EventPageExported:
			name := ""
			if doc, ok := client.Session().Get(event.DocumentID); ok {
				name = doc.DisplayName
			}
			bar.Update(domain.Progress{Done: event.Done, Total: event.Total, Name: name, Page: event.PageNumber})

		case pagesnap.EventPackaging:
			bar.Finish()
			spin = a.console.Spinner("Creating ZIP…")
			spin.Start()

		case pagesnap.EventError:
			spin.Stop()
			failure = fmt.Errorf("%v", event.Payload)

		case pagesnap.EventComplete:
			spin.Stop()
			bar.Finish()
			if report, ok := event.Payload.(pagesnap.Report); ok {
				a.console.Success("%s", report.Message)
				a.console.Message("Saved to %s in %v", client.OutputDir(), time.Since(startTime).Round(time.Millisecond))
			}
		}
	}

	return failure
}

func (a *app) runInspect(ctx context.Context, sel selectionOptions) error {
	client, err := a.open(ctx, sel)
	if err != nil {
		return err
	}
	defer client.Close()

	a.console.Section("Documents")
	for _, doc := range client.Documents() {
		size := "unknown size"
		if b, err := doc.Handle.Bound(1); err == nil {
			size = fmt.Sprintf("%dx%d pt", b.Dx(), b.Dy())
		}
		a.console.Message("%s  %d page(s), first page %s, %d selected", doc.DisplayName, doc.PageCount, size, len(doc.Selected))
	}
	return nil
}

func (a *app) runThumbs(ctx context.Context, opts thumbsCLIOptions) error {
	client, err := a.open(ctx, opts.selectionOptions)
	if err != nil {
		return err
	}
	defer client.Close()

	bar := a.console.Progress(client.Session().TotalSelectedPages(), "Thumbnails")
	report, err := client.SaveThumbnails(ctx, opts.Width, bar.Update)
	bar.Finish()
	if err != nil {
		return errors.New(report.Message)
	}
	a.console.Success("%s", report.Message)
	return nil
}
