package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spherical/pagesnap/internal/codec"
	"github.com/spherical/pagesnap/internal/config"
	"github.com/spherical/pagesnap/internal/domain"
	"github.com/spherical/pagesnap/pkg/pagesnap"
)

type selectionOptions struct {
	Inputs   []string
	Pages    string
	Invert   bool
	Password string
}

type exportCLIOptions struct {
	selectionOptions
	Mode   pagesnap.Mode
	Export domain.ExportOptions
}

type thumbsCLIOptions struct {
	selectionOptions
	Width int
}

// loadConfig resolves configuration: defaults, then the config file, then
// PAGESNAP_* variables (including .env), then global flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if err := config.LoadDotEnv(""); err != nil {
		return nil, err
	}

	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("out") {
		out, _ := flags.GetString("out")
		if strings.TrimSpace(out) == "" {
			return nil, fmt.Errorf("--out cannot be empty")
		}
		cfg.Delivery.OutputDir = out
	}
	if flags.Changed("log-level") {
		cfg.Observability.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-format") {
		format, _ := flags.GetString("log-format")
		if format != "console" && format != "json" {
			return nil, fmt.Errorf("--log-format must be console or json, got %q", format)
		}
		cfg.Observability.LogFormat = format
	}
	if verbose, _ := flags.GetBool("verbose"); verbose {
		cfg.Observability.LogLevel = "debug"
	}
	return cfg, nil
}

func addSelectionFlags(cmd *cobra.Command) {
	cmd.Flags().String("pages", "", `Pages to select in every file, e.g. "1-3,7,10-" (default all)`)
	cmd.Flags().Bool("invert", false, "Invert the page selection")
	cmd.Flags().String("password", "", "Password for encrypted files (prompted when omitted)")
}

func readSelectionOptions(cmd *cobra.Command, args []string) (selectionOptions, error) {
	if len(args) == 0 {
		return selectionOptions{}, fmt.Errorf("at least one PDF file is required")
	}
	opts := selectionOptions{Inputs: args}
	opts.Pages, _ = cmd.Flags().GetString("pages")
	opts.Invert, _ = cmd.Flags().GetBool("invert")
	opts.Password, _ = cmd.Flags().GetString("password")

	if cmd.Flags().Changed("pages") && strings.TrimSpace(opts.Pages) == "" {
		return selectionOptions{}, fmt.Errorf("--pages cannot be empty")
	}
	return opts, nil
}

// readExportOptions starts from the configured export settings and applies
// the flags the user set.
func readExportOptions(cmd *cobra.Command, cfg *config.Config, args []string) (exportCLIOptions, error) {
	sel, err := readSelectionOptions(cmd, args)
	if err != nil {
		return exportCLIOptions{}, err
	}

	export, err := cfg.ExportOptions()
	if err != nil {
		return exportCLIOptions{}, err
	}

	flags := cmd.Flags()
	if flags.Changed("format") {
		s, _ := flags.GetString("format")
		format, err := codec.ParseFormat(s)
		if err != nil {
			return exportCLIOptions{}, fmt.Errorf("--format: %w", err)
		}
		export.Format = format
	}
	if flags.Changed("scale") {
		export.PageScale, _ = flags.GetFloat64("scale")
		if export.PageScale < domain.MinPageScale || export.PageScale > domain.MaxPageScale {
			return exportCLIOptions{}, fmt.Errorf("--scale must be between %g and %g, got %g", float64(domain.MinPageScale), float64(domain.MaxPageScale), export.PageScale)
		}
	}
	if flags.Changed("quality") {
		export.Quality, _ = flags.GetFloat64("quality")
		if export.Quality < domain.MinQuality || export.Quality > domain.MaxQuality {
			return exportCLIOptions{}, fmt.Errorf("--quality must be between %g and %g, got %g", domain.MinQuality, float64(domain.MaxQuality), export.Quality)
		}
	}
	if flags.Changed("dpr") {
		export.DPR, _ = flags.GetFloat64("dpr")
		if export.DPR <= 0 {
			return exportCLIOptions{}, fmt.Errorf("--dpr must be positive, got %g", export.DPR)
		}
	}
	if flags.Changed("background") {
		s, _ := flags.GetString("background")
		bg, err := config.ParseColor(s)
		if err != nil {
			return exportCLIOptions{}, fmt.Errorf("--background: %w", err)
		}
		export.Background = bg
	}
	if err := export.Validate(); err != nil {
		return exportCLIOptions{}, err
	}

	mode := pagesnap.Individual
	if zip, _ := flags.GetBool("zip"); zip {
		mode = pagesnap.Archive
	}

	return exportCLIOptions{selectionOptions: sel, Mode: mode, Export: export}, nil
}

func readThumbsOptions(cmd *cobra.Command, cfg *config.Config, args []string) (thumbsCLIOptions, error) {
	sel, err := readSelectionOptions(cmd, args)
	if err != nil {
		return thumbsCLIOptions{}, err
	}

	width := cfg.Thumbnail.Width
	if cmd.Flags().Changed("width") {
		width, _ = cmd.Flags().GetInt("width")
		if width < 1 {
			return thumbsCLIOptions{}, fmt.Errorf("--width must be positive, got %d", width)
		}
	}
	return thumbsCLIOptions{selectionOptions: sel, Width: width}, nil
}
