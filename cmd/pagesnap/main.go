package main

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/spherical/pagesnap/internal/codec"
	"github.com/spherical/pagesnap/internal/config"
	"github.com/spherical/pagesnap/internal/domain"
	"github.com/spherical/pagesnap/internal/ui"
)

const version = "1.0.0"

// app carries state resolved in PersistentPreRunE to the subcommands.
type app struct {
	cfg     *config.Config
	console *ui.Console
}

func newRootCmd() *cobra.Command {
	a := &app{console: ui.StdConsole()}

	cmd := &cobra.Command{
		Use:   "pagesnap",
		Short: "Export PDF pages as PNG, JPEG or WEBP images",
		Long: `pagesnap renders pages of one or more PDF documents to images.

Selected pages are saved one file per page, or packed into a single ZIP
archive with one folder per document. Encrypted documents prompt for a
password.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.String("config", "", "Path to a YAML config file")
	flags.StringP("out", "o", "", "Output directory (default from config, else current directory)")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	flags.String("log-format", "", "Log format: console or json")
	flags.BoolP("verbose", "v", false, "Enable debug logging")
	flags.BoolP("quiet", "q", false, "Hide progress bars")

	cmd.AddCommand(newExportCmd(a))
	cmd.AddCommand(newInspectCmd(a))
	cmd.AddCommand(newThumbsCmd(a))

	return cmd
}

// setup loads .env and config, applies global flags and installs the logger.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	domain.SetDefault(domain.NewLogger(cfg.LogConfig()))
	if cfg.Encoding.DisableWebP {
		codec.DisableWebP()
	}

	quiet, _ := cmd.Flags().GetBool("quiet")
	a.console.Quiet = quiet
	a.cfg = cfg
	return nil
}

func main() {
	root := newRootCmd()

	if err := fang.Execute(
		context.Background(),
		root,
		fang.WithVersion(version),
		fang.WithNotifySignal(os.Interrupt, os.Kill),
	); err != nil {
		os.Exit(1)
	}
}
