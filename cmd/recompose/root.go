package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kirillkom/pdf-recompose/internal/bootstrap"
	"github.com/kirillkom/pdf-recompose/internal/config"
	"github.com/kirillkom/pdf-recompose/internal/core/domain"
	"github.com/kirillkom/pdf-recompose/internal/observability/logging"
)

// cli holds state shared by every subcommand.
type cli struct {
	logLevel string

	cfg       config.Config
	pipelines *bootstrap.Pipelines
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "recompose",
		Short: "Rebuild PDFs as searchable scans or flattened redactions",
		Long: `recompose rasterizes every page of a PDF and rebuilds the document.

  ocr      adds an invisible, searchable text layer recognized by Tesseract
  redact   burns opaque masks into the pixels so no original content survives
  hash     prints the SHA-256 a redaction spec must carry
  spec     binds a marks file to a source document
  inspect  reports page count and page sizes`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			c.cfg = cfg
			slog.SetDefault(logging.NewJSONLoggerTo(cmd.ErrOrStderr(), "recompose-cli", c.logLevel))
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if c.pipelines != nil {
				return c.pipelines.Close()
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "warn", "Log level for stderr diagnostics")

	root.AddCommand(
		newOCRCmd(c),
		newRedactCmd(c),
		newHashCmd(c),
		newSpecCmd(c),
		newInspectCmd(c),
	)
	return root
}

func (c *cli) stack() *bootstrap.Pipelines {
	if c.pipelines == nil {
		c.pipelines = bootstrap.NewPipelines(c.cfg, bootstrap.NewExecutor(c.cfg), nil)
	}
	return c.pipelines
}

// dpi applies the configured default and ceiling to a --dpi flag.
func (c *cli) dpi(flag float64) (float64, error) {
	if flag == 0 {
		return c.cfg.DefaultDPI, nil
	}
	if flag < 0 || flag > c.cfg.MaxDPI {
		return 0, fmt.Errorf("--dpi must be between 1 and %g", c.cfg.MaxDPI)
	}
	return flag, nil
}

func readSource(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%s is empty", path)
	}
	return data, nil
}

func writeOutput(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func defaultOutput(input, suffix string) string {
	dir, base := filepath.Split(input)
	ext := filepath.Ext(base)
	if strings.EqualFold(ext, ".pdf") {
		base = strings.TrimSuffix(base, ext)
	}
	return filepath.Join(dir, base+suffix)
}

func progressPrinter(cmd *cobra.Command) domain.ProgressFunc {
	out := cmd.ErrOrStderr()
	return func(p domain.Progress) {
		fmt.Fprintf(out, "page %d %-7s %3.0f%%\n", p.PageIndex+1, p.Stage, p.Progress*100)
	}
}
