package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kirillkom/pdf-recompose/internal/core/domain"
)

func newOCRCmd(c *cli) *cobra.Command {
	var (
		output   string
		dpi      float64
		language string
		quiet    bool
	)
	cmd := &cobra.Command{
		Use:   "ocr <in.pdf>",
		Short: "Make a scanned PDF searchable",
		Example: `  recompose ocr scan.pdf
  recompose ocr scan.pdf -o out.pdf --dpi 200 --lang eng+deu`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resolved, err := c.dpi(dpi)
			if err != nil {
				return err
			}
			if language == "" {
				language = c.cfg.OCRDefaultLanguage
			}
			source, err := readSource(args[0])
			if err != nil {
				return err
			}

			onProgress := progressPrinter(cmd)
			if quiet {
				onProgress = nil
			}
			result, err := c.stack().OCR.Run(cmd.Context(), domain.OCRRequest{
				Source:   source,
				DPI:      resolved,
				Language: language,
			}, onProgress)
			if err != nil {
				return err
			}

			if output == "" {
				output = defaultOutput(args[0], "-searchable.pdf")
			}
			if err := writeOutput(output, result.PDF); err != nil {
				return err
			}
			for _, warning := range result.Warnings {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning:", warning)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", output)
			if result.TextPreview != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "\n%s\n", result.TextPreview)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output path (default <in>-searchable.pdf)")
	cmd.Flags().Float64Var(&dpi, "dpi", 0, "Render resolution (default from DEFAULT_DPI)")
	cmd.Flags().StringVar(&language, "lang", "", "Tesseract languages joined by '+' (default from OCR_DEFAULT_LANGUAGE)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not print page progress")
	return cmd
}

func newRedactCmd(c *cli) *cobra.Command {
	var (
		output   string
		specPath string
		dpi      float64
		quiet    bool
	)
	cmd := &cobra.Command{
		Use:   "redact <in.pdf>",
		Short: "Flatten a PDF with redaction masks burned into every marked page",
		Example: `  recompose spec contract.pdf --marks marks.json > spec.json
  recompose redact contract.pdf --spec spec.json -o contract-redacted.pdf`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resolved, err := c.dpi(dpi)
			if err != nil {
				return err
			}
			source, err := readSource(args[0])
			if err != nil {
				return err
			}
			spec, err := readSpec(specPath)
			if err != nil {
				return err
			}

			hash, err := c.stack().Provenance.Hash(source)
			if err != nil {
				return err
			}
			if !strings.EqualFold(hash, spec.PDFHash) {
				return domain.WrapError(domain.ErrHashMismatch, "verify redaction spec",
					fmt.Errorf("spec was built for %s, %s hashes to %s", spec.PDFHash, args[0], hash))
			}

			onProgress := progressPrinter(cmd)
			if quiet {
				onProgress = nil
			}
			pdf, err := c.stack().Redaction.Run(cmd.Context(), domain.RedactionRequest{
				Source: source,
				DPI:    resolved,
				Spec:   spec,
			}, onProgress)
			if err != nil {
				return err
			}

			if output == "" {
				output = defaultOutput(args[0], "-redacted.pdf")
			}
			if err := writeOutput(output, pdf); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output path (default <in>-redacted.pdf)")
	cmd.Flags().StringVar(&specPath, "spec", "", "Redaction spec JSON file")
	cmd.Flags().Float64Var(&dpi, "dpi", 0, "Render resolution (default from DEFAULT_DPI)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not print page progress")
	_ = cmd.MarkFlagRequired("spec")
	return cmd
}

func readSpec(path string) (domain.RedactionSpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.RedactionSpec{}, fmt.Errorf("read spec: %w", err)
	}
	var spec domain.RedactionSpec
	if err := json.Unmarshal(raw, &spec); err != nil {
		return domain.RedactionSpec{}, fmt.Errorf("parse spec %s: %w", path, err)
	}
	return spec, nil
}
