package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kirillkom/pdf-recompose/internal/core/domain"
)

func newHashCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "hash <file>",
		Short: "Print the lowercase hex SHA-256 of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			hash, err := c.stack().Provenance.Hash(source)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func newSpecCmd(c *cli) *cobra.Command {
	var marksPath string
	cmd := &cobra.Command{
		Use:   "spec <in.pdf>",
		Short: "Build a redaction spec binding marks to the exact source bytes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := readSource(args[0])
			if err != nil {
				return err
			}
			raw, err := os.ReadFile(marksPath)
			if err != nil {
				return fmt.Errorf("read marks: %w", err)
			}
			var marks []domain.RedactionMark
			if err := json.Unmarshal(raw, &marks); err != nil {
				return fmt.Errorf("parse marks %s: %w", marksPath, err)
			}

			provenance := c.stack().Provenance
			hash, err := provenance.Hash(source)
			if err != nil {
				return err
			}
			return printJSON(cmd, provenance.BuildSpec(marks, hash))
		},
	}
	cmd.Flags().StringVar(&marksPath, "marks", "", "JSON array of redaction marks")
	_ = cmd.MarkFlagRequired("marks")
	return cmd
}

func newInspectCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <in.pdf>",
		Short: "Report page count and page sizes in points",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := readSource(args[0])
			if err != nil {
				return err
			}
			info, err := c.stack().Inspector.Inspect(cmd.Context(), source)
			if err != nil {
				return err
			}
			return printJSON(cmd, info)
		},
	}
}

func printJSON(cmd *cobra.Command, payload any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}
