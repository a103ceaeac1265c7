package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/compresr/extension-sdk/pkg/extension"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <manifest>...",
		Short: "Validate extension manifests (JSON or YAML)",
		Long: `Check that each manifest parses and declares a usable name and a
version. Exits non-zero if any manifest is invalid.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			green := color.New(color.FgGreen)
			red := color.New(color.FgRed)
			out := cmd.OutOrStdout()

			failed := 0
			for _, path := range args {
				m, err := extension.LoadManifest(path)
				if err != nil {
					failed++
					_, _ = red.Fprintf(out, "✗ %s: %v\n", path, err)
					continue
				}
				_, _ = green.Fprintf(out, "✓ %s: %s@%s\n", path, m.Name, m.Version)
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d manifests invalid", failed, len(args))
			}
			return nil
		},
	}
}
