package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/compresr/extension-sdk/pkg/jsonc"
)

func newFmtCmd() *cobra.Command {
	var strip, write bool

	cmd := &cobra.Command{
		Use:   "fmt <file|->",
		Short: "Pretty-print a JSONC file, keeping comments",
		Long: `Reformat a JSONC file with 2-space indentation. Comments are kept
unless --strip is given. Use "-" to read from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}

			if !jsonc.Valid(src) {
				_, _ = color.New(color.FgYellow).Fprintf(cmd.ErrOrStderr(),
					"warning: %s is not valid JSON once comments are removed\n", args[0])
			}

			var out string
			if strip {
				out = jsonc.StripComments(src)
			} else {
				out = jsonc.Prettify(src)
			}

			if write && args[0] != "-" {
				if err := os.WriteFile(args[0], []byte(out+"\n"), 0o644); err != nil {
					return fmt.Errorf("write %s: %w", args[0], err)
				}
				_, _ = color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "formatted %s\n", args[0])
				return nil
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
			return err
		},
	}

	cmd.Flags().BoolVar(&strip, "strip", false, "remove comments instead of formatting")
	cmd.Flags().BoolVarP(&write, "write", "w", false, "write the result back to the file")
	return cmd
}

func readInput(cmd *cobra.Command, name string) (string, error) {
	if name == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	return string(data), nil
}
