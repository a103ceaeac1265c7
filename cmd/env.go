package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/compresr/extension-sdk/pkg/environment"
)

func newEnvCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "env",
		Short: "Inspect environment key names (values are never printed)",
	}
	cmd.AddCommand(newEnvKeysCmd())
	cmd.AddCommand(newEnvCheckCmd())
	return cmd
}

func newEnvKeysCmd() *cobra.Command {
	var prefix string

	cmd := &cobra.Command{
		Use:   "keys <dotenv>",
		Short: "List the variable names defined in a dotenv file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := environment.DotenvKeys(args[0])
			if err != nil {
				return err
			}
			if prefix != "" {
				keys = environment.Complete(keys, prefix)
			}
			for _, k := range keys {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&prefix, "complete", "", "fuzzy-filter names as an editor would")
	return cmd
}

func newEnvCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "check <dotenv> <file>",
		Short:         "Report {{NAME}} placeholders in a file that the dotenv file does not define",
		Args:          cobra.ExactArgs(2),
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			src := environment.NewSource()
			if err := src.LoadDotenv("check", args[0]); err != nil {
				return err
			}
			if err := src.Switch("check"); err != nil {
				return err
			}

			text, err := readInput(cmd, args[1])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			found := environment.Placeholders(text)
			unknown := environment.Unknown(text, src)
			if len(unknown) == 0 {
				_, _ = color.New(color.FgGreen).Fprintf(out, "✓ all %d placeholders defined\n", len(found))
				return nil
			}
			_, _ = color.New(color.FgRed).Fprintf(out, "✗ undefined: %s\n", strings.Join(unknown, ", "))
			return fmt.Errorf("%d undefined placeholders", len(unknown))
		},
	}
}
