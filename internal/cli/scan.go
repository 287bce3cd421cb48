package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"opsagent/internal/descriptor"
	"opsagent/internal/scanner"

	"github.com/spf13/cobra"
)

type scanOptions struct {
	format string
	out    string
}

func newScanCmd(_ *rootOptions) *cobra.Command {
	opts := &scanOptions{}
	cmd := &cobra.Command{
		Use:   "scan [dir]",
		Short: "Generate a starter descriptor by inspecting a project directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			d, err := scanner.Scan(dir)
			if err != nil {
				return err
			}
			format := descriptor.Format(strings.ToLower(opts.format))
			if !cmd.Flags().Changed("format") && opts.out != "" {
				format = descriptor.FormatFromPath(opts.out)
			}
			if format != descriptor.FormatJSON && format != descriptor.FormatYAML {
				return fmt.Errorf("unsupported format %q (json or yaml)", opts.format)
			}
			data, err := scanner.Encode(d, format)
			if err != nil {
				return err
			}
			if opts.out == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if parent := filepath.Dir(opts.out); parent != "." && parent != "" {
				if err := os.MkdirAll(parent, 0o755); err != nil {
					return err
				}
			}
			if err := os.WriteFile(opts.out, data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "descriptor for %s (%s) written to %s\n", d.Name, d.Type, opts.out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.format, "format", "f", string(descriptor.FormatJSON), "output format: json or yaml")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "write to this file instead of stdout")
	return cmd
}
