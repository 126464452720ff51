// Package cmd provides the sniff command, which identifies container
// formats by content.
package cmd

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/hansbonini/galtools/pkg/common"
	"github.com/hansbonini/galtools/pkg/sniff"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// sniffCmd identifies the format of each input file.
var sniffCmd = &cobra.Command{
	Use:   "sniff [files...]",
	Short: "Identify the container format of files",
	Long: `Identify the container format of files by their content.

Files are read in parallel and reported in the order given, as
"<file>\t<format>/<variant>". A file no detector accepts is reported as
unknown and makes the command fail with exit code 5.

Example:
  galtools sniff ./output/DATA/*`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		results := make([]sniff.Result, len(args))
		errs := make([]error, len(args))
		sniffer := sniff.Default()

		workers := settings.Workers
		if workers <= 0 {
			workers = runtime.NumCPU()
		}

		eg, ctx := errgroup.WithContext(cmd.Context())
		eg.SetLimit(workers)
		for i, name := range args {
			eg.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				data, err := os.ReadFile(name)
				if err != nil {
					return fmt.Errorf("%s %s: %w", common.ErrFailedToReadFile, name, err)
				}
				results[i], errs[i] = sniffer.Identify(name, data)
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for i, name := range args {
			if errs[i] != nil {
				fmt.Fprintf(out, "%s\tunknown\n", name)
				continue
			}
			fmt.Fprintf(out, "%s\t%s\n", name, results[i])
		}
		return errors.Join(errs...)
	},
}

func init() {
	rootCmd.AddCommand(sniffCmd)

	sniffCmd.Flags().Int("workers", 0, "Files read at once (default: number of CPUs)")
}
