// Package cmd provides the unpack and pack commands shared by the
// container formats. Each format file builds its command group from these.
package cmd

import (
	"fmt"
	"strings"

	"github.com/hansbonini/galtools/pkg/archive"
	"github.com/spf13/cobra"
)

func variantList(d archive.Driver) string {
	names := make([]string, 0, len(d.Variants()))
	for _, variant := range d.Variants() {
		names = append(names, string(variant))
	}
	return strings.Join(names, ", ")
}

// newUnpackCmd extracts every entry of a container into a directory
// together with an index.yaml describing the layout.
func newUnpackCmd(d archive.Driver, example string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unpack [input_file] [output_directory]",
		Short: fmt.Sprintf("Extract the entries of a %s file", d.Name()),
		Long: fmt.Sprintf(`Extract the entries of a %s file into a directory.

Entries are written as 000, 001, ... in container order, with an extension
when the format names its parts. index.yaml records the layout variant,
which entries are present and the header details needed to repack.

Absent entries are only listed in index.yaml unless --all is given, which
also writes an empty placeholder file for each of them.

Variants: %s (detected when --variant is not given)

Example:
  %s`, d.Name(), variantList(d), example),
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			inputFile := args[0]
			outputDir := args[1]

			variant, err := cmd.Flags().GetString("variant")
			if err != nil {
				return fmt.Errorf("error getting variant flag: %w", err)
			}

			processor := archive.NewOsProcessor()
			opts := archive.UnpackOptions{Variant: archive.Variant(variant), All: settings.Unpack.All}
			if _, err := processor.UnpackFile(d, inputFile, outputDir, opts); err != nil {
				return fmt.Errorf("failed to unpack %s: %w", inputFile, err)
			}
			return nil
		},
	}
	cmd.Flags().Bool("all", false, "Write empty placeholder files for absent entries")
	cmd.Flags().String("variant", "", "Layout to expect instead of detecting it")
	return cmd
}

// newPackCmd rebuilds a container from a directory written by unpack.
func newPackCmd(d archive.Driver, example string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pack [input_directory] [output_file]",
		Short: fmt.Sprintf("Create a %s file from extracted entries", d.Name()),
		Long: fmt.Sprintf(`Create a %s file from a directory written by unpack.

The layout recorded in index.yaml is used unless --variant overrides it.
Absent entries keep their slot so later entries keep their index.

Variants: %s

Example:
  %s`, d.Name(), variantList(d), example),
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			inputDir := args[0]
			outputFile := args[1]

			variant, err := cmd.Flags().GetString("variant")
			if err != nil {
				return fmt.Errorf("error getting variant flag: %w", err)
			}

			opts := archive.DefaultOptions()
			opts.Variant = archive.Variant(variant)
			if err := archive.NewOsProcessor().PackFile(d, inputDir, outputFile, opts); err != nil {
				return fmt.Errorf("failed to pack %s: %w", inputDir, err)
			}
			return nil
		},
	}
	cmd.Flags().String("variant", "", "Layout to write instead of the recorded one")
	return cmd
}
