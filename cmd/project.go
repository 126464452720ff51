// Package cmd provides command-line interface for patch projects.
// A project mirrors a disc image into a working tree; edits made there are
// exported back into a patched image.
package cmd

import (
	"fmt"
	"sort"

	"github.com/hansbonini/galtools/pkg/common"
	"github.com/hansbonini/galtools/pkg/project"
	"github.com/hansbonini/galtools/pkg/psx"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// projectCmd represents the parent command for patch projects.
var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage patch projects for Galerians PSX disc images",
	Long: `Manage patch projects for Galerians PSX disc images.

Commands:
  create    Mirror a disc image into a new project directory
  diff      List the files edited since the last export
  export    Write a patched image with the edited files

Examples:
  galtools project create --unpack original.cue ./work/
  galtools project diff ./work/
  galtools project export ./work/ patched.cue`,
}

// projectCreateCmd mirrors an image into a project directory.
var projectCreateCmd = &cobra.Command{
	Use:   "create [image_file] [project_directory]",
	Short: "Create a project from a disc image",
	Long: `Create a project from a disc image.

Every file of the disc is copied below <project_directory>/files/. With
--unpack, files recognised as containers are stored unpacked in a
<name>.d/ directory instead. A container that fails to unpack is kept
packed and reported, unless --strict is given, which aborts creation.

Example:
  galtools project create --unpack --workers 4 original.cue ./work/`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		img, err := psx.Open(args[0])
		if err != nil {
			return err
		}
		defer img.Close()

		opts := project.Options{
			Unpack:  settings.Unpack.Sniff,
			All:     settings.Unpack.All,
			Workers: settings.Workers,
			Strict:  settings.Strict,
		}
		_, result, err := project.Create(cmd.Context(), afero.NewOsFs(), img, args[1], opts)
		if err != nil {
			return err
		}

		failed := make([]string, 0, len(result.Failed))
		for name := range result.Failed {
			failed = append(failed, name)
		}
		sort.Strings(failed)
		for _, name := range failed {
			fmt.Fprintf(cmd.OutOrStdout(), "kept packed: %s: %v\n", name, result.Failed[name])
		}
		return nil
	},
}

// projectDiffCmd lists the edited files of a project.
var projectDiffCmd = &cobra.Command{
	Use:   "diff [project_directory]",
	Short: "List the files edited since the last export",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := project.Load(afero.NewOsFs(), args[0])
		if err != nil {
			return err
		}
		changed, err := p.Diff()
		if err != nil {
			return err
		}
		for _, path := range changed {
			fmt.Fprintln(cmd.OutOrStdout(), path)
		}
		return nil
	},
}

// projectExportCmd writes a patched image.
var projectExportCmd = &cobra.Command{
	Use:   "export [project_directory] [output_image]",
	Short: "Write a patched image with the edited files",
	Long: `Write a patched image with the files edited since the last export.

Unpacked containers are repacked first. Files whose content did not change
are skipped. The export starts from the previous export's output when it
still exists, so successive exports accumulate. The project is only
updated after the image is written; a failed export leaves it untouched.

Example:
  galtools project export ./work/ patched.cue`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := project.Load(afero.NewOsFs(), args[0])
		if err != nil {
			return err
		}

		img, err := p.OpenImage()
		if err != nil {
			return fmt.Errorf("%s: %w", common.ErrFailedToOpenImage, err)
		}
		defer img.Close()

		report, err := p.Export(img, args[1])
		if err != nil {
			return err
		}
		if report.Flush != nil {
			printWrites(cmd, report.Flush)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(projectCmd)

	projectCmd.AddCommand(projectCreateCmd)
	projectCmd.AddCommand(projectDiffCmd)
	projectCmd.AddCommand(projectExportCmd)

	flags := projectCreateCmd.Flags()
	flags.Bool("unpack", false, "Store recognised containers unpacked")
	flags.Bool("all", false, "Write empty placeholder files for absent container entries")
	flags.Int("workers", 0, "Files processed at once (default: one per file)")
	flags.Bool("strict", false, "Abort on the first file that fails to unpack")
}
