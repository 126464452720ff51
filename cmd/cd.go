// Package cmd provides command-line interface for CD image processing.
// This file contains commands for inspecting PlayStation CD images and
// replacing files inside them.
package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/hansbonini/galtools/pkg/common"
	"github.com/hansbonini/galtools/pkg/psx"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// cdCmd represents the parent command for all CD image operations.
var cdCmd = &cobra.Command{
	Use:   "cd",
	Short: "Process CD image files from PlayStation games",
	Long: `Process CD image files used in PlayStation games.

Images can be given as a .cue sheet, a raw .bin (2352-byte sectors) or a
cooked .iso (2048-byte sectors).

Commands:
  dump      Extract every file of the image
  ls        List the files of the image
  layout    Show how the sectors of the image are used
  verify    Check the EDC of every raw sector
  replace   Write a copy of the image with files replaced

Examples:
  galtools cd dump original.cue ./output/
  galtools cd replace original.cue -o patched.cue SYSTEM.CNF=./SYSTEM.CNF`,
}

// cdDumpCmd extracts files from CD image files.
var cdDumpCmd = &cobra.Command{
	Use:   "dump [image_file] [output_directory]",
	Short: "Extract files from CD image files",
	Long: `Extract files from CD image files.

Extracted files keep the directory structure of the disc. With -v every
directory record is logged with its LBA and size.

Example:
  galtools cd dump original.bin ./output/
  galtools cd dump -v original.cue ./output/`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		img, err := psx.Open(args[0])
		if err != nil {
			return err
		}
		defer img.Close()

		count, err := img.Extract(afero.NewOsFs(), args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Extracted %d files to %s\n", count, args[1])
		return nil
	},
}

// cdLsCmd lists the files of an image.
var cdLsCmd = &cobra.Command{
	Use:   "ls [image_file]",
	Short: "List the files of a CD image",
	Long: `List the files of a CD image with their position on disc.

Columns: LBA, MSF (minutes:seconds:frames), size in bytes and path.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		img, err := psx.Open(args[0])
		if err != nil {
			return err
		}
		defer img.Close()

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(w, "LBA\tMSF\tSIZE\t")
		for _, entry := range img.Files() {
			fmt.Fprintf(w, "%d\t%s\t%d\t  %s\n", entry.LBA, entry.MSF, entry.Size, entry.Path)
		}
		return w.Flush()
	},
}

// cdLayoutCmd prints the sector regions of an image.
var cdLayoutCmd = &cobra.Command{
	Use:   "layout [image_file]",
	Short: "Show the sector layout of a CD image",
	Long: `Show how the sectors of a CD image are used.

Every sector of the volume belongs to one region: the system area, the
volume descriptors, a path table, a directory, a file or free space.
Free regions are where relocated files can go.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		img, err := psx.Open(args[0])
		if err != nil {
			return err
		}
		defer img.Close()

		var free uint32
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "START\tEND\tSECTORS\tKIND\tPATH")
		for _, region := range img.Layout() {
			if region.Kind == psx.RegionFree {
				free += region.Count
			}
			fmt.Fprintf(w, "%d\t%d\t%d\t%s\t%s\n",
				region.Start, region.End()-1, region.Count, region.Kind, region.Path)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d of %d sectors free\n", free, img.TotalSectors())
		return nil
	},
}

// cdVerifyCmd checks sector EDCs.
var cdVerifyCmd = &cobra.Command{
	Use:   "verify [image_file]",
	Short: "Check the EDC of every sector of a raw CD image",
	Long: `Check the error detection code of every sector of a raw CD image.

Cooked images carry no EDC. Form 2 sectors with an EDC of zero are
accepted. The path table is also checked against the directory records.
The command fails when any sector or path table entry is invalid.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		img, err := psx.Open(args[0])
		if err != nil {
			return err
		}
		defer img.Close()

		report, err := img.Verify()
		if err != nil {
			return err
		}
		common.LogInfo(common.InfoVerifySummary, report.Checked, len(report.Invalid))
		for _, problem := range report.PathTable {
			fmt.Fprintf(cmd.OutOrStdout(), "path table: %s\n", problem)
		}
		if len(report.Invalid) > 0 {
			return &common.ImageFormatError{
				Path:   args[0],
				Sector: report.Invalid[0],
				Reason: fmt.Sprintf("%d sectors with invalid EDC", len(report.Invalid)),
			}
		}
		if !report.OK() {
			return &common.ImageFormatError{
				Path:   args[0],
				Sector: -1,
				Reason: fmt.Sprintf("%d path table entries disagree with the directory records", len(report.PathTable)),
			}
		}
		return nil
	},
}

// cdReplaceCmd replaces files and writes a patched image.
var cdReplaceCmd = &cobra.Command{
	Use:   "replace [image_file] [disc_path=local_file]...",
	Short: "Replace files in a CD image",
	Long: `Replace files in a CD image and write the result.

Files that still fit their sectors are rewritten in place; larger files are
moved to free sectors and their directory records updated. Nothing is
written when the new files do not fit: the command fails with exit code 4
and reports the largest free extent.

The output is written to a temporary file and renamed over the target, so
--output may name the input image. With --dry-run only the placement is
printed.

Example:
  galtools cd replace original.cue -o patched.cue SYSTEM.CNF=./SYSTEM.CNF DATA/MSG.DAT=./MSG.DAT`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, err := cmd.Flags().GetString("output")
		if err != nil {
			return fmt.Errorf("error getting output flag: %w", err)
		}
		dryRun, err := cmd.Flags().GetBool("dry-run")
		if err != nil {
			return fmt.Errorf("error getting dry-run flag: %w", err)
		}
		if output == "" && !dryRun {
			return fmt.Errorf("--output is required unless --dry-run is given")
		}

		img, err := psx.Open(args[0])
		if err != nil {
			return err
		}
		defer img.Close()

		fs := afero.NewOsFs()
		for _, arg := range args[1:] {
			discPath, localFile, ok := strings.Cut(arg, "=")
			if !ok || discPath == "" || localFile == "" {
				return fmt.Errorf("invalid replacement %q, expected disc_path=local_file", arg)
			}
			data, err := afero.ReadFile(fs, localFile)
			if err != nil {
				return fmt.Errorf("%s %s: %w", common.ErrFailedToReadFile, localFile, err)
			}
			if err := img.ReplaceFile(discPath, data); err != nil {
				return fmt.Errorf("%s %s: %w", common.ErrFailedToReplaceFile, discPath, err)
			}
		}

		var report *psx.FlushReport
		if dryRun {
			report, err = img.Plan()
		} else {
			report, err = img.Flush(output)
		}
		if err != nil {
			return err
		}
		printWrites(cmd, report)
		return nil
	},
}

func printWrites(cmd *cobra.Command, report *psx.FlushReport) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PATH\tLBA\tSECTORS\tSIZE\tPLACEMENT")
	for _, write := range report.Writes {
		placement := "in place"
		if write.Relocated {
			placement = fmt.Sprintf("moved from %d", write.OldLBA)
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\n", write.Path, write.LBA, write.Sectors, write.Size, placement)
	}
	w.Flush()
}

// init initializes the CD command with its subcommands and flags.
func init() {
	rootCmd.AddCommand(cdCmd)

	cdCmd.AddCommand(cdDumpCmd)
	cdCmd.AddCommand(cdLsCmd)
	cdCmd.AddCommand(cdLayoutCmd)
	cdCmd.AddCommand(cdVerifyCmd)
	cdCmd.AddCommand(cdReplaceCmd)

	cdReplaceCmd.Flags().StringP("output", "o", "", "Patched image to write (.cue, .bin or .iso)")
	cdReplaceCmd.Flags().Bool("dry-run", false, "Print the placement without writing anything")
}
