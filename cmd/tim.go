// Package cmd provides command-line interface for TIM images and TIM
// databases used in the Galerians PlayStation game.
package cmd

import (
	"fmt"

	"github.com/hansbonini/galtools/pkg/archive/timdb"
	"github.com/hansbonini/galtools/pkg/tim"
	"github.com/spf13/cobra"
)

// timCmd represents the parent command for TIM operations.
var timCmd = &cobra.Command{
	Use:   "tim",
	Short: "Process TIM images and TIM databases from Galerians PSX game",
	Long: `Process TIM images and TIM databases used in Galerians PSX game.

Commands:
  unpack    Extract the images of a TIM database (TDB, TDA, TDC, TMC, TMM)
  pack      Create a TIM database from extracted images
  export    Convert a single TIM image to PNG
  import    Convert a PNG to a 16bpp TIM image

Examples:
  galtools tim unpack ITEM.TDB ./item/
  galtools tim pack ./item/ ITEM_modified.TDB
  galtools tim export ./item/000.TIM item.png`,
}

// timExportCmd converts a TIM image to PNG.
var timExportCmd = &cobra.Command{
	Use:   "export [input_file] [output_file]",
	Short: "Convert a TIM image to PNG",
	Long: `Convert a TIM image to PNG.

Indexed images are drawn with the palette selected by --clut. The alpha
channel follows the PlayStation rules: colour 0 is transparent and the
STP bit marks semi-transparent colours.

Example:
  galtools tim export --clut 1 000.TIM 000.png`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		clut, err := cmd.Flags().GetInt("clut")
		if err != nil {
			return fmt.Errorf("error getting clut flag: %w", err)
		}
		return tim.NewProcessor().ExportPNG(args[0], args[1], clut)
	},
}

// timImportCmd converts a PNG to a 16bpp TIM image.
var timImportCmd = &cobra.Command{
	Use:   "import [input_file] [output_file]",
	Short: "Convert a PNG to a 16bpp TIM image",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return tim.NewProcessor().ImportPNG(args[0], args[1])
	},
}

func init() {
	rootCmd.AddCommand(timCmd)

	driver := timdb.New()
	timCmd.AddCommand(newUnpackCmd(driver, "galtools tim unpack --variant tdc ITEM.TDC ./item/"))
	timCmd.AddCommand(newPackCmd(driver, "galtools tim pack ./item/ ITEM.TDB"))
	timCmd.AddCommand(timExportCmd)
	timCmd.AddCommand(timImportCmd)

	timExportCmd.Flags().Int("clut", 0, "Palette to use for indexed images")
}
