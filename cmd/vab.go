// Package cmd provides command-line interface for VAB sound bank databases.
package cmd

import (
	"fmt"

	"github.com/hansbonini/galtools/pkg/archive"
	"github.com/hansbonini/galtools/pkg/archive/vab"
	"github.com/spf13/cobra"
)

// vabCmd represents the parent command for VAB database operations.
var vabCmd = &cobra.Command{
	Use:   "vab",
	Short: "Process VAB sound bank databases from Galerians PSX game",
	Long: `Process VAB sound bank databases (VDB/VDA) used in Galerians PSX game.

Each bank is split into its VH header, VB sample body and SEQ sequence
parts. Audio data is not decoded.

Commands:
  unpack    Extract the parts of every bank
  pack      Rebuild a database from extracted parts

Examples:
  galtools vab unpack SOUND.VDB ./sound/
  galtools vab pack --alternate ./sound/ SOUND.VDA`,
}

// vabPackCmd wraps the generic pack command so --alternate selects the VDA
// layout
var vabPackCmd = newPackCmd(vab.New(), "galtools vab pack --alternate ./sound/ SOUND.VDA")

func init() {
	rootCmd.AddCommand(vabCmd)

	vabCmd.AddCommand(newUnpackCmd(vab.New(), "galtools vab unpack SOUND.VDB ./sound/"))
	vabCmd.AddCommand(vabPackCmd)

	vabPackCmd.Flags().Bool("alternate", false, "Write the alternate (VDA) layout")
	vabPackCmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		alternate, err := cmd.Flags().GetBool("alternate")
		if err != nil {
			return fmt.Errorf("error getting alternate flag: %w", err)
		}
		if !alternate {
			return nil
		}
		if variant, _ := cmd.Flags().GetString("variant"); variant != "" && archive.Variant(variant) != vab.VDA {
			return fmt.Errorf("--alternate conflicts with --variant %s", variant)
		}
		return cmd.Flags().Set("variant", string(vab.VDA))
	}
}
