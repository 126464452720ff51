// Package cmd provides command-line interface for CDB file processing.
// CDB files are the generic sector-aligned containers found all over the
// Galerians disc.
package cmd

import (
	"github.com/hansbonini/galtools/pkg/archive/cdb"
	"github.com/spf13/cobra"
)

// cdbCmd represents the parent command for all CDB file operations.
var cdbCmd = &cobra.Command{
	Use:   "cdb",
	Short: "Process CDB container files from Galerians PSX game",
	Long: `Process CDB container files used in Galerians PSX game.

Commands:
  unpack    Extract entries from CDB files
  pack      Create CDB files from extracted entries

Examples:
  galtools cdb unpack ROOM.CDB ./room/
  galtools cdb pack ./room/ ROOM_modified.CDB`,
}

// init initializes the CDB command and its subcommands.
func init() {
	rootCmd.AddCommand(cdbCmd)

	driver := cdb.New()
	cdbCmd.AddCommand(newUnpackCmd(driver, "galtools cdb unpack --all ROOM.CDB ./room/"))
	cdbCmd.AddCommand(newPackCmd(driver, "galtools cdb pack --variant extended ./room/ ROOM.CDB"))
}
