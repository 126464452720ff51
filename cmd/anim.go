// Package cmd provides command-line interface for animation database files.
package cmd

import (
	"github.com/hansbonini/galtools/pkg/archive/animdb"
	"github.com/spf13/cobra"
)

// animCmd represents the parent command for animation database operations.
// Only the slot table is handled; animation data is kept as opaque entries.
var animCmd = &cobra.Command{
	Use:   "anim",
	Short: "Process animation database files from Galerians PSX game",
	Long: `Process animation database files used in Galerians PSX game.

Commands:
  unpack    Extract animation slots
  pack      Rebuild an animation database from extracted slots

Examples:
  galtools anim unpack PLAYER.ADB ./player/
  galtools anim pack ./player/ PLAYER_modified.ADB`,
}

func init() {
	rootCmd.AddCommand(animCmd)

	driver := animdb.New()
	animCmd.AddCommand(newUnpackCmd(driver, "galtools anim unpack --all PLAYER.ADB ./player/"))
	animCmd.AddCommand(newPackCmd(driver, "galtools anim pack ./player/ PLAYER.ADB"))
}
