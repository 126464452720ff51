// Package cmd provides command-line interface functionality for GalTools.
// GalTools is a collection of utilities for extracting and modifying
// game files from Galerians for PlayStation.
package cmd

import (
	"io"
	"os"

	"github.com/hansbonini/galtools/pkg/common"
	"github.com/hansbonini/galtools/pkg/config"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var (
	// v resolves settings from defaults, config file, environment and flags
	v = config.New(afero.NewOsFs())
	// settings is loaded before any command runs
	settings = &config.Config{}
	logFile  io.Closer
)

// rootCmd represents the base command when called without any subcommands.
// It provides the main entry point for the GalTools application.
var rootCmd = &cobra.Command{
	Use:   "galtools",
	Short: "Tools for modding Galerians PSX game files",
	Long: `GalTools - A collection of utilities for extracting and modifying
game files from Galerians for PlayStation.

Currently supports:
  - CDB, TIM DB, VAB DB, animation and message databases (unpack/pack)
  - Dictionary and LZ compressed data (compress/decompress)
  - TIM images (export/import PNG)
  - CD images (dump, list, layout, verify, replace files)
  - Patch projects (create a working tree, export a patched image)

Examples:
  galtools sniff DATA/*.CDB
  galtools cdb unpack ROOM.CDB ./room/
  galtools cdb pack ./room/ ROOM_modified.CDB
  galtools cd dump original.cue ./output/
  galtools project create original.cue ./work/
  galtools project export ./work/ patched.cue

Use 'galtools [command] --help' for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.BindFlags(v, cmd.Flags()); err != nil {
			return err
		}
		cfgFile, err := cmd.Flags().GetString("config")
		if err != nil {
			return err
		}
		cfg, err := config.Load(v, cfgFile)
		if err != nil {
			return err
		}
		settings = cfg

		common.SetVerboseMode(cfg.Verbose)
		logFile = common.SetLogFile(cfg.LogFile, common.DefaultLogFileOptions())
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main() and serves as the entry point for command execution.
// The process exit code reflects the kind of error returned.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		common.LogError("%v", err)
	}
	if logFile != nil {
		logFile.Close()
	}
	os.Exit(common.ExitCode(err))
}

// init initializes the root command with the global flags.
func init() {
	flags := rootCmd.PersistentFlags()
	flags.BoolP("verbose", "v", false, "Enable verbose output (show debug messages)")
	flags.String("config", "", "Config file (default $HOME/.galtools.yaml)")
	flags.String("log-file", "", "Also write log output to this file, rotated by size")
}
