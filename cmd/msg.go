// Package cmd provides command-line interface for message database files.
// Besides unpack/pack, messages can be exported to and imported from
// editable UTF-8 text.
package cmd

import (
	"fmt"
	"os"

	"github.com/hansbonini/galtools/pkg/archive"
	"github.com/hansbonini/galtools/pkg/archive/msgdb"
	"github.com/hansbonini/galtools/pkg/common"
	"github.com/spf13/cobra"
)

// msgCmd represents the parent command for message database operations.
var msgCmd = &cobra.Command{
	Use:   "msg",
	Short: "Process message databases from Galerians PSX game",
	Long: `Process message databases used in Galerians PSX game.

Two layouts exist: the indexed Latin tables of the western releases and
the terminator separated Japanese tables.

Commands:
  unpack    Extract every string as raw bytes
  pack      Rebuild a database from raw strings
  export    Write the strings as UTF-8 text, one per line
  import    Rebuild a database from exported text

Examples:
  galtools msg export MSG.DAT messages.txt
  galtools msg import --variant latin messages.txt MSG_modified.DAT`,
}

// msgExportCmd renders a message database as text.
var msgExportCmd = &cobra.Command{
	Use:   "export [input_file] [output_file]",
	Short: "Write the strings of a message database as text",
	Long: `Write the strings of a message database as UTF-8 text, one per line.

Control codes and characters without a printable form are written as
escapes, so importing the text restores the original bytes. Japanese
kanji are decoded with the page selected by --kanji.

Example:
  galtools msg export --kanji 0 MSG_J.DAT messages.txt`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		inputFile := args[0]
		outputFile := args[1]

		variant, page, err := msgFlags(cmd)
		if err != nil {
			return err
		}

		data, err := os.ReadFile(inputFile)
		if err != nil {
			return fmt.Errorf("%s %s: %w", common.ErrFailedToReadFile, inputFile, err)
		}
		entries, err := msgdb.New().Unpack(data, variant)
		if err != nil {
			return fmt.Errorf("%s %s: %w", common.ErrFailedToUnpack, inputFile, err)
		}
		if variant == "" {
			variant, _ = msgdb.New().Detect(data)
		}

		text, err := msgdb.ExportText(entries, variant, page)
		if err != nil {
			return err
		}
		if err := os.WriteFile(outputFile, text, 0644); err != nil {
			return fmt.Errorf("%s %s: %w", common.ErrFailedToWriteFile, outputFile, err)
		}

		common.LogInfo(common.InfoArchiveUnpacked, len(entries), msgdb.Name, variant, outputFile)
		return nil
	},
}

// msgImportCmd builds a message database from exported text.
var msgImportCmd = &cobra.Command{
	Use:   "import [input_file] [output_file]",
	Short: "Create a message database from exported text",
	Long: `Create a message database from text written by export.

The layout cannot be detected from text, so --variant defaults to latin.

Example:
  galtools msg import --variant japanese messages.txt MSG_J.DAT`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		inputFile := args[0]
		outputFile := args[1]

		variant, page, err := msgFlags(cmd)
		if err != nil {
			return err
		}
		if variant == "" {
			variant = msgdb.Latin
		}

		text, err := os.ReadFile(inputFile)
		if err != nil {
			return fmt.Errorf("%s %s: %w", common.ErrFailedToReadFile, inputFile, err)
		}
		entries, err := msgdb.ImportText(text, variant, page)
		if err != nil {
			return err
		}

		opts := archive.DefaultOptions()
		opts.Variant = variant
		data, err := msgdb.New().Pack(entries, opts)
		if err != nil {
			return fmt.Errorf("%s: %w", common.ErrFailedToPack, err)
		}
		if err := os.WriteFile(outputFile, data, 0644); err != nil {
			return fmt.Errorf("%s %s: %w", common.ErrFailedToWriteFile, outputFile, err)
		}

		common.LogInfo(common.InfoArchivePacked, len(entries), msgdb.Name, variant, outputFile, len(data))
		return nil
	},
}

func msgFlags(cmd *cobra.Command) (archive.Variant, int, error) {
	variant, err := cmd.Flags().GetString("variant")
	if err != nil {
		return "", 0, fmt.Errorf("error getting variant flag: %w", err)
	}
	page, err := cmd.Flags().GetInt("kanji")
	if err != nil {
		return "", 0, fmt.Errorf("error getting kanji flag: %w", err)
	}
	return archive.Variant(variant), page, nil
}

func init() {
	rootCmd.AddCommand(msgCmd)

	driver := msgdb.New()
	msgCmd.AddCommand(newUnpackCmd(driver, "galtools msg unpack MSG.DAT ./msg/"))
	msgCmd.AddCommand(newPackCmd(driver, "galtools msg pack --variant japanese ./msg/ MSG_J.DAT"))
	msgCmd.AddCommand(msgExportCmd)
	msgCmd.AddCommand(msgImportCmd)

	for _, c := range []*cobra.Command{msgExportCmd, msgImportCmd} {
		c.Flags().String("variant", "", "Message layout: latin or japanese")
		c.Flags().Int("kanji", 0, "Kanji page used for Japanese text")
	}
}
