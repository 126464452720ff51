// Package cmd provides command-line interface for the game's compression
// codecs.
package cmd

import (
	"fmt"
	"strings"

	"github.com/hansbonini/galtools/pkg/compress"
	"github.com/spf13/cobra"
)

// codecCmd represents the parent command for compression operations.
var codecCmd = &cobra.Command{
	Use:   "codec",
	Short: "Compress and decompress Galerians PSX game data",
	Long: `Compress and decompress data with the codecs used in Galerians PSX game.

Methods:
  dictionary    Growing dictionary codec used by TIM sequences (default)
  lz            Sliding-window LZ codec

Examples:
  galtools codec decompress ROOM.BIN ROOM.RAW
  galtools codec compress --method lz ROOM.RAW ROOM.BIN`,
}

var codecCompressCmd = &cobra.Command{
	Use:   "compress [input_file] [output_file]",
	Short: "Compress a file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		processor, err := codecProcessor(cmd)
		if err != nil {
			return err
		}
		return processor.CompressFile(args[0], args[1])
	},
}

var codecDecompressCmd = &cobra.Command{
	Use:   "decompress [input_file] [output_file]",
	Short: "Decompress a file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		processor, err := codecProcessor(cmd)
		if err != nil {
			return err
		}
		return processor.DecompressFile(args[0], args[1])
	},
}

func codecProcessor(cmd *cobra.Command) (*compress.Processor, error) {
	method, err := cmd.Flags().GetString("method")
	if err != nil {
		return nil, fmt.Errorf("error getting method flag: %w", err)
	}
	return compress.NewProcessor(method)
}

func init() {
	rootCmd.AddCommand(codecCmd)

	codecCmd.AddCommand(codecCompressCmd)
	codecCmd.AddCommand(codecDecompressCmd)

	usage := fmt.Sprintf("Compression method: %s", strings.Join(compress.Names(), ", "))
	codecCompressCmd.Flags().String("method", "dictionary", usage)
	codecDecompressCmd.Flags().String("method", "dictionary", usage)
}
