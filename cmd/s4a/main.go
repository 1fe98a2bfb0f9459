// Command s4a archives a directory tree into a single seekable archive
// file and restores entries from it. Each contained file is compressed
// individually, so any subset can be extracted without scanning the
// whole archive.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/s4a/s4a/internal/archive"
	"github.com/s4a/s4a/internal/codec"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	root := &cobra.Command{
		Use:           "s4a",
		Short:         "Seekable archive tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newCompressCmd(), newDecompressCmd(), newMuxCmd(), newDemuxCmd())

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func newCompressCmd() *cobra.Command {
	var (
		cfg         archive.Config
		compression string
	)
	cmd := &cobra.Command{
		Use:   "compress",
		Short: "Archive a directory tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch compression {
			case string(codec.LZMA), string(codec.LZ4):
				cfg.Codec = codec.Codec(compression)
			default:
				return fmt.Errorf("unknown compression %q, expecting LZMA or LZ4", compression)
			}
			return archive.CompressDirectory(cfg)
		},
	}
	cmd.Flags().StringVarP(&cfg.SourceDir, "input-path", "i", "", "directory to archive")
	cmd.Flags().StringVarP(&cfg.OutputPath, "output-path", "o", "", "archive output path (.s4a)")
	cmd.Flags().IntVarP(&cfg.Workers, "thread-count", "t", 1, "files to compress in parallel")
	cmd.Flags().StringVarP(&compression, "compression", "c", string(codec.LZ4), "entry codec: LZMA or LZ4")
	cmd.Flags().BoolVar(&cfg.Mux, "mux", false, "bind index and blob into the final archive")
	cmd.Flags().Int64Var(&cfg.MaxInMemorySize, "max-in-mem-file-size", 4<<20,
		"largest file compressed fully in memory, in bytes")
	cmd.Flags().IntVar(&cfg.WriteBufferSize, "write-buffer-size", 128<<10,
		"blob writer buffer size in bytes")
	cmd.Flags().BoolVarP(&cfg.Verbose, "verbose", "v", false, "periodic progress output")
	cmd.MarkFlagRequired("input-path")
	cmd.MarkFlagRequired("output-path")
	return cmd
}

func newDecompressCmd() *cobra.Command {
	var inputPath, outputPath, pattern string
	cmd := &cobra.Command{
		Use:   "decompress",
		Short: "Extract entries from an archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			reader, err := openReader(inputPath)
			if err != nil {
				return err
			}
			return reader.ExtractMatching(pattern, outputPath)
		},
	}
	cmd.Flags().StringVarP(&inputPath, "input-path", "i", "", "archive (.s4a) or index (.s4a.db) to read")
	cmd.Flags().StringVarP(&outputPath, "output-path", "o", "", "directory to extract into")
	cmd.Flags().StringVarP(&pattern, "pattern", "p", "", "extract only entries matching this regex")
	cmd.MarkFlagRequired("input-path")
	cmd.MarkFlagRequired("output-path")
	return cmd
}

func newMuxCmd() *cobra.Command {
	var inputPath string
	cmd := &cobra.Command{
		Use:   "mux",
		Short: "Bind an unmuxed index/blob pair into an archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			return archive.Mux(inputPath)
		},
	}
	cmd.Flags().StringVarP(&inputPath, "input-path", "i", "", "index (.db) with its sibling .blob")
	cmd.MarkFlagRequired("input-path")
	return cmd
}

func newDemuxCmd() *cobra.Command {
	var inputPath string
	cmd := &cobra.Command{
		Use:   "demux",
		Short: "Split an archive back into its index/blob pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			return archive.Demux(inputPath)
		},
	}
	cmd.Flags().StringVarP(&inputPath, "input-path", "i", "", "archive (.s4a) to split")
	cmd.MarkFlagRequired("input-path")
	return cmd
}

// openReader picks the reader entry point from the file extension: a
// muxed .s4a archive or the .db half of an unmuxed pair.
func openReader(inputPath string) (*archive.Reader, error) {
	switch {
	case strings.HasSuffix(inputPath, ".db"):
		return archive.OpenUnmuxed(inputPath)
	case strings.HasSuffix(inputPath, ".s4a"):
		return archive.Open(inputPath)
	default:
		return nil, fmt.Errorf("unknown file extension on %s, expecting .s4a or .s4a.db", inputPath)
	}
}
