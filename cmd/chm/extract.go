package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	chm "github.com/ahrav/go-chm"
)

var extractOut string

var extractCmd = &cobra.Command{
	Use:   "extract <archive> [name...]",
	Short: "Extract entries to a directory (all entries when no names given)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := chm.OpenFile(args[0], &chm.Options{IntervalCacheSize: 16})
		if err != nil {
			return err
		}
		defer a.Close()

		names := args[1:]
		if len(names) == 0 {
			names = a.List()
		}
		for _, name := range names {
			data, err := a.ExtractContext(cmd.Context(), name)
			if err != nil {
				return err
			}
			dst := filepath.Join(extractOut, filepath.FromSlash(strings.TrimPrefix(name, "/")))
			if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(dst, data, 0o644); err != nil {
				return err
			}
			slog.Info("extracted", "name", name, "bytes", len(data), "to", dst)
		}
		return nil
	},
}

func init() {
	extractCmd.Flags().StringVarP(&extractOut, "output", "o", ".", "output directory")
	rootCmd.AddCommand(extractCmd)
}
