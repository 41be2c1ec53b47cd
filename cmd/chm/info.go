package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	chm "github.com/ahrav/go-chm"
)

var infoCmd = &cobra.Command{
	Use:   "info <archive>",
	Short: "Show archive statistics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := chm.OpenFile(args[0], nil)
		if err != nil {
			return err
		}
		defer a.Close()

		s := a.Info()
		fmt.Fprintf(os.Stdout, "files:              %d\n", s.FileCount)
		fmt.Fprintf(os.Stdout, "total uncompressed: %d\n", s.TotalUncompressed)
		fmt.Fprintf(os.Stdout, "total compressed:   %d\n", s.TotalCompressed)
		fmt.Fprintf(os.Stdout, "ratio:              %.3f\n", s.Ratio)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
