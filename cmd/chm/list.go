package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	chm "github.com/ahrav/go-chm"
)

var listLong bool

var listCmd = &cobra.Command{
	Use:   "list <archive>",
	Short: "List the entries of an archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := chm.OpenFile(args[0], nil)
		if err != nil {
			return err
		}
		defer a.Close()

		for _, name := range a.List() {
			if !listLong {
				fmt.Fprintln(os.Stdout, name)
				continue
			}
			fi, err := a.Stat(name)
			if err != nil {
				return err
			}
			kind := "store"
			if fi.Compressed {
				kind = "lzx"
			}
			fmt.Fprintf(os.Stdout, "%10d  %-5s  %s\n", fi.Length, kind, name)
		}
		return nil
	},
}

var statCmd = &cobra.Command{
	Use:   "stat <archive> <name>",
	Short: "Show metadata for one entry",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := chm.OpenFile(args[0], nil)
		if err != nil {
			return err
		}
		defer a.Close()

		fi, err := a.Stat(args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "name:       %s\n", fi.Name)
		fmt.Fprintf(os.Stdout, "length:     %d\n", fi.Length)
		fmt.Fprintf(os.Stdout, "section:    %d\n", fi.Section)
		fmt.Fprintf(os.Stdout, "compressed: %t\n", fi.Compressed)
		return nil
	},
}

func init() {
	listCmd.Flags().BoolVarP(&listLong, "long", "l", false, "show sizes and storage kind")
	rootCmd.AddCommand(listCmd, statCmd)
}
