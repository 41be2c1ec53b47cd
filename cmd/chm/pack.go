package main

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	chm "github.com/ahrav/go-chm"
	"github.com/ahrav/go-chm/internal/sitemap"
)

var (
	packOut      string
	packWindow   uint32
	packInterval uint32
	packStore    bool
	packSitemap  bool
	packInclude  []string
	packExclude  []string
)

var packCmd = &cobra.Command{
	Use:   "pack <dir>",
	Short: "Pack a directory tree into a new archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := collectEntries(args[0])
		if err != nil {
			return err
		}
		if packSitemap {
			names := make([]string, len(entries))
			for i, e := range entries {
				names[i] = e.Name
			}
			sort.Strings(names)
			toc, err := sitemap.Contents(names)
			if err != nil {
				return err
			}
			idx, err := sitemap.Index(names)
			if err != nil {
				return err
			}
			entries = append(entries,
				chm.PackEntry{Name: "/toc.hhc", Data: toc},
				chm.PackEntry{Name: "/index.hhk", Data: idx},
			)
		}

		out, err := os.Create(packOut)
		if err != nil {
			return err
		}
		opts := &chm.Options{
			WindowSize:         packWindow,
			ResetInterval:      packInterval,
			DisableCompression: packStore,
			Timestamp:          uint32(time.Now().Unix()),
		}
		if err := chm.Pack(entries, out, opts); err != nil {
			out.Close()
			return err
		}
		if err := out.Close(); err != nil {
			return err
		}
		slog.Info("packed", "entries", len(entries), "archive", packOut)
		return nil
	},
}

// collectEntries walks dir and loads every regular file that passes the
// include/exclude globs, keyed by its slash-separated relative path.
func collectEntries(dir string) ([]chm.PackEntry, error) {
	var entries []chm.PackEntry
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		ok, err := selected(name)
		if err != nil {
			return err
		}
		if !ok {
			slog.Debug("skipped", "name", name)
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		entries = append(entries, chm.PackEntry{Name: "/" + name, Data: data})
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no files selected under %s", dir)
	}
	return entries, nil
}

func selected(name string) (bool, error) {
	if len(packInclude) > 0 {
		matched := false
		for _, g := range packInclude {
			ok, err := doublestar.Match(g, name)
			if err != nil {
				return false, fmt.Errorf("include glob %q: %w", g, err)
			}
			if ok {
				matched = true
				break
			}
		}
		if !matched {
			return false, nil
		}
	}
	for _, g := range packExclude {
		ok, err := doublestar.Match(g, name)
		if err != nil {
			return false, fmt.Errorf("exclude glob %q: %w", g, err)
		}
		if ok {
			return false, nil
		}
	}
	return true, nil
}

func init() {
	packCmd.Flags().StringVarP(&packOut, "output", "o", "out.chm", "output archive path")
	packCmd.Flags().Uint32Var(&packWindow, "window", 0, "LZX window size (default 0x10000)")
	packCmd.Flags().Uint32Var(&packInterval, "reset-interval", 0, "LZX reset interval (default 0x8000)")
	packCmd.Flags().BoolVar(&packStore, "store", false, "store entries uncompressed")
	packCmd.Flags().BoolVar(&packSitemap, "sitemap", false, "generate toc.hhc and index.hhk")
	packCmd.Flags().StringSliceVar(&packInclude, "include", nil, "include only paths matching these globs")
	packCmd.Flags().StringSliceVar(&packExclude, "exclude", nil, "exclude paths matching these globs")
	rootCmd.AddCommand(packCmd)
}
