package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"flacsweep/backend"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the per-root scan cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats [root]",
	Short: "Show cache size and entry count for a root",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := resolveRoot(args)
		if err != nil {
			return err
		}
		cache, err := backend.OpenScanCache(root)
		if err != nil {
			return err
		}

		stats := struct {
			Root      string `json:"root"`
			Path      string `json:"path"`
			Entries   int    `json:"entries"`
			SizeBytes int64  `json:"size_bytes"`
			SavedAt   string `json:"saved_at,omitempty"`
		}{Root: root, Path: cache.Path(), Entries: cache.Len()}
		if info, err := os.Stat(cache.Path()); err == nil {
			stats.SizeBytes = info.Size()
			stats.SavedAt = info.ModTime().Format(time.RFC3339)
		}

		if flagJSON {
			return printJSON(stats)
		}
		fmt.Printf("Cache for %s\n", root)
		fmt.Printf("  file:    %s\n", stats.Path)
		fmt.Printf("  entries: %d\n", stats.Entries)
		if stats.SizeBytes > 0 {
			fmt.Printf("  size:    %s (written %s)\n", humanSize(stats.SizeBytes), stats.SavedAt)
		} else {
			fmt.Printf("  size:    not persisted yet\n")
		}
		return nil
	},
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune [root]",
	Short: "Drop cache entries whose files no longer exist",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := resolveRoot(args)
		if err != nil {
			return err
		}
		removed, err := backend.PruneScanCache(root)
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(map[string]int{"removed": removed})
		}
		fmt.Printf("Pruned %d stale entries.\n", removed)
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear [root]",
	Short: "Delete the cache for a root entirely",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := resolveRoot(args)
		if err != nil {
			return err
		}
		if err := backend.ClearScanCache(root); err != nil {
			return err
		}
		if flagJSON {
			return printJSON(map[string]bool{"cleared": true})
		}
		fmt.Println("Cache cleared.")
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cachePruneCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}
