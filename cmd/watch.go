package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"flacsweep/backend"
)

var watchCmd = &cobra.Command{
	Use:   "watch [root]",
	Short: "Keep the scan cache honest while files change",
	Long: `Watch holds the library root open and invalidates scan cache entries as
audio files are written, renamed or removed, so the next scan only re-reads
what actually changed. Runs until interrupted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := resolveRoot(args)
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()

		fmt.Printf("Watching %s (Ctrl-C to stop)\n", root)
		return backend.WatchLibrary(ctx, root, func(paths []string) {
			if flagJSON {
				return
			}
			for _, p := range paths {
				fmt.Printf("  changed: %s\n", p)
			}
		})
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
