package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"flacsweep/backend"
)

var (
	verifyHash             bool
	verifyFilenameFallback bool
	verifyIgnoreDuration   bool
	verifyToleranceMs      int
)

var verifyCmd = &cobra.Command{
	Use:   "verify <file> <file>...",
	Short: "Re-check whether the given files still duplicate each other",
	Long: `Verify re-reads the given files from disk and reports the group that
still matches, if any. Run it after editing tags or replacing files to
confirm a duplicate group before acting on it.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		opts := backend.DuplicateScanOptions{
			UseExactHash:        verifyHash,
			DurationToleranceMs: cfg.DurationToleranceMs,
			UseFilenameFallback: verifyFilenameFallback,
			IgnoreDuration:      verifyIgnoreDuration,
			WorkerCount:         cfg.WorkerCount,
		}
		if verifyToleranceMs > 0 {
			opts.DurationToleranceMs = verifyToleranceMs
		}

		scanner := backend.NewDuplicateScanner()
		group, err := scanner.RevalidateGroup(ctx, args, opts)
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(group)
		}
		if group == nil {
			fmt.Println("No duplicates: the given files no longer match each other.")
			return nil
		}
		printGroup(group)
		return nil
	},
}

func init() {
	verifyCmd.Flags().BoolVar(&verifyHash, "hash", false, "also compare content hashes")
	verifyCmd.Flags().BoolVar(&verifyFilenameFallback, "filename-fallback", false, "derive identity from file names when tags are missing")
	verifyCmd.Flags().BoolVar(&verifyIgnoreDuration, "ignore-duration", false, "match on title and artist only")
	verifyCmd.Flags().IntVar(&verifyToleranceMs, "tolerance-ms", 0, "duration bucket width in milliseconds (default 3000)")
	rootCmd.AddCommand(verifyCmd)
}

func printGroup(g *backend.DuplicateGroup) {
	label := g.Title
	if g.Artist != "" && g.Artist != backend.UnknownArtist {
		label = fmt.Sprintf("%s - %s", g.Artist, g.Title)
	}
	fmt.Printf("%s\n", label)
	fmt.Printf("    %d files, %s total, method %s\n",
		len(g.Files), humanSize(g.TotalSize), g.GroupMethod)
	for _, d := range g.FileDetails {
		marker := " "
		if d.Path == g.BestQualityFile {
			marker = "*"
		}
		fmt.Printf("  %s %-5s %9s  %s\n", marker, d.Format, humanSize(d.Size), d.Path)
	}
	if g.BestQualityReason != "" {
		fmt.Printf("    best: %s\n", g.BestQualityReason)
	}
}
