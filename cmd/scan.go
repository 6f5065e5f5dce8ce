package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"flacsweep/backend"
)

var (
	scanRecursive        bool
	scanUseHash          bool
	scanUseFingerprint   bool
	scanFilenameFallback bool
	scanIgnoreDuration   bool
	scanFuzzy            bool
	scanToleranceMs      int
	scanWorkers          int
)

var scanCmd = &cobra.Command{
	Use:   "scan [root]",
	Short: "Find duplicate audio files under a library root",
	Long: `Scan groups audio files that appear to be the same recording: matching
title and artist within a duration tolerance, optionally backed by content
hashing and acoustic fingerprinting. Each group is ranked so the best
quality copy is identified.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := resolveRoot(args)
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()

		opts := backend.DuplicateScanOptions{
			UseExactHash:        scanUseHash,
			DurationToleranceMs: cfg.DurationToleranceMs,
			UseFilenameFallback: scanFilenameFallback,
			IgnoreDuration:      scanIgnoreDuration,
			UseFingerprint:      scanUseFingerprint,
			UseFuzzyMatching:    scanFuzzy,
			Recursive:           scanRecursive,
			WorkerCount:         cfg.WorkerCount,
			BatchSize:           cfg.ScanBatchSize,
		}
		if scanToleranceMs > 0 {
			opts.DurationToleranceMs = scanToleranceMs
		}
		if scanWorkers > 0 {
			opts.WorkerCount = scanWorkers
		}

		scanner := backend.NewDuplicateScanner()
		if !flagJSON {
			scanner.Progress = func(p backend.ProgressUpdate) {
				fmt.Fprintf(os.Stderr, "\rScanning %d/%d files", p.Processed, p.Total)
			}
		}

		result, err := scanner.FindDuplicates(ctx, root, opts)
		if err != nil {
			return err
		}
		if !flagJSON && result.FilesScanned > 0 {
			fmt.Fprintln(os.Stderr)
		}
		if flagJSON {
			return printJSON(result)
		}
		printScanResult(result)
		return nil
	},
}

func init() {
	scanCmd.Flags().BoolVarP(&scanRecursive, "recursive", "r", true, "descend into subdirectories")
	scanCmd.Flags().BoolVar(&scanUseHash, "hash", false, "also group bit-identical files by content hash")
	scanCmd.Flags().BoolVar(&scanUseFingerprint, "fingerprint", false, "also group by acoustic fingerprint (needs fpcalc)")
	scanCmd.Flags().BoolVar(&scanFilenameFallback, "filename-fallback", false, "derive identity from file names when tags are missing")
	scanCmd.Flags().BoolVar(&scanIgnoreDuration, "ignore-duration", false, "group by title and artist only")
	scanCmd.Flags().BoolVar(&scanFuzzy, "fuzzy", false, "merge groups whose identities are near-identical")
	scanCmd.Flags().IntVar(&scanToleranceMs, "tolerance-ms", 0, "duration bucket width in milliseconds (default 3000)")
	scanCmd.Flags().IntVar(&scanWorkers, "workers", 0, "metadata reader goroutines (default from config)")
	rootCmd.AddCommand(scanCmd)
}

func printScanResult(result *backend.DuplicateScanResult) {
	if result.Stopped {
		fmt.Println("Scan interrupted; results cover the files processed so far.")
	}
	fmt.Printf("Scanned %d files (%d cache hits), %d duplicate groups.\n",
		result.FilesScanned, result.CacheHits, len(result.Groups))

	for i, g := range result.Groups {
		label := g.Title
		if g.Artist != "" && g.Artist != backend.UnknownArtist {
			label = fmt.Sprintf("%s - %s", g.Artist, g.Title)
		}
		fmt.Printf("\n[%d] %s\n", i+1, label)
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

	if len(result.Errors) > 0 {
		fmt.Printf("\n%d files could not be read:\n", len(result.Errors))
		for _, e := range result.Errors {
			fmt.Printf("  %s\n", e)
		}
	}
}
