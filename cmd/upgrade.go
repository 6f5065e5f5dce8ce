package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"flacsweep/backend"
)

var (
	upgradeLimit     int
	upgradeWorkers   int
	upgradeDelayMs   int
	upgradeRecursive bool
)

var upgradeCmd = &cobra.Command{
	Use:   "upgrade [root | file...]",
	Short: "Find lossless sources for lossy files via the streaming catalog",
	Long: `Upgrade matches each file's tags against the Spotify catalog and checks
song.link for services that carry the track losslessly. With no arguments
the configured library is scanned; a directory argument scans that folder;
file arguments check exactly those files.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		scanner := backend.NewQualityUpgradeScanner()
		scanner.SetTimeouts(
			time.Duration(cfg.SearchTimeoutSec)*time.Second,
			time.Duration(cfg.AvailabilityTimeoutSec)*time.Second)
		scanner.SetSearchLimit(cfg.SearchLimit)
		scanner.SetConcurrency(cfg.UpgradeConcurrency)
		scanner.SetSearchDelay(time.Duration(cfg.SearchDelayMs) * time.Millisecond)
		if upgradeLimit > 0 {
			scanner.SetSearchLimit(upgradeLimit)
		}
		if upgradeWorkers > 0 {
			scanner.SetConcurrency(upgradeWorkers)
		}
		if upgradeDelayMs > 0 {
			scanner.SetSearchDelay(time.Duration(upgradeDelayMs) * time.Millisecond)
		}
		if !flagJSON {
			scanner.Progress = func(p backend.ProgressUpdate) {
				fmt.Fprintf(os.Stderr, "\rChecking %d/%d files", p.Processed, p.Total)
			}
		}

		var (
			result *backend.QualityUpgradeBatchResult
			err    error
		)
		switch {
		case len(args) == 0:
			var root string
			root, err = resolveRoot(nil)
			if err != nil {
				return err
			}
			result, err = scanner.ScanFolder(ctx, root, upgradeRecursive)
		case len(args) == 1 && isDir(args[0]):
			result, err = scanner.ScanFolder(ctx, args[0], upgradeRecursive)
		default:
			result, err = scanner.ScanFiles(ctx, args)
		}
		if err != nil {
			return err
		}
		if !flagJSON && result.Total > 0 {
			fmt.Fprintln(os.Stderr)
		}
		if flagJSON {
			return printJSON(result)
		}
		printUpgradeResult(result)
		return nil
	},
}

func init() {
	upgradeCmd.Flags().IntVar(&upgradeLimit, "limit", 0, "catalog results fetched per query (default 5)")
	upgradeCmd.Flags().IntVar(&upgradeWorkers, "workers", 0, "files checked in parallel (default 4)")
	upgradeCmd.Flags().IntVar(&upgradeDelayMs, "delay", 0, "minimum milliseconds between catalog searches (default 250)")
	upgradeCmd.Flags().BoolVarP(&upgradeRecursive, "recursive", "r", true, "descend into subdirectories")
	rootCmd.AddCommand(upgradeCmd)
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func printUpgradeResult(result *backend.QualityUpgradeBatchResult) {
	if result.Stopped {
		fmt.Println("Scan interrupted; results cover the files processed so far.")
	}

	upgradable := 0
	for i, s := range result.Suggestions {
		fmt.Printf("\n[%d/%d] %s  (%s, %s)\n",
			i+1, result.Total, s.FilePath, s.CurrentFormat, humanSize(s.FileSize))
		if s.Error != "" {
			fmt.Printf("    %s\n", s.Error)
			continue
		}
		if s.Track != nil {
			fmt.Printf("    match: %s - %s  (%s confidence, %s)\n",
				s.Track.Artists, s.Track.Name, s.MatchConfidence, s.MatchPass)
		}
		if s.Availability.HasLosslessSource() {
			upgradable++
			fmt.Printf("    lossless on: %s\n", availableServices(s.Availability))
			if s.Availability.PageURL != "" {
				fmt.Printf("    %s\n", s.Availability.PageURL)
			}
		} else {
			fmt.Printf("    no lossless source found\n")
		}
	}

	fmt.Printf("\n%d of %d files have a lossless source.\n", upgradable, result.Processed)
}

func availableServices(a *backend.AvailabilityResult) string {
	var names []string
	for name, svc := range a.Services {
		if svc.Available {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
