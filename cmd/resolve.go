package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"flacsweep/backend"
)

var (
	resolveDelete bool
	resolveYes    bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <file> <file>...",
	Short: "Keep the best quality copy of a duplicate group, set the rest aside",
	Long: `Resolve re-verifies that the given files duplicate each other, keeps the
best quality copy, and quarantines the others under the group's common
directory. Pass --delete to remove them instead; deletion also requires
--yes.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if resolveDelete && !resolveYes {
			return fmt.Errorf("--delete removes files permanently; confirm with --yes")
		}

		paths := make([]string, 0, len(args))
		for _, a := range args {
			abs, err := filepath.Abs(a)
			if err != nil {
				return fmt.Errorf("bad path %s: %w", a, err)
			}
			paths = append(paths, abs)
		}

		ctx, cancel := signalContext()
		defer cancel()

		scanner := backend.NewDuplicateScanner()
		group, err := scanner.RevalidateGroup(ctx, paths, backend.DuplicateScanOptions{
			DurationToleranceMs: cfg.DurationToleranceMs,
			WorkerCount:         cfg.WorkerCount,
		})
		if err != nil {
			return err
		}
		if group == nil {
			return fmt.Errorf("the given files are not duplicates of each other; nothing to resolve")
		}
		if group.BestQualityFile == "" {
			return fmt.Errorf("could not rank the group by quality")
		}

		var rest []string
		for _, f := range group.Files {
			if f != group.BestQualityFile {
				rest = append(rest, f)
			}
		}
		if len(rest) == 0 {
			fmt.Println("Nothing to do: the group only holds the best quality file.")
			return nil
		}

		root := commonDir(append([]string{group.BestQualityFile}, rest...))

		var summary backend.MutationSummary
		action := "Quarantined"
		if resolveDelete {
			summary = backend.DeleteFiles(root, rest)
			action = "Deleted"
		} else {
			summary = backend.MoveFilesToQuarantine(root, rest)
		}

		if flagJSON {
			return printJSON(struct {
				Kept    string                  `json:"kept"`
				Summary backend.MutationSummary `json:"summary"`
			}{group.BestQualityFile, summary})
		}

		fmt.Printf("Kept %s\n", group.BestQualityFile)
		if group.BestQualityReason != "" {
			fmt.Printf("    %s\n", group.BestQualityReason)
		}
		fmt.Printf("%s %d of %d files.\n", action, summary.Succeeded, len(rest))
		for _, r := range summary.Results {
			if r.Error != "" {
				fmt.Printf("  failed: %s: %s\n", r.Path, r.Error)
			} else if r.NewPath != "" {
				fmt.Printf("  %s -> %s\n", r.Path, r.NewPath)
			}
		}
		return nil
	},
}

func init() {
	resolveCmd.Flags().BoolVar(&resolveDelete, "delete", false, "delete the lesser copies instead of quarantining them")
	resolveCmd.Flags().BoolVarP(&resolveYes, "yes", "y", false, "confirm destructive actions")
	rootCmd.AddCommand(resolveCmd)
}

// commonDir returns the deepest directory containing every path. Paths must
// be absolute.
func commonDir(paths []string) string {
	dir := filepath.Dir(paths[0])
	for _, p := range paths[1:] {
		for dir != filepath.Dir(dir) && !strings.HasPrefix(p, dir+string(filepath.Separator)) {
			dir = filepath.Dir(dir)
		}
	}
	return dir
}
