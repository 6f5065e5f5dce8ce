package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"flacsweep/backend"
)

var (
	organizeTemplate   string
	organizeNameFormat string
	organizeRecursive  bool
)

var organizeCmd = &cobra.Command{
	Use:   "organize",
	Short: "Lay out the library from metadata using a folder template",
}

var organizePreviewCmd = &cobra.Command{
	Use:   "preview [root]",
	Short: "Show where files would move without touching disk",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := resolveRoot(args)
		if err != nil {
			return err
		}
		plan, err := newOrganizePlan(root)
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(plan)
		}
		printOrganizePlan(plan)
		return nil
	},
}

var organizeRunCmd = &cobra.Command{
	Use:   "run [root]",
	Short: "Move files into the template layout",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := resolveRoot(args)
		if err != nil {
			return err
		}
		plan, err := newOrganizePlan(root)
		if err != nil {
			return err
		}
		result, err := backend.NewOrganizer().Execute(root, plan.Items)
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(result)
		}
		fmt.Printf("Moved %d files (%d skipped, %d failed), created %d folders, removed %d empty folders.\n",
			result.Succeeded, result.Skipped, result.Failed,
			result.FoldersCreated, result.FoldersRemoved)
		for _, m := range result.Moves {
			if m.Error != "" {
				fmt.Printf("  failed: %s: %s\n", m.SourcePath, m.Error)
			}
		}
		return nil
	},
}

var organizeAnalyzeCmd = &cobra.Command{
	Use:   "analyze [root]",
	Short: "Report how the library is currently laid out",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := resolveRoot(args)
		if err != nil {
			return err
		}
		analysis, err := backend.NewOrganizer().Analyze(root)
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(analysis)
		}
		fmt.Printf("%d files, %d artists, %d albums\n",
			analysis.TotalFiles, analysis.UniqueArtists, analysis.UniqueAlbums)
		fmt.Printf("  %d files sit directly in the root\n", len(analysis.OrphanedFiles))
		fmt.Printf("  %d files have no readable metadata\n", len(analysis.MissingMetadata))
		fmt.Printf("  %d files live in folders matching neither artist nor album\n",
			len(analysis.InconsistentPath))
		return nil
	},
}

var organizePresetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List the built-in folder templates",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		presets := backend.GetFolderStructurePresets()
		if flagJSON {
			return printJSON(presets)
		}
		for _, p := range presets {
			fmt.Printf("%-24s %-32s %s\n", p.ID, p.Template, p.Description)
		}
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{organizePreviewCmd, organizeRunCmd} {
		c.Flags().StringVarP(&organizeTemplate, "template", "t", "{artist}/{album}",
			"folder template, e.g. \"{artist}/{album} ({year})\"")
		c.Flags().StringVar(&organizeNameFormat, "filename-format", "",
			"also rename files, e.g. \"{track}. {title}\"")
		c.Flags().BoolVarP(&organizeRecursive, "recursive", "r", true,
			"descend into subdirectories")
	}
	organizeCmd.AddCommand(organizePreviewCmd)
	organizeCmd.AddCommand(organizeRunCmd)
	organizeCmd.AddCommand(organizeAnalyzeCmd)
	organizeCmd.AddCommand(organizePresetsCmd)
	rootCmd.AddCommand(organizeCmd)
}

func newOrganizePlan(root string) (*backend.OrganizePlan, error) {
	return backend.NewOrganizer().Preview(root, backend.OrganizeOptions{
		Template:       organizeTemplate,
		FileNameFormat: organizeNameFormat,
		Recursive:      organizeRecursive,
	})
}

func printOrganizePlan(plan *backend.OrganizePlan) {
	fmt.Printf("%d files: %d would move, %d conflicts, %d unchanged, %d missing metadata, %d errors\n",
		plan.TotalFiles, plan.WillMove, plan.Conflicts, plan.Unchanged, plan.Skipped, plan.Errors)
	for _, item := range plan.Items {
		switch item.Status {
		case backend.OrganizeWillMove:
			fmt.Printf("  %s\n    -> %s\n", item.SourcePath, item.DestinationPath)
		case backend.OrganizeConflict:
			fmt.Printf("  conflict: %s\n    with %s\n", item.SourcePath, item.ConflictWith)
		case backend.OrganizeMissingMetadata:
			fmt.Printf("  skipped (metadata): %s\n", item.SourcePath)
		case backend.OrganizeError:
			fmt.Printf("  error: %s: %s\n", item.SourcePath, item.Error)
		}
	}
	if len(plan.FoldersToCreate) > 0 {
		fmt.Printf("Folders to create:\n")
		for _, f := range plan.FoldersToCreate {
			fmt.Printf("  %s\n", f)
		}
	}
}
