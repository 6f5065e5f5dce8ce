package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"flacsweep/backend"
)

var restoreNames []string

var quarantineCmd = &cobra.Command{
	Use:   "quarantine",
	Short: "Inspect and restore files set aside by resolve",
}

var quarantineListCmd = &cobra.Command{
	Use:   "list [root]",
	Short: "List quarantined files",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := resolveRoot(args)
		if err != nil {
			return err
		}
		entries, err := backend.ListQuarantine(root)
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(entries)
		}
		if len(entries) == 0 {
			fmt.Println("Quarantine is empty.")
			return nil
		}
		for _, e := range entries {
			fmt.Printf("%9s  %s  %s\n", humanSize(e.Size), e.ModTime.Format("2006-01-02 15:04"), e.Name)
		}
		return nil
	},
}

var quarantineRestoreCmd = &cobra.Command{
	Use:   "restore [root]",
	Short: "Move quarantined files back into the root",
	Long: `Restore moves quarantined files back into the root directory. Without
--name every quarantined file is restored; --name can be repeated to pick
specific entries.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := resolveRoot(args)
		if err != nil {
			return err
		}

		names := restoreNames
		if len(names) == 0 {
			entries, err := backend.ListQuarantine(root)
			if err != nil {
				return err
			}
			for _, e := range entries {
				names = append(names, e.Name)
			}
		}
		if len(names) == 0 {
			fmt.Println("Quarantine is empty.")
			return nil
		}

		summary := backend.RestoreFromQuarantine(root, names)
		if flagJSON {
			return printJSON(summary)
		}
		fmt.Printf("Restored %d of %d files.\n", summary.Succeeded, len(names))
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
	quarantineRestoreCmd.Flags().StringSliceVar(&restoreNames, "name", nil,
		"quarantine entry to restore (repeatable; default all)")
	quarantineCmd.AddCommand(quarantineListCmd)
	quarantineCmd.AddCommand(quarantineRestoreCmd)
	rootCmd.AddCommand(quarantineCmd)
}
