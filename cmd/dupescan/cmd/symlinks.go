package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"dupescan/internal/report"
	"dupescan/internal/symlinks"
)

var symlinkFlags struct {
	remove bool
	dryRun bool
}

var symlinksCmd = &cobra.Command{
	Use:   "symlinks [directories...]",
	Short: "Find symlinks pointing nowhere",
	Long: `List symbolic links whose target does not exist or loops back on itself.

Examples:
  dupescan symlinks ~/
  dupescan symlinks --remove --dry-run /srv/share`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sink, stopProgress := startProgress()
		finder, err := symlinks.NewFinder(cfg, log, sink)
		if err != nil {
			stopProgress()
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		res, err := finder.Run(ctx)
		stopProgress()
		if err != nil {
			return err
		}

		fmt.Print(report.FormatSymlinks(res))
		printWarnings(res.Warnings)

		if symlinkFlags.remove {
			n, warnings, err := symlinks.Remove(ctx, res.Links, symlinkFlags.dryRun, log)
			if err != nil {
				return err
			}
			verb := "Removed"
			if symlinkFlags.dryRun {
				verb = "Would remove"
			}
			fmt.Printf("%s %d links\n", verb, n)
			printWarnings(warnings)
		}

		return saveJSON("invalid_symlinks", res)
	},
}

func init() {
	f := symlinksCmd.Flags()
	f.BoolVar(&symlinkFlags.remove, "remove", false, "delete the broken links")
	f.BoolVar(&symlinkFlags.dryRun, "dry-run", false, "only report what --remove would do")
	rootCmd.AddCommand(symlinksCmd)
}
