package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"dupescan/internal/duplicate"
	"dupescan/internal/report"
)

var dupFlags struct {
	method        string
	hashType      string
	caseSensitive bool
	keepHardLinks bool
	deleteMethod  string
	dryRun        bool
	noPrehash     bool
}

var dupCmd = &cobra.Command{
	Use:   "dup [directories...]",
	Short: "Find duplicate files",
	Long: `Find duplicate files by name, size+name, size or content hash.

The hash method narrows candidates by size, then by a hash of the first
16 KiB, then by a hash of the whole file. Hashes are cached between runs.

Examples:
  dupescan dup ~/Pictures ~/Backup
  dupescan dup -m size_name ~/Downloads
  dupescan dup -r ~/Archive --delete all_except_oldest --dry-run ~/Archive ~/Inbox`,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		if flags.Changed("method") {
			cfg.Duplicates.Method = dupFlags.method
		}
		if flags.Changed("hash") {
			cfg.Duplicates.HashType = dupFlags.hashType
		}
		if flags.Changed("case-sensitive") {
			cfg.Duplicates.CaseSensitiveNames = dupFlags.caseSensitive
		}
		if flags.Changed("keep-hard-links") {
			cfg.Duplicates.IgnoreHardLinks = !dupFlags.keepHardLinks
		}
		if flags.Changed("delete") {
			cfg.Duplicates.DeleteMethod = dupFlags.deleteMethod
		}
		if flags.Changed("dry-run") {
			cfg.Duplicates.DryRun = dupFlags.dryRun
		}
		if flags.Changed("no-prehash-cache") {
			cfg.Cache.UsePrehash = !dupFlags.noPrehash
		}

		sink, stopProgress := startProgress()
		finder, err := duplicate.NewFinder(cfg, openStore(), log, sink)
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

		fmt.Print(report.FormatDuplicates(res))
		printWarnings(res.Warnings)

		remover := finder.Remover()
		if remover.Method != duplicate.DeleteNone {
			stats, err := remover.Apply(ctx, res)
			if err != nil {
				return err
			}
			fmt.Print(report.FormatRemoval(stats, remover.DryRun))
		}

		return saveJSON("duplicates", res)
	},
}

func init() {
	f := dupCmd.Flags()
	f.StringVarP(&dupFlags.method, "method", "m", "hash", "checking method (name, size_name, size, hash)")
	f.StringVar(&dupFlags.hashType, "hash", "blake3", "hash type (blake3, crc32, xxh3)")
	f.BoolVar(&dupFlags.caseSensitive, "case-sensitive", false, "compare names case-sensitively")
	f.BoolVar(&dupFlags.keepHardLinks, "keep-hard-links", false, "treat hard links to one file as separate files")
	f.StringVar(&dupFlags.deleteMethod, "delete", "none", "delete method (none, delete, all_except_newest, all_except_oldest, one_oldest, one_newest, hard_link, all_except_biggest, all_except_smallest, one_biggest, one_smallest)")
	f.BoolVar(&dupFlags.dryRun, "dry-run", false, "only report what the delete method would do")
	f.BoolVar(&dupFlags.noPrehash, "no-prehash-cache", false, "do not cache prehashes")
	rootCmd.AddCommand(dupCmd)
}
