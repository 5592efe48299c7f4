package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"dupescan/internal/report"
	"dupescan/internal/similar"
)

var imageFlags struct {
	hashSize        int
	alg             string
	filter          string
	tolerance       int
	excludeSameSize bool
	keepHardLinks   bool
}

var imageCmd = &cobra.Command{
	Use:   "image [directories...]",
	Short: "Find visually similar images",
	Long: `Find similar images by comparing perceptual hashes.

Images whose hashes differ in at most --tolerance bits are grouped around
the closest parent image. Tolerance 0 finds exact visual duplicates only.

Examples:
  dupescan image ~/Pictures
  dupescan image --size 16 --tolerance 15 --alg perception ~/Pictures`,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		if flags.Changed("size") {
			cfg.Images.HashSize = imageFlags.hashSize
		}
		if flags.Changed("alg") {
			cfg.Images.HashAlg = imageFlags.alg
		}
		if flags.Changed("filter") {
			cfg.Images.ResizeFilter = imageFlags.filter
		}
		if flags.Changed("tolerance") {
			cfg.Images.Tolerance = imageFlags.tolerance
		}
		if flags.Changed("exclude-same-size") {
			cfg.Images.ExcludeSameSize = imageFlags.excludeSameSize
		}
		if flags.Changed("keep-hard-links") {
			cfg.Images.IgnoreHardLinks = !imageFlags.keepHardLinks
		}

		sink, stopProgress := startProgress()
		finder, err := similar.NewFinder(cfg, openStore(), log, sink)
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

		fmt.Print(report.FormatImages(res))
		printWarnings(res.Warnings)
		return saveJSON("similar_images", res)
	},
}

func init() {
	f := imageCmd.Flags()
	f.IntVar(&imageFlags.hashSize, "size", 16, "hash size (8, 16, 32, 64)")
	f.StringVar(&imageFlags.alg, "alg", "difference", "hash algorithm (mean, difference, perception)")
	f.StringVar(&imageFlags.filter, "filter", "lanczos3", "resize filter (lanczos3, nearest, bilinear, bicubic, mitchellnetravali)")
	f.IntVar(&imageFlags.tolerance, "tolerance", 10, "maximal Hamming distance between similar images")
	f.BoolVar(&imageFlags.excludeSameSize, "exclude-same-size", false, "keep one image per file size in each group")
	f.BoolVar(&imageFlags.keepHardLinks, "keep-hard-links", false, "hash every hard link separately")
	rootCmd.AddCommand(imageCmd)
}
