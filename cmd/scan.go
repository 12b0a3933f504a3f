package cmd

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"photodedup/internal/models"
)

var scanCmd = &cobra.Command{
	Use:   "scan <folder> [folder...]",
	Short: "Scan folders for duplicate images",
	Long: `Scan folders recursively for images and detect duplicates.

The scan will:
1. Find all supported images (jpg, png, gif, webp, bmp, tiff)
2. Compute content and perceptual hashes, reusing cached ones
3. Group similar images based on hash distance
4. Store the groups in the database for 'list' and 'clean'

Example:
  photodedup scan ./photos
  photodedup scan ./photos ./backup --threshold 5`,
	Args: cobra.MinimumNArgs(1),
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	fmt.Printf("Threshold: %d (Hamming distance)\n", cfg.Threshold)
	fmt.Printf("Workers:   %d\n\n", cfg.Workers)

	fmt.Printf("Scanning: %s\n", strings.Join(args, ", "))
	ch, stop := newProgress("scan")
	scanned, err := e.ScanFolders(ctx, args, ch)
	stop()
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	paths := make([]string, len(scanned.Images))
	for i, img := range scanned.Images {
		paths[i] = img.Path
	}

	fmt.Printf("Scanned: %d images (%s)\n", scanned.ImageCount, humanize.Bytes(uint64(scanned.TotalSizeBytes)))
	if len(paths) == 0 {
		fmt.Println("No images found.")
		return nil
	}
	if scanned.Canceled {
		fmt.Println("Scan interrupted.")
		return nil
	}

	fmt.Println("Finding duplicates...")
	ch, stop = newProgress("hash")
	result, err := e.FindDuplicates(ctx, paths, cfg.Threshold, ch)
	stop()
	if err != nil {
		return err
	}

	if err := e.RecordScan(args, scanned, result); err != nil {
		logger.Warn("failed to record scan history", zap.Error(err))
	}

	stats := e.CacheStats()
	logger.Debug("hash cache",
		zap.Int64("hits", stats.Hits),
		zap.Int64("misses", stats.Misses),
		zap.Int64("errors", stats.Errors))

	var reclaimable int64
	for _, group := range result.Groups {
		reclaimable += group.ReclaimableBytes()
	}

	fmt.Println()
	fmt.Println("=== Scan Complete ===")
	fmt.Printf("Total images:     %d\n", len(paths))
	fmt.Printf("Hashed:           %d (%d from cache)\n", result.Hashed+result.CacheHits, result.CacheHits)
	fmt.Printf("Duplicate groups: %d\n", len(result.Groups))
	fmt.Printf("Duplicates found: %d (%s reclaimable)\n", result.TotalDuplicates, humanize.Bytes(uint64(reclaimable)))
	printFileErrors(append(scanned.Errors, result.Errors...))

	if result.Canceled {
		fmt.Println("Interrupted: groups cover only the images hashed so far and were not saved.")
		return nil
	}
	if len(result.Groups) > 0 {
		fmt.Println()
		fmt.Println("Run 'photodedup list' to see duplicate groups")
		fmt.Println("Run 'photodedup clean --dry-run' to preview deletions")
	}
	return nil
}

func printFileErrors(errs []models.FileError) {
	if len(errs) == 0 {
		return
	}
	fmt.Printf("Errors:           %d\n", len(errs))
	limit := len(errs)
	if limit > 10 {
		limit = 10
	}
	for _, fe := range errs[:limit] {
		fmt.Printf("  %s: %s\n", shortenPath(fe.Path, 50), fe.Message)
	}
	if len(errs) > limit {
		fmt.Printf("  ... and %d more (use --log-level=debug for details)\n", len(errs)-limit)
	}
}
