package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"photodedup/internal/models"
	"photodedup/internal/storage"
)

var (
	listJSON    bool
	listVerbose bool
	listSummary bool
	listLimit   int
	listOffset  int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List duplicate groups from the last scan",
	Long: `Display the duplicate groups found by the last scan.

Each group shows:
- Group ID
- Images in the group with their dimensions and sizes
- The image that will be kept marked with ✓
- The images that will be removed marked with ✗

Example:
  photodedup list              # Show first 10 groups (default)
  photodedup list -n 0         # Show all groups
  photodedup list -s           # Summary view (compact)
  photodedup list --offset 10  # Groups 11-20`,
	RunE: runList,
}

func init() {
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output in JSON format")
	listCmd.Flags().BoolVarP(&listVerbose, "verbose", "v", false, "Show detailed image info")
	listCmd.Flags().BoolVarP(&listSummary, "summary", "s", false, "Show summary only (group counts and sizes)")
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 10, "Limit number of groups to display (0 = all)")
	listCmd.Flags().IntVar(&listOffset, "offset", 0, "Skip first N groups (for pagination)")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	store, err := storage.NewStorage(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	groups, err := store.GetDuplicateGroups()
	if err != nil {
		return fmt.Errorf("failed to get groups: %w", err)
	}

	if listJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(paginate(groups))
	}

	if len(groups) == 0 {
		fmt.Println("No duplicate groups found.")
		fmt.Println("Run 'photodedup scan <folder>' to scan for duplicates.")
		return nil
	}

	if last, err := store.LastScan(); err == nil && last != nil {
		fmt.Printf("Last scan: %s (%s)\n", last.Folder, humanize.Time(last.ScannedAt))
	}
	if cached, err := store.CacheSize(); err == nil {
		fmt.Printf("Database:  %s (%d cached hashes)\n", store.Path(), cached)
	}

	groupCount, err := store.GetGroupCount()
	if err != nil {
		return fmt.Errorf("failed to count groups: %w", err)
	}

	totalDuplicates := 0
	var totalSavings int64
	for _, group := range groups {
		totalDuplicates += len(group.Duplicates)
		totalSavings += group.ReclaimableBytes()
	}

	fmt.Printf("Found %d duplicate groups (%d duplicates, %s reclaimable)\n\n",
		groupCount, totalDuplicates, humanize.Bytes(uint64(totalSavings)))

	totalGroups := len(groups)
	startIdx := min(listOffset, totalGroups)
	groups = paginate(groups)

	if len(groups) == 0 {
		fmt.Printf("No groups in range (offset %d exceeds total %d)\n", listOffset, totalGroups)
	} else if listSummary {
		printSummaryTable(groups)
	} else {
		for _, group := range groups {
			printGroup(group, listVerbose)
		}
	}

	endIdx := startIdx + len(groups)
	if len(groups) > 0 {
		fmt.Printf("Showing groups %d-%d of %d\n", startIdx+1, endIdx, totalGroups)
		if endIdx < totalGroups {
			limitArg := ""
			if listLimit > 0 {
				limitArg = fmt.Sprintf(" -n %d", listLimit)
			}
			fmt.Printf("Next page: photodedup list%s --offset %d\n", limitArg, endIdx)
		}
	}

	fmt.Println()
	fmt.Println("Run 'photodedup clean --dry-run' to preview deletions")
	fmt.Println("Run 'photodedup clean' to remove duplicates")

	return nil
}

func paginate(groups []*models.DuplicateGroup) []*models.DuplicateGroup {
	start := min(max(listOffset, 0), len(groups))
	groups = groups[start:]
	if listLimit > 0 && listLimit < len(groups) {
		groups = groups[:listLimit]
	}
	return groups
}

func printSummaryTable(groups []*models.DuplicateGroup) {
	fmt.Printf("%-8s  %-8s  %-12s  %s\n", "Group", "Images", "Reclaimable", "Keep")
	fmt.Println(strings.Repeat("-", 70))

	for _, group := range groups {
		keepName := filepath.Base(group.Primary.Path)
		if len(keepName) > 35 {
			keepName = keepName[:32] + "..."
		}

		fmt.Printf("#%-7d  %-8d  %-12s  %s\n",
			group.ID, len(group.Images), humanize.Bytes(uint64(group.ReclaimableBytes())), keepName)
	}
	fmt.Println()
}

func printGroup(group *models.DuplicateGroup, verbose bool) {
	fmt.Printf("Group #%d (%d images)\n", group.ID, len(group.Images))
	fmt.Println(strings.Repeat("-", 60))

	for _, img := range group.Images {
		marker := "✗"
		if img.Path == group.Primary.Path {
			marker = "✓"
		}

		if verbose {
			fmt.Printf("  %s %s\n", marker, img.Path)
			fmt.Printf("      Resolution: %dx%d  Format: %s  Size: %s\n",
				img.Width, img.Height, strings.ToUpper(img.Format), humanize.Bytes(uint64(img.Size)))
			fmt.Printf("      Score: %.0f\n", img.Score)
		} else {
			fmt.Printf("  %s %-40s  %dx%d  %-4s  %8s\n",
				marker, shortenPath(img.Path, 40), img.Width, img.Height,
				strings.ToUpper(img.Format), humanize.Bytes(uint64(img.Size)))
		}
	}
	fmt.Println()
}
