package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"photodedup/internal/engine"
	"photodedup/internal/models"
)

var (
	dryRun    bool
	moveTo    string
	permanent bool
	noConfirm bool
	groupIDs  []int
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove or move duplicate images",
	Long: `Remove duplicate images, keeping the primary image of each group.

The clean command will:
1. Keep the primary image of each group (see --policy)
2. Re-check each group against the files on disk: a group whose primary
   is gone is skipped, as is any duplicate that no longer matches
3. Move the other images to trash (default) or delete them permanently

When no trash is available the files are deleted permanently and reported
as such.

Options:
  --dry-run     Preview what would be removed without actually removing
  --permanent   Delete files permanently instead of moving to trash
  --move-to     Move duplicates to a specific folder
  --yes         Skip confirmation prompt
  --group       Specify group IDs to clean (can be used multiple times)

Example:
  photodedup clean                     # Move to trash (default)
  photodedup clean --permanent         # Delete permanently
  photodedup clean --move-to=./backup  # Move to specific folder
  photodedup clean --dry-run           # Preview only
  photodedup clean --group=1 --group=3 # Clean only groups 1 and 3`,
	RunE: runClean,
}

func init() {
	cleanCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Preview without removing")
	cleanCmd.Flags().BoolVar(&permanent, "permanent", false, "Delete permanently instead of moving to trash")
	cleanCmd.Flags().StringVar(&moveTo, "move-to", "", "Move duplicates to this folder")
	cleanCmd.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip confirmation prompt")
	cleanCmd.Flags().IntSliceVarP(&groupIDs, "group", "g", nil, "Group IDs to clean (can be specified multiple times)")
	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, args []string) error {
	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	store := e.Store()
	if store == nil {
		return fmt.Errorf("database %s is unavailable", cfg.DBPath)
	}

	groups, err := store.GetDuplicateGroups()
	if err != nil {
		return fmt.Errorf("failed to get groups: %w", err)
	}

	if len(groups) == 0 {
		fmt.Println("No duplicate groups found.")
		return nil
	}

	if len(groupIDs) > 0 {
		groupIDSet := make(map[int]bool)
		for _, id := range groupIDs {
			groupIDSet[id] = true
		}

		var filtered []*models.DuplicateGroup
		for _, group := range groups {
			if groupIDSet[group.ID] {
				filtered = append(filtered, group)
			}
		}

		if len(filtered) == 0 {
			fmt.Printf("No matching groups found for IDs: %v\n", groupIDs)
			fmt.Println("Run 'photodedup list' to see available group IDs.")
			return nil
		}

		groups = filtered
		fmt.Printf("Processing %d selected group(s): %v\n\n", len(groups), groupIDs)
	}

	plan := e.PlanClean(cmd.Context(), groups)
	if plan.Canceled {
		fmt.Println("Interrupted while checking groups, nothing was removed.")
		return nil
	}
	printSkipped(plan)

	toRemove := plan.Paths()
	totalSize := plan.ReclaimableBytes()
	if len(toRemove) == 0 {
		fmt.Println("No files to remove (files may have been already deleted).")
		return nil
	}

	var action string
	switch {
	case moveTo != "":
		action = fmt.Sprintf("move to %s", moveTo)
	case permanent:
		action = "permanently delete"
	default:
		action = "move to trash"
	}

	fmt.Printf("Will %s %d files (%s)\n\n", action, len(toRemove), humanize.Bytes(uint64(totalSize)))

	if dryRun {
		fmt.Println("Files to be removed:")
		for _, path := range toRemove {
			fmt.Printf("  %s\n", path)
		}
		fmt.Println()
		fmt.Println("(Dry run - no files were modified)")
		fmt.Println("Run without --dry-run to actually remove files.")
		return nil
	}

	if !noConfirm {
		fmt.Printf("Are you sure you want to %s %d files? [y/N]: ", action, len(toRemove))
		reader := bufio.NewReader(os.Stdin)
		response, _ := reader.ReadString('\n')
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "y" && response != "yes" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	if moveTo != "" {
		if err := os.MkdirAll(moveTo, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", moveTo, err)
		}
	}

	ctx := cmd.Context()
	ch, stop := newProgress("clean")
	var out *models.OperationOutcome
	switch {
	case moveTo != "":
		out, err = e.MoveFiles(ctx, toRemove, moveTo, ch)
	case permanent:
		out, err = e.PurgeFiles(ctx, toRemove, ch)
	default:
		out, err = e.DeleteFiles(ctx, toRemove, ch)
	}
	stop()
	if err != nil {
		return err
	}

	fmt.Println()
	switch {
	case moveTo != "":
		fmt.Printf("Moved %d files to %s\n", out.Succeeded, moveTo)
	case permanent:
		fmt.Printf("Permanently deleted %d files\n", out.Succeeded)
	default:
		fmt.Printf("Moved %d files to trash\n", out.Succeeded-len(out.Permanent))
		if len(out.Permanent) > 0 {
			fmt.Printf("No trash available, permanently deleted %d files\n", len(out.Permanent))
		}
	}
	printOutcomeErrors(out)
	return nil
}

func printSkipped(plan *engine.CleanPlan) {
	if plan.Gone > 0 {
		fmt.Printf("Already removed since the scan: %d files\n", plan.Gone)
	}
	if len(plan.Skipped) == 0 {
		return
	}
	fmt.Printf("Skipped: %d files changed since the scan\n", len(plan.Skipped))
	for _, sk := range plan.Skipped {
		fmt.Printf("  #%d %s: %s\n", sk.GroupID, shortenPath(sk.Path, 50), sk.Reason)
	}
	fmt.Println()
}

func printOutcomeErrors(out *models.OperationOutcome) {
	if out.Failed > 0 {
		fmt.Printf("Failed: %d files\n", out.Failed)
		for _, msg := range out.Errors {
			fmt.Fprintf(os.Stderr, "  %s\n", msg)
		}
	}
	if out.Canceled {
		fmt.Printf("Interrupted after %d of the requested files\n", out.Processed)
	}
}
