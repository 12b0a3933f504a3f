package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"photodedup/internal/models"
)

var (
	dupesJSON  bool
	dupesExact bool
)

var dupesCmd = &cobra.Command{
	Use:   "dupes <path> [path...]",
	Short: "Group the given images by similarity",
	Long: `Hash the given files, and the images below any given directory, and
print the groups of duplicates among them.

With --exact only byte-identical files are grouped and --threshold is
ignored.

Example:
  photodedup dupes a.jpg b.jpg c.png
  photodedup dupes --exact ./photos ./backup
  photodedup dupes --json --threshold 3 *.jpg`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDupes,
}

func init() {
	dupesCmd.Flags().BoolVar(&dupesJSON, "json", false, "Output in JSON format")
	dupesCmd.Flags().BoolVar(&dupesExact, "exact", false, "Group identical files only")
	rootCmd.AddCommand(dupesCmd)
}

func runDupes(cmd *cobra.Command, args []string) error {
	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	paths, err := collectImages(cmd.Context(), e, args)
	if err != nil {
		return err
	}

	ch, stop := newProgress("hash")
	var result *models.DuplicateResult
	if dupesExact {
		result, err = e.FindExactDuplicates(cmd.Context(), paths, ch)
	} else {
		result, err = e.FindDuplicates(cmd.Context(), paths, cfg.Threshold, ch)
	}
	stop()
	if err != nil {
		return err
	}

	if dupesJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	if len(result.Groups) == 0 {
		fmt.Println("No duplicates found.")
	}
	for _, group := range result.Groups {
		printGroup(group, false)
	}
	fmt.Printf("%d groups, %d duplicates among %d images\n",
		len(result.Groups), result.TotalDuplicates, result.Hashed+result.CacheHits)
	printFileErrors(result.Errors)
	if result.Canceled {
		fmt.Println("Interrupted before all files were hashed.")
	}
	return nil
}
