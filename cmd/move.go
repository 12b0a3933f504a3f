package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var moveCmd = &cobra.Command{
	Use:   "move <target> <path> [path...]",
	Short: "Move images into a folder without overwriting",
	Long: `Move images into <target>. A file whose name is already taken gets a
numeric suffix. Directories are scanned recursively.

Example:
  photodedup move ./keep a.jpg b.jpg`,
	Args: cobra.MinimumNArgs(2),
	RunE: runMove,
}

func init() {
	rootCmd.AddCommand(moveCmd)
}

func runMove(cmd *cobra.Command, args []string) error {
	target := args[0]

	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	paths, err := collectImages(cmd.Context(), e, args[1:])
	if err != nil {
		return err
	}

	if err := os.MkdirAll(target, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", target, err)
	}

	ch, stop := newProgress("move")
	out, err := e.MoveFiles(cmd.Context(), paths, target, ch)
	stop()
	if err != nil {
		return err
	}

	fmt.Printf("Moved %d of %d files into %s\n", out.Succeeded, len(paths), target)
	printOutcomeErrors(out)
	return nil
}
