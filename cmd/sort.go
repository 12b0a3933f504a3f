package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"photodedup/internal/engine"
	"photodedup/internal/sorter"
)

var (
	sortCopy       bool
	sortDay        bool
	sortMonthNames bool
)

var sortCmd = &cobra.Command{
	Use:   "sort <target> <path> [path...]",
	Short: "Sort images into date folders",
	Long: `Move or copy images into <target>/<year>/<month>[/<day>] folders.

The date comes from the EXIF capture time, falling back to the file's
modification time. Directories are scanned recursively. Existing files are
never overwritten: a clashing name gets a numeric suffix (photo_1.jpg).

Example:
  photodedup sort ./sorted ./camera-roll
  photodedup sort ./sorted ./camera-roll --copy --day --month-names`,
	Args: cobra.MinimumNArgs(2),
	RunE: runSort,
}

func init() {
	sortCmd.Flags().BoolVar(&sortCopy, "copy", false, "Copy instead of move")
	sortCmd.Flags().BoolVar(&sortDay, "day", false, "Add a day folder below the month")
	sortCmd.Flags().BoolVar(&sortMonthNames, "month-names", false, "Name month folders like '05 - May'")
	rootCmd.AddCommand(sortCmd)
}

func runSort(cmd *cobra.Command, args []string) error {
	target, sources := args[0], args[1:]

	method := sorter.MethodMove
	if sortCopy {
		method = sorter.MethodCopy
	}

	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	paths, err := collectImages(cmd.Context(), e, sources)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		fmt.Println("No images found.")
		return nil
	}

	if err := os.MkdirAll(target, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", target, err)
	}

	ch, stop := newProgress(string(method))
	out, err := e.SortByDate(cmd.Context(), paths, method, target,
		sorter.Options{UseDayFolder: sortDay, UseMonthNames: sortMonthNames}, ch)
	stop()
	if err != nil {
		return err
	}

	verb := "Moved"
	if method == sorter.MethodCopy {
		verb = "Copied"
	}
	fmt.Printf("%s %d of %d images into %s\n", verb, out.Succeeded, len(paths), target)
	printOutcomeErrors(out)
	return nil
}

// collectImages expands directories into the images below them, scanned as
// one batch. Plain file arguments are passed through.
func collectImages(ctx context.Context, e *engine.Engine, sources []string) ([]string, error) {
	var paths, dirs []string
	for _, src := range sources {
		info, err := os.Stat(src)
		if err != nil {
			return nil, fmt.Errorf("cannot read %s: %w", src, err)
		}
		if info.IsDir() {
			dirs = append(dirs, src)
		} else {
			paths = append(paths, src)
		}
	}
	if len(dirs) == 0 {
		return paths, nil
	}

	ch, stop := newProgress("scan")
	res, err := e.ScanFolders(ctx, dirs, ch)
	stop()
	if err != nil {
		return nil, err
	}
	for _, img := range res.Images {
		paths = append(paths, img.Path)
	}
	printFileErrors(res.Errors)
	return paths, nil
}
