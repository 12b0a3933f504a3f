package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var thumbCmd = &cobra.Command{
	Use:   "thumb <image> [image...]",
	Short: "Print the path of a cached preview for each image",
	Long: `Generate a preview for each image on first request and print its path.
Previews are stored in the thumbnail directory and reused until the source
file changes.

Example:
  photodedup thumb photo.jpg`,
	Args: cobra.MinimumNArgs(1),
	RunE: runThumb,
}

func init() {
	rootCmd.AddCommand(thumbCmd)
}

func runThumb(cmd *cobra.Command, args []string) error {
	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	failed := 0
	for _, path := range args {
		thumbPath, err := e.Thumbnail(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			failed++
			continue
		}
		fmt.Println(thumbPath)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d previews failed", failed, len(args))
	}
	return nil
}
