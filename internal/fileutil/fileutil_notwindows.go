//go:build !windows

package fileutil

import "fmt"

// moveToWindowsTrash is only reachable on Windows.
func moveToWindowsTrash(path string) error {
	return fmt.Errorf("%w: no Recycle Bin for %s on this platform", ErrTrashUnavailable, path)
}
