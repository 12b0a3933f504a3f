// Package fileutil moves, copies and trashes files without ever overwriting
// an existing file.
package fileutil

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"
)

// ErrTrashUnavailable means the platform has no usable trash for the file.
var ErrTrashUnavailable = errors.New("trash unavailable")

// maxCollisions bounds the name_N search in a single directory.
const maxCollisions = 10000

// Indirection points for tests
var (
	rename     = os.Rename
	removeFile = os.Remove
)

// MoveFile moves src into destDir and returns the final path.
// If a file with the same name exists, it appends a counter (e.g., file_1.jpg).
// The move only counts as done once the destination exists and src is gone.
func MoveFile(src, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", err
	}
	if sameDir(src, destDir) {
		return src, nil
	}

	destName, err := reserveName(filepath.Base(src), placeholder(destDir))
	if err != nil {
		return "", err
	}
	dest := filepath.Join(destDir, destName)

	if err := moveFileAcrossFS(src, dest); err != nil {
		removeFile(dest)
		return "", err
	}
	if err := confirmMoved(src, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// CopyFile copies src into destDir under a collision-free name and returns
// the new path. Mode and modification time are preserved.
func CopyFile(src, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", err
	}

	destName, err := reserveName(filepath.Base(src), placeholder(destDir))
	if err != nil {
		return "", err
	}
	dest := filepath.Join(destDir, destName)

	if err := copyFile(src, dest); err != nil {
		removeFile(dest)
		return "", err
	}
	return dest, nil
}

func sameDir(src, destDir string) bool {
	a, err1 := filepath.Abs(filepath.Dir(src))
	b, err2 := filepath.Abs(destDir)
	return err1 == nil && err2 == nil && a == b
}

// reserveName claims filename, or the first free name_N variant, using claim.
// claim must fail with fs.ErrExist when the name is taken.
func reserveName(filename string, claim func(name string) error) (string, error) {
	ext := filepath.Ext(filename)
	name := strings.TrimSuffix(filename, ext)
	for counter := 0; counter < maxCollisions; counter++ {
		candidate := filename
		if counter > 0 {
			candidate = fmt.Sprintf("%s_%d%s", name, counter, ext)
		}
		err := claim(candidate)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", err
		}
	}
	return "", fmt.Errorf("no free name for %s after %d attempts", filename, maxCollisions)
}

// placeholder claims a name by creating an empty file exclusively, so two
// concurrent movers can never pick the same destination.
func placeholder(dir string) func(string) error {
	return func(name string) error {
		f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		return f.Close()
	}
}

// moveFileAcrossFS renames src over the reserved dest, falling back to
// copy+delete for cross-filesystem moves. If the source cannot be removed
// after copying, the copy is rolled back.
func moveFileAcrossFS(src, dest string) error {
	err := rename(src, dest)
	if err == nil {
		return nil
	}

	// Check if it's a cross-device link error
	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) || !errors.Is(linkErr.Err, syscall.EXDEV) {
		return err
	}

	if err := copyFile(src, dest); err != nil {
		return err
	}
	if err := removeFile(src); err != nil {
		if rbErr := removeFile(dest); rbErr != nil {
			return fmt.Errorf("remove source: %w (rollback failed: %v)", err, rbErr)
		}
		return fmt.Errorf("remove source: %w", err)
	}
	return nil
}

// copyFile copies src over dest, which may be an existing placeholder.
func copyFile(src, dest string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	srcInfo, err := srcFile.Stat()
	if err != nil {
		return err
	}

	destFile, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, srcInfo.Mode().Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(destFile, srcFile); err != nil {
		destFile.Close()
		return err
	}
	if err := destFile.Sync(); err != nil {
		destFile.Close()
		return err
	}
	if err := destFile.Close(); err != nil {
		return err
	}

	os.Chmod(dest, srcInfo.Mode().Perm())
	return os.Chtimes(dest, srcInfo.ModTime(), srcInfo.ModTime())
}

func confirmMoved(src, dest string) error {
	if _, err := os.Stat(dest); err != nil {
		return fmt.Errorf("destination missing after move: %w", err)
	}
	if _, err := os.Lstat(src); !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("source still present after move to %s", dest)
	}
	return nil
}

// MoveToTrash moves a file to the system trash/recycle bin.
// - macOS: ~/.Trash
// - Linux: $XDG_DATA_HOME/Trash or ~/.local/share/Trash (freedesktop.org spec)
// - Windows: Recycle Bin (via shell32.dll)
// Errors caused by a missing or unusable trash wrap ErrTrashUnavailable.
func MoveToTrash(src string) error {
	switch runtime.GOOS {
	case "windows":
		return moveToWindowsTrash(src)
	case "linux":
		filesDir, infoDir, err := linuxTrashDirs()
		if err != nil {
			return err
		}
		return moveToLinuxTrash(src, filesDir, infoDir)
	case "darwin":
		trashDir, err := darwinTrashDir()
		if err != nil {
			return err
		}
		_, err = MoveFile(src, trashDir)
		return err
	default:
		return fmt.Errorf("%w on %s", ErrTrashUnavailable, runtime.GOOS)
	}
}

func darwinTrashDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTrashUnavailable, err)
	}
	trashDir := filepath.Join(homeDir, ".Trash")
	if err := os.MkdirAll(trashDir, 0755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTrashUnavailable, err)
	}
	return trashDir, nil
}

func linuxTrashDirs() (string, string, error) {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", "", fmt.Errorf("%w: %v", ErrTrashUnavailable, err)
		}
		dataHome = filepath.Join(homeDir, ".local", "share")
	}

	trash := filepath.Join(dataHome, "Trash")
	filesDir := filepath.Join(trash, "files")
	infoDir := filepath.Join(trash, "info")
	for _, dir := range []string{filesDir, infoDir} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return "", "", fmt.Errorf("%w: %v", ErrTrashUnavailable, err)
		}
	}
	return filesDir, infoDir, nil
}

// trashInfoPath percent-encodes each segment of an absolute path, as the
// Path key of a .trashinfo file requires.
func trashInfoPath(absPath string) string {
	segments := strings.Split(filepath.ToSlash(absPath), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}

// moveToLinuxTrash moves a file to Linux trash with proper .trashinfo metadata.
func moveToLinuxTrash(src, filesDir, infoDir string) error {
	absPath, err := filepath.Abs(src)
	if err != nil {
		return err
	}

	info := fmt.Sprintf("[Trash Info]\nPath=%s\nDeletionDate=%s\n",
		trashInfoPath(absPath),
		time.Now().Format("2006-01-02T15:04:05"))

	// The name must be free in both files/ and info/
	destName, err := reserveName(filepath.Base(src), func(name string) error {
		infoPath := filepath.Join(infoDir, name+".trashinfo")
		f, err := os.OpenFile(infoPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
		if err != nil {
			return err
		}
		_, werr := f.WriteString(info)
		if cerr := f.Close(); werr == nil {
			werr = cerr
		}
		if werr != nil {
			os.Remove(infoPath)
			return werr
		}
		if err := placeholder(filesDir)(name); err != nil {
			os.Remove(infoPath)
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	dest := filepath.Join(filesDir, destName)
	infoPath := filepath.Join(infoDir, destName+".trashinfo")

	if err := moveFileAcrossFS(src, dest); err != nil {
		// Clean up .trashinfo and placeholder if move fails
		removeFile(dest)
		os.Remove(infoPath)
		return err
	}
	return confirmMoved(src, dest)
}
