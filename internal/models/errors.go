package models

import (
	"errors"
	"fmt"
	"io/fs"
)

// Configuration errors. These fail a whole call before any per-file work.
var (
	ErrPathNotFound     = errors.New("path not found")
	ErrPermission       = errors.New("permission denied")
	ErrNotDirectory     = errors.New("not a directory")
	ErrInvalidThreshold = errors.New("invalid similarity threshold")
	ErrInvalidTarget    = errors.New("invalid target directory")
	ErrInvalidMethod    = errors.New("invalid operation method")
)

// ErrNotImage is recorded for a file whose leading bytes match no known image
// signature.
var ErrNotImage = errors.New("not an image")

// ErrorKind classifies a per-file failure.
type ErrorKind string

const (
	KindPath       ErrorKind = "path"
	KindDecode     ErrorKind = "decode"
	KindCache      ErrorKind = "cache"
	KindFilesystem ErrorKind = "filesystem"
	KindOther      ErrorKind = "other"
)

// FileError is a per-file failure recorded in a batch result.
type FileError struct {
	Path    string    `json:"path"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e FileError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// NewFileError classifies err and wraps it as a FileError for path.
func NewFileError(path string, err error) FileError {
	return FileError{Path: path, Kind: Classify(err), Message: err.Error()}
}

// Classify maps an error onto the engine's error taxonomy. KindPath covers
// only missing, inaccessible or malformed paths; anything unrecognized is
// KindOther.
func Classify(err error) ErrorKind {
	var decodeErr *DecodeError
	var cacheErr *CacheError
	var fsErr *FilesystemError
	var pathErr *fs.PathError
	switch {
	case errors.As(err, &decodeErr), errors.Is(err, ErrNotImage):
		return KindDecode
	case errors.As(err, &cacheErr):
		return KindCache
	case errors.As(err, &fsErr):
		return KindFilesystem
	case errors.Is(err, ErrPathNotFound), errors.Is(err, ErrPermission), errors.Is(err, ErrNotDirectory),
		errors.As(err, &pathErr):
		return KindPath
	default:
		return KindOther
	}
}

// PathError converts a filesystem error into ErrPathNotFound or ErrPermission
// when it matches one of them, keeping the original error in the chain.
func PathError(path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%s: %w: %w", path, ErrPathNotFound, err)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%s: %w: %w", path, ErrPermission, err)
	default:
		return err
	}
}

// DecodeError reports an image that could not be decoded or hashed.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// CacheError reports a failure of the persistent hash cache.
type CacheError struct {
	Op  string
	Err error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("hash cache %s: %v", e.Op, e.Err)
}

func (e *CacheError) Unwrap() error { return e.Err }

// FilesystemError reports a failed move, copy or delete of one file.
type FilesystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error { return e.Err }
