// Package sorter relocates images into date folders and carries out move and
// delete batches. Every file is handled independently; one failure never
// stops the batch.
package sorter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"photodedup/internal/fileutil"
	"photodedup/internal/meta"
	"photodedup/internal/models"
	"photodedup/internal/progress"
)

// Method is how files reach their date folder.
type Method string

const (
	MethodMove Method = "move"
	MethodCopy Method = "copy"
)

// ParseMethod validates a method name.
func ParseMethod(s string) (Method, error) {
	switch m := Method(s); m {
	case MethodMove, MethodCopy:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q (want move or copy)", models.ErrInvalidMethod, s)
	}
}

// Options shapes the date folder layout.
type Options struct {
	UseDayFolder  bool // add a <dd> level below the month
	UseMonthNames bool // "05 - May" instead of "05"
}

// Sorter performs file relocation batches
type Sorter struct {
	reader *meta.Reader
	logger *zap.Logger
	trash  func(string) error
}

// Option configures a Sorter
type Option func(*Sorter)

// WithReader sets the reader used to find capture dates
func WithReader(r *meta.Reader) Option {
	return func(s *Sorter) {
		if r != nil {
			s.reader = r
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Sorter) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTrash replaces the platform trash
func WithTrash(fn func(string) error) Option {
	return func(s *Sorter) {
		if fn != nil {
			s.trash = fn
		}
	}
}

// New creates a Sorter
func New(opts ...Option) *Sorter {
	s := &Sorter{
		reader: meta.NewReader(nil),
		logger: zap.NewNop(),
		trash:  fileutil.MoveToTrash,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DestDir returns the date folder for date below root:
// <root>/<yyyy>/<MM>[ - <Month>][/<dd>].
func DestDir(root string, date time.Time, opts Options) string {
	month := date.Format("01")
	if opts.UseMonthNames {
		month = fmt.Sprintf("%s - %s", month, date.Month())
	}
	dir := filepath.Join(root, date.Format("2006"), month)
	if opts.UseDayFolder {
		dir = filepath.Join(dir, date.Format("02"))
	}
	return dir
}

func validateTarget(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", models.ErrInvalidTarget, dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", models.ErrInvalidTarget, dir)
	}
	return nil
}

// SortByDate moves or copies each path into its date folder below targetDir.
// The date is the EXIF capture time, or the modification time when absent.
// An invalid method or target fails the call before any file is touched.
func (s *Sorter) SortByDate(ctx context.Context, paths []string, method Method, targetDir string, opts Options, ch chan<- progress.Event) (*models.OperationOutcome, error) {
	if _, err := ParseMethod(string(method)); err != nil {
		return nil, err
	}
	if err := validateTarget(targetDir); err != nil {
		return nil, err
	}

	return s.batch(ctx, paths, progress.OpSort, ch, func(path string) (string, error) {
		date, err := s.reader.CaptureTime(path)
		if err != nil {
			return "", err
		}
		dir := DestDir(targetDir, date, opts)

		var dest string
		if method == MethodCopy {
			dest, err = fileutil.CopyFile(path, dir)
		} else {
			dest, err = fileutil.MoveFile(path, dir)
		}
		if err != nil {
			return "", &models.FilesystemError{Op: string(method), Path: path, Err: err}
		}
		return dest, nil
	})
}

// MoveFiles moves each path directly into targetDir.
func (s *Sorter) MoveFiles(ctx context.Context, paths []string, targetDir string, ch chan<- progress.Event) (*models.OperationOutcome, error) {
	if err := validateTarget(targetDir); err != nil {
		return nil, err
	}

	return s.batch(ctx, paths, progress.OpMove, ch, func(path string) (string, error) {
		dest, err := fileutil.MoveFile(path, targetDir)
		if err != nil {
			return "", &models.FilesystemError{Op: "move", Path: path, Err: err}
		}
		return dest, nil
	})
}

// DeleteFiles moves each path to the platform trash. A file is removed
// permanently only when no trash is available for it; such files are listed
// in the outcome's Permanent field.
func (s *Sorter) DeleteFiles(ctx context.Context, paths []string, ch chan<- progress.Event) (*models.OperationOutcome, error) {
	var permanent []string
	out, err := s.batch(ctx, paths, progress.OpDelete, ch, func(path string) (string, error) {
		err := s.trash(path)
		if err == nil {
			return "", nil
		}
		if !errors.Is(err, fileutil.ErrTrashUnavailable) {
			return "", &models.FilesystemError{Op: "trash", Path: path, Err: err}
		}

		s.logger.Warn("no trash available, deleting permanently", zap.String("path", path), zap.Error(err))
		if err := os.Remove(path); err != nil {
			return "", &models.FilesystemError{Op: "delete", Path: path, Err: err}
		}
		permanent = append(permanent, path)
		return "", nil
	})
	if out != nil {
		out.Permanent = permanent
	}
	return out, err
}

// batch runs op for each path in order, checking for cancellation between
// files. Missing sources are recorded without calling op.
func (s *Sorter) batch(ctx context.Context, paths []string, kind progress.Op, ch chan<- progress.Event, op func(string) (string, error)) (*models.OperationOutcome, error) {
	out := models.NewOutcome()
	rep := progress.NewReporter(ch, kind, len(paths))

	for _, path := range paths {
		if ctx.Err() != nil {
			out.Canceled = true
			break
		}

		var (
			dest string
			err  error
		)
		if _, statErr := os.Lstat(path); statErr != nil {
			err = models.PathError(path, statErr)
		} else {
			dest, err = op(path)
		}

		if err != nil {
			s.logger.Debug("file operation failed", zap.String("op", string(kind)), zap.String("path", path), zap.Error(err))
			out.AddError(err.Error())
		} else {
			out.AddSuccess(path, dest)
		}
		rep.Step(path, err)
	}

	s.logger.Info("file batch finished",
		zap.String("op", string(kind)),
		zap.Int("processed", out.Processed),
		zap.Int("succeeded", out.Succeeded),
		zap.Int("failed", out.Failed),
		zap.Bool("canceled", out.Canceled))
	return out, nil
}
