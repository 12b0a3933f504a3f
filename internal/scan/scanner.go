package scan

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"photodedup/internal/meta"
	"photodedup/internal/models"
	"photodedup/internal/progress"
)

// Scanner enumerates images below a root and reads their metadata
type Scanner struct {
	reader    *meta.Reader
	ioWorkers int
	logger    *zap.Logger
	progress  chan<- progress.Event
}

// Option configures a Scanner
type Option func(*Scanner)

// WithIOWorkers sets the number of parallel metadata readers
func WithIOWorkers(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.ioWorkers = n
		}
	}
}

// WithReader sets the metadata reader
func WithReader(r *meta.Reader) Option {
	return func(s *Scanner) {
		if r != nil {
			s.reader = r
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Scanner) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithProgress sets the channel receiving one event per file read
func WithProgress(ch chan<- progress.Event) Option {
	return func(s *Scanner) {
		s.progress = ch
	}
}

// NewScanner creates a new Scanner
func NewScanner(opts ...Option) *Scanner {
	s := &Scanner{
		reader:    meta.NewReader(nil),
		ioWorkers: defaultIOWorkers(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func defaultIOWorkers() int {
	n := runtime.NumCPU() / 2
	if n < 2 {
		n = 2
	}
	return n
}

// ValidateRoot checks that root exists, is readable and is a directory.
func ValidateRoot(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		if pe := models.PathError(root, err); pe != err {
			return pe
		}
		return fmt.Errorf("%s: %w", root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s: %w", root, models.ErrNotDirectory)
	}
	f, err := os.Open(root)
	if err != nil {
		return models.PathError(root, err)
	}
	f.Close()
	return nil
}

// ScanFolder recursively collects images below root. Only an invalid root
// fails the call; unreadable entries and non-image files are recorded in
// the result's Errors. Images are returned in traversal order.
func (s *Scanner) ScanFolder(ctx context.Context, root string) (*models.ScanResult, error) {
	if err := ValidateRoot(root); err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", root, err)
	}

	result := &models.ScanResult{Root: abs}

	w := &walker{ctx: ctx, logger: s.logger, visited: make(map[string]struct{})}
	w.walk(abs)
	result.Errors = append(result.Errors, w.errs...)
	if ctx.Err() != nil {
		result.Canceled = true
	}

	records, fileErrs, canceled := s.readAll(ctx, w.paths)
	for i, rec := range records {
		switch {
		case fileErrs[i] != nil:
			result.Errors = append(result.Errors, models.NewFileError(w.paths[i], fileErrs[i]))
		case rec != nil:
			result.Images = append(result.Images, rec)
			result.TotalSizeBytes += rec.Size
		}
	}
	result.ImageCount = len(result.Images)
	result.Canceled = result.Canceled || canceled

	s.logger.Info("scan finished",
		zap.String("root", abs),
		zap.Int("images", result.ImageCount),
		zap.Int("errors", len(result.Errors)),
		zap.Bool("canceled", result.Canceled))
	return result, nil
}

// ScanFolders scans multiple folders and merges the results. A path that
// appears under more than one root is reported once.
func (s *Scanner) ScanFolders(ctx context.Context, folders []string) (*models.ScanResult, error) {
	for _, folder := range folders {
		if err := ValidateRoot(folder); err != nil {
			return nil, err
		}
	}

	merged := &models.ScanResult{}
	seen := make(map[string]struct{})
	for _, folder := range folders {
		res, err := s.ScanFolder(ctx, folder)
		if err != nil {
			return nil, err
		}
		for _, img := range res.Images {
			if _, dup := seen[img.Path]; dup {
				continue
			}
			seen[img.Path] = struct{}{}
			merged.Images = append(merged.Images, img)
			merged.TotalSizeBytes += img.Size
		}
		merged.Errors = append(merged.Errors, res.Errors...)
		if res.Canceled {
			merged.Canceled = true
			break
		}
	}
	merged.ImageCount = len(merged.Images)
	if len(folders) == 1 {
		merged.Root = folders[0]
	}
	return merged, nil
}

// readAll reads metadata for paths on the I/O pool. Output slices are indexed
// like paths, so results keep traversal order regardless of completion order.
func (s *Scanner) readAll(ctx context.Context, paths []string) ([]*models.ImageRecord, []error, bool) {
	records := make([]*models.ImageRecord, len(paths))
	errs := make([]error, len(paths))
	rep := progress.NewReporter(s.progress, progress.OpScan, len(paths))

	var g errgroup.Group
	g.SetLimit(s.ioWorkers)

	canceled := false
	for i, p := range paths {
		if ctx.Err() != nil {
			canceled = true
			break
		}
		g.Go(func() error {
			rec, err := s.reader.Read(p)
			if err != nil {
				s.logger.Debug("skipping file", zap.String("path", p), zap.Error(err))
			}
			records[i], errs[i] = rec, err
			rep.Step(p, err)
			return nil
		})
	}
	g.Wait()
	return records, errs, canceled
}

// walker collects candidate image paths. Directories are identified by their
// resolved real path so symlink loops are entered once.
type walker struct {
	ctx     context.Context
	logger  *zap.Logger
	visited map[string]struct{}
	paths   []string
	errs    []models.FileError
}

func (w *walker) record(path string, err error) {
	w.logger.Debug("scan error", zap.String("path", path), zap.Error(err))
	w.errs = append(w.errs, models.NewFileError(path, err))
}

func (w *walker) walk(dir string) {
	if w.ctx.Err() != nil {
		return
	}

	real, err := filepath.EvalSymlinks(dir)
	if err != nil {
		w.record(dir, models.PathError(dir, err))
		return
	}
	if _, ok := w.visited[real]; ok {
		w.logger.Debug("skipping directory cycle", zap.String("path", dir), zap.String("target", real))
		return
	}
	w.visited[real] = struct{}{}

	// ReadDir returns the entries it could read before failing
	entries, err := os.ReadDir(dir)
	if err != nil {
		w.record(dir, models.PathError(dir, err))
	}

	for _, entry := range entries {
		if w.ctx.Err() != nil {
			return
		}
		path := filepath.Join(dir, entry.Name())

		mode := entry.Type()
		if mode&fs.ModeSymlink != 0 {
			info, err := os.Stat(path)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) && !meta.IsSupportedImage(path) {
					// Dangling links to non-images are not worth reporting
					continue
				}
				w.record(path, models.PathError(path, err))
				continue
			}
			mode = info.Mode().Type()
		}

		switch {
		case mode.IsDir():
			w.walk(path)
		case mode.IsRegular() && meta.IsSupportedImage(path):
			w.paths = append(w.paths, path)
		}
	}
}
