// Package engine wires the scanner, hasher, cache, grouper and sorter into the
// operations exposed to callers.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"photodedup/internal/cache"
	"photodedup/internal/config"
	"photodedup/internal/fileutil"
	"photodedup/internal/hash"
	"photodedup/internal/match"
	"photodedup/internal/meta"
	"photodedup/internal/models"
	"photodedup/internal/progress"
	"photodedup/internal/scan"
	"photodedup/internal/sorter"
	"photodedup/internal/storage"
	"photodedup/internal/thumb"
)

// Engine owns the hash cache and the persisted store for its lifetime.
// All methods are safe to call concurrently.
type Engine struct {
	cfg    *config.Config
	logger *zap.Logger
	reader *meta.Reader
	hasher *hash.Hasher
	cache  *cache.Cache
	store  *storage.Storage
	sorter *sorter.Sorter
	purger *sorter.Sorter
	thumbs *thumb.Generator

	strategy match.Strategy
	policy   match.Policy
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithCache injects a hash cache, bypassing the database configured in cfg.
// The engine does not own an injected cache and will not close it.
func WithCache(c *cache.Cache) Option {
	return func(e *Engine) {
		e.cache = c
	}
}

// WithReader sets the metadata reader, mainly to pin the EXIF time zone.
func WithReader(r *meta.Reader) Option {
	return func(e *Engine) {
		if r != nil {
			e.reader = r
		}
	}
}

// New builds an engine from cfg. The cache database is opened unless a cache
// was injected or cfg.NoCache is set; an unusable database never fails New.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	algo, _ := hash.ParseAlgorithm(cfg.Algorithm)
	strategy, _ := match.ParseStrategy(cfg.Strategy)
	policy, _ := match.ParsePolicy(cfg.Policy)

	e := &Engine{
		cfg:      cfg,
		logger:   zap.NewNop(),
		reader:   meta.NewReader(nil),
		hasher:   hash.NewHasher(hash.WithAlgorithm(algo), hash.WithMaxSide(cfg.MaxSide)),
		strategy: strategy,
		policy:   policy,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.cache == nil {
		if cfg.NoCache || cfg.DBPath == "" {
			e.cache = cache.NewMemory(e.logger)
		} else {
			var persisted bool
			e.cache, e.store, persisted = cache.Open(cfg.DBPath, e.logger)
			if !persisted {
				e.logger.Warn("running without a persistent cache", zap.String("db", cfg.DBPath))
			}
		}
	}

	e.sorter = sorter.New(sorter.WithReader(e.reader), sorter.WithLogger(e.logger))
	e.purger = sorter.New(sorter.WithLogger(e.logger), sorter.WithTrash(func(string) error {
		return fileutil.ErrTrashUnavailable
	}))
	e.thumbs = thumb.New(cfg.ThumbDir, cfg.ThumbSize)
	return e, nil
}

// Store returns the persisted store, or nil when running without one.
func (e *Engine) Store() *storage.Storage {
	return e.store
}

// CacheStats reports cache effectiveness since the engine was created.
func (e *Engine) CacheStats() cache.Stats {
	return e.cache.Stats()
}

// Close releases the cache database.
func (e *Engine) Close() error {
	if e.store != nil {
		return e.store.Close()
	}
	return nil
}

// Scan collects the images below root. It fails only for an invalid root.
func (e *Engine) Scan(ctx context.Context, root string, ch chan<- progress.Event) (*models.ScanResult, error) {
	s := scan.NewScanner(
		scan.WithIOWorkers(e.cfg.IOWorkers),
		scan.WithReader(e.reader),
		scan.WithLogger(e.logger),
		scan.WithProgress(ch),
	)
	return s.ScanFolder(ctx, root)
}

// ScanFolders scans several roots as one batch. Every root is validated
// before any is walked, and an image reachable from two roots is listed once.
func (e *Engine) ScanFolders(ctx context.Context, roots []string, ch chan<- progress.Event) (*models.ScanResult, error) {
	s := scan.NewScanner(
		scan.WithIOWorkers(e.cfg.IOWorkers),
		scan.WithReader(e.reader),
		scan.WithLogger(e.logger),
		scan.WithProgress(ch),
	)
	return s.ScanFolders(ctx, roots)
}

// FindDuplicates hashes paths and groups them at threshold. An invalid
// threshold fails the call before any file is touched; per-file failures are
// listed in the result. On cancellation the groups cover only the files
// hashed so far and are not persisted.
func (e *Engine) FindDuplicates(ctx context.Context, paths []string, threshold int, ch chan<- progress.Event) (*models.DuplicateResult, error) {
	grouper, err := match.NewGrouper(threshold,
		match.WithStrategy(e.strategy),
		match.WithPolicy(e.policy),
		match.WithBucketBits(e.cfg.BucketBits))
	if err != nil {
		return nil, err
	}
	return e.findWith(ctx, paths, grouper, ch)
}

// FindExactDuplicates groups only byte-identical files. Perceptual hashes are
// still computed so the cache stays complete for later searches.
func (e *Engine) FindExactDuplicates(ctx context.Context, paths []string, ch chan<- progress.Event) (*models.DuplicateResult, error) {
	return e.findWith(ctx, paths, match.NewExactMatcher(e.policy), ch)
}

func (e *Engine) findWith(ctx context.Context, paths []string, matcher match.Matcher, ch chan<- progress.Event) (*models.DuplicateResult, error) {
	paths = uniquePaths(paths)
	result := &models.DuplicateResult{}
	rep := progress.NewReporter(ch, progress.OpHash, len(paths))

	records := make([]*models.ImageRecord, len(paths))
	errs := make([]error, len(paths))
	cached := make([]bool, len(paths))
	version := e.hasher.Version()

	var g errgroup.Group
	g.SetLimit(e.cfg.Workers)
	for i, p := range paths {
		if ctx.Err() != nil {
			result.Canceled = true
			break
		}
		g.Go(func() error {
			records[i], cached[i], errs[i] = e.hashOne(p, version)
			if errs[i] != nil {
				e.logger.Debug("hash failed", zap.String("path", p), zap.Error(errs[i]))
			}
			rep.Step(p, errs[i])
			return nil
		})
	}
	g.Wait()

	var images []*models.ImageRecord
	for i, rec := range records {
		if errs[i] != nil {
			result.Processed++
			result.Errors = append(result.Errors, models.NewFileError(paths[i], errs[i]))
			continue
		}
		if rec == nil {
			continue
		}
		result.Processed++
		if cached[i] {
			result.CacheHits++
		} else {
			result.Hashed++
		}
		images = append(images, rec)
	}

	result.Groups = matcher.FindGroups(images)
	for _, group := range result.Groups {
		result.TotalDuplicates += len(group.Duplicates)
	}

	if e.store != nil && !result.Canceled {
		if err := e.store.SaveGroups(result.Groups); err != nil {
			e.logger.Warn("failed to persist groups", zap.Error(&models.CacheError{Op: "save groups", Err: err}))
		}
	}

	e.logger.Info("duplicate search finished",
		zap.Int("processed", result.Processed),
		zap.Int("hashed", result.Hashed),
		zap.Int("cache_hits", result.CacheHits),
		zap.Int("groups", len(result.Groups)),
		zap.Int("duplicates", result.TotalDuplicates),
		zap.Int("errors", len(result.Errors)),
		zap.Bool("canceled", result.Canceled))
	return result, nil
}

// RecordScan adds one history row for a batch of roots scanned together and
// then searched. Interrupted runs are not recorded.
func (e *Engine) RecordScan(roots []string, scanned *models.ScanResult, found *models.DuplicateResult) error {
	if e.store == nil || scanned == nil || found == nil || scanned.Canceled || found.Canceled {
		return nil
	}
	errCount := len(scanned.Errors) + len(found.Errors)
	err := e.store.RecordScan(strings.Join(roots, ", "), scanned.ImageCount, len(found.Groups), found.TotalDuplicates, errCount)
	if err != nil {
		return &models.CacheError{Op: "record scan", Err: err}
	}
	return nil
}

// hashOne reads metadata for path and attaches its hash set, from the cache
// when the file is unchanged.
func (e *Engine) hashOne(path, version string) (*models.ImageRecord, bool, error) {
	rec, err := e.reader.Read(path)
	if err != nil {
		return nil, false, err
	}
	hs, cached, err := e.cache.GetOrCompute(rec.Path, rec.Size, rec.ModTime, version, func() (*models.HashSet, error) {
		return e.hasher.HashFile(rec.Path)
	})
	if err != nil {
		rec.HashErr = err
		return nil, false, err
	}
	rec.Hashes = hs
	return rec, cached, nil
}

// SortByDate relocates paths into date folders below targetDir.
func (e *Engine) SortByDate(ctx context.Context, paths []string, method sorter.Method, targetDir string, opts sorter.Options, ch chan<- progress.Event) (*models.OperationOutcome, error) {
	out, err := e.sorter.SortByDate(ctx, paths, method, targetDir, opts, ch)
	if err == nil && method == sorter.MethodMove {
		e.forgetMoved(out)
	}
	return out, err
}

// MoveFiles moves paths into targetDir.
func (e *Engine) MoveFiles(ctx context.Context, paths []string, targetDir string, ch chan<- progress.Event) (*models.OperationOutcome, error) {
	out, err := e.sorter.MoveFiles(ctx, paths, targetDir, ch)
	if err == nil {
		e.forgetMoved(out)
	}
	return out, err
}

// DeleteFiles sends paths to the trash, deleting permanently only where no
// trash exists.
func (e *Engine) DeleteFiles(ctx context.Context, paths []string, ch chan<- progress.Event) (*models.OperationOutcome, error) {
	return e.deleteWith(ctx, e.sorter, paths, ch)
}

// PurgeFiles deletes paths permanently, bypassing the trash.
func (e *Engine) PurgeFiles(ctx context.Context, paths []string, ch chan<- progress.Event) (*models.OperationOutcome, error) {
	return e.deleteWith(ctx, e.purger, paths, ch)
}

func (e *Engine) deleteWith(ctx context.Context, s *sorter.Sorter, paths []string, ch chan<- progress.Event) (*models.OperationOutcome, error) {
	out, err := s.DeleteFiles(ctx, paths, ch)
	if err != nil || e.store == nil {
		return out, err
	}
	for _, p := range paths {
		if _, statErr := os.Lstat(p); errors.Is(statErr, os.ErrNotExist) {
			e.forget(p)
		}
	}
	return out, nil
}

// Thumbnail returns the path of a cached preview of path, generating it on
// first request.
func (e *Engine) Thumbnail(path string) (string, error) {
	return e.thumbs.Thumbnail(path)
}

func (e *Engine) forgetMoved(out *models.OperationOutcome) {
	if e.store == nil || out == nil {
		return
	}
	for src := range out.Destinations {
		if _, err := os.Lstat(src); errors.Is(err, os.ErrNotExist) {
			e.forget(src)
		}
	}
}

func (e *Engine) forget(path string) {
	if err := e.store.DeleteMember(path); err != nil {
		e.logger.Warn("failed to drop stale entry", zap.String("path", path),
			zap.Error(&models.CacheError{Op: "delete", Err: err}))
	}
}

// uniquePaths returns absolute, de-duplicated paths in first-seen order.
func uniquePaths(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = filepath.Clean(p)
		}
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}
		out = append(out, abs)
	}
	return out
}

// String describes the engine's matching configuration.
func (e *Engine) String() string {
	return fmt.Sprintf("%s threshold=%d strategy=%s policy=%s", e.hasher.Version(), e.cfg.Threshold, e.strategy, e.policy)
}
