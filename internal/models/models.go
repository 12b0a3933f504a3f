package models

import "time"

// ImageRecord holds metadata for one scanned image. Hash fields are filled in
// by the hashing stage; everything else is fixed once the file is scanned.
type ImageRecord struct {
	Path        string     `json:"path"`
	Size        int64      `json:"size_bytes"`
	Width       int        `json:"width"`
	Height      int        `json:"height"`
	Format      string     `json:"format"`
	ModTime     time.Time  `json:"mod_time"`
	CreatedAt   *time.Time `json:"created_at,omitempty"` // From embedded metadata only
	Orientation int        `json:"orientation,omitempty"`
	CameraMake  string     `json:"camera_make,omitempty"`
	CameraModel string     `json:"camera_model,omitempty"`
	HasExif     bool       `json:"has_exif"`
	Score       float64    `json:"score"`

	Hashes  *HashSet `json:"hashes,omitempty"`
	HashErr error    `json:"-"`
}

// Hashable reports whether the record took part in hashing successfully.
func (r *ImageRecord) Hashable() bool {
	return r.Hashes != nil && r.HashErr == nil
}

// HashSet is the per-image bundle produced by the hash engine.
type HashSet struct {
	ContentHash string `json:"content_hash"` // hex SHA-256 of the file bytes
	Perceptual  uint64 `json:"perceptual"`
	Algorithm   string `json:"algorithm"`
	Version     string `json:"version"`
}

// Equal reports whether two hash sets are bit-identical.
func (h *HashSet) Equal(o *HashSet) bool {
	if h == nil || o == nil {
		return h == o
	}
	return *h == *o
}

// DuplicateGroup is a cluster of similar images with one designated primary.
type DuplicateGroup struct {
	ID         int            `json:"id"`
	Images     []*ImageRecord `json:"images"`     // Primary first
	Primary    *ImageRecord   `json:"primary"`    // Image to keep
	Duplicates []*ImageRecord `json:"duplicates"` // Everything else
}

// ReclaimableBytes returns the total size of the non-primary members.
func (g *DuplicateGroup) ReclaimableBytes() int64 {
	var n int64
	for _, img := range g.Duplicates {
		n += img.Size
	}
	return n
}

// ScanResult holds the result of a folder scan
type ScanResult struct {
	Root           string         `json:"root"`
	ImageCount     int            `json:"image_count"`
	TotalSizeBytes int64          `json:"total_size_bytes"`
	Images         []*ImageRecord `json:"images"`
	Errors         []FileError    `json:"errors,omitempty"`
	Canceled       bool           `json:"canceled,omitempty"`
}

// DuplicateResult holds the outcome of a duplicate search. Processed counts
// every file attempted, failed ones included, so Processed equals
// Hashed + CacheHits + len(Errors). Files never reached because of
// cancellation are not counted.
type DuplicateResult struct {
	Groups          []*DuplicateGroup `json:"groups"`
	TotalDuplicates int               `json:"total_duplicates"`
	Processed       int               `json:"processed"`
	Hashed          int               `json:"hashed"`    // computed this run
	CacheHits       int               `json:"cache_hits"` // served from the cache
	Errors          []FileError       `json:"errors,omitempty"`
	Canceled        bool              `json:"canceled,omitempty"`
}

// OperationOutcome aggregates per-file results of a move, copy or delete batch.
// Each file's outcome is independent; a failed file never discards the rest.
type OperationOutcome struct {
	Processed    int               `json:"processed"`
	Succeeded    int               `json:"succeeded"`
	Failed       int               `json:"failed"`
	Errors       []string          `json:"errors,omitempty"`
	Permanent    []string          `json:"permanent,omitempty"` // Deleted without a trash
	Destinations map[string]string `json:"destinations,omitempty"`
	Canceled     bool              `json:"canceled,omitempty"`
}

// NewOutcome returns an empty outcome ready for use.
func NewOutcome() *OperationOutcome {
	return &OperationOutcome{Destinations: make(map[string]string)}
}

// AddSuccess records a successful file. dest may be empty for deletions.
func (o *OperationOutcome) AddSuccess(src, dest string) {
	o.Processed++
	o.Succeeded++
	if dest != "" {
		o.Destinations[src] = dest
	}
}

// AddError records a failed file.
func (o *OperationOutcome) AddError(msg string) {
	o.Processed++
	o.Failed++
	o.Errors = append(o.Errors, msg)
}

// FormatQualityMultiplier returns quality multiplier for image format
func FormatQualityMultiplier(format string) float64 {
	switch format {
	case "png", "tiff", "bmp":
		return 1.2 // Lossless formats
	case "webp":
		return 1.1 // Often lossless or high quality
	case "jpeg", "jpg":
		return 1.0 // Lossy
	case "gif":
		return 0.9 // Limited colors
	default:
		return 1.0
	}
}

// MetadataMultiplier returns quality multiplier based on metadata presence
func MetadataMultiplier(hasExif bool) float64 {
	if hasExif {
		return 1.1 // Prefer images with metadata
	}
	return 1.0
}

// QualityScore computes the resolution-based quality score for an image.
func QualityScore(r *ImageRecord) float64 {
	resolution := float64(r.Width * r.Height)
	return resolution * FormatQualityMultiplier(r.Format) * MetadataMultiplier(r.HasExif)
}
