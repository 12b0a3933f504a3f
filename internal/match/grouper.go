package match

import (
	"fmt"

	"photodedup/internal/hash"
	"photodedup/internal/models"
)

// MaxThreshold is the largest meaningful Hamming distance for 64-bit hashes.
const MaxThreshold = 64

// DefaultBucketBits is the prefix width used by the bucket strategy.
const DefaultBucketBits = 8

// Matcher partitions images into duplicate groups. Grouper matches on
// perceptual distance, ExactMatcher on identical content only.
type Matcher interface {
	FindGroups(images []*models.ImageRecord) []*models.DuplicateGroup
}

// Strategy selects how perceptual neighbours are found.
type Strategy string

const (
	// StrategyPairwise compares every pair. O(n²); fine up to a few
	// thousand images, impractical beyond tens of thousands.
	StrategyPairwise Strategy = "pairwise"
	// StrategyBKTree finds exactly the same pairs as pairwise using a BK-tree.
	StrategyBKTree Strategy = "bktree"
	// StrategyBucket only compares images whose hashes share the top
	// BucketBits bits. Fast but approximate: near pairs that differ in the
	// prefix are missed.
	StrategyBucket Strategy = "bucket"
)

// ParseStrategy validates a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(s); st {
	case StrategyPairwise, StrategyBKTree, StrategyBucket:
		return st, nil
	default:
		return "", fmt.Errorf("unknown matching strategy %q", s)
	}
}

// Grouper clusters images whose perceptual hashes are within a threshold.
// Images with identical content hashes are always grouped together.
type Grouper struct {
	threshold  int
	strategy   Strategy
	policy     Policy
	bucketBits int
}

// Option configures a Grouper
type Option func(*Grouper)

// WithStrategy sets the neighbour search strategy
func WithStrategy(s Strategy) Option {
	return func(g *Grouper) {
		if s != "" {
			g.strategy = s
		}
	}
}

// WithPolicy sets the primary selection policy
func WithPolicy(p Policy) Option {
	return func(g *Grouper) {
		if p != "" {
			g.policy = p
		}
	}
}

// WithBucketBits sets the prefix width for the bucket strategy
func WithBucketBits(n int) Option {
	return func(g *Grouper) {
		if n > 0 && n <= 32 {
			g.bucketBits = n
		}
	}
}

// NewGrouper creates a Grouper. The threshold must be in [0, 64].
func NewGrouper(threshold int, opts ...Option) (*Grouper, error) {
	if threshold < 0 || threshold > MaxThreshold {
		return nil, fmt.Errorf("%w: %d (want 0-%d)", models.ErrInvalidThreshold, threshold, MaxThreshold)
	}
	g := &Grouper{
		threshold:  threshold,
		strategy:   StrategyBKTree,
		policy:     PolicyCreated,
		bucketBits: DefaultBucketBits,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// FindGroups partitions the hashable images into disjoint groups of two or
// more. Images without hashes are ignored. The result depends only on the
// set of inputs, not their order.
func (g *Grouper) FindGroups(images []*models.ImageRecord) []*models.DuplicateGroup {
	var hashable []*models.ImageRecord
	for _, img := range images {
		if img.Hashable() {
			hashable = append(hashable, img)
		}
	}
	if len(hashable) < 2 {
		return nil
	}

	uf := newUnionFind(len(hashable))

	// Exact pre-pass: identical bytes always belong together
	byContent := make(map[string]int)
	for i, img := range hashable {
		if img.Hashes.ContentHash == "" {
			continue
		}
		if first, ok := byContent[img.Hashes.ContentHash]; ok {
			uf.union(first, i)
		} else {
			byContent[img.Hashes.ContentHash] = i
		}
	}

	hashes := make([]uint64, len(hashable))
	for i, img := range hashable {
		hashes[i] = img.Hashes.Perceptual
	}

	switch g.strategy {
	case StrategyPairwise:
		pairwise(hashes, g.threshold, uf.union)
	case StrategyBucket:
		bucketed(hashes, g.threshold, g.bucketBits, uf.union)
	default:
		bkSearch(hashes, g.threshold, uf.union)
	}

	return buildGroups(hashable, uf.components(2), g.policy)
}

func pairwise(hashes []uint64, threshold int, link func(i, j int)) {
	for i := 0; i < len(hashes); i++ {
		for j := i + 1; j < len(hashes); j++ {
			if hash.HammingDistance(hashes[i], hashes[j]) <= threshold {
				link(i, j)
			}
		}
	}
}

func bkSearch(hashes []uint64, threshold int, link func(i, j int)) {
	tree := newBKTree(hash.HammingDistance)
	for i, h := range hashes {
		// Find all existing images within threshold distance
		for _, j := range tree.findWithinDistance(h, threshold) {
			link(i, j)
		}
		tree.insert(h, i)
	}
}

func bucketed(hashes []uint64, threshold, bits int, link func(i, j int)) {
	buckets := make(map[uint64][]int)
	shift := uint(64 - bits)
	for i, h := range hashes {
		key := h >> shift
		buckets[key] = append(buckets[key], i)
	}
	for _, members := range buckets {
		for a := 0; a < len(members); a++ {
			for b := a + 1; b < len(members); b++ {
				i, j := members[a], members[b]
				if hash.HammingDistance(hashes[i], hashes[j]) <= threshold {
					link(i, j)
				}
			}
		}
	}
}

// ExactMatcher finds groups of images with identical content hashes
type ExactMatcher struct {
	policy Policy
}

// NewExactMatcher creates a new ExactMatcher
func NewExactMatcher(policy Policy) *ExactMatcher {
	if policy == "" {
		policy = PolicyCreated
	}
	return &ExactMatcher{policy: policy}
}

// FindGroups groups images by content hash only
func (m *ExactMatcher) FindGroups(images []*models.ImageRecord) []*models.DuplicateGroup {
	byContent := make(map[string][]int)
	var hashable []*models.ImageRecord
	for _, img := range images {
		if !img.Hashable() || img.Hashes.ContentHash == "" {
			continue
		}
		byContent[img.Hashes.ContentHash] = append(byContent[img.Hashes.ContentHash], len(hashable))
		hashable = append(hashable, img)
	}

	components := make([][]int, 0, len(byContent))
	for _, members := range byContent {
		components = append(components, members)
	}
	return buildGroups(hashable, components, m.policy)
}
