package match

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"testing"
	"time"

	"photodedup/internal/models"
)

func img(path, content string, phash uint64) *models.ImageRecord {
	return &models.ImageRecord{
		Path:   path,
		Hashes: &models.HashSet{ContentHash: content, Perceptual: phash, Algorithm: "average", Version: "test"},
	}
}

func mustGrouper(t testing.TB, threshold int, opts ...Option) *Grouper {
	t.Helper()
	g, err := NewGrouper(threshold, opts...)
	if err != nil {
		t.Fatalf("NewGrouper(%d) failed: %v", threshold, err)
	}
	return g
}

func TestNewGrouper_Threshold(t *testing.T) {
	tests := []struct {
		threshold int
		wantErr   bool
	}{
		{-1, true},
		{0, false},
		{10, false},
		{64, false},
		{65, true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.threshold), func(t *testing.T) {
			_, err := NewGrouper(tt.threshold)
			if tt.wantErr && !errors.Is(err, models.ErrInvalidThreshold) {
				t.Errorf("expected ErrInvalidThreshold, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestGrouper_Empty(t *testing.T) {
	g := mustGrouper(t, 10)
	if groups := g.FindGroups(nil); len(groups) != 0 {
		t.Errorf("expected no groups, got %d", len(groups))
	}
	if groups := g.FindGroups([]*models.ImageRecord{img("/a", "x", 0)}); len(groups) != 0 {
		t.Errorf("expected no groups for single image, got %d", len(groups))
	}
}

func TestGrouper_ThreeFileScenario(t *testing.T) {
	// Two byte-identical files and a resized copy within distance 3
	images := []*models.ImageRecord{
		img("/photos/resized.png", "c2", 0x00000000000000F1),
		img("/photos/b.png", "c1", 0x00000000000000F0),
		img("/photos/a.png", "c1", 0x00000000000000F0),
	}

	groups := mustGrouper(t, 5).FindGroups(images)
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	g := groups[0]
	if len(g.Images) != 3 {
		t.Errorf("expected 3 members, got %d", len(g.Images))
	}
	if g.Primary.Path != "/photos/a.png" {
		t.Errorf("primary = %s, want /photos/a.png", g.Primary.Path)
	}
	if g.ID != 1 || len(g.Duplicates) != 2 {
		t.Errorf("group = %+v", g)
	}
}

func TestGrouper_ExcludesUnhashable(t *testing.T) {
	broken := &models.ImageRecord{Path: "/broken.jpg", HashErr: errors.New("decode")}
	images := []*models.ImageRecord{img("/a", "1", 0), img("/b", "2", 0), broken, {Path: "/nohash.jpg"}}

	groups := mustGrouper(t, 0).FindGroups(images)
	if len(groups) != 1 || len(groups[0].Images) != 2 {
		t.Fatalf("expected one group of 2, got %+v", groups)
	}
}

func TestGrouper_ExactDuplicatesAlwaysGrouped(t *testing.T) {
	// Same bytes but (artificially) far apart perceptually
	images := []*models.ImageRecord{
		img("/a", "same", 0),
		img("/b", "same", 0xFFFFFFFFFFFFFFFF),
	}
	for _, threshold := range []int{0, 1, 10, 32} {
		groups := mustGrouper(t, threshold).FindGroups(images)
		if len(groups) != 1 {
			t.Errorf("threshold %d: expected identical content to be grouped, got %d groups", threshold, len(groups))
		}
	}
}

func TestGrouper_StrategiesAgree(t *testing.T) {
	images := clusteredImages(rand.New(rand.NewSource(42)), 30, 6)

	for _, threshold := range []int{0, 2, 5, 10} {
		bk := memberships(mustGrouper(t, threshold, WithStrategy(StrategyBKTree)).FindGroups(images))
		pw := memberships(mustGrouper(t, threshold, WithStrategy(StrategyPairwise)).FindGroups(images))
		if fmt.Sprint(bk) != fmt.Sprint(pw) {
			t.Errorf("threshold %d: bktree %v != pairwise %v", threshold, bk, pw)
		}
	}
}

func TestGrouper_BucketIsSubsetOfExact(t *testing.T) {
	images := clusteredImages(rand.New(rand.NewSource(3)), 40, 4)

	exact := mustGrouper(t, 8).FindGroups(images)
	approx := mustGrouper(t, 8, WithStrategy(StrategyBucket), WithBucketBits(4)).FindGroups(images)

	groupOf := make(map[string]int)
	for _, g := range exact {
		for _, m := range g.Images {
			groupOf[m.Path] = g.ID
		}
	}
	for _, g := range approx {
		id, ok := groupOf[g.Images[0].Path]
		for _, m := range g.Images {
			if !ok || groupOf[m.Path] != id {
				t.Fatalf("bucket group %v is not contained in an exact group", memberships([]*models.DuplicateGroup{g}))
			}
		}
	}
}

func TestGrouper_SingleAssignment(t *testing.T) {
	images := clusteredImages(rand.New(rand.NewSource(11)), 50, 5)

	for threshold := 0; threshold <= 20; threshold += 4 {
		seen := make(map[string]int)
		for _, g := range mustGrouper(t, threshold).FindGroups(images) {
			for _, m := range g.Images {
				if prev, ok := seen[m.Path]; ok {
					t.Fatalf("threshold %d: %s in groups %d and %d", threshold, m.Path, prev, g.ID)
				}
				seen[m.Path] = g.ID
			}
		}
	}
}

func TestGrouper_Monotonic(t *testing.T) {
	images := clusteredImages(rand.New(rand.NewSource(5)), 40, 5)

	prevGrouped := 0
	var prevGroups []*models.DuplicateGroup
	for threshold := 0; threshold <= 24; threshold++ {
		groups := mustGrouper(t, threshold).FindGroups(images)

		groupOf := make(map[string]int)
		grouped := 0
		for _, g := range groups {
			grouped += len(g.Images)
			for _, m := range g.Images {
				groupOf[m.Path] = g.ID
			}
		}
		if grouped < prevGrouped {
			t.Fatalf("threshold %d grouped %d images, fewer than %d", threshold, grouped, prevGrouped)
		}

		// Every earlier group must still be together
		for _, g := range prevGroups {
			id, ok := groupOf[g.Images[0].Path]
			for _, m := range g.Images {
				if !ok || groupOf[m.Path] != id {
					t.Fatalf("threshold %d split a group from threshold %d", threshold, threshold-1)
				}
			}
		}
		prevGrouped, prevGroups = grouped, groups
	}
}

func TestGrouper_Deterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	images := clusteredImages(rng, 30, 4)
	want := mustGrouper(t, 6).FindGroups(images)

	for i := 0; i < 5; i++ {
		shuffled := append([]*models.ImageRecord(nil), images...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got := mustGrouper(t, 6).FindGroups(shuffled)
		if fmt.Sprint(memberships(got)) != fmt.Sprint(memberships(want)) {
			t.Fatalf("memberships differ after shuffle")
		}
		for j := range got {
			if got[j].ID != want[j].ID || got[j].Primary.Path != want[j].Primary.Path {
				t.Fatalf("group %d: got id %d primary %s, want id %d primary %s",
					j, got[j].ID, got[j].Primary.Path, want[j].ID, want[j].Primary.Path)
			}
		}
	}
}

func TestGrouper_GroupsOrderedByPrimaryPath(t *testing.T) {
	images := []*models.ImageRecord{
		img("/z1", "z", 0xFF00), img("/z2", "z", 0xFF00),
		img("/a1", "a", 0x00FF), img("/a2", "a", 0x00FF),
	}
	groups := mustGrouper(t, 0).FindGroups(images)
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	if groups[0].Primary.Path != "/a1" || groups[0].ID != 1 || groups[1].ID != 2 {
		t.Errorf("unexpected order: %s(%d), %s(%d)", groups[0].Primary.Path, groups[0].ID, groups[1].Primary.Path, groups[1].ID)
	}
}

func TestPolicy_Primary(t *testing.T) {
	early := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	late := early.Add(time.Hour)
	now := time.Now()

	tests := []struct {
		name    string
		policy  Policy
		images  []*models.ImageRecord
		primary string
	}{
		{
			name:   "created prefers earliest",
			policy: PolicyCreated,
			images: []*models.ImageRecord{
				{Path: "/a.jpg", CreatedAt: &late},
				{Path: "/b.jpg", CreatedAt: &early},
			},
			primary: "/b.jpg",
		},
		{
			name:   "created puts missing dates last",
			policy: PolicyCreated,
			images: []*models.ImageRecord{
				{Path: "/a.jpg"},
				{Path: "/z.jpg", CreatedAt: &late},
			},
			primary: "/z.jpg",
		},
		{
			name:   "created falls back to path",
			policy: PolicyCreated,
			images: []*models.ImageRecord{
				{Path: "/b.jpg"},
				{Path: "/a.jpg"},
			},
			primary: "/a.jpg",
		},
		{
			name:   "path",
			policy: PolicyPath,
			images: []*models.ImageRecord{
				{Path: "/b.jpg", CreatedAt: &early},
				{Path: "/a.jpg", CreatedAt: &late},
			},
			primary: "/a.jpg",
		},
		{
			name:   "quality keeps highest score",
			policy: PolicyQuality,
			images: []*models.ImageRecord{
				{Path: "low.jpg", Score: 1.0, Size: 100, ModTime: now},
				{Path: "high.jpg", Score: 2.0, Size: 100, ModTime: now},
			},
			primary: "high.jpg",
		},
		{
			name:   "quality same score keeps larger file",
			policy: PolicyQuality,
			images: []*models.ImageRecord{
				{Path: "small.jpg", Score: 1.0, Size: 100, ModTime: now},
				{Path: "large.jpg", Score: 1.0, Size: 200, ModTime: now},
			},
			primary: "large.jpg",
		},
		{
			name:   "quality same score and size keeps newer",
			policy: PolicyQuality,
			images: []*models.ImageRecord{
				{Path: "old.jpg", Score: 1.0, Size: 100, ModTime: now.Add(-time.Hour)},
				{Path: "new.jpg", Score: 1.0, Size: 100, ModTime: now},
			},
			primary: "new.jpg",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			group := &models.DuplicateGroup{Images: tt.images}
			tt.policy.arrange(group)

			if group.Primary.Path != tt.primary {
				t.Errorf("primary = %s, want %s", group.Primary.Path, tt.primary)
			}
			if len(group.Duplicates) != len(tt.images)-1 {
				t.Errorf("duplicates = %d, want %d", len(group.Duplicates), len(tt.images)-1)
			}
		})
	}
}

func TestParsePolicyAndStrategy(t *testing.T) {
	if _, err := ParsePolicy("quality"); err != nil {
		t.Error(err)
	}
	if _, err := ParsePolicy("newest"); err == nil {
		t.Error("expected error for unknown policy")
	}
	if _, err := ParseStrategy("bucket"); err != nil {
		t.Error(err)
	}
	if _, err := ParseStrategy("lsh"); err == nil {
		t.Error("expected error for unknown strategy")
	}
}

func TestExactMatcher(t *testing.T) {
	m := NewExactMatcher(PolicyPath)

	if groups := m.FindGroups(nil); len(groups) != 0 {
		t.Errorf("expected no groups, got %d", len(groups))
	}

	images := []*models.ImageRecord{
		img("/img1.jpg", "abc", 0),
		img("/img2.jpg", "abc", 0xFFFF),
		img("/img3.jpg", "def", 0),
		img("/img4.jpg", "", 0),
	}
	groups := m.FindGroups(images)
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	if len(groups[0].Images) != 2 || groups[0].Primary.Path != "/img1.jpg" {
		t.Errorf("unexpected group %+v", groups[0])
	}
}

// clusteredImages returns n images around k random centres, each a few bits
// away from its centre. Some pairs share content hashes.
func clusteredImages(rng *rand.Rand, n, k int) []*models.ImageRecord {
	centres := make([]uint64, k)
	for i := range centres {
		centres[i] = rng.Uint64()
	}
	images := make([]*models.ImageRecord, n)
	for i := range images {
		h := centres[rng.Intn(k)]
		for flips := rng.Intn(6); flips > 0; flips-- {
			h ^= 1 << uint(rng.Intn(64))
		}
		content := fmt.Sprintf("c%d", i)
		if i%7 == 0 && i > 0 {
			content = fmt.Sprintf("c%d", i-1)
		}
		images[i] = img(fmt.Sprintf("/img/%03d.jpg", i), content, h)
	}
	return images
}

// memberships returns each group's sorted paths, groups sorted by first path.
func memberships(groups []*models.DuplicateGroup) [][]string {
	out := make([][]string, 0, len(groups))
	for _, g := range groups {
		paths := make([]string, len(g.Images))
		for i, m := range g.Images {
			paths[i] = m.Path
		}
		sort.Strings(paths)
		out = append(out, paths)
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

func BenchmarkGrouper_5000(b *testing.B) {
	images := clusteredImages(rand.New(rand.NewSource(1)), 5000, 500)
	g := mustGrouper(b, 10)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		g.FindGroups(images)
	}
}
