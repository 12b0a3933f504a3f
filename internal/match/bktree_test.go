package match

import (
	"math/rand"
	"testing"

	"photodedup/internal/hash"
)

func TestBKTree_Empty(t *testing.T) {
	tree := newBKTree(hash.HammingDistance)

	if results := tree.findWithinDistance(0, 10); len(results) != 0 {
		t.Errorf("expected empty results for empty tree, got %d", len(results))
	}
	if tree.size() != 0 {
		t.Errorf("expected size 0, got %d", tree.size())
	}
}

func TestBKTree_SingleElement(t *testing.T) {
	tree := newBKTree(hash.HammingDistance)
	tree.insert(0b1111, 0)

	// Exact match
	results := tree.findWithinDistance(0b1111, 0)
	if len(results) != 1 || results[0] != 0 {
		t.Errorf("expected [0], got %v", results)
	}

	// Within threshold
	results = tree.findWithinDistance(0b1110, 1) // distance 1
	if len(results) != 1 || results[0] != 0 {
		t.Errorf("expected [0], got %v", results)
	}

	// Outside threshold
	results = tree.findWithinDistance(0b0000, 3) // distance 4
	if len(results) != 0 {
		t.Errorf("expected [], got %v", results)
	}
}

func TestBKTree_MultipleElements(t *testing.T) {
	tree := newBKTree(hash.HammingDistance)

	hashes := []uint64{
		0b0000, // index 0
		0b0001, // index 1, distance 1 from 0
		0b0011, // index 2, distance 2 from 0, distance 1 from 1
		0b1111, // index 3, distance 4 from 0
		0b0000, // index 4, distance 0 from 0 (duplicate hash)
	}
	for i, h := range hashes {
		tree.insert(h, i)
	}

	if tree.size() != 5 {
		t.Errorf("expected size 5, got %d", tree.size())
	}

	tests := []struct {
		threshold int
		expected  []int
	}{
		{0, []int{0, 4}},
		{1, []int{0, 1, 4}},
		{2, []int{0, 1, 2, 4}},
		{4, []int{0, 1, 2, 3, 4}},
	}
	for _, tt := range tests {
		results := tree.findWithinDistance(0b0000, tt.threshold)
		if !containsAll(results, tt.expected) {
			t.Errorf("threshold %d: expected %v, got %v", tt.threshold, tt.expected, results)
		}
	}
}

func TestBKTree_MatchesLinearScan(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	tree := newBKTree(hash.HammingDistance)
	hashes := make([]uint64, 500)
	for i := range hashes {
		hashes[i] = rng.Uint64()
		tree.insert(hashes[i], i)
	}

	for q := 0; q < 20; q++ {
		query := hashes[rng.Intn(len(hashes))] ^ (1 << uint(rng.Intn(64)))
		for _, threshold := range []int{0, 3, 10, 24} {
			var want []int
			for i, h := range hashes {
				if hash.HammingDistance(query, h) <= threshold {
					want = append(want, i)
				}
			}
			if got := tree.findWithinDistance(query, threshold); !containsAll(got, want) {
				t.Fatalf("threshold %d: got %v, want %v", threshold, got, want)
			}
		}
	}
}

func TestBKTree_LargeThreshold(t *testing.T) {
	tree := newBKTree(hash.HammingDistance)
	for i := 0; i < 10; i++ {
		tree.insert(uint64(i), i)
	}

	// Large threshold should return all
	if results := tree.findWithinDistance(0, 64); len(results) != 10 {
		t.Errorf("expected 10 results, got %d", len(results))
	}
}

func TestUnionFind(t *testing.T) {
	uf := newUnionFind(5)

	// Initially all separate
	for i := 0; i < 5; i++ {
		if uf.find(i) != i {
			t.Errorf("expected %d to be its own root", i)
		}
	}

	uf.union(0, 1)
	if uf.find(0) != uf.find(1) {
		t.Error("expected 0 and 1 to be in same group")
	}

	uf.union(2, 3)
	if uf.find(2) != uf.find(3) {
		t.Error("expected 2 and 3 to be in same group")
	}

	// 4 should still be separate
	if uf.find(4) == uf.find(0) || uf.find(4) == uf.find(2) {
		t.Error("expected 4 to be separate")
	}

	// Union the two groups
	uf.union(1, 3)
	if uf.find(0) != uf.find(2) {
		t.Error("expected all of 0,1,2,3 to be in same group")
	}

	comps := uf.components(2)
	if len(comps) != 1 || len(comps[0]) != 4 {
		t.Errorf("components(2) = %v, want one set of 4", comps)
	}
}

// containsAll reports whether results and expected hold the same indices.
func containsAll(results []int, expected []int) bool {
	if len(results) != len(expected) {
		return false
	}
	found := make(map[int]bool)
	for _, r := range results {
		found[r] = true
	}
	for _, e := range expected {
		if !found[e] {
			return false
		}
	}
	return true
}

func BenchmarkBKTree_Insert(b *testing.B) {
	tree := newBKTree(hash.HammingDistance)
	for i := 0; i < b.N; i++ {
		tree.insert(uint64(i*12345), i)
	}
}

func BenchmarkBKTree_Find(b *testing.B) {
	tree := newBKTree(hash.HammingDistance)
	for i := 0; i < 10000; i++ {
		tree.insert(uint64(i*12345), i)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tree.findWithinDistance(uint64(i*67890), 10)
	}
}
