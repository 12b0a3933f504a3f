package match

// unionFind is a disjoint-set forest over indices 0..n-1. The resulting
// partition does not depend on the order of union calls.
type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	parent := make([]int, n)
	rank := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	return &unionFind{parent: parent, rank: rank}
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]] // Path halving
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(x, y int) {
	px, py := uf.find(x), uf.find(y)
	if px == py {
		return
	}
	// Union by rank
	if uf.rank[px] < uf.rank[py] {
		px, py = py, px
	}
	uf.parent[py] = px
	if uf.rank[px] == uf.rank[py] {
		uf.rank[px]++
	}
}

// components returns the members of every set with at least min elements,
// each in ascending index order.
func (uf *unionFind) components(min int) [][]int {
	byRoot := make(map[int][]int)
	for i := range uf.parent {
		r := uf.find(i)
		byRoot[r] = append(byRoot[r], i)
	}
	var out [][]int
	for _, members := range byRoot {
		if len(members) >= min {
			out = append(out, members)
		}
	}
	return out
}
