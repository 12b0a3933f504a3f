package match

// bkTree is a BK-tree over 64-bit hashes under a metric distance.
// Lookups prune subtrees with the triangle inequality, so a radius query
// visits far fewer nodes than a linear scan for small radii.
type bkTree struct {
	root     *bkNode
	distance func(a, b uint64) int
	count    int
}

type bkNode struct {
	hash     uint64
	index    int
	children map[int]*bkNode // distance -> child node
}

func newBKTree(distanceFn func(a, b uint64) int) *bkTree {
	return &bkTree{distance: distanceFn}
}

func (t *bkTree) insert(hash uint64, index int) {
	node := &bkNode{hash: hash, index: index}
	t.count++

	if t.root == nil {
		t.root = node
		return
	}

	current := t.root
	for {
		dist := t.distance(hash, current.hash)
		if child, ok := current.children[dist]; ok {
			current = child
			continue
		}
		if current.children == nil {
			current.children = make(map[int]*bkNode)
		}
		current.children[dist] = node
		return
	}
}

// findWithinDistance returns the indices of all elements within threshold
// of hash. Result order is unspecified.
func (t *bkTree) findWithinDistance(hash uint64, threshold int) []int {
	if t.root == nil {
		return nil
	}

	var results []int
	stack := []*bkNode{t.root}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		dist := t.distance(hash, node.hash)
		if dist <= threshold {
			results = append(results, node.index)
		}

		// Only children at distance [dist-threshold, dist+threshold] can match
		for childDist, child := range node.children {
			if childDist >= dist-threshold && childDist <= dist+threshold {
				stack = append(stack, child)
			}
		}
	}
	return results
}

func (t *bkTree) size() int {
	return t.count
}
