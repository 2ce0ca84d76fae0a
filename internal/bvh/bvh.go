// Package bvh builds, refits and traverses bounding volume hierarchies on
// the CPU. The software device uses it to execute acceleration structure
// builds.
package bvh

import (
	"slices"

	"github.com/cockroachdb/errors"
)

const (
	// maxLeafSize is the largest number of items a leaf holds.
	maxLeafSize = 4

	// binCount is the number of SAH bins per axis.
	binCount = 12
)

// ErrTopology is returned by Refit when the item count differs from the build.
var ErrTopology = errors.New("bvh: refit with a different item count")

// Node is one BVH node.
//
// For interior nodes Count is 0 and Left is the index of the left child;
// the right child is at Left+1. For leaves Left is the first entry of
// Tree.Items and Count the number of entries.
type Node struct {
	Bounds AABB
	Left   int32
	Count  int32
}

// Leaf reports whether n is a leaf.
func (n *Node) Leaf() bool { return n.Count > 0 }

// Tree is a built hierarchy. Nodes[0] is the root. Children always follow
// their parent, so a reverse scan visits children before parents.
type Tree struct {
	Nodes []Node

	// Items maps leaf slots to the caller's item indices.
	Items []int32

	size int
}

// Len returns the number of items the tree was built over.
func (t *Tree) Len() int { return t.size }

// Bounds returns the root bounds, or an empty box for an empty tree.
func (t *Tree) Bounds() AABB {
	if len(t.Nodes) == 0 {
		return Empty()
	}
	return t.Nodes[0].Bounds
}

// Build constructs a tree over items using binned surface area heuristics.
func Build(items []AABB) *Tree {
	t := &Tree{
		Items: make([]int32, len(items)),
		size:  len(items),
	}
	for i := range t.Items {
		t.Items[i] = int32(i)
	}
	if len(items) == 0 {
		return t
	}
	t.Nodes = make([]Node, 1, 2*len(items))
	t.split(items, 0, 0, len(items))
	return t
}

func (t *Tree) split(items []AABB, node, first, count int) {
	bounds, centroids := Empty(), Empty()
	for _, idx := range t.Items[first : first+count] {
		bounds = bounds.Union(items[idx])
		centroids = centroids.Extend(items[idx].Centroid())
	}
	t.Nodes[node] = Node{Bounds: bounds, Left: int32(first), Count: int32(count)}
	if count <= maxLeafSize {
		return
	}

	axis := centroids.LargestAxis()
	lo, hi := centroids.Min[axis], centroids.Max[axis]
	if hi <= lo {
		// Every centroid coincides; no split separates them.
		return
	}

	mid := t.partitionSAH(items, first, count, axis, lo, hi, bounds)
	if mid <= first || mid >= first+count {
		seg := t.Items[first : first+count]
		slices.SortFunc(seg, func(a, b int32) int {
			ca, cb := items[a].Centroid()[axis], items[b].Centroid()[axis]
			switch {
			case ca < cb:
				return -1
			case ca > cb:
				return 1
			default:
				return 0
			}
		})
		mid = first + count/2
	}

	left := len(t.Nodes)
	t.Nodes = append(t.Nodes, Node{}, Node{})
	t.Nodes[node].Left = int32(left)
	t.Nodes[node].Count = 0
	t.split(items, left, first, mid-first)
	t.split(items, left+1, mid, first+count-mid)
}

// partitionSAH partitions the item range at the cheapest bin boundary and
// returns the index of the first item of the right half. It returns first
// when splitting costs more than a leaf.
func (t *Tree) partitionSAH(items []AABB, first, count, axis int, lo, hi float32, bounds AABB) int {
	type bin struct {
		bounds AABB
		count  int
	}
	var bins [binCount]bin
	for i := range bins {
		bins[i].bounds = Empty()
	}
	scale := float32(binCount) / (hi - lo)
	binOf := func(idx int32) int {
		b := int((items[idx].Centroid()[axis] - lo) * scale)
		return min(max(b, 0), binCount-1)
	}
	for _, idx := range t.Items[first : first+count] {
		b := &bins[binOf(idx)]
		b.bounds = b.bounds.Union(items[idx])
		b.count++
	}

	// Sweep from the right to get the cost of every right half.
	var rightArea [binCount]float32
	var rightCount [binCount]int
	acc, n := Empty(), 0
	for i := binCount - 1; i > 0; i-- {
		acc = acc.Union(bins[i].bounds)
		n += bins[i].count
		rightArea[i] = acc.SurfaceArea()
		rightCount[i] = n
	}

	best, bestCost := -1, float32(count)*bounds.SurfaceArea()
	acc, n = Empty(), 0
	for i := 0; i < binCount-1; i++ {
		acc = acc.Union(bins[i].bounds)
		n += bins[i].count
		if n == 0 || rightCount[i+1] == 0 {
			continue
		}
		cost := float32(n)*acc.SurfaceArea() + float32(rightCount[i+1])*rightArea[i+1]
		if cost < bestCost {
			best, bestCost = i, cost
		}
	}
	if best < 0 {
		return first
	}

	i, j := first, first+count-1
	for i <= j {
		if binOf(t.Items[i]) <= best {
			i++
			continue
		}
		t.Items[i], t.Items[j] = t.Items[j], t.Items[i]
		j--
	}
	return i
}

// Refit recomputes node bounds for moved items without changing the tree
// shape. items must have the length the tree was built with.
func (t *Tree) Refit(items []AABB) error {
	if len(items) != t.size {
		return errors.Wrapf(ErrTopology, "built with %d, refit with %d", t.size, len(items))
	}
	for i := len(t.Nodes) - 1; i >= 0; i-- {
		n := &t.Nodes[i]
		if n.Leaf() {
			b := Empty()
			for _, idx := range t.Items[n.Left : n.Left+n.Count] {
				b = b.Union(items[idx])
			}
			n.Bounds = b
			continue
		}
		n.Bounds = t.Nodes[n.Left].Bounds.Union(t.Nodes[n.Left+1].Bounds)
	}
	return nil
}

// Traverse visits every item whose leaf bounds r enters before tmax. visit
// returns the new tmax, letting closest-hit searches shrink the interval.
// It returns the final tmax.
func (t *Tree) Traverse(r Ray, tmax float32, visit func(item int32, tmax float32) float32) float32 {
	if len(t.Nodes) == 0 {
		return tmax
	}
	stack := make([]int32, 0, 64)
	stack = append(stack, 0)
	for len(stack) > 0 {
		n := &t.Nodes[stack[len(stack)-1]]
		stack = stack[:len(stack)-1]
		if !n.Bounds.Hits(r, tmax) {
			continue
		}
		if n.Leaf() {
			for _, idx := range t.Items[n.Left : n.Left+n.Count] {
				tmax = visit(idx, tmax)
			}
			continue
		}
		stack = append(stack, n.Left, n.Left+1)
	}
	return tmax
}
