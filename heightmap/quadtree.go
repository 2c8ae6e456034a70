// Package heightmap manages multi-resolution terrain sample data: a sparse
// quadtree over world tiles, a texture atlas tracking per-leaf precision of
// ingested samples, and reference-counted tile views that drive fetch
// prioritization and garbage collection.
package heightmap

import (
	"fmt"

	"github.com/gekko3d/voxterra/grid"
)

// TileCoord addresses one quadrant of the conceptually infinite tile grid.
// Level 0 is the coarsest; each level doubles the grid resolution per axis.
type TileCoord struct {
	Level int
	X, Y  int
}

func (t TileCoord) String() string {
	return fmt.Sprintf("%d/%d,%d", t.Level, t.X, t.Y)
}

// Parent is the covering tile one level up.
func (t TileCoord) Parent() TileCoord {
	return TileCoord{Level: t.Level - 1, X: grid.FloorDiv(t.X, 2), Y: grid.FloorDiv(t.Y, 2)}
}

// Root is the level-0 ancestor.
func (t TileCoord) Root() TileCoord {
	return TileCoord{X: grid.FloorDiv(t.X, 1<<t.Level), Y: grid.FloorDiv(t.Y, 1<<t.Level)}
}

// quadrantIndex places a child under its parent: x-minor, y-major over the
// mm, mp, pm, pp quadrants.
func quadrantIndex(t TileCoord) int {
	return grid.FloorMod(t.X, 2)*2 + grid.FloorMod(t.Y, 2)
}

// Node is one materialized quadtree cell. Children are built lazily and
// never removed.
type Node struct {
	coord    TileCoord
	parent   *Node
	children [4]*Node
}

func (n *Node) Coord() TileCoord { return n.coord }
func (n *Node) Parent() *Node    { return n.parent }

// Child returns the quadrant child (qx, qy in {0,1}), nil if not built.
func (n *Node) Child(qx, qy int) *Node {
	return n.children[qx*2+qy]
}

func (n *Node) subdivided() bool {
	for _, c := range n.children {
		if c != nil {
			return true
		}
	}
	return false
}

// Quadtree is a sparse, grow-only index of tiles. Roots live in a flat map;
// deeper nodes hang off their parent.
type Quadtree struct {
	roots map[[2]int]*Node
	count int
}

func NewQuadtree() *Quadtree {
	return &Quadtree{roots: make(map[[2]int]*Node)}
}

// GetNode returns the materialized node for the coordinate, or nil.
func (q *Quadtree) GetNode(c TileCoord) *Node {
	if c.Level < 0 {
		return nil
	}
	if c.Level == 0 {
		return q.roots[[2]int{c.X, c.Y}]
	}
	p := q.GetNode(c.Parent())
	if p == nil {
		return nil
	}
	return p.children[quadrantIndex(c)]
}

// GetOrBuildNode materializes the full ancestor chain from level 0 down to
// the coordinate. Hanging the first child under a node also force-builds
// that node's four axis neighbors at the same level, so edge-resolution
// traversals between adjacent LOD levels never meet a missing sibling.
func (q *Quadtree) GetOrBuildNode(c TileCoord) *Node {
	if c.Level < 0 {
		return nil
	}
	if c.Level == 0 {
		key := [2]int{c.X, c.Y}
		n := q.roots[key]
		if n == nil {
			n = &Node{coord: c}
			q.roots[key] = n
			q.count++
		}
		return n
	}

	parent := q.GetOrBuildNode(c.Parent())
	qi := quadrantIndex(c)
	if existing := parent.children[qi]; existing != nil {
		return existing
	}
	if !parent.subdivided() {
		pc := parent.coord
		for _, d := range [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
			q.GetOrBuildNode(TileCoord{Level: pc.Level, X: pc.X + d[0], Y: pc.Y + d[1]})
		}
	}
	n := &Node{coord: c, parent: parent}
	parent.children[qi] = n
	q.count++
	return n
}

// NodeCount is the total number of materialized nodes.
func (q *Quadtree) NodeCount() int { return q.count }
