package heightmap

import "github.com/google/uuid"

// TileUsage is the shared refcount record for one tile: every live view
// token, and the subset of tokens currently demanding optimal precision.
type TileUsage struct {
	tile    TileCoord
	views   map[string]struct{}
	optimal map[string]struct{}
}

func (u *TileUsage) ViewCount() int { return len(u.views) }

// TileView is one consumer's handle on a tile. Views share the tile's
// usage record; dropping the last view makes the usage eligible for the
// next sweep, never for synchronous teardown.
type TileView struct {
	atlas *Atlas
	usage *TileUsage
	token string
}

// GetTileView registers a new view on the tile, materializing its quadtree
// node on first use. Tiles outside the configured nesting range are a
// contract violation.
func (a *Atlas) GetTileView(tile TileCoord) (*TileView, error) {
	if err := a.checkLevel(tile); err != nil {
		return nil, err
	}
	u := a.usages[tile]
	if u == nil {
		u = &TileUsage{
			tile:    tile,
			views:   make(map[string]struct{}),
			optimal: make(map[string]struct{}),
		}
		a.usages[tile] = u
		a.tree.GetOrBuildNode(tile)
	}
	token := uuid.NewString()
	u.views[token] = struct{}{}
	return &TileView{atlas: a, usage: u, token: token}, nil
}

func (v *TileView) Tile() TileCoord { return v.usage.tile }

func (v *TileView) HasBasicData() bool {
	return v.atlas.HasBasicData(v.usage.tile)
}

func (v *TileView) HasOptimalData() bool {
	return v.atlas.HasOptimalData(v.usage.tile)
}

// UseOptimalData flags this view as needing its tile's full precision,
// raising the tile's fetch priority.
func (v *TileView) UseOptimalData() {
	if _, live := v.usage.views[v.token]; !live {
		return
	}
	v.usage.optimal[v.token] = struct{}{}
}

func (v *TileView) StopUsingOptimalData() {
	delete(v.usage.optimal, v.token)
}

// StopUsingView releases the view. The usage record lingers until the next
// maintenance sweep.
func (v *TileView) StopUsingView() {
	delete(v.usage.views, v.token)
	delete(v.usage.optimal, v.token)
}
