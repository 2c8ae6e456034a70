package heightmap

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

var (
	ErrMalformedSamples = errors.New("heightmap: sample count does not match tile vertex count")
	ErrBadTileLevel     = errors.New("heightmap: tile nesting level out of range")
)

// DefaultGCInterval is the period of the usage garbage-collect sweep.
const DefaultGCInterval = 500 * time.Millisecond

// Clock abstracts wall time so sweeps are testable without waiting.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// TileData is one tile's sample grid: a square layout of EdgeVerts vertices
// per axis, altitudes and material ids in row-major order.
type TileData struct {
	Altitudes   []float32
	MaterialIds []uint32
}

// EdgeVerts derives the square edge length from the sample count.
func (d *TileData) EdgeVerts() int {
	n := 1
	for n*n < len(d.Altitudes) {
		n++
	}
	return n
}

type Config struct {
	// MaxLevel is the leaf nesting level; a root covers 2^MaxLevel leaf
	// tiles per axis.
	MaxLevel int
	// TileVerts is the vertex grid edge size of every tile.
	TileVerts int
	// GCInterval overrides DefaultGCInterval when positive.
	GCInterval time.Duration
	Clock      Clock
}

type pendingState int

const (
	pendingResponse pendingState = iota
	pendingApplication
)

type pendingTile struct {
	token string
	state pendingState
	data  *TileData
}

// rootTexture is the bookkeeping for one root render target. Targets start
// as stubs at leaf resolution and are expanded the first time a finer tile
// renders into them. They are never evicted; the world is bounded.
type rootTexture struct {
	texels      int
	stub        bool
	dataPerLeaf map[[2]int]int // leaf coord -> max nesting level rendered
}

// Atlas tracks which terrain samples have been rendered where, at what
// precision, and which tiles should be fetched next. All mutation happens
// on the frame loop; sample producers hand results back through
// PushTileData guarded by request tokens.
type Atlas struct {
	cfg        Config
	clock      Clock
	gcInterval time.Duration
	tree       *Quadtree
	roots      map[[2]int]*rootTexture
	pending    map[TileCoord]*pendingTile
	usages     map[TileCoord]*TileUsage
	lastSweep  time.Time
}

func NewAtlas(cfg Config) *Atlas {
	clock := cfg.Clock
	if clock == nil {
		clock = systemClock{}
	}
	interval := cfg.GCInterval
	if interval <= 0 {
		interval = DefaultGCInterval
	}
	return &Atlas{
		cfg:        cfg,
		clock:      clock,
		gcInterval: interval,
		tree:       NewQuadtree(),
		roots:      make(map[[2]int]*rootTexture),
		pending:    make(map[TileCoord]*pendingTile),
		usages:     make(map[TileCoord]*TileUsage),
		lastSweep:  clock.Now(),
	}
}

// Quadtree exposes the spatial index the atlas materializes for its tiles.
func (a *Atlas) Quadtree() *Quadtree { return a.tree }

// checkLevel rejects tiles outside the configured nesting range before
// they can reach the per-leaf bookkeeping.
func (a *Atlas) checkLevel(tile TileCoord) error {
	if tile.Level < 0 || tile.Level > a.cfg.MaxLevel {
		return fmt.Errorf("%w: level %d, max %d", ErrBadTileLevel, tile.Level, a.cfg.MaxLevel)
	}
	return nil
}

// RequestTileData registers an outstanding fetch for the tile and returns
// the token the producer must echo in PushTileData. Re-requesting a tile
// supersedes the previous token, so a late response to the old request is
// dropped.
func (a *Atlas) RequestTileData(tile TileCoord) (string, error) {
	if err := a.checkLevel(tile); err != nil {
		return "", err
	}
	token := uuid.NewString()
	a.pending[tile] = &pendingTile{token: token, state: pendingResponse}
	return token, nil
}

// CancelRequest withdraws an outstanding fetch, making the tile eligible
// for TilesNeedingData again. Only the matching token cancels, and a
// response that already arrived is kept.
func (a *Atlas) CancelRequest(tile TileCoord, token string) {
	p := a.pending[tile]
	if p == nil || p.token != token || p.state != pendingResponse {
		return
	}
	delete(a.pending, tile)
}

// PushTileData hands fetched samples to the atlas. A token that no longer
// matches the last issued request for the tile makes the call a no-op.
func (a *Atlas) PushTileData(tile TileCoord, token string, data TileData) error {
	if err := a.checkLevel(tile); err != nil {
		return err
	}
	want := a.cfg.TileVerts * a.cfg.TileVerts
	if len(data.Altitudes) != want || len(data.MaterialIds) != want {
		return ErrMalformedSamples
	}
	p := a.pending[tile]
	if p == nil || p.token != token {
		return nil
	}
	p.state = pendingApplication
	p.data = &data
	return nil
}

// Update drains every tile waiting for application: renders its samples
// into the root target's sub-viewport and bumps the covered leaves'
// recorded precision. Precision only ever increases.
func (a *Atlas) Update(renderer Renderer) int {
	applied := 0
	for tile, p := range a.pending {
		if p.state != pendingApplication {
			continue
		}
		delete(a.pending, tile)
		a.apply(renderer, tile, p.data)
		applied++
	}
	return applied
}

func (a *Atlas) apply(renderer Renderer, tile TileCoord, data *TileData) {
	root := tile.Root()
	key := [2]int{root.X, root.Y}
	rt := a.roots[key]
	if rt == nil {
		rt = &rootTexture{
			texels:      a.cfg.TileVerts,
			stub:        true,
			dataPerLeaf: make(map[[2]int]int),
		}
		a.roots[key] = rt
		renderer.CreateTarget(key, rt.texels)
	}
	if tile.Level > 0 && rt.stub {
		rt.stub = false
		rt.texels = a.cfg.TileVerts << a.cfg.MaxLevel
		renderer.ExpandTarget(key, rt.texels)
	}

	span := rt.texels >> tile.Level
	vp := Viewport{
		X: (tile.X - root.X<<tile.Level) * span,
		Y: (tile.Y - root.Y<<tile.Level) * span,
		W: span,
		H: span,
	}
	renderer.RenderTile(key, vp, data)

	for _, leaf := range a.leavesOf(tile) {
		if prev, ok := rt.dataPerLeaf[leaf]; !ok || tile.Level > prev {
			rt.dataPerLeaf[leaf] = tile.Level
		}
	}
}

// leavesOf enumerates the leaf-level coordinates covered by the tile.
func (a *Atlas) leavesOf(tile TileCoord) [][2]int {
	n := 1 << (a.cfg.MaxLevel - tile.Level)
	leaves := make([][2]int, 0, n*n)
	for dy := 0; dy < n; dy++ {
		for dx := 0; dx < n; dx++ {
			leaves = append(leaves, [2]int{tile.X*n + dx, tile.Y*n + dy})
		}
	}
	return leaves
}

// HasBasicData reports whether every leaf under the tile has had any data
// rendered, at whatever precision.
func (a *Atlas) HasBasicData(tile TileCoord) bool {
	root := tile.Root()
	rt := a.roots[[2]int{root.X, root.Y}]
	if rt == nil {
		return false
	}
	for _, leaf := range a.leavesOf(tile) {
		if _, ok := rt.dataPerLeaf[leaf]; !ok {
			return false
		}
	}
	return true
}

// HasOptimalData reports whether every leaf under the tile has been
// rendered at the tile's own nesting level or finer.
func (a *Atlas) HasOptimalData(tile TileCoord) bool {
	root := tile.Root()
	rt := a.roots[[2]int{root.X, root.Y}]
	if rt == nil {
		return false
	}
	for _, leaf := range a.leavesOf(tile) {
		level, ok := rt.dataPerLeaf[leaf]
		if !ok || level < tile.Level {
			return false
		}
	}
	return true
}

// TilesNeedingData lists viewed tiles still short of optimal precision,
// most urgent first. Tiles with no data at all always outrank tiles merely
// below target resolution; among the rest, more optimal-data requesters and
// finer nesting win. Tiles with an outstanding request are excluded.
func (a *Atlas) TilesNeedingData() []TileCoord {
	type scored struct {
		tile     TileCoord
		priority int
	}
	var out []scored
	for tile, u := range a.usages {
		if len(u.views) == 0 {
			continue
		}
		if _, busy := a.pending[tile]; busy {
			continue
		}
		if a.HasOptimalData(tile) {
			continue
		}
		priority := 1000*len(u.optimal) + 1000*tile.Level
		if !a.HasBasicData(tile) {
			priority += 100000
		}
		out = append(out, scored{tile: tile, priority: priority})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].priority != out[j].priority {
			return out[i].priority > out[j].priority
		}
		return out[i].tile.String() < out[j].tile.String()
	})
	tiles := make([]TileCoord, len(out))
	for i, s := range out {
		tiles[i] = s.tile
	}
	return tiles
}

// Maintain runs the periodic sweep: usages with no live views are dropped.
// Root textures stay allocated for the atlas lifetime.
func (a *Atlas) Maintain() {
	now := a.clock.Now()
	if now.Sub(a.lastSweep) < a.gcInterval {
		return
	}
	a.lastSweep = now
	for tile, u := range a.usages {
		if len(u.views) == 0 {
			delete(a.usages, tile)
		}
	}
}
