// Package voxterra ties the terrain subsystems into one frame-driven
// engine: voxel chunk ingestion with background bit-packing, collision
// queries, the heightmap LOD atlas with procedural sample fetches on the
// worker pool, and instanced prop batching.
package voxterra

import (
	"fmt"
	"runtime"
	"time"

	"github.com/gekko3d/voxterra/collider"
	"github.com/gekko3d/voxterra/collision"
	"github.com/gekko3d/voxterra/grid"
	"github.com/gekko3d/voxterra/heightmap"
	"github.com/gekko3d/voxterra/props"
	"github.com/gekko3d/voxterra/task"
)

// SampleTileKind is the task-pool kind for procedural tile sampling.
const SampleTileKind task.Kind = "heightmap/sample-tile"

// DefaultFetchesPerFrame caps how many tile fetches one Update issues.
const DefaultFetchesPerFrame = 4

type Config struct {
	// ChunkSize is the interior voxel chunk size per axis.
	ChunkSize [3]int
	// Ordering every chunk producer must declare.
	Ordering grid.Ordering
	// IsVoxelEmpty decides raw-code emptiness; default treats code 0 as empty.
	IsVoxelEmpty func(code uint16) bool
	// PackDelay defers chunk bit packing after ingestion; defaults to
	// collider.DefaultPackDelay.
	PackDelay time.Duration

	Workers int

	AtlasMaxLevel int
	TileVerts     int
	// RootTileSpan is the world-space edge length of one level-0 tile.
	RootTileSpan float32
	Seed         int64
	// Renderer receives atlas tile renders; default is the software one.
	Renderer heightmap.Renderer

	PropsBatchSize   int
	MinGroupPartSize int
	NewPropHandle    func() props.RenderHandle

	FetchesPerFrame int
	Clock           Clock
	Logger          Logger
}

func (c Config) withDefaults() Config {
	if c.ChunkSize == ([3]int{}) {
		c.ChunkSize = [3]int{32, 32, 32}
	}
	if c.Ordering == "" {
		c.Ordering = grid.OrderingZYX
	}
	if c.IsVoxelEmpty == nil {
		c.IsVoxelEmpty = func(code uint16) bool { return code == 0 }
	}
	if c.PackDelay == 0 {
		c.PackDelay = collider.DefaultPackDelay
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.AtlasMaxLevel <= 0 {
		c.AtlasMaxLevel = 4
	}
	if c.TileVerts <= 1 {
		c.TileVerts = 65
	}
	if c.RootTileSpan <= 0 {
		c.RootTileSpan = 1024
	}
	if c.Renderer == nil {
		c.Renderer = heightmap.NewSoftwareRenderer()
	}
	if c.PropsBatchSize <= 0 {
		c.PropsBatchSize = 1024
	}
	if c.MinGroupPartSize <= 0 {
		c.MinGroupPartSize = 32
	}
	if c.FetchesPerFrame <= 0 {
		c.FetchesPerFrame = DefaultFetchesPerFrame
	}
	if c.Clock == nil {
		c.Clock = SystemClock{}
	}
	if c.Logger == nil {
		c.Logger = NewNopLogger()
	}
	return c
}

type tileFetch struct {
	tile    heightmap.TileCoord
	token   string
	pending *task.Pending
}

// Engine owns the subsystems and drives their per-frame maintenance. All
// methods must be called from the owner's update loop; the worker pool is
// the only parallelism, and its results are applied here.
type Engine struct {
	cfg        Config
	log        Logger
	clock      Clock
	pool       *task.Pool
	collider   *collider.Collider
	collisions *collision.Collisions
	atlas      *heightmap.Atlas
	props      *props.Handler
	fetches    []tileFetch
}

func NewEngine(cfg Config) (*Engine, error) {
	cfg = cfg.withDefaults()

	sampler := heightmap.NewNoiseSampler(cfg.Seed, cfg.TileVerts, cfg.RootTileSpan)
	registry := task.Registry{}
	collider.RegisterTasks(registry)
	registry[SampleTileKind] = func(payload any) (any, error) {
		return sampler.SampleTile(payload.(heightmap.TileCoord)), nil
	}
	pool := task.NewPool(cfg.Workers, registry)

	col, err := collider.New(collider.Config{
		ChunkSize:    cfg.ChunkSize,
		Ordering:     cfg.Ordering,
		IsVoxelEmpty: cfg.IsVoxelEmpty,
		Pool:         pool,
		PackDelay:    cfg.PackDelay,
		Clock:        cfg.Clock,
	})
	if err != nil {
		pool.Dispose()
		return nil, fmt.Errorf("voxterra: %w", err)
	}

	e := &Engine{
		cfg:        cfg,
		log:        cfg.Logger,
		clock:      cfg.Clock,
		pool:       pool,
		collider:   col,
		collisions: collision.New(col),
		atlas: heightmap.NewAtlas(heightmap.Config{
			MaxLevel:  cfg.AtlasMaxLevel,
			TileVerts: cfg.TileVerts,
			Clock:     cfg.Clock,
		}),
		props: props.NewHandler(props.HandlerConfig{
			BatchSize:        cfg.PropsBatchSize,
			MinGroupPartSize: cfg.MinGroupPartSize,
			NewHandle:        cfg.NewPropHandle,
		}),
	}
	e.log.Infof("engine up: chunks %v %q, atlas depth %d, %d workers",
		cfg.ChunkSize, cfg.Ordering, cfg.AtlasMaxLevel, cfg.Workers)
	return e, nil
}

func (e *Engine) Collider() *collider.Collider      { return e.collider }
func (e *Engine) Collisions() *collision.Collisions { return e.collisions }
func (e *Engine) Atlas() *heightmap.Atlas           { return e.atlas }
func (e *Engine) Props() *props.Handler             { return e.props }
func (e *Engine) Pool() *task.Pool                  { return e.pool }

// SetChunk forwards occupancy data to the collider.
func (e *Engine) SetChunk(coord grid.ChunkCoord, data collider.ChunkData) error {
	if err := e.collider.SetChunk(coord, data); err != nil {
		return err
	}
	instrumentChunkIngested()
	return nil
}

// RebuildCollider drops every chunk by replacing the store. Outstanding
// pack jobs for the old store are rejected by the identity guard.
func (e *Engine) RebuildCollider() error {
	col, err := collider.New(collider.Config{
		ChunkSize:    e.cfg.ChunkSize,
		Ordering:     e.cfg.Ordering,
		IsVoxelEmpty: e.cfg.IsVoxelEmpty,
		Pool:         e.pool,
		PackDelay:    e.cfg.PackDelay,
		Clock:        e.cfg.Clock,
	})
	if err != nil {
		return fmt.Errorf("voxterra: %w", err)
	}
	e.collider = col
	e.collisions = collision.New(col)
	e.log.Infof("collider rebuilt")
	return nil
}

// Update runs one frame of maintenance: apply finished pack jobs, land
// resolved tile fetches, drain the atlas, issue new fetches up to the
// frame budget, and run the periodic sweeps.
func (e *Engine) Update() {
	e.collider.Maintain()

	remaining := e.fetches[:0]
	for _, f := range e.fetches {
		res, done := f.pending.Poll()
		if !done {
			remaining = append(remaining, f)
			continue
		}
		if res.Err != nil {
			e.log.Warnf("tile %v fetch failed: %v", f.tile, res.Err)
			// Clearing the request lets the tile be fetched again next frame.
			e.atlas.CancelRequest(f.tile, f.token)
			continue
		}
		if err := e.atlas.PushTileData(f.tile, f.token, res.Value.(heightmap.TileData)); err != nil {
			e.log.Errorf("tile %v samples rejected: %v", f.tile, err)
		}
	}
	e.fetches = remaining

	instrumentTilesApplied(e.atlas.Update(e.cfg.Renderer))

	budget := e.cfg.FetchesPerFrame
	for _, tile := range e.atlas.TilesNeedingData() {
		if budget == 0 {
			break
		}
		token, err := e.atlas.RequestTileData(tile)
		if err != nil {
			e.log.Errorf("tile %v not requestable: %v", tile, err)
			continue
		}
		pending, err := e.pool.Submit(SampleTileKind, tile)
		if err != nil {
			e.log.Warnf("tile %v fetch not submitted: %v", tile, err)
			e.atlas.CancelRequest(tile, token)
			continue
		}
		e.fetches = append(e.fetches, tileFetch{tile: tile, token: token, pending: pending})
		instrumentTileFetch()
		budget--
	}

	e.atlas.Maintain()
	e.props.GarbageCollect(e.clock.Now())
	instrumentFrameGauges(e.collider.PackedRatio(), e.props.InstanceCount(), e.pool.PendingCount())
}

// Dispose stops the worker pool. In-flight tasks resolve with a terminated
// error; the engine must not be updated afterwards.
func (e *Engine) Dispose() {
	e.pool.Dispose()
}
