package voxterra

import (
	"errors"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/voxterra/collider"
	"github.com/gekko3d/voxterra/collision"
	"github.com/gekko3d/voxterra/grid"
	"github.com/gekko3d/voxterra/heightmap"
)

func testEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	e, err := NewEngine(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(e.Dispose)
	return e
}

// solidChunk builds a margin-padded fully solid chunk for a [4]^3 interior.
func solidChunk() collider.ChunkData {
	data := make([]uint16, 6*6*6)
	for i := range data {
		data[i] = 1
	}
	return collider.ChunkData{Data: data, Ordering: grid.OrderingZYX}
}

func TestEngineDefaults(t *testing.T) {
	e := testEngine(t, Config{})
	if e.Collider() == nil || e.Collisions() == nil || e.Atlas() == nil || e.Props() == nil {
		t.Fatal("engine subsystems missing")
	}
}

func TestEngineChunkLifecycle(t *testing.T) {
	e := testEngine(t, Config{ChunkSize: [3]int{4, 4, 4}})

	if err := e.SetChunk(grid.ChunkCoord{0, 0, 0}, solidChunk()); err != nil {
		t.Fatal(err)
	}
	if err := e.SetChunk(grid.ChunkCoord{0, 0, 0}, solidChunk()); !errors.Is(err, collider.ErrDuplicateChunk) {
		t.Fatalf("err = %v, want ErrDuplicateChunk", err)
	}

	for i := 0; i < 1000 && e.Collider().PackedRatio() < 1; i++ {
		e.Update()
		time.Sleep(time.Millisecond)
	}
	if e.Collider().PackedRatio() != 1 {
		t.Fatal("chunk never packed")
	}
	if got := e.Collider().GetVoxel(grid.VoxelCoord{1, 1, 1}); got != collider.StatusFull {
		t.Errorf("voxel = %v, want full", got)
	}
	if got := e.Collider().GetVoxel(grid.VoxelCoord{10, 0, 0}); got != collider.StatusNotLoaded {
		t.Errorf("voxel = %v, want not-loaded", got)
	}

	res := e.Collisions().RayIntersect(
		collision.Ray{Origin: mgl32.Vec3{1.5, 10, 1.5}, Direction: mgl32.Vec3{0, -1, 0}},
		collision.RayOptions{MaxDistance: 8, Side: collision.SideFront},
	)
	if res.Hit == nil {
		t.Fatal("ray missed the solid chunk")
	}
	if res.Hit.Distance != 6 || res.Hit.Normal != (mgl32.Vec3{0, 1, 0}) {
		t.Errorf("hit = %+v", res.Hit)
	}
}

func TestEngineStreamsTileData(t *testing.T) {
	e := testEngine(t, Config{TileVerts: 9, AtlasMaxLevel: 2})

	tile := heightmap.TileCoord{Level: 1, X: 0, Y: 0}
	view, err := e.Atlas().GetTileView(tile)
	if err != nil {
		t.Fatal(err)
	}
	view.UseOptimalData()

	for i := 0; i < 1000 && !view.HasOptimalData(); i++ {
		e.Update()
		time.Sleep(time.Millisecond)
	}
	if !view.HasOptimalData() {
		t.Fatal("tile never reached optimal precision")
	}
	if needing := e.Atlas().TilesNeedingData(); len(needing) != 0 {
		t.Errorf("tiles still requesting data: %v", needing)
	}
}

func TestEngineRebuildCollider(t *testing.T) {
	e := testEngine(t, Config{ChunkSize: [3]int{4, 4, 4}})

	if err := e.SetChunk(grid.ChunkCoord{0, 0, 0}, solidChunk()); err != nil {
		t.Fatal(err)
	}
	if err := e.RebuildCollider(); err != nil {
		t.Fatal(err)
	}
	if got := e.Collider().GetVoxel(grid.VoxelCoord{1, 1, 1}); got != collider.StatusNotLoaded {
		t.Errorf("voxel = %v after rebuild, want not-loaded", got)
	}
	// The stale pack result must not land in the fresh store.
	e.Update()
	if e.Collider().ChunkCount() != 0 {
		t.Errorf("chunk count = %d after rebuild", e.Collider().ChunkCount())
	}
}
