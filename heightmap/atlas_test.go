package heightmap

import (
	"errors"
	"testing"
	"time"
)

type manualClock struct {
	now time.Time
}

func (c *manualClock) Now() time.Time { return c.now }

func (c *manualClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func testAtlas(clock Clock) *Atlas {
	return NewAtlas(Config{MaxLevel: 2, TileVerts: 3, Clock: clock})
}

func flatTile(verts int, altitude float32, material uint32) TileData {
	n := verts * verts
	d := TileData{
		Altitudes:   make([]float32, n),
		MaterialIds: make([]uint32, n),
	}
	for i := range d.Altitudes {
		d.Altitudes[i] = altitude
		d.MaterialIds[i] = material
	}
	return d
}

func pushAndApply(t *testing.T, a *Atlas, r Renderer, tile TileCoord, data TileData) {
	t.Helper()
	token := requestTile(t, a, tile)
	if err := a.PushTileData(tile, token, data); err != nil {
		t.Fatal(err)
	}
	if n := a.Update(r); n != 1 {
		t.Fatalf("applied %d tiles, want 1", n)
	}
}

func requestTile(t *testing.T, a *Atlas, tile TileCoord) string {
	t.Helper()
	token, err := a.RequestTileData(tile)
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func getView(t *testing.T, a *Atlas, tile TileCoord) *TileView {
	t.Helper()
	v, err := a.GetTileView(tile)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func TestPushTileDataValidatesSampleCount(t *testing.T) {
	a := testAtlas(nil)
	tile := TileCoord{Level: 0, X: 0, Y: 0}
	token := requestTile(t, a, tile)

	bad := TileData{Altitudes: make([]float32, 4), MaterialIds: make([]uint32, 4)}
	if err := a.PushTileData(tile, token, bad); !errors.Is(err, ErrMalformedSamples) {
		t.Fatalf("err = %v, want ErrMalformedSamples", err)
	}
}

func TestStaleResponseDropped(t *testing.T) {
	a := testAtlas(nil)
	r := NewSoftwareRenderer()
	tile := TileCoord{Level: 0, X: 0, Y: 0}

	old := requestTile(t, a, tile)
	fresh := requestTile(t, a, tile)

	if err := a.PushTileData(tile, old, flatTile(3, 1, MaterialGrass)); err != nil {
		t.Fatal(err)
	}
	if n := a.Update(r); n != 0 {
		t.Fatalf("stale push applied %d tiles", n)
	}

	if err := a.PushTileData(tile, fresh, flatTile(3, 2, MaterialRock)); err != nil {
		t.Fatal(err)
	}
	if n := a.Update(r); n != 1 {
		t.Fatalf("fresh push applied %d tiles, want 1", n)
	}
	if alt := r.Altitude([2]int{0, 0}, 1, 1); alt != 2 {
		t.Errorf("altitude = %f, want the fresh response's 2", alt)
	}
}

func TestPrecisionIsPerLeafMinAggregated(t *testing.T) {
	a := testAtlas(nil)
	r := NewSoftwareRenderer()

	leafTile := TileCoord{Level: 2, X: 0, Y: 0}
	rootTile := TileCoord{Level: 0, X: 0, Y: 0}

	pushAndApply(t, a, r, leafTile, flatTile(3, 5, MaterialGrass))

	if !a.HasOptimalData(leafTile) {
		t.Error("leaf tile should have optimal data after its own push")
	}
	if a.HasOptimalData(rootTile) {
		t.Error("root tile must not report optimal data from one leaf")
	}
	if a.HasBasicData(rootTile) {
		t.Error("root tile must not report basic data with uncovered leaves")
	}

	pushAndApply(t, a, r, rootTile, flatTile(3, 1, MaterialSand))

	if !a.HasBasicData(rootTile) {
		t.Error("root tile should have basic data after the root push")
	}
	if !a.HasOptimalData(rootTile) {
		t.Error("root tile at level 0 is optimal once every leaf has data")
	}
	// The coarse push must not regress the leaf's recorded precision.
	if !a.HasOptimalData(leafTile) {
		t.Error("leaf precision regressed after a coarser render")
	}
}

func TestStubRootTextureExpansion(t *testing.T) {
	a := testAtlas(nil)
	r := NewSoftwareRenderer()
	key := [2]int{0, 0}

	pushAndApply(t, a, r, TileCoord{Level: 0, X: 0, Y: 0}, flatTile(3, 7, MaterialGrass))
	if size := r.TargetSize(key); size != 3 {
		t.Fatalf("stub size = %d, want leaf resolution 3", size)
	}

	pushAndApply(t, a, r, TileCoord{Level: 1, X: 1, Y: 0}, flatTile(3, 9, MaterialRock))
	if size := r.TargetSize(key); size != 12 {
		t.Fatalf("expanded size = %d, want 12", size)
	}
	// Expansion keeps the coarse content; the new tile lands in its own
	// quadrant of the grown target.
	if alt := r.Altitude(key, 0, 0); alt != 7 {
		t.Errorf("coarse content lost on expansion, altitude = %f", alt)
	}
	if alt := r.Altitude(key, 8, 2); alt != 9 {
		t.Errorf("finer tile not rendered into its viewport, altitude = %f", alt)
	}
}

func TestTilesNeedingDataPriority(t *testing.T) {
	a := testAtlas(nil)
	r := NewSoftwareRenderer()

	coarse := TileCoord{Level: 0, X: 4, Y: 4}
	fine := TileCoord{Level: 1, X: 0, Y: 0}
	served := TileCoord{Level: 2, X: 8, Y: 8}

	getView(t, a, coarse)
	fineView := getView(t, a, fine)
	fineView.UseOptimalData()
	getView(t, a, served)
	pushAndApply(t, a, r, served, flatTile(3, 1, MaterialGrass))

	tiles := a.TilesNeedingData()
	if len(tiles) != 2 {
		t.Fatalf("needing = %v, want 2 tiles", tiles)
	}
	if tiles[0] != fine || tiles[1] != coarse {
		t.Errorf("order = %v, want fine tile first", tiles)
	}

	// An outstanding request hides the tile until resolved or superseded.
	requestTile(t, a, fine)
	tiles = a.TilesNeedingData()
	if len(tiles) != 1 || tiles[0] != coarse {
		t.Errorf("needing = %v, want only the coarse tile", tiles)
	}
}

func TestTileLevelOutOfRangeRejected(t *testing.T) {
	a := testAtlas(nil) // MaxLevel 2
	r := NewSoftwareRenderer()
	deep := TileCoord{Level: 3, X: 0, Y: 0}

	if _, err := a.GetTileView(deep); !errors.Is(err, ErrBadTileLevel) {
		t.Errorf("GetTileView err = %v, want ErrBadTileLevel", err)
	}
	if _, err := a.RequestTileData(deep); !errors.Is(err, ErrBadTileLevel) {
		t.Errorf("RequestTileData err = %v, want ErrBadTileLevel", err)
	}
	if err := a.PushTileData(deep, "any", flatTile(3, 1, MaterialGrass)); !errors.Is(err, ErrBadTileLevel) {
		t.Errorf("PushTileData err = %v, want ErrBadTileLevel", err)
	}
	if _, err := a.GetTileView(TileCoord{Level: -1, X: 0, Y: 0}); !errors.Is(err, ErrBadTileLevel) {
		t.Errorf("negative level err = %v, want ErrBadTileLevel", err)
	}

	// Nothing from the rejected tile may reach the frame-loop application.
	if n := a.Update(r); n != 0 {
		t.Fatalf("applied %d tiles from a rejected push", n)
	}
	if tiles := a.TilesNeedingData(); len(tiles) != 0 {
		t.Errorf("rejected tile leaked into the fetch list: %v", tiles)
	}
}

func TestCancelRequestRestoresFetchability(t *testing.T) {
	a := testAtlas(nil)
	r := NewSoftwareRenderer()
	tile := TileCoord{Level: 1, X: 0, Y: 0}

	getView(t, a, tile)
	token := requestTile(t, a, tile)
	if tiles := a.TilesNeedingData(); len(tiles) != 0 {
		t.Fatalf("outstanding request should hide the tile, got %v", tiles)
	}

	a.CancelRequest(tile, "mismatched")
	if tiles := a.TilesNeedingData(); len(tiles) != 0 {
		t.Errorf("mismatched token must not cancel, got %v", tiles)
	}

	a.CancelRequest(tile, token)
	if tiles := a.TilesNeedingData(); len(tiles) != 1 || tiles[0] != tile {
		t.Errorf("cancelled tile should be fetchable again, got %v", tiles)
	}

	// A response that already landed survives a late cancel.
	token = requestTile(t, a, tile)
	if err := a.PushTileData(tile, token, flatTile(3, 1, MaterialGrass)); err != nil {
		t.Fatal(err)
	}
	a.CancelRequest(tile, token)
	if n := a.Update(r); n != 1 {
		t.Errorf("applied %d tiles, want the arrived response kept", n)
	}
}

func TestViewLifecycleAndSweep(t *testing.T) {
	clock := &manualClock{now: time.Unix(1000, 0)}
	a := testAtlas(clock)
	tile := TileCoord{Level: 1, X: 2, Y: 3}

	kept := getView(t, a, tile)
	dropped := getView(t, a, tile)
	if kept.usage != dropped.usage {
		t.Fatal("views on one tile must share the usage record")
	}
	if kept.usage.ViewCount() != 2 {
		t.Fatalf("view count = %d", kept.usage.ViewCount())
	}

	dropped.StopUsingView()
	clock.advance(time.Second)
	a.Maintain()
	if a.usages[tile] == nil {
		t.Fatal("usage with a live view was swept")
	}

	kept.StopUsingView()
	a.Maintain() // within the interval, nothing happens yet
	if a.usages[tile] == nil {
		t.Fatal("sweep ran before the interval elapsed")
	}
	clock.advance(time.Second)
	a.Maintain()
	if a.usages[tile] != nil {
		t.Error("zero-ref usage survived the sweep")
	}
}

func TestReleasedViewStopsCountingOptimal(t *testing.T) {
	a := testAtlas(nil)
	tile := TileCoord{Level: 1, X: 0, Y: 0}

	v := getView(t, a, tile)
	v.UseOptimalData()
	v.StopUsingView()
	v.UseOptimalData() // released view must not resurrect itself

	if n := len(a.usages[tile].optimal); n != 0 {
		t.Errorf("optimal requesters = %d, want 0", n)
	}
}

func TestViewMaterializesQuadtree(t *testing.T) {
	a := testAtlas(nil)
	getView(t, a, TileCoord{Level: 2, X: 3, Y: 1})
	if a.Quadtree().GetNode(TileCoord{Level: 1, X: 1, Y: 0}) == nil {
		t.Error("view did not materialize the tile's ancestor chain")
	}
}

func TestNoiseSamplerLevelsAgree(t *testing.T) {
	s := NewNoiseSampler(7, 3, 256)

	root := s.SampleTile(TileCoord{Level: 0, X: 0, Y: 0})
	fine := s.SampleTile(TileCoord{Level: 1, X: 0, Y: 0})

	// The fine tile's far corner is the root tile's center vertex.
	if root.Altitudes[4] != fine.Altitudes[8] {
		t.Errorf("altitude field not continuous across levels: %f vs %f",
			root.Altitudes[4], fine.Altitudes[8])
	}
	if len(root.Altitudes) != 9 || len(root.MaterialIds) != 9 {
		t.Fatalf("sample count = %d/%d", len(root.Altitudes), len(root.MaterialIds))
	}
}
