package heightmap

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// Viewport is a texel sub-rectangle of a root render target.
type Viewport struct {
	X, Y, W, H int
}

// Renderer draws tile sample grids into per-root render targets. The atlas
// drives it with texel rectangles only; how samples become pixels is the
// renderer's business.
type Renderer interface {
	// CreateTarget allocates a square target of the given edge size in
	// texels. Creating an existing target is a no-op.
	CreateTarget(root [2]int, texels int)
	// ExpandTarget grows an existing target in place, upscaling the
	// previous content to the new size.
	ExpandTarget(root [2]int, texels int)
	// RenderTile writes one tile's vertex grid into the viewport.
	RenderTile(root [2]int, vp Viewport, data *TileData)
}

// SoftwareRenderer is a CPU Renderer. It backs tests and serves as the
// readback mirror of GPU targets: altitudes in a float grid, material ids
// in an RGBA image so stub expansion can reuse image-space scaling.
type SoftwareRenderer struct {
	targets map[[2]int]*softTarget
}

type softTarget struct {
	texels    int
	altitudes []float32
	materials *image.RGBA
}

func NewSoftwareRenderer() *SoftwareRenderer {
	return &SoftwareRenderer{targets: make(map[[2]int]*softTarget)}
}

func (r *SoftwareRenderer) CreateTarget(root [2]int, texels int) {
	if _, ok := r.targets[root]; ok {
		return
	}
	r.targets[root] = &softTarget{
		texels:    texels,
		altitudes: make([]float32, texels*texels),
		materials: image.NewRGBA(image.Rect(0, 0, texels, texels)),
	}
}

func (r *SoftwareRenderer) ExpandTarget(root [2]int, texels int) {
	t := r.targets[root]
	if t == nil || texels <= t.texels {
		return
	}

	dst := image.NewRGBA(image.Rect(0, 0, texels, texels))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), t.materials, t.materials.Bounds(), draw.Src, nil)

	alts := make([]float32, texels*texels)
	for y := 0; y < texels; y++ {
		for x := 0; x < texels; x++ {
			alts[y*texels+x] = sampleBilinear(t.altitudes, t.texels,
				float32(x)/float32(texels-1), float32(y)/float32(texels-1))
		}
	}

	t.texels = texels
	t.altitudes = alts
	t.materials = dst
}

func (r *SoftwareRenderer) RenderTile(root [2]int, vp Viewport, data *TileData) {
	t := r.targets[root]
	if t == nil {
		return
	}
	verts := data.EdgeVerts()
	for y := 0; y < vp.H; y++ {
		for x := 0; x < vp.W; x++ {
			u := float32(x) / float32(maxInt(vp.W-1, 1))
			v := float32(y) / float32(maxInt(vp.H-1, 1))
			alt := sampleBilinear(data.Altitudes, verts, u, v)
			id := data.MaterialIds[nearestIndex(v, verts)*verts+nearestIndex(u, verts)]

			tx, ty := vp.X+x, vp.Y+y
			t.altitudes[ty*t.texels+tx] = alt
			t.materials.SetRGBA(tx, ty, color.RGBA{
				R: uint8(id),
				G: uint8(id >> 8),
				B: uint8(id >> 16),
				A: uint8(id >> 24),
			})
		}
	}
}

// TargetSize returns the current edge size of a target, 0 if absent.
func (r *SoftwareRenderer) TargetSize(root [2]int) int {
	t := r.targets[root]
	if t == nil {
		return 0
	}
	return t.texels
}

// Altitude reads back one texel's altitude.
func (r *SoftwareRenderer) Altitude(root [2]int, x, y int) float32 {
	t := r.targets[root]
	if t == nil {
		return 0
	}
	return t.altitudes[y*t.texels+x]
}

// Material reads back one texel's material id.
func (r *SoftwareRenderer) Material(root [2]int, x, y int) uint32 {
	t := r.targets[root]
	if t == nil {
		return 0
	}
	c := t.materials.RGBAAt(x, y)
	return uint32(c.R) | uint32(c.G)<<8 | uint32(c.B)<<16 | uint32(c.A)<<24
}

// AltitudePlane exposes the backing float grid of a target for re-upload
// after an expansion. Callers must not mutate it.
func (r *SoftwareRenderer) AltitudePlane(root [2]int) ([]float32, int) {
	t := r.targets[root]
	if t == nil {
		return nil, 0
	}
	return t.altitudes, t.texels
}

// sampleBilinear samples a square grid at normalized (u, v) in [0, 1].
func sampleBilinear(grid []float32, edge int, u, v float32) float32 {
	if edge == 1 {
		return grid[0]
	}
	fx := u * float32(edge-1)
	fy := v * float32(edge-1)
	x0, y0 := int(fx), int(fy)
	x1, y1 := minInt(x0+1, edge-1), minInt(y0+1, edge-1)
	tx, ty := fx-float32(x0), fy-float32(y0)

	top := grid[y0*edge+x0]*(1-tx) + grid[y0*edge+x1]*tx
	bot := grid[y1*edge+x0]*(1-tx) + grid[y1*edge+x1]*tx
	return top*(1-ty) + bot*ty
}

func nearestIndex(u float32, edge int) int {
	i := int(u*float32(edge-1) + 0.5)
	if i < 0 {
		return 0
	}
	if i > edge-1 {
		return edge - 1
	}
	return i
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
