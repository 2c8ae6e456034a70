// Package gpu keeps heightmap atlas targets resident on a webgpu device.
package gpu

import (
	"fmt"
	"math"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/gekko3d/voxterra/heightmap"
)

const bytesPerTexel = 8 // RG32Float: altitude in R, material id bits in G

// TargetManager implements heightmap.Renderer over a webgpu device. A CPU
// mirror shadows every write so a stub target can be expanded by
// re-uploading the upscaled content, and so altitudes stay readable without
// a GPU readback.
type TargetManager struct {
	device  *wgpu.Device
	queue   *wgpu.Queue
	mirror  *heightmap.SoftwareRenderer
	targets map[[2]int]*Target
}

// Target is one resident root texture.
type Target struct {
	texture *wgpu.Texture
	view    *wgpu.TextureView
	texels  int
}

// View is the sampleable texture view bound by terrain pipelines.
func (t *Target) View() *wgpu.TextureView { return t.view }

func NewTargetManager(device *wgpu.Device, queue *wgpu.Queue) *TargetManager {
	return &TargetManager{
		device:  device,
		queue:   queue,
		mirror:  heightmap.NewSoftwareRenderer(),
		targets: make(map[[2]int]*Target),
	}
}

// Mirror exposes the CPU shadow of every target.
func (m *TargetManager) Mirror() *heightmap.SoftwareRenderer { return m.mirror }

// Target returns the resident texture for a root, nil if never created.
func (m *TargetManager) Target(root [2]int) *Target { return m.targets[root] }

func (m *TargetManager) CreateTarget(root [2]int, texels int) {
	m.mirror.CreateTarget(root, texels)
	if _, ok := m.targets[root]; ok {
		return
	}
	m.targets[root] = m.allocate(root, texels)
}

// ExpandTarget replaces the stub texture with a full-size one and uploads
// the mirror's upscaled content into it.
func (m *TargetManager) ExpandTarget(root [2]int, texels int) {
	t := m.targets[root]
	if t == nil || texels <= t.texels {
		return
	}
	m.mirror.ExpandTarget(root, texels)

	t.view.Release()
	t.texture.Release()
	grown := m.allocate(root, texels)
	m.targets[root] = grown
	m.writeRect(root, grown, heightmap.Viewport{X: 0, Y: 0, W: texels, H: texels})
}

func (m *TargetManager) RenderTile(root [2]int, vp heightmap.Viewport, data *heightmap.TileData) {
	m.mirror.RenderTile(root, vp, data)
	t := m.targets[root]
	if t == nil {
		return
	}
	m.writeRect(root, t, vp)
}

func (m *TargetManager) allocate(root [2]int, texels int) *Target {
	texture, err := m.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         fmt.Sprintf("Heightmap Root %d,%d", root[0], root[1]),
		Size:          wgpu.Extent3D{Width: uint32(texels), Height: uint32(texels), DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        wgpu.TextureFormatRG32Float,
		Usage:         wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
	})
	if err != nil {
		panic(err)
	}
	view, err := texture.CreateView(nil)
	if err != nil {
		panic(err)
	}
	return &Target{texture: texture, view: view, texels: texels}
}

// writeRect uploads one texel rectangle from the mirror.
func (m *TargetManager) writeRect(root [2]int, t *Target, vp heightmap.Viewport) {
	texels := make([]float32, vp.W*vp.H*2)
	for y := 0; y < vp.H; y++ {
		for x := 0; x < vp.W; x++ {
			i := (y*vp.W + x) * 2
			texels[i] = m.mirror.Altitude(root, vp.X+x, vp.Y+y)
			texels[i+1] = math.Float32frombits(m.mirror.Material(root, vp.X+x, vp.Y+y))
		}
	}
	err := m.queue.WriteTexture(
		&wgpu.ImageCopyTexture{
			Texture:  t.texture,
			MipLevel: 0,
			Origin:   wgpu.Origin3D{X: uint32(vp.X), Y: uint32(vp.Y), Z: 0},
		},
		wgpu.ToBytes(texels),
		&wgpu.TextureDataLayout{
			Offset:       0,
			BytesPerRow:  uint32(vp.W * bytesPerTexel),
			RowsPerImage: uint32(vp.H),
		},
		&wgpu.Extent3D{Width: uint32(vp.W), Height: uint32(vp.H), DepthOrArrayLayers: 1},
	)
	if err != nil {
		panic(err)
	}
}

// Dispose releases every resident texture.
func (m *TargetManager) Dispose() {
	for root, t := range m.targets {
		t.view.Release()
		t.texture.Release()
		delete(m.targets, root)
	}
}
