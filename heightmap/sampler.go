package heightmap

import (
	"github.com/ojrac/opensimplex-go"
)

// Material ids emitted by the procedural sampler.
const (
	MaterialWater uint32 = iota
	MaterialSand
	MaterialGrass
	MaterialRock
	MaterialSnow
)

// NoiseSampler is a procedural terrain source: two octaves of simplex
// noise over world coordinates, materials assigned by altitude band. It
// lets the atlas run with no external producer attached.
type NoiseSampler struct {
	noise     opensimplex.Noise32
	verts     int
	rootSpan  float32
	amplitude float32
	frequency float32
}

// NewNoiseSampler builds a sampler emitting verts x verts grids. rootSpan
// is the world-space edge length covered by one level-0 tile.
func NewNoiseSampler(seed int64, verts int, rootSpan float32) *NoiseSampler {
	return &NoiseSampler{
		noise:     opensimplex.NewNormalized32(seed),
		verts:     verts,
		rootSpan:  rootSpan,
		amplitude: 48,
		frequency: 0.004,
	}
}

// SampleTile evaluates the tile's vertex grid. Finer tiles sample the same
// continuous field over a smaller span, so nesting levels agree where they
// overlap.
func (s *NoiseSampler) SampleTile(tile TileCoord) TileData {
	span := s.rootSpan / float32(int(1)<<tile.Level)
	originX := float32(tile.X) * span
	originY := float32(tile.Y) * span
	step := span / float32(s.verts-1)

	n := s.verts * s.verts
	data := TileData{
		Altitudes:   make([]float32, n),
		MaterialIds: make([]uint32, n),
	}
	for y := 0; y < s.verts; y++ {
		for x := 0; x < s.verts; x++ {
			wx := originX + float32(x)*step
			wy := originY + float32(y)*step
			alt := s.altitudeAt(wx, wy)
			i := y*s.verts + x
			data.Altitudes[i] = alt
			data.MaterialIds[i] = materialFor(alt, s.amplitude)
		}
	}
	return data
}

func (s *NoiseSampler) altitudeAt(wx, wy float32) float32 {
	base := s.noise.Eval2(wx*s.frequency, wy*s.frequency)
	detail := s.noise.Eval2(wx*s.frequency*4, wy*s.frequency*4)
	return (base + detail*0.25) / 1.25 * s.amplitude
}

func materialFor(alt, amplitude float32) uint32 {
	switch {
	case alt < amplitude*0.25:
		return MaterialWater
	case alt < amplitude*0.3:
		return MaterialSand
	case alt < amplitude*0.6:
		return MaterialGrass
	case alt < amplitude*0.85:
		return MaterialRock
	default:
		return MaterialSnow
	}
}
