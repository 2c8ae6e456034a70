package collision

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/voxterra/grid"
)

type Sphere struct {
	Center mgl32.Vec3
	Radius float32
}

// SphereHit is the combined penetration correction: moving the sphere by
// Normal*Depth separates it from every contributing face.
type SphereHit struct {
	Normal mgl32.Vec3
	Depth  float32
}

var faceDirs = [6]grid.VoxelCoord{
	{1, 0, 0}, {-1, 0, 0},
	{0, 1, 0}, {0, -1, 0},
	{0, 0, 1}, {0, 0, -1},
}

// SphereIntersect checks every voxel whose unit cube can overlap the
// sphere's bounding box. For each exposed face (fullness differs from the
// neighbor) penetrating the sphere, it computes the displacement pushing the
// center clear, and averages all contributions. Returns nil when nothing
// penetrates.
func (c *Collisions) SphereIntersect(s Sphere, missing MissingVoxelPolicy) (*SphereHit, ComputationStatus) {
	tracker := newMissingTracker(missing)

	min := grid.WorldVoxel(s.Center.Sub(mgl32.Vec3{s.Radius, s.Radius, s.Radius}))
	max := grid.WorldVoxel(s.Center.Add(mgl32.Vec3{s.Radius, s.Radius, s.Radius}))

	var sum mgl32.Vec3
	contributions := 0

	for x := min[0]; x <= max[0]; x++ {
		for y := min[1]; y <= max[1]; y++ {
			for z := min[2]; z <= max[2]; z++ {
				v := grid.VoxelCoord{x, y, z}
				if !tracker.isFull(v, c.src.GetVoxel(v)) {
					continue
				}
				for _, d := range faceDirs {
					n := grid.VoxelCoord{x + d[0], y + d[1], z + d[2]}
					if tracker.isFull(n, c.src.GetVoxel(n)) {
						continue
					}
					if disp, ok := faceDisplacement(s, v, d); ok {
						sum = sum.Add(disp)
						contributions++
					}
				}
			}
		}
	}

	if contributions == 0 {
		return nil, tracker.status()
	}
	avg := sum.Mul(1 / float32(contributions))
	depth := avg.Len()
	if depth < 1e-7 {
		return nil, tracker.status()
	}
	return &SphereHit{Normal: avg.Mul(1 / depth), Depth: depth}, tracker.status()
}

// faceDisplacement computes how far the sphere center must move to clear one
// exposed voxel face, via the closest point on the face square.
func faceDisplacement(s Sphere, v grid.VoxelCoord, dir grid.VoxelCoord) (mgl32.Vec3, bool) {
	lo := v.Min()
	hi := lo.Add(mgl32.Vec3{1, 1, 1})

	// Collapse the box onto the face plane.
	for axis := 0; axis < 3; axis++ {
		if dir[axis] > 0 {
			lo[axis] = hi[axis]
		} else if dir[axis] < 0 {
			hi[axis] = lo[axis]
		}
	}

	q := mgl32.Vec3{
		clamp(s.Center.X(), lo.X(), hi.X()),
		clamp(s.Center.Y(), lo.Y(), hi.Y()),
		clamp(s.Center.Z(), lo.Z(), hi.Z()),
	}
	delta := s.Center.Sub(q)
	dist := delta.Len()
	if dist >= s.Radius {
		return mgl32.Vec3{}, false
	}

	outward := mgl32.Vec3{float32(dir[0]), float32(dir[1]), float32(dir[2])}
	depth := s.Radius - dist + penetrationEpsilon
	if dist < 1e-6 {
		return outward.Mul(depth), true
	}
	pushDir := delta.Mul(1 / dist)
	// Only push along the face's outward hemisphere; a center behind the
	// face plane is handled by the opposite face of the neighboring cell.
	if pushDir.Dot(outward) <= 0 {
		return mgl32.Vec3{}, false
	}
	return pushDir.Mul(depth), true
}

func clamp(v, lo, hi float32) float32 {
	return float32(math.Min(math.Max(float64(v), float64(lo)), float64(hi)))
}
