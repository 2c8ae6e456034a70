package collision

import (
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/voxterra/grid"
)

// FaceSide filters which face orientations a ray reports.
type FaceSide int

const (
	// SideFront reports faces whose normal opposes the ray (entering solid).
	SideFront FaceSide = iota
	// SideBack reports faces passed while leaving solid matter.
	SideBack
	// SideDouble reports both.
	SideDouble
)

type Ray struct {
	Origin    mgl32.Vec3
	Direction mgl32.Vec3 // normalized internally
}

type RayOptions struct {
	MaxDistance float32
	Side        FaceSide
	Missing     MissingVoxelPolicy
}

type RayHit struct {
	Distance float32
	Point    mgl32.Vec3
	Normal   mgl32.Vec3 // unit axis vector pointing from full towards empty
	Voxel    grid.VoxelCoord
}

type RayResult struct {
	Status        ComputationStatus
	Hit           *RayHit
	MissingVoxels []grid.VoxelCoord
}

// candidate is one lattice-plane crossing along the ray.
type candidate struct {
	t    float32
	axis int
	sign int // direction of travel along axis: +1 or -1
}

// RayIntersect sweeps the ray across every integer lattice plane it crosses
// within MaxDistance, in distance order, and reports the first crossing
// where the two adjacent voxels differ in fullness.
func (c *Collisions) RayIntersect(ray Ray, opts RayOptions) RayResult {
	tracker := newMissingTracker(opts.Missing)
	result := RayResult{Status: StatusOK}

	dirLen := ray.Direction.Len()
	if dirLen < 1e-7 || opts.MaxDistance <= 0 {
		return result
	}
	dir := ray.Direction.Mul(1 / dirLen)
	origin := ray.Origin

	var candidates []candidate
	for axis := 0; axis < 3; axis++ {
		d := dir[axis]
		if math.Abs(float64(d)) < 1e-7 {
			continue
		}
		sign := 1
		// First plane at or ahead of the origin along the travel direction.
		var plane float64
		if d > 0 {
			plane = math.Ceil(float64(origin[axis]))
		} else {
			sign = -1
			plane = math.Floor(float64(origin[axis]))
		}
		for {
			t := (float32(plane) - origin[axis]) / d
			if t > opts.MaxDistance {
				break
			}
			if t >= 0 {
				candidates = append(candidates, candidate{t: t, axis: axis, sign: sign})
			}
			plane += float64(sign)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].t < candidates[j].t })

	for _, cand := range candidates {
		p := origin.Add(dir.Mul(cand.t))
		plane := int(math.Round(float64(p[cand.axis])))

		var prev, next grid.VoxelCoord
		for axis := 0; axis < 3; axis++ {
			if axis == cand.axis {
				continue
			}
			// Nudge along the ray so a crossing that grazes another lattice
			// line lands in the cell the ray actually continues through.
			base := int(math.Floor(float64(p[axis] + dir[axis]*1e-5)))
			prev[axis], next[axis] = base, base
		}
		if cand.sign > 0 {
			prev[cand.axis], next[cand.axis] = plane-1, plane
		} else {
			prev[cand.axis], next[cand.axis] = plane, plane-1
		}

		prevFull := tracker.isFull(prev, c.src.GetVoxel(prev))
		nextFull := tracker.isFull(next, c.src.GetVoxel(next))
		if prevFull == nextFull {
			continue
		}

		entering := nextFull
		if opts.Side == SideFront && !entering {
			continue
		}
		if opts.Side == SideBack && entering {
			continue
		}

		hit := &RayHit{Distance: cand.t, Point: p}
		if nextFull {
			hit.Voxel = next
			hit.Normal[cand.axis] = -float32(cand.sign)
		} else {
			hit.Voxel = prev
			hit.Normal[cand.axis] = float32(cand.sign)
		}
		result.Hit = hit
		break
	}

	result.Status = tracker.status()
	result.MissingVoxels = tracker.list
	return result
}
