package collision

import (
	"errors"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/voxterra/grid"
)

var ErrInvalidGravity = errors.New("collision: gravity must be non-negative")

const (
	// penetrationEpsilon is added to every computed penetration depth so a
	// corrected body is strictly separated and does not re-collide next
	// frame from float rounding.
	penetrationEpsilon = 1e-5

	// maxSubStepSeconds bounds the integration error of one sub-step.
	// Larger requested deltas are split.
	maxSubStepSeconds = 0.01

	// maxSubSteps caps the work of a single EntityMovement call.
	maxSubSteps = 128

	// DefaultAscendSpeed is the staircase climb rate in voxels per second.
	DefaultAscendSpeed = 2.0
)

// Cylinder is a vertical capsule-like entity collider: Position is the
// bottom-center, the body spans Height voxels upward with the given Radius
// in the XZ plane.
type Cylinder struct {
	Position mgl32.Vec3
	Radius   float32
	Height   float32
}

type MovementOptions struct {
	Velocity    mgl32.Vec3
	DeltaTime   float32 // seconds
	Gravity     float32 // >= 0, also the terminal fall speed
	AscendSpeed float32 // 0 means DefaultAscendSpeed
	Missing     MissingVoxelPolicy
}

type MovementResult struct {
	Position      mgl32.Vec3
	Velocity      mgl32.Vec3
	IsOnGround    bool
	Status        ComputationStatus
	MissingVoxels []grid.VoxelCoord
}

type movementState struct {
	pos      mgl32.Vec3
	vel      mgl32.Vec3
	onGround bool
}

// EntityMovement integrates the cylinder under gravity against the voxel
// grid. The requested delta is split into sub-steps of at most 10ms,
// followed by zero-time settle passes that stabilize resting contacts.
func (c *Collisions) EntityMovement(ent Cylinder, opts MovementOptions) (MovementResult, error) {
	if opts.Gravity < 0 {
		return MovementResult{}, ErrInvalidGravity
	}
	ascend := opts.AscendSpeed
	if ascend == 0 {
		ascend = DefaultAscendSpeed
	}

	tracker := newMissingTracker(opts.Missing)
	st := movementState{pos: ent.Position, vel: opts.Velocity}

	steps := int(math.Ceil(float64(opts.DeltaTime) / maxSubStepSeconds))
	if steps < 1 {
		steps = 1
	}
	if steps > maxSubSteps {
		steps = maxSubSteps
	}
	dt := opts.DeltaTime / float32(steps)

	for i := 0; i < steps; i++ {
		c.moveSubStep(&st, ent, opts.Gravity, ascend, dt, tracker)
	}
	for pass := 0; pass < 3; pass++ {
		for i := 0; i < 2; i++ {
			c.moveSubStep(&st, ent, opts.Gravity, ascend, 0, tracker)
		}
	}

	return MovementResult{
		Position:      st.pos,
		Velocity:      st.vel,
		IsOnGround:    st.onGround,
		Status:        tracker.status(),
		MissingVoxels: tracker.list,
	}, nil
}

func (c *Collisions) moveSubStep(st *movementState, ent Cylinder, gravity, ascend, dt float32, tracker *missingTracker) {
	prevY := st.pos.Y()
	st.pos = st.pos.Add(st.vel.Mul(dt))

	prevLevel := feetLevel(prevY)
	newLevel := feetLevel(st.pos.Y())

	// Floor tunneling guard: dropping past a blocked level in one step rolls
	// Y back to the boundary above it.
	if newLevel < prevLevel {
		for level := prevLevel - 1; level >= newLevel; level-- {
			if c.levelBlocked(st.pos, ent.Radius, level, tracker) {
				st.pos[1] = float32(level + 1)
				st.vel[1] = 0
				break
			}
		}
	}

	fl := feetLevel(st.pos.Y())
	boundary := onLevelBoundary(st.pos.Y())

	below := fl
	if boundary {
		below = fl - 1
	}

	if !c.levelBlocked(st.pos, ent.Radius, below, tracker) {
		// Free fall. Terminal velocity equals the gravity constant.
		st.vel[1] -= gravity * dt
		if st.vel[1] < -gravity {
			st.vel[1] = -gravity
		}
		st.onGround = false
		return
	}

	if c.levelBlocked(st.pos, ent.Radius, fl, tracker) {
		if c.levelsFree(st.pos, ent.Radius, fl+1, topLevel(st.pos.Y(), ent.Height)+1, tracker) {
			// Ascending a step: climb at the fixed rate, bounded by the next
			// integer boundary.
			next := float32(fl + 1)
			st.pos[1] += ascend * dt
			if st.pos[1] > next {
				st.pos[1] = next
			}
			st.vel[1] = 0
			st.onGround = false
			return
		}
		c.resolveLateral(st, ent, tracker)
	}

	st.onGround = onLevelBoundary(st.pos.Y()) &&
		c.levelBlocked(st.pos, ent.Radius, feetLevel(st.pos.Y())-1, tracker)
	if st.onGround && st.vel[1] < 0 {
		st.vel[1] = 0
	}
}

// resolveLateral pushes the cylinder's XZ footprint out of the lateral faces
// of every voxel column it penetrates, averaging the per-face displacements
// the same way the sphere resolution does, and zeroing velocity along any
// corrected axis.
func (c *Collisions) resolveLateral(st *movementState, ent Cylinder, tracker *missingTracker) {
	px, pz := st.pos.X(), st.pos.Z()
	r := ent.Radius

	minX := int(math.Floor(float64(px - r)))
	maxX := int(math.Floor(float64(px + r)))
	minZ := int(math.Floor(float64(pz - r)))
	maxZ := int(math.Floor(float64(pz + r)))
	loY := feetLevel(st.pos.Y())
	hiY := topLevel(st.pos.Y(), ent.Height)

	var sumX, sumZ float32
	contributions := 0

	for y := loY; y <= hiY; y++ {
		for vx := minX; vx <= maxX; vx++ {
			for vz := minZ; vz <= maxZ; vz++ {
				v := grid.VoxelCoord{vx, y, vz}
				if !tracker.isFull(v, c.src.GetVoxel(v)) {
					continue
				}
				for _, d := range [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
					n := grid.VoxelCoord{vx + d[0], y, vz + d[1]}
					if tracker.isFull(n, c.src.GetVoxel(n)) {
						continue
					}
					dx, dz, ok := lateralFaceDisplacement(px, pz, r, vx, vz, d)
					if ok {
						sumX += dx
						sumZ += dz
						contributions++
					}
				}
			}
		}
	}

	if contributions == 0 {
		return
	}
	avgX := sumX / float32(contributions)
	avgZ := sumZ / float32(contributions)
	st.pos[0] += avgX
	st.pos[2] += avgZ
	if avgX != 0 {
		st.vel[0] = 0
	}
	if avgZ != 0 {
		st.vel[2] = 0
	}
}

// lateralFaceDisplacement is the 2D analogue of faceDisplacement: the face
// is a unit segment on the voxel column's side, the footprint a circle.
func lateralFaceDisplacement(px, pz, r float32, vx, vz int, dir [2]int) (float32, float32, bool) {
	loX, hiX := float32(vx), float32(vx+1)
	loZ, hiZ := float32(vz), float32(vz+1)
	if dir[0] > 0 {
		loX = hiX
	} else if dir[0] < 0 {
		hiX = loX
	}
	if dir[1] > 0 {
		loZ = hiZ
	} else if dir[1] < 0 {
		hiZ = loZ
	}

	qx := clamp(px, loX, hiX)
	qz := clamp(pz, loZ, hiZ)
	dx, dz := px-qx, pz-qz
	dist := float32(math.Hypot(float64(dx), float64(dz)))
	if dist >= r {
		return 0, 0, false
	}

	ox, oz := float32(dir[0]), float32(dir[1])
	depth := r - dist + penetrationEpsilon
	if dist < 1e-6 {
		return ox * depth, oz * depth, true
	}
	if dx*ox+dz*oz <= 0 {
		return 0, 0, false
	}
	inv := 1 / dist
	return dx * inv * depth, dz * inv * depth, true
}

// levelBlocked reports whether any full voxel at integer level y overlaps
// the circle footprint centered at pos.
func (c *Collisions) levelBlocked(pos mgl32.Vec3, radius float32, y int, tracker *missingTracker) bool {
	px, pz := pos.X(), pos.Z()
	minX := int(math.Floor(float64(px - radius)))
	maxX := int(math.Floor(float64(px + radius)))
	minZ := int(math.Floor(float64(pz - radius)))
	maxZ := int(math.Floor(float64(pz + radius)))

	blocked := false
	for vx := minX; vx <= maxX; vx++ {
		for vz := minZ; vz <= maxZ; vz++ {
			if !circleOverlapsCell(px, pz, radius, vx, vz) {
				continue
			}
			v := grid.VoxelCoord{vx, y, vz}
			if tracker.isFull(v, c.src.GetVoxel(v)) {
				blocked = true
			}
		}
	}
	return blocked
}

func (c *Collisions) levelsFree(pos mgl32.Vec3, radius float32, loY, hiY int, tracker *missingTracker) bool {
	for y := loY; y <= hiY; y++ {
		if c.levelBlocked(pos, radius, y, tracker) {
			return false
		}
	}
	return true
}

func circleOverlapsCell(cx, cz, r float32, vx, vz int) bool {
	qx := clamp(cx, float32(vx), float32(vx+1))
	qz := clamp(cz, float32(vz), float32(vz+1))
	dx, dz := cx-qx, cz-qz
	return dx*dx+dz*dz < r*r
}

func feetLevel(y float32) int {
	return int(math.Floor(float64(y) + penetrationEpsilon))
}

func topLevel(y, height float32) int {
	return int(math.Floor(float64(y+height) - penetrationEpsilon))
}

func onLevelBoundary(y float32) bool {
	return math.Abs(float64(y)-math.Round(float64(y))) < penetrationEpsilon
}
