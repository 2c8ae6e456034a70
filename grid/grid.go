package grid

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// ChunkCoord identifies a fixed-size block of voxels in chunk space.
type ChunkCoord [3]int

// VoxelCoord identifies a single voxel in world space.
type VoxelCoord [3]int

func (c ChunkCoord) String() string {
	return fmt.Sprintf("chunk(%d,%d,%d)", c[0], c[1], c[2])
}

func (v VoxelCoord) String() string {
	return fmt.Sprintf("voxel(%d,%d,%d)", v[0], v[1], v[2])
}

// Center returns the world-space center of the voxel's unit cube.
func (v VoxelCoord) Center() mgl32.Vec3 {
	return mgl32.Vec3{float32(v[0]) + 0.5, float32(v[1]) + 0.5, float32(v[2]) + 0.5}
}

// Min returns the world-space minimum corner of the voxel's unit cube.
func (v VoxelCoord) Min() mgl32.Vec3 {
	return mgl32.Vec3{float32(v[0]), float32(v[1]), float32(v[2])}
}

// FloorDiv divides a by b rounding towards negative infinity. b must be positive.
func FloorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

// FloorMod returns the non-negative remainder of a/b. b must be positive.
func FloorMod(a, b int) int {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

// WorldVoxel converts a world-space position to the voxel containing it.
func WorldVoxel(p mgl32.Vec3) VoxelCoord {
	return VoxelCoord{
		int(math.Floor(float64(p.X()))),
		int(math.Floor(float64(p.Y()))),
		int(math.Floor(float64(p.Z()))),
	}
}

// ChunkOf decomposes a voxel coordinate into its chunk coordinate and the
// local coordinate within that chunk. size is the interior chunk size per axis.
func ChunkOf(v VoxelCoord, size [3]int) (ChunkCoord, [3]int) {
	var c ChunkCoord
	var local [3]int
	for a := 0; a < 3; a++ {
		c[a] = FloorDiv(v[a], size[a])
		local[a] = FloorMod(v[a], size[a])
	}
	return c, local
}
