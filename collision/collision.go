// Package collision resolves rays, spheres and moving capsules against a
// voxel occupancy source. Every algorithm here is built purely on point
// queries, so any store answering GetVoxel can back it.
package collision

import (
	"github.com/gekko3d/voxterra/collider"
	"github.com/gekko3d/voxterra/grid"
)

// Source is the one capability collision needs from the voxel store.
type Source interface {
	GetVoxel(grid.VoxelCoord) collider.VoxelStatus
}

// ComputationStatus reports whether a query saw only resident data.
type ComputationStatus int

const (
	StatusOK ComputationStatus = iota
	// StatusPartial means at least one queried voxel was not loaded and was
	// substituted per the missing-voxel policy. Callers can re-issue the
	// query once data streams in.
	StatusPartial
)

// MissingVoxelPolicy decides how not-loaded voxels are treated.
type MissingVoxelPolicy struct {
	ConsiderAsBlocking bool
	// ExportAsList collects every missing voxel id encountered
	// (deduplicated) into the query result.
	ExportAsList bool
}

// Collisions bundles the query algorithms over one source.
type Collisions struct {
	src Source
}

func New(src Source) *Collisions {
	return &Collisions{src: src}
}

// missingTracker threads the missing-voxel policy through a single query.
type missingTracker struct {
	policy MissingVoxelPolicy
	any    bool
	seen   map[grid.VoxelCoord]struct{}
	list   []grid.VoxelCoord
}

func newMissingTracker(policy MissingVoxelPolicy) *missingTracker {
	return &missingTracker{policy: policy}
}

// isFull resolves a voxel status to a fullness decision, recording missing
// voxels along the way.
func (m *missingTracker) isFull(v grid.VoxelCoord, status collider.VoxelStatus) bool {
	if status != collider.StatusNotLoaded {
		return status == collider.StatusFull
	}
	m.any = true
	if m.policy.ExportAsList {
		if m.seen == nil {
			m.seen = make(map[grid.VoxelCoord]struct{})
		}
		if _, dup := m.seen[v]; !dup {
			m.seen[v] = struct{}{}
			m.list = append(m.list, v)
		}
	}
	return m.policy.ConsiderAsBlocking
}

func (m *missingTracker) status() ComputationStatus {
	if m.any {
		return StatusPartial
	}
	return StatusOK
}
