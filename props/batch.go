// Package props packs named groups of instance transforms into
// fixed-capacity batches, compacting on removal and bin-packing new groups
// across batches, with time-based eviction of stale invisible content.
package props

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

var (
	ErrCapacityExceeded = errors.New("props: instance capacity exceeded")
	ErrUnknownGroup     = errors.New("props: unknown group")
)

// RenderHandle is the opaque visual node a batch drives. Implementations
// own the graphics-library object; the batch only pushes state.
type RenderHandle interface {
	SetInstanceCount(n int)
	WriteMatrix(slot int, m mgl32.Mat4)
	SetBounds(center mgl32.Vec3, radius float32)
	SetVisible(visible bool)
	Dispose()
}

type nopHandle struct{}

func (nopHandle) SetInstanceCount(int)          {}
func (nopHandle) WriteMatrix(int, mgl32.Mat4)   {}
func (nopHandle) SetBounds(mgl32.Vec3, float32) {}
func (nopHandle) SetVisible(bool)               {}
func (nopHandle) Dispose()                      {}

// NopHandle returns a RenderHandle that discards everything.
func NopHandle() RenderHandle { return nopHandle{} }

type groupRange struct {
	start int
	count int
}

// Batch is a fixed-capacity arena of instance transforms. Groups occupy
// contiguous, non-overlapping ranges; removing one compacts the arena so
// the remaining groups pack from slot 0 in insertion order.
type Batch struct {
	capacity int
	matrices []mgl32.Mat4
	groups   map[string]*groupRange
	order    []string
	used     int
	handle   RenderHandle
}

// NewBatch allocates a batch of the given slot capacity. A nil handle gets
// the no-op one.
func NewBatch(capacity int, handle RenderHandle) *Batch {
	if handle == nil {
		handle = nopHandle{}
	}
	return &Batch{
		capacity: capacity,
		matrices: make([]mgl32.Mat4, capacity),
		groups:   make(map[string]*groupRange),
		handle:   handle,
	}
}

func (b *Batch) Capacity() int       { return b.capacity }
func (b *Batch) InstanceCount() int  { return b.used }
func (b *Batch) SpareInstances() int { return b.capacity - b.used }
func (b *Batch) GroupCount() int     { return len(b.groups) }

func (b *Batch) HasGroup(name string) bool {
	_, ok := b.groups[name]
	return ok
}

// GroupRange reports the slot range of a group, ok=false if absent.
func (b *Batch) GroupRange(name string) (start, count int, ok bool) {
	g, ok := b.groups[name]
	if !ok {
		return 0, 0, false
	}
	return g.start, g.count, true
}

// SetGroup appends the matrices as a new contiguous range at the tail. An
// existing group with the same name is removed first, its capacity counting
// toward this call.
func (b *Batch) SetGroup(name string, matrices []mgl32.Mat4) error {
	spare := b.SpareInstances()
	if old, ok := b.groups[name]; ok {
		spare += old.count
	}
	if len(matrices) > spare {
		return fmt.Errorf("%w: group %q needs %d slots, %d spare", ErrCapacityExceeded, name, len(matrices), spare)
	}
	if b.HasGroup(name) {
		b.removeGroup(name)
		b.compact()
	}

	g := &groupRange{start: b.used, count: len(matrices)}
	b.groups[name] = g
	b.order = append(b.order, name)
	for i, m := range matrices {
		slot := g.start + i
		b.matrices[slot] = m
		b.handle.WriteMatrix(slot, m)
	}
	b.used += g.count
	b.handle.SetInstanceCount(b.used)
	b.recomputeBounds()
	return nil
}

// DeleteGroup removes the group's range and immediately compacts the
// remaining groups into a contiguous layout from slot 0.
func (b *Batch) DeleteGroup(name string) error {
	if !b.HasGroup(name) {
		return fmt.Errorf("%w: %q", ErrUnknownGroup, name)
	}
	b.removeGroup(name)
	b.compact()
	b.handle.SetInstanceCount(b.used)
	b.recomputeBounds()
	return nil
}

func (b *Batch) removeGroup(name string) {
	delete(b.groups, name)
	for i, n := range b.order {
		if n == name {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// compact rewrites the backing array so surviving groups follow each other
// in insertion order, recomputing every start index. O(total remaining
// instances).
func (b *Batch) compact() {
	packed := make([]mgl32.Mat4, b.capacity)
	next := 0
	for _, name := range b.order {
		g := b.groups[name]
		copy(packed[next:next+g.count], b.matrices[g.start:g.start+g.count])
		g.start = next
		next += g.count
	}
	b.matrices = packed
	b.used = next
	for slot := 0; slot < b.used; slot++ {
		b.handle.WriteMatrix(slot, b.matrices[slot])
	}
}

// recomputeBounds rebuilds the culling sphere from the instance
// translations.
func (b *Batch) recomputeBounds() {
	if b.used == 0 {
		b.handle.SetBounds(mgl32.Vec3{}, 0)
		return
	}
	center, radius := boundingSphere(b.matrices[:b.used])
	b.handle.SetBounds(center, radius)
}

func (b *Batch) Dispose() {
	b.handle.Dispose()
}

// boundingSphere is centroid-based: centered on the mean translation,
// sized to the farthest instance.
func boundingSphere(matrices []mgl32.Mat4) (mgl32.Vec3, float32) {
	var sum mgl32.Vec3
	for _, m := range matrices {
		sum = sum.Add(translationOf(m))
	}
	center := sum.Mul(1 / float32(len(matrices)))

	var radius float32
	for _, m := range matrices {
		if d := translationOf(m).Sub(center).Len(); d > radius {
			radius = d
		}
	}
	return center, radius
}

func translationOf(m mgl32.Mat4) mgl32.Vec3 {
	return mgl32.Vec3{m[12], m[13], m[14]}
}
