package props

import (
	"fmt"
	"sort"
	"time"

	"github.com/go-gl/mathgl/mgl32"
)

// DefaultCacheHorizon is how long a continuously invisible group may stay
// resident before GarbageCollect evicts it.
const DefaultCacheHorizon = 30 * time.Second

type HandlerConfig struct {
	// BatchSize is the slot capacity of every batch the handler spawns.
	BatchSize int
	// MinGroupPartSize stops bin-packing from splitting slivers smaller
	// than this into a batch that cannot finish the group.
	MinGroupPartSize int
	// CacheHorizon overrides DefaultCacheHorizon when positive.
	CacheHorizon time.Duration
	// NewHandle builds the visual node for each spawned batch; nil means
	// no-op handles.
	NewHandle func() RenderHandle
}

// groupProperties is the handler-level record of one named group: which
// batches hold its parts, its union bounding sphere, and how long it has
// been invisible.
type groupProperties struct {
	batches        map[*Batch]struct{}
	center         mgl32.Vec3
	radius         float32
	invisibleSince time.Time // zero while visible
}

// Handler owns the batch arenas and places named instance groups across
// them with a greedy first-fit policy. Packing is deliberately
// order-dependent and non-optimal; throughput beats fragmentation here.
type Handler struct {
	cfg     HandlerConfig
	horizon time.Duration
	batches []*Batch
	groups  map[string]*groupProperties
}

func NewHandler(cfg HandlerConfig) *Handler {
	horizon := cfg.CacheHorizon
	if horizon <= 0 {
		horizon = DefaultCacheHorizon
	}
	return &Handler{
		cfg:     cfg,
		horizon: horizon,
		groups:  make(map[string]*groupProperties),
	}
}

func (h *Handler) BatchCount() int { return len(h.batches) }
func (h *Handler) GroupCount() int { return len(h.groups) }

func (h *Handler) HasGroup(name string) bool {
	_, ok := h.groups[name]
	return ok
}

// InstanceCount totals the resident instances across all batches.
func (h *Handler) InstanceCount() int {
	total := 0
	for _, b := range h.batches {
		total += b.InstanceCount()
	}
	return total
}

// GroupBounds reports the union bounding sphere of a group's instances.
func (h *Handler) GroupBounds(name string) (center mgl32.Vec3, radius float32, ok bool) {
	g, ok := h.groups[name]
	if !ok {
		return mgl32.Vec3{}, 0, false
	}
	return g.center, g.radius, true
}

// SetGroup places the matrices across the batches. An existing group with
// the same name is deleted first, so its capacity is reusable by this very
// call. Batches are visited in creation order; one absorbs the whole
// remainder if it fits, or a part no smaller than MinGroupPartSize.
// Leftovers spawn fresh batches of BatchSize.
func (h *Handler) SetGroup(name string, matrices []mgl32.Mat4) error {
	if h.HasGroup(name) {
		if err := h.DeleteGroup(name); err != nil {
			return err
		}
	}

	g := &groupProperties{batches: make(map[*Batch]struct{})}
	remaining := matrices
	for _, b := range h.batches {
		if len(remaining) == 0 {
			break
		}
		free := b.SpareInstances()
		if free == 0 {
			continue
		}
		take := 0
		switch {
		case free >= len(remaining):
			take = len(remaining)
		case free >= h.cfg.MinGroupPartSize:
			take = free
		}
		if take == 0 {
			continue
		}
		if err := b.SetGroup(name, remaining[:take]); err != nil {
			return err
		}
		g.batches[b] = struct{}{}
		remaining = remaining[take:]
	}

	for len(remaining) > 0 {
		b := h.spawnBatch()
		take := len(remaining)
		if take > h.cfg.BatchSize {
			take = h.cfg.BatchSize
		}
		if err := b.SetGroup(name, remaining[:take]); err != nil {
			return err
		}
		g.batches[b] = struct{}{}
		remaining = remaining[take:]
	}

	if len(matrices) > 0 {
		g.center, g.radius = boundingSphere(matrices)
	}
	h.groups[name] = g
	return nil
}

func (h *Handler) spawnBatch() *Batch {
	var handle RenderHandle
	if h.cfg.NewHandle != nil {
		handle = h.cfg.NewHandle()
	}
	b := NewBatch(h.cfg.BatchSize, handle)
	h.batches = append(h.batches, b)
	return b
}

// DeleteGroup removes every part of the group from its batches. The freed
// slots are compacted immediately; empty batches linger until the next
// GarbageCollect.
func (h *Handler) DeleteGroup(name string) error {
	g, ok := h.groups[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownGroup, name)
	}
	for b := range g.batches {
		if err := b.DeleteGroup(name); err != nil {
			return err
		}
	}
	delete(h.groups, name)
	return nil
}

// SetGroupVisible tracks visibility for the cache-horizon eviction. A
// group turning invisible stamps the moment; turning visible clears it.
func (h *Handler) SetGroupVisible(name string, visible bool, now time.Time) error {
	g, ok := h.groups[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownGroup, name)
	}
	if visible {
		g.invisibleSince = time.Time{}
	} else if g.invisibleSince.IsZero() {
		g.invisibleSince = now
	}
	return nil
}

// GarbageCollect evicts groups invisible longer than the cache horizon,
// oldest first, then disposes batches no group references anymore. A batch
// without referencing groups must be completely empty; anything else is a
// bookkeeping bug and panics.
func (h *Handler) GarbageCollect(now time.Time) {
	type stale struct {
		name  string
		since time.Time
	}
	var expired []stale
	for name, g := range h.groups {
		if g.invisibleSince.IsZero() {
			continue
		}
		if now.Sub(g.invisibleSince) > h.horizon {
			expired = append(expired, stale{name: name, since: g.invisibleSince})
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].since.Before(expired[j].since) })
	for _, s := range expired {
		if err := h.DeleteGroup(s.name); err != nil {
			panic(fmt.Sprintf("props: evicting group %q: %v", s.name, err))
		}
	}

	referenced := make(map[*Batch]struct{})
	for _, g := range h.groups {
		for b := range g.batches {
			referenced[b] = struct{}{}
		}
	}
	kept := h.batches[:0]
	for _, b := range h.batches {
		if _, ok := referenced[b]; ok {
			kept = append(kept, b)
			continue
		}
		if b.SpareInstances() != b.Capacity() {
			panic(fmt.Sprintf("props: unreferenced batch still holds %d instances", b.InstanceCount()))
		}
		b.Dispose()
	}
	h.batches = kept
}
