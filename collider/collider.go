// Package collider stores per-chunk voxel occupancy and answers point
// queries against it. Chunks arrive as raw dense uint16 code arrays and are
// bit-packed in the background to one bit per voxel, cutting memory 16x
// once the producer's codes are no longer needed.
package collider

import (
	"errors"
	"fmt"
	"time"

	"github.com/gekko3d/voxterra/grid"
	"github.com/gekko3d/voxterra/task"
)

var (
	ErrBadOrdering    = errors.New("collider: data ordering mismatch")
	ErrDuplicateChunk = errors.New("collider: chunk already set")
	ErrBadLength      = errors.New("collider: chunk data length mismatch")
)

// VoxelStatus is the answer to a point query.
type VoxelStatus int

const (
	StatusEmpty VoxelStatus = iota
	StatusFull
	StatusNotLoaded
)

func (s VoxelStatus) String() string {
	switch s {
	case StatusEmpty:
		return "empty"
	case StatusFull:
		return "full"
	case StatusNotLoaded:
		return "not-loaded"
	}
	return fmt.Sprintf("VoxelStatus(%d)", int(s))
}

// PackKind is the task-pool kind for background occupancy packing.
const PackKind task.Kind = "collider/pack-occupancy"

// DefaultPackDelay is how long an ingested chunk keeps its raw codes before
// packing is scheduled, so producers can still read them back briefly.
const DefaultPackDelay = 100 * time.Millisecond

// Clock abstracts wall time for the pack delay.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type chunkState int

const (
	chunkEmpty chunkState = iota
	chunkRaw
	chunkPacked
)

type chunk struct {
	state chunkState
	raw   []uint16 // chunkRaw only
	bits  []byte   // chunkPacked only
}

// ChunkData is what a voxel producer hands to SetChunk.
type ChunkData struct {
	Data     []uint16
	Ordering grid.Ordering
	IsEmpty  bool
}

// Config fixes the collider's geometry and predicates.
type Config struct {
	// ChunkSize is the interior chunk size per axis. Stored data carries a
	// 1-voxel margin on each side, so arrays are (size+2) per axis.
	ChunkSize [3]int
	// Ordering every incoming chunk must declare.
	Ordering grid.Ordering
	// IsVoxelEmpty decides whether a raw voxel code counts as empty.
	IsVoxelEmpty func(code uint16) bool
	// Pool, when set, runs bit packing off the main thread. When nil chunks
	// stay raw.
	Pool *task.Pool
	// PackDelay postpones the packing job after ingestion. Zero or negative
	// schedules it on the next Maintain.
	PackDelay time.Duration
	// Clock drives the pack delay; defaults to wall time.
	Clock Clock
}

type packJob struct {
	coord   grid.ChunkCoord
	raw     []uint16 // identity guard against a rebuilt chunk
	pending *task.Pending
}

type pendingPack struct {
	coord grid.ChunkCoord
	raw   []uint16
	due   time.Time
}

type packPayload struct {
	raw     []uint16
	isEmpty func(uint16) bool
}

// Collider owns the chunk map. All mutation happens on the owner's update
// loop; only the pack handler runs elsewhere, and it never touches the map.
type Collider struct {
	cfg       Config
	clock     Clock
	paddedLen int
	strides   [3]int
	chunks    map[grid.ChunkCoord]*chunk
	queue     []pendingPack
	packJobs  []packJob
}

func New(cfg Config) (*Collider, error) {
	for a := 0; a < 3; a++ {
		if cfg.ChunkSize[a] <= 0 {
			return nil, fmt.Errorf("collider: chunk size %v must be positive", cfg.ChunkSize)
		}
	}
	if cfg.IsVoxelEmpty == nil {
		return nil, errors.New("collider: IsVoxelEmpty predicate is required")
	}
	padded := [3]int{cfg.ChunkSize[0] + 2, cfg.ChunkSize[1] + 2, cfg.ChunkSize[2] + 2}
	strides, err := cfg.Ordering.Strides(padded)
	if err != nil {
		return nil, fmt.Errorf("collider: %w", err)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = systemClock{}
	}
	return &Collider{
		cfg:       cfg,
		clock:     clock,
		paddedLen: padded[0] * padded[1] * padded[2],
		strides:   strides,
		chunks:    make(map[grid.ChunkCoord]*chunk),
	}, nil
}

// RegisterTasks adds the packing handler to a pool registry. Must be called
// on the registry before the pool that serves Config.Pool is built.
func RegisterTasks(reg task.Registry) {
	reg[PackKind] = func(payload any) (any, error) {
		p := payload.(packPayload)
		return packOccupancy(p.raw, p.isEmpty), nil
	}
}

func packOccupancy(raw []uint16, isEmpty func(uint16) bool) []byte {
	bits := make([]byte, (len(raw)+7)/8)
	for i, code := range raw {
		if !isEmpty(code) {
			bits[i/8] |= 1 << (i % 8)
		}
	}
	return bits
}

// SetChunk ingests one chunk. A chunk coordinate can be set at most once;
// there is no delete, callers needing eviction rebuild the collider.
func (c *Collider) SetChunk(coord grid.ChunkCoord, data ChunkData) error {
	if data.Ordering != c.cfg.Ordering {
		return fmt.Errorf("%w: got %q, configured %q", ErrBadOrdering, data.Ordering, c.cfg.Ordering)
	}
	if _, exists := c.chunks[coord]; exists {
		return fmt.Errorf("%w: %v", ErrDuplicateChunk, coord)
	}
	if data.IsEmpty {
		c.chunks[coord] = &chunk{state: chunkEmpty}
		return nil
	}
	if len(data.Data) != c.paddedLen {
		return fmt.Errorf("%w: got %d values, want %d", ErrBadLength, len(data.Data), c.paddedLen)
	}

	ck := &chunk{state: chunkRaw, raw: data.Data}
	c.chunks[coord] = ck

	if c.cfg.Pool != nil {
		c.queue = append(c.queue, pendingPack{coord: coord, raw: data.Data, due: c.clock.Now().Add(c.cfg.PackDelay)})
	}
	return nil
}

// Maintain schedules pack jobs whose delay has elapsed and applies finished
// results. Call once per frame from the update loop; the raw array is
// swapped only when it is still the one the job was built from, so a
// rebuilt collider never gets stale bits.
func (c *Collider) Maintain() {
	now := c.clock.Now()
	queued := c.queue[:0]
	for _, q := range c.queue {
		if q.due.After(now) {
			queued = append(queued, q)
			continue
		}
		pending, err := c.cfg.Pool.Submit(PackKind, packPayload{raw: q.raw, isEmpty: c.cfg.IsVoxelEmpty})
		if err == nil {
			c.packJobs = append(c.packJobs, packJob{coord: q.coord, raw: q.raw, pending: pending})
		}
		// A terminated pool just means the chunk stays raw.
	}
	c.queue = queued

	remaining := c.packJobs[:0]
	for _, job := range c.packJobs {
		res, done := job.pending.Poll()
		if !done {
			remaining = append(remaining, job)
			continue
		}
		if res.Err != nil {
			continue
		}
		ck, ok := c.chunks[job.coord]
		if !ok || ck.state != chunkRaw || &ck.raw[0] != &job.raw[0] {
			continue
		}
		ck.bits = res.Value.([]byte)
		ck.raw = nil
		ck.state = chunkPacked
	}
	c.packJobs = remaining
}

// GetVoxel answers a world-space point query.
func (c *Collider) GetVoxel(v grid.VoxelCoord) VoxelStatus {
	coord, local := grid.ChunkOf(v, c.cfg.ChunkSize)
	ck, ok := c.chunks[coord]
	if !ok {
		return StatusNotLoaded
	}
	switch ck.state {
	case chunkEmpty:
		return StatusEmpty
	case chunkRaw:
		if c.cfg.IsVoxelEmpty(ck.raw[c.index(local)]) {
			return StatusEmpty
		}
		return StatusFull
	default:
		idx := c.index(local)
		if ck.bits[idx/8]&(1<<(idx%8)) != 0 {
			return StatusFull
		}
		return StatusEmpty
	}
}

// index maps a local interior coordinate to the flat margin-padded array.
func (c *Collider) index(local [3]int) int {
	return (local[0]+1)*c.strides[0] + (local[1]+1)*c.strides[1] + (local[2]+1)*c.strides[2]
}

// ChunkCount reports how many chunks have been ingested.
func (c *Collider) ChunkCount() int { return len(c.chunks) }

// PackedRatio reports the fraction of non-empty chunks already bit-packed.
func (c *Collider) PackedRatio() float64 {
	packed, dense := 0, 0
	for _, ck := range c.chunks {
		switch ck.state {
		case chunkRaw:
			dense++
		case chunkPacked:
			packed++
		}
	}
	if packed+dense == 0 {
		return 1
	}
	return float64(packed) / float64(packed+dense)
}
