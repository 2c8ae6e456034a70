package grid

import "fmt"

// Ordering declares how a chunk's flat voxel array is laid out, as a
// permutation of the axis letters x, y, z. The first letter varies slowest.
// Producers and the collider must agree on the ordering; mismatches are a
// contract violation at ingestion time.
type Ordering string

const (
	OrderingXYZ Ordering = "xyz"
	OrderingZYX Ordering = "zyx"
)

var axisIndex = map[byte]int{'x': 0, 'y': 1, 'z': 2}

// Valid reports whether the ordering is a permutation of x, y, z.
func (o Ordering) Valid() bool {
	if len(o) != 3 {
		return false
	}
	var seen [3]bool
	for i := 0; i < 3; i++ {
		a, ok := axisIndex[o[i]]
		if !ok || seen[a] {
			return false
		}
		seen[a] = true
	}
	return true
}

// Strides computes the per-axis stride (indexed x, y, z) for a flat array of
// the given per-axis size. The last letter of the ordering is contiguous.
func (o Ordering) Strides(size [3]int) ([3]int, error) {
	if !o.Valid() {
		return [3]int{}, fmt.Errorf("ordering %q is not a permutation of xyz", string(o))
	}
	var strides [3]int
	stride := 1
	for i := 2; i >= 0; i-- {
		axis := axisIndex[o[i]]
		strides[axis] = stride
		stride *= size[axis]
	}
	return strides, nil
}
