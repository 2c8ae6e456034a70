package grid

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestFloorDivMod(t *testing.T) {
	cases := []struct {
		a, b, q, m int
	}{
		{7, 4, 1, 3},
		{-1, 4, -1, 3},
		{-4, 4, -1, 0},
		{-5, 4, -2, 3},
		{0, 4, 0, 0},
	}
	for _, c := range cases {
		if q := FloorDiv(c.a, c.b); q != c.q {
			t.Errorf("FloorDiv(%d,%d) = %d, want %d", c.a, c.b, q, c.q)
		}
		if m := FloorMod(c.a, c.b); m != c.m {
			t.Errorf("FloorMod(%d,%d) = %d, want %d", c.a, c.b, m, c.m)
		}
	}
}

func TestChunkOf(t *testing.T) {
	size := [3]int{16, 16, 16}

	c, local := ChunkOf(VoxelCoord{17, -1, 0}, size)
	if c != (ChunkCoord{1, -1, 0}) {
		t.Errorf("chunk coord = %v", c)
	}
	if local != [3]int{1, 15, 0} {
		t.Errorf("local = %v", local)
	}
}

func TestWorldVoxel(t *testing.T) {
	v := WorldVoxel(mgl32.Vec3{1.5, -0.5, 0})
	if v != (VoxelCoord{1, -1, 0}) {
		t.Errorf("WorldVoxel = %v", v)
	}
}

func TestOrderingValid(t *testing.T) {
	for _, o := range []Ordering{"xyz", "zyx", "yxz", "xzy", "zxy", "yzx"} {
		if !o.Valid() {
			t.Errorf("%q should be valid", o)
		}
	}
	for _, o := range []Ordering{"", "xy", "xyzz", "xxy", "abc", "xyw"} {
		if o.Valid() {
			t.Errorf("%q should be invalid", o)
		}
	}
}

func TestOrderingStrides(t *testing.T) {
	size := [3]int{4, 5, 6}

	// "zyx": x contiguous, y steps by 4, z steps by 20.
	strides, err := OrderingZYX.Strides(size)
	if err != nil {
		t.Fatal(err)
	}
	if strides != [3]int{1, 4, 20} {
		t.Errorf("zyx strides = %v", strides)
	}

	// "xyz": z contiguous, y steps by 6, x steps by 30.
	strides, err = OrderingXYZ.Strides(size)
	if err != nil {
		t.Fatal(err)
	}
	if strides != [3]int{30, 6, 1} {
		t.Errorf("xyz strides = %v", strides)
	}

	if _, err := Ordering("xyw").Strides(size); err == nil {
		t.Error("invalid ordering should error")
	}
}

func TestStridesCoverAllCells(t *testing.T) {
	size := [3]int{3, 4, 5}
	strides, err := Ordering("yzx").Strides(size)
	if err != nil {
		t.Fatal(err)
	}

	seen := make(map[int]bool)
	for x := 0; x < size[0]; x++ {
		for y := 0; y < size[1]; y++ {
			for z := 0; z < size[2]; z++ {
				idx := x*strides[0] + y*strides[1] + z*strides[2]
				if idx < 0 || idx >= size[0]*size[1]*size[2] {
					t.Fatalf("index %d out of range", idx)
				}
				if seen[idx] {
					t.Fatalf("index %d visited twice", idx)
				}
				seen[idx] = true
			}
		}
	}
}
