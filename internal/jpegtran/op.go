package jpegtran

import (
	"fmt"
	"strings"
)

// Op is a lossless geometric transform: an element of the symmetry group of
// the rectangle extended with the diagonal mirrors (the dihedral group D4).
type Op int

const (
	None Op = iota
	FlipH
	FlipV
	Transpose
	Transverse
	Rot90
	Rot180
	Rot270
)

var opNames = [...]string{"none", "flip-h", "flip-v", "transpose", "transverse", "rot90", "rot180", "rot270"}

func (o Op) String() string {
	if o < 0 || int(o) >= len(opNames) {
		return fmt.Sprintf("Op(%d)", int(o))
	}
	return opNames[o]
}

// ParseOp accepts the names returned by String, plus "90", "180", "270",
// "horizontal" and "vertical".
func ParseOp(s string) (Op, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return None, nil
	case "flip-h", "fliph", "horizontal":
		return FlipH, nil
	case "flip-v", "flipv", "vertical":
		return FlipV, nil
	case "transpose":
		return Transpose, nil
	case "transverse":
		return Transverse, nil
	case "rot90", "90":
		return Rot90, nil
	case "rot180", "180":
		return Rot180, nil
	case "rot270", "270":
		return Rot270, nil
	}
	return None, fmt.Errorf("%w: %q", ErrUnsupportedTransform, s)
}

// geometry describes an op as "optionally transpose, then mirror the
// result horizontally and/or vertically".
type geometry struct {
	transpose, mirrorX, mirrorY bool
}

var opGeometry = [...]geometry{
	None:       {},
	FlipH:      {mirrorX: true},
	FlipV:      {mirrorY: true},
	Rot180:     {mirrorX: true, mirrorY: true},
	Transpose:  {transpose: true},
	Rot90:      {transpose: true, mirrorX: true},
	Rot270:     {transpose: true, mirrorY: true},
	Transverse: {transpose: true, mirrorX: true, mirrorY: true},
}

// matrix returns the op's action on centred pixel coordinates.
func (g geometry) matrix() [4]int {
	m := [4]int{1, 0, 0, 1}
	if g.transpose {
		m = [4]int{0, 1, 1, 0}
	}
	if g.mirrorX {
		m[0], m[1] = -m[0], -m[1]
	}
	if g.mirrorY {
		m[2], m[3] = -m[2], -m[3]
	}
	return m
}

// SwapsAxes reports whether the op exchanges width and height.
func (o Op) SwapsAxes() bool {
	return o.valid() && opGeometry[o].transpose
}

func (o Op) valid() bool {
	return o >= None && o <= Rot270
}

// Compose returns the op equivalent to applying a and then b.
func Compose(a, b Op) Op {
	ma, mb := opGeometry[a].matrix(), opGeometry[b].matrix()
	// mb * ma
	m := [4]int{
		mb[0]*ma[0] + mb[1]*ma[2], mb[0]*ma[1] + mb[1]*ma[3],
		mb[2]*ma[0] + mb[3]*ma[2], mb[2]*ma[1] + mb[3]*ma[3],
	}
	for o := None; o <= Rot270; o++ {
		if opGeometry[o].matrix() == m {
			return o
		}
	}
	panic("jpegtran: D4 is not closed")
}

// Inverse returns the op that undoes o.
func Inverse(o Op) Op {
	switch o {
	case Rot90:
		return Rot270
	case Rot270:
		return Rot90
	}
	return o
}

// FromOrientation returns the op that turns an image stored with the given
// EXIF orientation upright. Unknown orientations map to None.
func FromOrientation(orientation int) Op {
	switch orientation {
	case 2:
		return FlipH
	case 3:
		return Rot180
	case 4:
		return FlipV
	case 5:
		return Transpose
	case 6:
		return Rot90
	case 7:
		return Transverse
	case 8:
		return Rot270
	}
	return None
}
