package jpegtran

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allOps = []Op{None, FlipH, FlipV, Transpose, Transverse, Rot90, Rot180, Rot270}

func TestCompose(t *testing.T) {
	tests := []struct {
		a, b, want Op
	}{
		{Rot90, Rot90, Rot180},
		{Rot90, Rot180, Rot270},
		{Rot90, Rot270, None},
		{Rot180, Rot180, None},
		{FlipH, FlipH, None},
		{FlipH, FlipV, Rot180},
		{FlipH, Rot90, Transverse},
		{Rot90, FlipH, Transpose},
		{Transpose, Rot90, FlipH},
		{Transpose, Transverse, Rot180},
		{None, Rot270, Rot270},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Compose(tt.a, tt.b), "%v then %v", tt.a, tt.b)
	}
}

func TestComposeGroupLaws(t *testing.T) {
	for _, a := range allOps {
		assert.Equal(t, None, Compose(a, Inverse(a)), "%v", a)
		assert.Equal(t, a, Compose(a, None))
		assert.Equal(t, a, Compose(None, a))
		for _, b := range allOps {
			for _, c := range allOps {
				assert.Equal(t, Compose(Compose(a, b), c), Compose(a, Compose(b, c)))
			}
		}
	}
}

func TestFromOrientation(t *testing.T) {
	want := map[int]Op{
		0: None, 1: None, 2: FlipH, 3: Rot180, 4: FlipV,
		5: Transpose, 6: Rot90, 7: Transverse, 8: Rot270, 9: None,
	}
	for o, op := range want {
		assert.Equal(t, op, FromOrientation(o), "orientation %d", o)
	}
}

func TestParseOp(t *testing.T) {
	for _, op := range allOps {
		got, err := ParseOp(op.String())
		require.NoError(t, err)
		assert.Equal(t, op, got)
	}

	got, err := ParseOp("90")
	require.NoError(t, err)
	assert.Equal(t, Rot90, got)

	got, err = ParseOp("horizontal")
	require.NoError(t, err)
	assert.Equal(t, FlipH, got)

	_, err = ParseOp("rot45")
	assert.ErrorIs(t, err, ErrUnsupportedTransform)
}

func TestSwapsAxes(t *testing.T) {
	for _, op := range allOps {
		want := op == Transpose || op == Transverse || op == Rot90 || op == Rot270
		assert.Equal(t, want, op.SwapsAxes(), "%v", op)
	}
}
