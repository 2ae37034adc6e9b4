package variation

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcatWidensWithMissing(t *testing.T) {
	a := FromSlice([]int32{1, 2}, 2, 1)
	b := FromSlice([]int32{3, 4, 5, 6}, 2, 2)

	out, err := Concat(a, b)
	require.NoError(t, err)
	m, err := AsInt(out)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 2}, m.Shape())
	assert.Equal(t, []int32{1, MissingInt, 2, MissingInt, 3, 4, 5, 6}, m.Data())

	_, err = Concat(a, FromSlice([]float64{1}, 1, 1))
	assert.Error(t, err)
	_, err = Concat(a, FromSlice([]int32{1}, 1))
	assert.Error(t, err)
}

func TestConcatAllWidensOnce(t *testing.T) {
	parts := []Array{
		FromSlice([]int32{1, 2}, 2, 1),
		FromSlice([]int32{3, 4, 5, 6}, 1, 4),
		FromSlice([]int32{7, 8}, 1, 2),
	}
	out, err := ConcatAll(parts)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 4}, out.Shape())
	assert.Equal(t, []int32{1, -1, -1, -1, 2, -1, -1, -1, 3, 4, 5, 6, 7, 8, -1, -1}, out.(*Matrix[int32]).Data())

	_, err = ConcatAll([]Array{FromSlice([]int32{1}, 1), FromSlice([]float64{1}, 1)})
	assert.Error(t, err)
	_, err = ConcatAll(nil)
	assert.Error(t, err)
}

func TestConcatNilClones(t *testing.T) {
	b := FromSlice([]string{"x"}, 1)
	out, err := Concat(nil, b)
	require.NoError(t, err)
	b.Set("y", 0)
	assert.Equal(t, "x", out.(*Matrix[string]).At(0))
}

func TestTakeAxis1(t *testing.T) {
	gt := FromSlice([]int32{
		0, 1, 2, 3, 4, 5,
		6, 7, 8, 9, 10, 11,
	}, 2, 3, 2)
	out, err := gt.TakeAxis1([]int{2, 0})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 2}, out.Shape())
	assert.Equal(t, []int32{4, 5, 0, 1, 10, 11, 6, 7}, out.(*Matrix[int32]).Data())

	_, err = gt.TakeAxis1([]int{3})
	assert.Error(t, err)
	_, err = FromSlice([]int32{1}, 1).TakeAxis1([]int{0})
	assert.Error(t, err)
}

func TestTakeRows(t *testing.T) {
	m := FromSlice([]float64{1, 2, 3, 4, 5, 6}, 3, 2)
	out := m.TakeRows([]int{2, 0})
	assert.Equal(t, []float64{5, 6, 1, 2}, out.(*Matrix[float64]).Data())
}

func TestEqualTreatsNaNAsEqual(t *testing.T) {
	a := FromSlice([]float64{1, math.NaN()}, 2)
	b := FromSlice([]float64{1, math.NaN()}, 2)
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(FromSlice([]float64{1, 2}, 2)))
	assert.False(t, a.Equal(FromSlice([]float64{1, math.NaN()}, 1, 2)))
	assert.False(t, a.Equal(FromSlice([]int32{1, 2}, 2)))
}

func TestNewMatrixFill(t *testing.T) {
	m := NewMatrix([]int{2, 2}, MissingFloat())
	for _, v := range m.Data() {
		assert.True(t, math.IsNaN(v))
	}
	assert.Equal(t, []int32{MissingInt, MissingInt}, NewMatrix([]int{2}, MissingInt).Data())
	assert.Equal(t, []string{"", ""}, NewMatrix([]int{2}, MissingString).Data())
}

func TestDosage012AndMissing(t *testing.T) {
	gt := FromSlice([]int32{
		0, 0, 0, 1, 1, 1,
		2, 0, -1, 1, -1, -1,
	}, 2, 3, 2)
	assert.Equal(t, []int32{0, 1, 2, 1, MissingInt, MissingInt}, Dosage012(gt).Data())
	assert.Equal(t, []bool{false, false, false, false, true, true}, GTIsMissing(gt).Data())
}

func TestCountsByRow(t *testing.T) {
	gt := FromSlice([]int32{0, 3, -1, 1}, 1, 2, 2)
	assert.Equal(t, []int32{0, 1, 3}, ObservedAlleles(gt))
	assert.Equal(t, []int32{1, 1, 1}, CountsByRow(gt, nil).Data())
	assert.Equal(t, []int32{1, 1}, CountsByRow(gt, []int32{0, 1}).Data())
	assert.Equal(t, []int32{1, 0, 1}, CountsByRow(gt, []int32{3, 2, 0}).Data())

	missing := FromSlice([]int32{-1, -1}, 1, 1, 2)
	assert.Equal(t, []int{1, 0}, CountsByRow(missing, nil).Shape())
}

func TestChoose(t *testing.T) {
	cases := []struct{ n, k, want int }{
		{3, 1, 3},
		{5, 1, 5},
		{4, 2, 6},
		{10, 3, 120},
	}
	for _, c := range cases {
		if got := Choose(c.n, c.k); got != c.want {
			t.Errorf("Choose(%d, %d): Got %d, expected %d", c.n, c.k, got, c.want)
		}
	}
	if got := NumGenotypes(3, 2); got != 6 {
		t.Errorf("Got %d, expected %d", got, 6)
	}
}

func TestWriteBIM(t *testing.T) {
	s := NewArrays()
	require.NoError(t, s.AppendChunk(testChunk(t, 0, 3)))
	id, err := s.Get(IDField)
	require.NoError(t, err)
	id.(*Matrix[string]).Set(MissingString, 1)

	var buf bytes.Buffer
	require.NoError(t, WriteBIM(&buf, s))
	assert.Equal(t, "20\trs0\t0\t100\tA\tG\n"+
		"20\t20:200\t0\t200\tA\tG\n"+
		"20\trs2\t0\t300\tA\tG\n", buf.String())
}
