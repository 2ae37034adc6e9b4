package variation

import (
	"fmt"
	"math"

	"github.com/carbocation/pfx"
)

// Scalar is the set of element types a field array can hold.
type Scalar interface {
	int32 | float64 | string | bool
}

// Array is one field's data. The leading dimension always runs over variants.
type Array interface {
	Type() ValueType
	Shape() []int
	Rows() int

	// Slice copies rows [start, end).
	Slice(start, end int) Array
	// TakeRows copies the given rows, in the given order.
	TakeRows(rows []int) Array
	// TakeAxis1 copies the given positions of the second dimension (samples
	// for /calls fields).
	TakeAxis1(idx []int) (Array, error)
	Clone() Array
	// Equal compares shape and values, treating missing floats as equal.
	Equal(other Array) bool
}

// Matrix is a dense row-major N-dimensional array.
type Matrix[T Scalar] struct {
	shape []int
	data  []T
}

// NewMatrix allocates a matrix of the given shape with every slot set to fill.
func NewMatrix[T Scalar](shape []int, fill T) *Matrix[T] {
	n := product(shape)
	data := make([]T, n)
	var zero T
	if fill != zero || isNaN(fill) {
		for i := range data {
			data[i] = fill
		}
	}
	return &Matrix[T]{shape: append([]int(nil), shape...), data: data}
}

// FromSlice wraps data with the given shape. It panics if the sizes disagree,
// which is always a programming error.
func FromSlice[T Scalar](data []T, shape ...int) *Matrix[T] {
	if product(shape) != len(data) {
		panic(fmt.Sprintf("variation: %d values do not fit shape %v", len(data), shape))
	}
	return &Matrix[T]{shape: append([]int(nil), shape...), data: data}
}

func (m *Matrix[T]) Type() ValueType {
	var zero T
	switch any(zero).(type) {
	case int32:
		return TypeInteger
	case float64:
		return TypeFloat
	case bool:
		return TypeFlag
	}
	return TypeString
}

func (m *Matrix[T]) Shape() []int { return append([]int(nil), m.shape...) }

// Data exposes the backing slice. Writes through it are visible in m.
func (m *Matrix[T]) Data() []T { return m.data }

func (m *Matrix[T]) Rows() int {
	if len(m.shape) == 0 {
		return 0
	}
	return m.shape[0]
}

// RowLen is the number of values per variant.
func (m *Matrix[T]) RowLen() int {
	return product(m.shape[1:])
}

// Row returns a view of row i.
func (m *Matrix[T]) Row(i int) []T {
	w := m.RowLen()
	return m.data[i*w : (i+1)*w]
}

func (m *Matrix[T]) offset(idx []int) int {
	off := 0
	for d, i := range idx {
		off = off*m.shape[d] + i
	}
	for d := len(idx); d < len(m.shape); d++ {
		off *= m.shape[d]
	}
	return off
}

func (m *Matrix[T]) At(idx ...int) T {
	return m.data[m.offset(idx)]
}

func (m *Matrix[T]) Set(v T, idx ...int) {
	m.data[m.offset(idx)] = v
}

func (m *Matrix[T]) Slice(start, end int) Array {
	w := m.RowLen()
	shape := m.Shape()
	shape[0] = end - start
	data := make([]T, (end-start)*w)
	copy(data, m.data[start*w:end*w])
	return &Matrix[T]{shape: shape, data: data}
}

func (m *Matrix[T]) TakeRows(rows []int) Array {
	w := m.RowLen()
	shape := m.Shape()
	shape[0] = len(rows)
	data := make([]T, 0, len(rows)*w)
	for _, r := range rows {
		data = append(data, m.data[r*w:(r+1)*w]...)
	}
	return &Matrix[T]{shape: shape, data: data}
}

func (m *Matrix[T]) TakeAxis1(idx []int) (Array, error) {
	if len(m.shape) < 2 {
		return nil, pfx.Err(fmt.Errorf("Cannot select along axis 1 of a %d-dimensional array", len(m.shape)))
	}
	inner := product(m.shape[2:])
	shape := m.Shape()
	shape[1] = len(idx)
	data := make([]T, 0, m.shape[0]*len(idx)*inner)
	for r := 0; r < m.shape[0]; r++ {
		row := m.Row(r)
		for _, c := range idx {
			if c < 0 || c >= m.shape[1] {
				return nil, pfx.Err(fmt.Errorf("Index %d out of range for axis 1 of size %d", c, m.shape[1]))
			}
			data = append(data, row[c*inner:(c+1)*inner]...)
		}
	}
	return &Matrix[T]{shape: shape, data: data}, nil
}

func (m *Matrix[T]) Clone() Array {
	return &Matrix[T]{shape: m.Shape(), data: append([]T(nil), m.data...)}
}

func (m *Matrix[T]) Equal(other Array) bool {
	o, ok := other.(*Matrix[T])
	if !ok || len(o.shape) != len(m.shape) {
		return false
	}
	for i := range m.shape {
		if m.shape[i] != o.shape[i] {
			return false
		}
	}
	for i := range m.data {
		if m.data[i] != o.data[i] && !(isNaN(m.data[i]) && isNaN(o.data[i])) {
			return false
		}
	}
	return true
}

func (m *Matrix[T]) String() string {
	return fmt.Sprintf("%s%v", m.Type(), m.shape)
}

// widen returns a copy whose trailing dimensions are grown to trailing,
// padding new slots with the missing value. Dimensions never shrink.
func (m *Matrix[T]) widen(trailing []int) *Matrix[T] {
	same := true
	for d, n := range trailing {
		if m.shape[d+1] != n {
			same = false
		}
	}
	if same {
		return m
	}

	shape := append([]int{m.shape[0]}, trailing...)
	out := NewMatrix(shape, missingOf[T]())
	idx := make([]int, len(m.shape))
	for _, v := range m.data {
		out.data[out.offset(idx)] = v
		for d := len(idx) - 1; d >= 0; d-- {
			idx[d]++
			if idx[d] < m.shape[d] {
				break
			}
			idx[d] = 0
		}
	}
	return out
}

// Concat stacks b under a. Trailing dimensions that differ are widened to the
// larger of the two, padding with the missing value of the element type.
func Concat(a, b Array) (Array, error) {
	if a == nil {
		return b.Clone(), nil
	}
	return ConcatAll([]Array{a, b})
}

// ConcatAll stacks parts in order, widening trailing dimensions as Concat
// does. Every value is copied once, so gathering many pieces and joining
// them here is linear in the total size.
func ConcatAll(parts []Array) (Array, error) {
	if len(parts) == 0 {
		return nil, pfx.Err(fmt.Errorf("Nothing to concatenate"))
	}

	switch first := parts[0].(type) {
	case *Matrix[int32]:
		return concatAll(first, parts)
	case *Matrix[float64]:
		return concatAll(first, parts)
	case *Matrix[string]:
		return concatAll(first, parts)
	case *Matrix[bool]:
		return concatAll(first, parts)
	}

	return nil, pfx.Err(fmt.Errorf("Unsupported array %T", parts[0]))
}

func concatAll[T Scalar](first *Matrix[T], parts []Array) (Array, error) {
	ms := make([]*Matrix[T], len(parts))
	shape := append([]int(nil), first.shape...)
	for i, p := range parts {
		if err := compatible(first, p); err != nil {
			return nil, err
		}
		ms[i] = p.(*Matrix[T])
		shape = append([]int{0}, maxTrailing(shape, ms[i].shape)...)
	}
	trailing := shape[1:]

	var rows, size int
	for i, m := range ms {
		ms[i] = m.widen(trailing)
		rows += ms[i].shape[0]
		size += len(ms[i].data)
	}
	data := make([]T, 0, size)
	for _, m := range ms {
		data = append(data, m.data...)
	}
	return &Matrix[T]{shape: append([]int{rows}, trailing...), data: data}, nil
}

// compatible reports whether b can be stacked under a.
func compatible(a, b Array) error {
	if a.Type() != b.Type() {
		return pfx.Err(fmt.Errorf("Cannot append a %s array to a %s array", b.Type(), a.Type()))
	}
	if len(a.Shape()) != len(b.Shape()) {
		return pfx.Err(fmt.Errorf("Cannot append a %d-dimensional array to a %d-dimensional array", len(b.Shape()), len(a.Shape())))
	}
	return nil
}

func maxTrailing(a, b []int) []int {
	out := make([]int, len(a)-1)
	for d := 1; d < len(a); d++ {
		out[d-1] = a[d]
		if b[d] > out[d-1] {
			out[d-1] = b[d]
		}
	}
	return out
}

// EmptyLike returns an array with zero rows and the same trailing shape.
func EmptyLike(a Array) Array {
	return a.Slice(0, 0)
}

// NewEmpty returns a zero-row array of the given type and trailing shape.
func NewEmpty(t ValueType, trailing []int) Array {
	shape := append([]int{0}, trailing...)
	switch t {
	case TypeInteger:
		return NewMatrix(shape, MissingInt)
	case TypeFloat:
		return NewMatrix(shape, MissingFloat())
	case TypeFlag:
		return NewMatrix(shape, false)
	}
	return NewMatrix(shape, MissingString)
}

// AsInt asserts that a holds integers.
func AsInt(a Array) (*Matrix[int32], error) {
	m, ok := a.(*Matrix[int32])
	if !ok {
		return nil, pfx.Err(fmt.Errorf("Expected an Integer array, got %s", describe(a)))
	}
	return m, nil
}

// AsFloat asserts that a holds floats.
func AsFloat(a Array) (*Matrix[float64], error) {
	m, ok := a.(*Matrix[float64])
	if !ok {
		return nil, pfx.Err(fmt.Errorf("Expected a Float array, got %s", describe(a)))
	}
	return m, nil
}

// AsString asserts that a holds strings.
func AsString(a Array) (*Matrix[string], error) {
	m, ok := a.(*Matrix[string])
	if !ok {
		return nil, pfx.Err(fmt.Errorf("Expected a String array, got %s", describe(a)))
	}
	return m, nil
}

// AsFlag asserts that a holds booleans.
func AsFlag(a Array) (*Matrix[bool], error) {
	m, ok := a.(*Matrix[bool])
	if !ok {
		return nil, pfx.Err(fmt.Errorf("Expected a Flag array, got %s", describe(a)))
	}
	return m, nil
}

func describe(a Array) string {
	if a == nil {
		return "nil"
	}
	return fmt.Sprintf("%s%v", a.Type(), a.Shape())
}

func missingOf[T Scalar]() T {
	var v T
	switch p := any(&v).(type) {
	case *int32:
		*p = MissingInt
	case *float64:
		*p = math.NaN()
	}
	return v
}

func isNaN[T Scalar](v T) bool {
	f, ok := any(v).(float64)
	return ok && math.IsNaN(f)
}

func product(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}
