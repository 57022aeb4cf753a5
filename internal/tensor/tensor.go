// Package tensor provides the minimal n-dimensional float64 array used by
// the diffusion core. Data is stored flat in row-major order; the handful
// of operations here (clone, reshape, feature-axis concatenation, batch
// transpose, Gaussian fill) are exactly the ones the samplers need.
package tensor

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// Tensor is an n-dimensional float64 array with row-major flat storage.
type Tensor struct {
	Data  []float64
	Shape []int
}

// New creates a zero-filled tensor with the given shape.
func New(shape ...int) *Tensor {
	size := 1
	for _, s := range shape {
		size *= s
	}
	return &Tensor{Data: make([]float64, size), Shape: shape}
}

// From wraps an existing slice in a tensor. The slice is not copied;
// its length must match the product of the shape.
func From(data []float64, shape ...int) *Tensor {
	size := 1
	for _, s := range shape {
		size *= s
	}
	if len(data) != size {
		panic(fmt.Sprintf("tensor: data length %d does not match shape %v", len(data), shape))
	}
	return &Tensor{Data: data, Shape: shape}
}

// Numel returns the total number of elements.
func (t *Tensor) Numel() int {
	n := 1
	for _, s := range t.Shape {
		n *= s
	}
	return n
}

// Dim returns the size of dimension i.
func (t *Tensor) Dim(i int) int { return t.Shape[i] }

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	d := make([]float64, len(t.Data))
	copy(d, t.Data)
	return &Tensor{Data: d, Shape: append([]int{}, t.Shape...)}
}

// Reshape returns a view over the same data with a new shape. The element
// count must be preserved.
func (t *Tensor) Reshape(shape ...int) *Tensor {
	size := 1
	for _, s := range shape {
		size *= s
	}
	if size != t.Numel() {
		panic(fmt.Sprintf("tensor: cannot reshape %v to %v", t.Shape, shape))
	}
	return &Tensor{Data: t.Data, Shape: shape}
}

// Randn creates a tensor filled with draws from N(0,1) using the given
// source. A nil source falls back to the global generator.
func Randn(src rand.Source, shape ...int) *Tensor {
	t := New(shape...)
	n := distuv.Normal{Mu: 0, Sigma: 1, Src: src}
	for i := range t.Data {
		t.Data[i] = n.Rand()
	}
	return t
}

// RandnLike creates a N(0,1) tensor with the same shape as x.
func RandnLike(src rand.Source, x *Tensor) *Tensor {
	return Randn(src, append([]int{}, x.Shape...)...)
}

// RandnRepeated draws a single N(0,1) row of shape [1, shape[1:]...] and
// repeats it across the batch dimension.
func RandnRepeated(src rand.Source, shape ...int) *Tensor {
	t := New(shape...)
	row := Randn(src, append([]int{1}, shape[1:]...)...)
	stride := len(row.Data)
	for b := 0; b < shape[0]; b++ {
		copy(t.Data[b*stride:(b+1)*stride], row.Data)
	}
	return t
}

// Add returns a + b element-wise.
func Add(a, b *Tensor) *Tensor {
	if len(a.Data) != len(b.Data) {
		panic("tensor: Add operands must have same size")
	}
	out := New(a.Shape...)
	for i := range a.Data {
		out.Data[i] = a.Data[i] + b.Data[i]
	}
	return out
}

// Sub returns a - b element-wise.
func Sub(a, b *Tensor) *Tensor {
	if len(a.Data) != len(b.Data) {
		panic("tensor: Sub operands must have same size")
	}
	out := New(a.Shape...)
	for i := range a.Data {
		out.Data[i] = a.Data[i] - b.Data[i]
	}
	return out
}

// Scale returns x * s.
func Scale(x *Tensor, s float64) *Tensor {
	out := New(x.Shape...)
	for i := range x.Data {
		out.Data[i] = x.Data[i] * s
	}
	return out
}

// Clamp limits every element to [lo, hi] in place and returns x.
func (t *Tensor) Clamp(lo, hi float64) *Tensor {
	for i, v := range t.Data {
		if v < lo {
			t.Data[i] = lo
		} else if v > hi {
			t.Data[i] = hi
		}
	}
	return t
}

// TransposeBatch swaps the last two axes of a [batch, rows, cols] tensor,
// producing [batch, cols, rows].
func TransposeBatch(x *Tensor) *Tensor {
	if len(x.Shape) != 3 {
		panic(fmt.Sprintf("tensor: TransposeBatch needs a 3-D tensor, got %v", x.Shape))
	}
	b, r, c := x.Shape[0], x.Shape[1], x.Shape[2]
	out := New(b, c, r)
	for n := 0; n < b; n++ {
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				out.Data[(n*c+j)*r+i] = x.Data[(n*r+i)*c+j]
			}
		}
	}
	return out
}

// ConcatRows stacks two [batch, *, cols] tensors along the row axis:
// [b, r1, c] + [b, r2, c] -> [b, r1+r2, c].
func ConcatRows(a, b *Tensor) *Tensor {
	if len(a.Shape) != 3 || len(b.Shape) != 3 {
		panic(fmt.Sprintf("tensor: ConcatRows needs 3-D tensors, got %v and %v", a.Shape, b.Shape))
	}
	if a.Shape[0] != b.Shape[0] || a.Shape[2] != b.Shape[2] {
		panic(fmt.Sprintf("tensor: ConcatRows batch/col mismatch: %v vs %v", a.Shape, b.Shape))
	}
	batch, r1, r2, cols := a.Shape[0], a.Shape[1], b.Shape[1], a.Shape[2]
	out := New(batch, r1+r2, cols)
	for n := 0; n < batch; n++ {
		copy(out.Data[n*(r1+r2)*cols:], a.Data[n*r1*cols:(n+1)*r1*cols])
		copy(out.Data[(n*(r1+r2)+r1)*cols:], b.Data[n*r2*cols:(n+1)*r2*cols])
	}
	return out
}

// ShapeError reports a rank or dimension mismatch between cooperating
// tensors. It is returned by API boundaries that validate caller input;
// internal kernels panic instead.
type ShapeError struct {
	Op   string
	Want []int
	Got  []int
}

func (e *ShapeError) Error() string {
	if e.Want == nil {
		return fmt.Sprintf("%s: unexpected shape %v", e.Op, e.Got)
	}
	return fmt.Sprintf("%s: shape mismatch: want %v, got %v", e.Op, e.Want, e.Got)
}

// SameShape reports whether two shapes are identical.
func SameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
