package nn

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Param is a trainable row-major tensor with its accumulated gradient
type Param struct {
	Name string
	Rows int
	Cols int
	W    []float64
	G    []float64
}

func newParam(name string, rows, cols int) *Param {
	return &Param{
		Name: name,
		Rows: rows,
		Cols: cols,
		W:    make([]float64, rows*cols),
		G:    make([]float64, rows*cols),
	}
}

// Mat returns a matrix view over the weights
func (p *Param) Mat() *mat.Dense {
	return mat.NewDense(p.Rows, p.Cols, p.W)
}

// GradMat returns a matrix view over the gradient
func (p *Param) GradMat() *mat.Dense {
	return mat.NewDense(p.Rows, p.Cols, p.G)
}

// ZeroGrad clears the accumulated gradient
func (p *Param) ZeroGrad() {
	for i := range p.G {
		p.G[i] = 0
	}
}

// uniform fills the weights from U(-k, k)
func (p *Param) uniform(rng *rand.Rand, k float64) {
	for i := range p.W {
		p.W[i] = (rng.Float64()*2 - 1) * k
	}
}

// Runtime is the per-run execution context: the seeded random source
// used for initialization and dropout, and the training flag
type Runtime struct {
	rng      *rand.Rand
	training bool
}

// NewRuntime creates a runtime in training mode
func NewRuntime(seed uint64) *Runtime {
	return &Runtime{
		rng:      rand.New(rand.NewPCG(seed, seed^0xda3e39cb94b95bdb)),
		training: true,
	}
}

// Train switches dropout on
func (r *Runtime) Train() { r.training = true }

// Eval switches dropout off
func (r *Runtime) Eval() { r.training = false }

// Training reports whether dropout is active
func (r *Runtime) Training() bool {
	return r != nil && r.training
}

// dropoutMask returns an inverted-dropout mask, or nil when inactive
func (r *Runtime) dropoutMask(n int, p float64) []float64 {
	if !r.Training() || p <= 0 {
		return nil
	}
	keep := 1 / (1 - p)
	mask := make([]float64, n)
	for i := range mask {
		if r.rng.Float64() >= p {
			mask[i] = keep
		}
	}
	return mask
}

// affine sets dst = W x + b; b may be nil
func affine(dst []float64, w *Param, x, b []float64) {
	d := mat.NewVecDense(len(dst), dst)
	d.MulVec(w.Mat(), mat.NewVecDense(len(x), x))
	if b != nil {
		floats.Add(dst, b)
	}
}

// backAffine accumulates dW += dz xᵀ and returns Wᵀ dz
func backAffine(w *Param, dz, x []float64) []float64 {
	dzv := mat.NewVecDense(len(dz), dz)
	g := w.GradMat()
	g.RankOne(g, 1, dzv, mat.NewVecDense(len(x), x))

	dx := make([]float64, len(x))
	mat.NewVecDense(len(dx), dx).MulVec(w.Mat().T(), dzv)
	return dx
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func zeros(n int) []float64 {
	return make([]float64, n)
}

func orZeros(v []float64, n int) []float64 {
	if v == nil {
		return zeros(n)
	}
	return v
}
