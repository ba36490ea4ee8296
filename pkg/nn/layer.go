package nn

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// biLayer runs one cell forward in time and another backward, and
// concatenates their hidden states per time step
type biLayer struct {
	hidden int
	in     int
	fwd    Cell
	bwd    Cell
}

type layerTape struct {
	fwd []*stepCache
	bwd []*stepCache
}

func (l *biLayer) params() []*Param {
	return append(l.fwd.Params(), l.bwd.Params()...)
}

func (l *biLayer) forward(xs [][]float64) ([][]float64, *layerTape) {
	T, H := len(xs), l.hidden
	out := make([][]float64, T)
	for t := range out {
		out[t] = zeros(2 * H)
	}
	tape := &layerTape{fwd: make([]*stepCache, T), bwd: make([]*stepCache, T)}

	h, c := zeros(H), zeros(H)
	for t := 0; t < T; t++ {
		h, c, tape.fwd[t] = l.fwd.Forward(xs[t], h, c)
		copy(out[t][:H], h)
	}

	h, c = zeros(H), zeros(H)
	for t := T - 1; t >= 0; t-- {
		h, c, tape.bwd[t] = l.bwd.Forward(xs[t], h, c)
		copy(out[t][H:], h)
	}
	return out, tape
}

func (l *biLayer) backward(tape *layerTape, dOut [][]float64) [][]float64 {
	T, H := len(dOut), l.hidden
	dxs := make([][]float64, T)
	for t := range dxs {
		dxs[t] = zeros(l.in)
	}

	dh, dc := zeros(H), zeros(H)
	for t := T - 1; t >= 0; t-- {
		g := make([]float64, H)
		copy(g, dOut[t][:H])
		floats.Add(g, dh)
		dx, dhPrev, dcPrev := l.fwd.Backward(tape.fwd[t], g, dc)
		floats.Add(dxs[t], dx)
		dh, dc = dhPrev, orZeros(dcPrev, H)
	}

	dh, dc = zeros(H), zeros(H)
	for t := 0; t < T; t++ {
		g := make([]float64, H)
		copy(g, dOut[t][H:])
		floats.Add(g, dh)
		dx, dhPrev, dcPrev := l.bwd.Backward(tape.bwd[t], g, dc)
		floats.Add(dxs[t], dx)
		dh, dc = dhPrev, orZeros(dcPrev, H)
	}
	return dxs
}

// attention scores every time step with a bias-free linear map, normalizes
// the scores with softmax and returns the weighted sum of hidden states
type attention struct {
	w *Param // 1 x 2H
}

func (a *attention) forward(hs [][]float64) (context, weights []float64) {
	weights = make([]float64, len(hs))
	maxScore := math.Inf(-1)
	for t, h := range hs {
		weights[t] = floats.Dot(a.w.W, h)
		if weights[t] > maxScore {
			maxScore = weights[t]
		}
	}
	sum := 0.0
	for t := range weights {
		weights[t] = math.Exp(weights[t] - maxScore)
		sum += weights[t]
	}
	floats.Scale(1/sum, weights)

	context = zeros(len(a.w.W))
	for t, h := range hs {
		floats.AddScaled(context, weights[t], h)
	}
	return context, weights
}

func (a *attention) backward(hs [][]float64, weights, dContext []float64) [][]float64 {
	dWeights := make([]float64, len(hs))
	mean := 0.0
	for t, h := range hs {
		dWeights[t] = floats.Dot(dContext, h)
		mean += weights[t] * dWeights[t]
	}

	dhs := make([][]float64, len(hs))
	for t, h := range hs {
		dScore := weights[t] * (dWeights[t] - mean)
		dh := zeros(len(h))
		floats.AddScaled(dh, weights[t], dContext)
		floats.AddScaled(dh, dScore, a.w.W)
		floats.AddScaled(a.w.G, dScore, h)
		dhs[t] = dh
	}
	return dhs
}

// linear maps the context to a single output
type linear struct {
	w *Param // 1 x in
	b *Param // 1
}

func (l *linear) forward(x []float64) float64 {
	return floats.Dot(l.w.W, x) + l.b.W[0]
}

func (l *linear) backward(x []float64, dy float64) []float64 {
	floats.AddScaled(l.w.G, dy, x)
	l.b.G[0] += dy
	dx := zeros(len(x))
	floats.AddScaled(dx, dy, l.w.W)
	return dx
}

func applyMask(v, mask []float64) []float64 {
	if mask == nil {
		return v
	}
	out := make([]float64, len(v))
	floats.MulTo(out, v, mask)
	return out
}
