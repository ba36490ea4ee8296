package nn

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// stepCache keeps what a cell needs to backpropagate one time step
type stepCache struct {
	x     []float64
	hPrev []float64
	cPrev []float64
	gates []float64 // activated gates
	tc    []float64 // tanh of the new cell state (LSTM)
	ahN   []float64 // recurrent candidate pre-activation (GRU)
}

// Cell is one recurrent step. The cell state c is nil for cells without one.
type Cell interface {
	Forward(x, h, c []float64) (hNext, cNext []float64, cache *stepCache)
	Backward(cache *stepCache, dh, dc []float64) (dx, dhPrev, dcPrev []float64)
	Params() []*Param
}

// lstmCell uses gate order input, forget, cell, output
type lstmCell struct {
	hidden int
	wx     *Param // 4H x D
	wh     *Param // 4H x H
	b      *Param // 4H
}

func newLSTMCell(name string, in, hidden int) *lstmCell {
	return &lstmCell{
		hidden: hidden,
		wx:     newParam(name+".weight_ih", 4*hidden, in),
		wh:     newParam(name+".weight_hh", 4*hidden, hidden),
		b:      newParam(name+".bias", 4*hidden, 1),
	}
}

func (c *lstmCell) Params() []*Param {
	return []*Param{c.wx, c.wh, c.b}
}

func (c *lstmCell) Forward(x, h, cPrev []float64) ([]float64, []float64, *stepCache) {
	H := c.hidden
	cPrev = orZeros(cPrev, H)

	z := zeros(4 * H)
	affine(z, c.wx, x, c.b.W)
	rec := zeros(4 * H)
	affine(rec, c.wh, h, nil)
	floats.Add(z, rec)

	gates := zeros(4 * H)
	hNext := zeros(H)
	cNext := zeros(H)
	tc := zeros(H)
	for j := 0; j < H; j++ {
		i := sigmoid(z[j])
		f := sigmoid(z[H+j])
		g := math.Tanh(z[2*H+j])
		o := sigmoid(z[3*H+j])
		gates[j], gates[H+j], gates[2*H+j], gates[3*H+j] = i, f, g, o

		cNext[j] = f*cPrev[j] + i*g
		tc[j] = math.Tanh(cNext[j])
		hNext[j] = o * tc[j]
	}

	return hNext, cNext, &stepCache{x: x, hPrev: h, cPrev: cPrev, gates: gates, tc: tc}
}

func (c *lstmCell) Backward(st *stepCache, dh, dc []float64) ([]float64, []float64, []float64) {
	H := c.hidden
	dc = orZeros(dc, H)

	dz := zeros(4 * H)
	dcPrev := zeros(H)
	for j := 0; j < H; j++ {
		i, f, g, o := st.gates[j], st.gates[H+j], st.gates[2*H+j], st.gates[3*H+j]
		tc := st.tc[j]

		do := dh[j] * tc
		dct := dc[j] + dh[j]*o*(1-tc*tc)
		di := dct * g
		dg := dct * i
		df := dct * st.cPrev[j]
		dcPrev[j] = dct * f

		dz[j] = di * i * (1 - i)
		dz[H+j] = df * f * (1 - f)
		dz[2*H+j] = dg * (1 - g*g)
		dz[3*H+j] = do * o * (1 - o)
	}

	floats.Add(c.b.G, dz)
	dx := backAffine(c.wx, dz, st.x)
	dhPrev := backAffine(c.wh, dz, st.hPrev)
	return dx, dhPrev, dcPrev
}

// gruCell uses gate order reset, update, new with separate input and
// recurrent biases; the reset gate scales the recurrent candidate term
type gruCell struct {
	hidden int
	wx     *Param // 3H x D
	wh     *Param // 3H x H
	bx     *Param // 3H
	bh     *Param // 3H
}

func newGRUCell(name string, in, hidden int) *gruCell {
	return &gruCell{
		hidden: hidden,
		wx:     newParam(name+".weight_ih", 3*hidden, in),
		wh:     newParam(name+".weight_hh", 3*hidden, hidden),
		bx:     newParam(name+".bias_ih", 3*hidden, 1),
		bh:     newParam(name+".bias_hh", 3*hidden, 1),
	}
}

func (c *gruCell) Params() []*Param {
	return []*Param{c.wx, c.wh, c.bx, c.bh}
}

func (c *gruCell) Forward(x, h, _ []float64) ([]float64, []float64, *stepCache) {
	H := c.hidden
	ax := zeros(3 * H)
	affine(ax, c.wx, x, c.bx.W)
	ah := zeros(3 * H)
	affine(ah, c.wh, h, c.bh.W)

	gates := zeros(3 * H)
	hNext := zeros(H)
	for j := 0; j < H; j++ {
		r := sigmoid(ax[j] + ah[j])
		z := sigmoid(ax[H+j] + ah[H+j])
		n := math.Tanh(ax[2*H+j] + r*ah[2*H+j])
		gates[j], gates[H+j], gates[2*H+j] = r, z, n

		hNext[j] = (1-z)*n + z*h[j]
	}

	ahN := make([]float64, H)
	copy(ahN, ah[2*H:])
	return hNext, nil, &stepCache{x: x, hPrev: h, gates: gates, ahN: ahN}
}

func (c *gruCell) Backward(st *stepCache, dh, _ []float64) ([]float64, []float64, []float64) {
	H := c.hidden
	dax := zeros(3 * H)
	dah := zeros(3 * H)
	direct := zeros(H)
	for j := 0; j < H; j++ {
		r, z, n := st.gates[j], st.gates[H+j], st.gates[2*H+j]

		dn := dh[j] * (1 - z)
		dzg := dh[j] * (st.hPrev[j] - n)
		direct[j] = dh[j] * z

		dan := dn * (1 - n*n)
		dr := dan * st.ahN[j]
		dar := dr * r * (1 - r)
		daz := dzg * z * (1 - z)

		dax[j], dax[H+j], dax[2*H+j] = dar, daz, dan
		dah[j], dah[H+j], dah[2*H+j] = dar, daz, dan*r
	}

	floats.Add(c.bx.G, dax)
	floats.Add(c.bh.G, dah)
	dx := backAffine(c.wx, dax, st.x)
	dhPrev := backAffine(c.wh, dah, st.hPrev)
	floats.Add(dhPrev, direct)
	return dx, dhPrev, nil
}
