package nn

import (
	"fmt"
	"math"

	"github.com/tunogya/augur/pkg/model"
)

// Config describes the regressor architecture
type Config struct {
	InputSize  int
	HiddenSize int // per direction
	NumLayers  int
	Dropout    float64 // between recurrent layers and on the attention context
	Cell       model.ModelType
}

// DefaultConfig returns the two-layer, 50-unit architecture
func DefaultConfig(inputSize int, cell model.ModelType) Config {
	return Config{
		InputSize:  inputSize,
		HiddenSize: 50,
		NumLayers:  2,
		Dropout:    0.2,
		Cell:       cell,
	}
}

// Regressor is a stacked bidirectional recurrent network with attention
// pooling and a linear head producing one scalar per window
type Regressor struct {
	cfg    Config
	layers []*biLayer
	attn   *attention
	head   *linear
	params []*Param
}

// Tape records a forward pass for backpropagation
type Tape struct {
	Output float64

	layerIn    [][][]float64
	layerTapes []*layerTape
	masks      [][][]float64
	hs         [][]float64
	weights    []float64
	context    []float64
	ctxMask    []float64
	dropped    []float64
}

// Context returns the attention-pooled hidden state
func (t *Tape) Context() []float64 {
	return t.context
}

// Weights returns the attention weights over time steps
func (t *Tape) Weights() []float64 {
	return t.weights
}

// NewRegressor builds a regressor and initializes its weights from rt
func NewRegressor(cfg Config, rt *Runtime) (*Regressor, error) {
	if cfg.InputSize <= 0 || cfg.HiddenSize <= 0 || cfg.NumLayers <= 0 {
		return nil, fmt.Errorf("invalid regressor shape: input=%d hidden=%d layers=%d", cfg.InputSize, cfg.HiddenSize, cfg.NumLayers)
	}
	if cfg.Dropout < 0 || cfg.Dropout >= 1 {
		return nil, fmt.Errorf("dropout %v outside [0, 1)", cfg.Dropout)
	}

	newCell := func(name string, in int) (Cell, error) {
		switch cfg.Cell {
		case model.ModelLSTM:
			return newLSTMCell(name, in, cfg.HiddenSize), nil
		case model.ModelGRU:
			return newGRUCell(name, in, cfg.HiddenSize), nil
		default:
			return nil, fmt.Errorf("unsupported cell %q", cfg.Cell)
		}
	}

	m := &Regressor{cfg: cfg}
	in := cfg.InputSize
	for l := 0; l < cfg.NumLayers; l++ {
		fwd, err := newCell(fmt.Sprintf("rnn.l%d", l), in)
		if err != nil {
			return nil, err
		}
		bwd, err := newCell(fmt.Sprintf("rnn.l%d_reverse", l), in)
		if err != nil {
			return nil, err
		}
		m.layers = append(m.layers, &biLayer{hidden: cfg.HiddenSize, in: in, fwd: fwd, bwd: bwd})
		in = 2 * cfg.HiddenSize
	}
	m.attn = &attention{w: newParam("attention.weight", 1, in)}
	m.head = &linear{w: newParam("fc.weight", 1, in), b: newParam("fc.bias", 1, 1)}

	kRec := 1 / math.Sqrt(float64(cfg.HiddenSize))
	for _, layer := range m.layers {
		for _, p := range layer.params() {
			p.uniform(rt.rng, kRec)
		}
		m.params = append(m.params, layer.params()...)
	}
	kOut := 1 / math.Sqrt(float64(in))
	for _, p := range []*Param{m.attn.w, m.head.w, m.head.b} {
		p.uniform(rt.rng, kOut)
		m.params = append(m.params, p)
	}
	return m, nil
}

// Config returns the architecture
func (m *Regressor) Config() Config {
	return m.cfg
}

// Params returns all trainable tensors
func (m *Regressor) Params() []*Param {
	return m.params
}

// ZeroGrad clears all gradients
func (m *Regressor) ZeroGrad() {
	for _, p := range m.params {
		p.ZeroGrad()
	}
}

// Forward runs one window of shape [steps][features]. Dropout is applied
// only when rt is in training mode.
func (m *Regressor) Forward(rt *Runtime, window [][]float64) *Tape {
	L := len(m.layers)
	tape := &Tape{
		layerIn:    make([][][]float64, L),
		layerTapes: make([]*layerTape, L),
		masks:      make([][][]float64, L),
	}

	x := window
	for l, layer := range m.layers {
		if l > 0 && rt.Training() && m.cfg.Dropout > 0 {
			masked := make([][]float64, len(x))
			tape.masks[l] = make([][]float64, len(x))
			for t := range x {
				tape.masks[l][t] = rt.dropoutMask(len(x[t]), m.cfg.Dropout)
				masked[t] = applyMask(x[t], tape.masks[l][t])
			}
			x = masked
		}
		tape.layerIn[l] = x
		x, tape.layerTapes[l] = layer.forward(x)
	}

	tape.hs = x
	tape.context, tape.weights = m.attn.forward(x)
	tape.ctxMask = rt.dropoutMask(len(tape.context), m.cfg.Dropout)
	tape.dropped = applyMask(tape.context, tape.ctxMask)
	tape.Output = m.head.forward(tape.dropped)
	return tape
}

// Backward accumulates parameter gradients for d(loss)/d(output) = dy
func (m *Regressor) Backward(tape *Tape, dy float64) {
	dDropped := m.head.backward(tape.dropped, dy)
	dContext := applyMask(dDropped, tape.ctxMask)
	grad := m.attn.backward(tape.hs, tape.weights, dContext)

	for l := len(m.layers) - 1; l >= 0; l-- {
		grad = m.layers[l].backward(tape.layerTapes[l], grad)
		if tape.masks[l] != nil {
			for t := range grad {
				grad[t] = applyMask(grad[t], tape.masks[l][t])
			}
		}
	}
}

// Predict runs a forward pass without dropout
func (m *Regressor) Predict(window [][]float64) (float64, *Tape) {
	tape := m.Forward(nil, window)
	return tape.Output, tape
}
