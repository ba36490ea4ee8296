package nn

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/tunogya/augur/pkg/model"
)

func randomWindow(steps, features int, seed uint64) [][]float64 {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	w := make([][]float64, steps)
	for t := range w {
		w[t] = make([]float64, features)
		for c := range w[t] {
			w[t][c] = rng.Float64()
		}
	}
	return w
}

func smallConfig(cell model.ModelType) Config {
	return Config{InputSize: 3, HiddenSize: 3, NumLayers: 2, Dropout: 0, Cell: cell}
}

// Analytic gradients must agree with central finite differences.
func TestGradientCheck(t *testing.T) {
	for _, cell := range []model.ModelType{model.ModelLSTM, model.ModelGRU} {
		t.Run(string(cell), func(t *testing.T) {
			m, err := NewRegressor(smallConfig(cell), NewRuntime(1))
			if err != nil {
				t.Fatalf("new regressor: %v", err)
			}
			window := randomWindow(5, 3, 2)
			target := 0.3

			loss := func() float64 {
				y, _ := m.Predict(window)
				return 0.5 * (y - target) * (y - target)
			}

			m.ZeroGrad()
			y, tape := m.Predict(window)
			m.Backward(tape, y-target)

			const eps = 1e-6
			checked := 0
			for _, p := range m.Params() {
				for i := range p.W {
					orig := p.W[i]
					p.W[i] = orig + eps
					plus := loss()
					p.W[i] = orig - eps
					minus := loss()
					p.W[i] = orig

					numeric := (plus - minus) / (2 * eps)
					analytic := p.G[i]
					diff := math.Abs(numeric - analytic)
					scale := math.Max(1e-6, math.Abs(numeric)+math.Abs(analytic))
					if diff > 1e-7 && diff/scale > 1e-4 {
						t.Fatalf("%s[%d]: analytic %v, numeric %v", p.Name, i, analytic, numeric)
					}
					checked++
				}
			}
			if checked == 0 {
				t.Fatalf("no parameters checked")
			}
		})
	}
}

func TestGradientCheckWithDropoutMasks(t *testing.T) {
	cfg := smallConfig(model.ModelLSTM)
	cfg.Dropout = 0.3
	rt := NewRuntime(5)
	m, err := NewRegressor(cfg, rt)
	if err != nil {
		t.Fatalf("new regressor: %v", err)
	}
	window := randomWindow(4, 3, 9)

	// Freeze one set of masks by replaying the same tape structure.
	tape := m.Forward(rt, window)
	m.ZeroGrad()
	m.Backward(tape, 1)

	replay := func() float64 {
		x := window
		for l, layer := range m.layers {
			if tape.masks[l] != nil {
				masked := make([][]float64, len(x))
				for s := range x {
					masked[s] = applyMask(x[s], tape.masks[l][s])
				}
				x = masked
			}
			x, _ = layer.forward(x)
		}
		ctx, _ := m.attn.forward(x)
		return m.head.forward(applyMask(ctx, tape.ctxMask))
	}

	p := m.layers[0].fwd.Params()[0]
	const eps = 1e-6
	for i := 0; i < len(p.W); i += 5 {
		orig := p.W[i]
		p.W[i] = orig + eps
		plus := replay()
		p.W[i] = orig - eps
		minus := replay()
		p.W[i] = orig
		numeric := (plus - minus) / (2 * eps)
		if math.Abs(numeric-p.G[i]) > 1e-6+1e-4*math.Abs(numeric) {
			t.Fatalf("%s[%d]: analytic %v, numeric %v", p.Name, i, p.G[i], numeric)
		}
	}
}

func TestRegressorDeterministicInit(t *testing.T) {
	a, _ := NewRegressor(DefaultConfig(23, model.ModelGRU), NewRuntime(42))
	b, _ := NewRegressor(DefaultConfig(23, model.ModelGRU), NewRuntime(42))
	window := randomWindow(30, 23, 3)
	ya, _ := a.Predict(window)
	yb, _ := b.Predict(window)
	if ya != yb {
		t.Fatalf("same seed produced %v and %v", ya, yb)
	}

	c, _ := NewRegressor(DefaultConfig(23, model.ModelGRU), NewRuntime(43))
	yc, _ := c.Predict(window)
	if yc == ya {
		t.Fatalf("different seeds produced identical outputs")
	}
}

func TestAttentionWeightsAndContext(t *testing.T) {
	m, err := NewRegressor(DefaultConfig(4, model.ModelLSTM), NewRuntime(7))
	if err != nil {
		t.Fatalf("new regressor: %v", err)
	}
	_, tape := m.Predict(randomWindow(10, 4, 1))
	sum := 0.0
	for _, w := range tape.Weights() {
		if w < 0 {
			t.Fatalf("negative attention weight %v", w)
		}
		sum += w
	}
	if math.Abs(sum-1) > 1e-12 {
		t.Fatalf("attention weights sum to %v", sum)
	}
	if len(tape.Context()) != 100 {
		t.Fatalf("expected context of size 100, got %d", len(tape.Context()))
	}
}

func TestEvalModeIsDeterministic(t *testing.T) {
	rt := NewRuntime(3)
	m, _ := NewRegressor(DefaultConfig(4, model.ModelLSTM), rt)
	window := randomWindow(8, 4, 2)
	rt.Eval()
	a := m.Forward(rt, window).Output
	b := m.Forward(rt, window).Output
	if a != b {
		t.Fatalf("eval outputs differ: %v vs %v", a, b)
	}
	rt.Train()
	if !rt.Training() {
		t.Fatalf("expected training mode")
	}
}

func TestNewRegressorRejectsBadConfig(t *testing.T) {
	if _, err := NewRegressor(Config{InputSize: 0, HiddenSize: 5, NumLayers: 1, Cell: model.ModelLSTM}, NewRuntime(1)); err == nil {
		t.Fatalf("expected error for zero input size")
	}
	if _, err := NewRegressor(Config{InputSize: 2, HiddenSize: 5, NumLayers: 1, Cell: "RNN"}, NewRuntime(1)); err == nil {
		t.Fatalf("expected error for unknown cell")
	}
	if _, err := NewRegressor(Config{InputSize: 2, HiddenSize: 5, NumLayers: 1, Dropout: 1, Cell: model.ModelGRU}, NewRuntime(1)); err == nil {
		t.Fatalf("expected error for dropout of 1")
	}
}

func TestAdamMinimizesQuadratic(t *testing.T) {
	p := newParam("x", 2, 1)
	p.W[0], p.W[1] = 3, -2
	opt := NewAdam([]*Param{p}, 0.1)
	for i := 0; i < 500; i++ {
		opt.ZeroGrad()
		p.G[0] = 2 * (p.W[0] - 1)
		p.G[1] = 2 * (p.W[1] + 1)
		opt.Step()
	}
	if math.Abs(p.W[0]-1) > 5e-2 || math.Abs(p.W[1]+1) > 5e-2 {
		t.Fatalf("adam did not converge: %v", p.W)
	}
	if opt.Steps() != 500 {
		t.Fatalf("unexpected step count %d", opt.Steps())
	}
}

func TestAdamFirstStepSize(t *testing.T) {
	p := newParam("x", 1, 1)
	opt := NewAdam([]*Param{p}, 0.001)
	p.G[0] = 42
	opt.Step()
	if math.Abs(p.W[0]+0.001) > 1e-9 {
		t.Fatalf("bias-corrected first step should move by lr, got %v", p.W[0])
	}
}
