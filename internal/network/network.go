// Package network defines the Network Backend capability set (C4) and its
// sole shipped implementation, Manual: a dense feed-forward Q-network whose
// matrix algebra runs on gonum.org/v1/gonum/mat rather than hand-rolled
// nested loops. The interface is backend-agnostic so a second backend could
// be added without touching the agent.
package network

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/chessrl/chessrl/internal/encode"
	"github.com/chessrl/chessrl/internal/fileutil"
	"gonum.org/v1/gonum/mat"
)

// Backend is the capability set a Q-network implementation must provide.
type Backend interface {
	// Predict returns Q-values for a batch of encoded states.
	Predict(states [][]float32) [][]float32

	// TrainBatch performs one gradient step toward targets (same shape as
	// Predict's output) and returns the scalar loss and the gradient norm
	// before clipping.
	TrainBatch(states, targets [][]float32) (loss float64, gradNorm float64, err error)

	// CopyWeightsTo duplicates parameters into other. Backends MUST reject
	// cross-backend copies (a *Manual can only copy into another *Manual).
	CopyWeightsTo(other Backend) error

	// Save persists weights to path in a backend-private format.
	Save(path string) error

	// Load restores weights from path, previously written by Save.
	Load(path string) error

	// ParameterCount returns the total scalar parameter count.
	ParameterCount() int

	// BackendID names the backend for checkpoint metadata.
	BackendID() string
}

// ErrNonFinite is returned (wrapped) when a forward or backward pass
// produces a non-finite value, signalling BackendError / TrainingDiverged
// upstream.
var ErrNonFinite = fmt.Errorf("network: non-finite value produced")

// ErrCrossBackendCopy is returned when CopyWeightsTo is given an
// incompatible backend.
var ErrCrossBackendCopy = fmt.Errorf("network: cross-backend weight copy rejected")

// Config controls the Manual backend's architecture and optimizer.
type Config struct {
	HiddenLayers []int
	LearningRate float64
	L2           float64
	GradientClip float64
	Seed         int64
}

// DefaultConfig matches the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		HiddenLayers: []int{512, 256, 128},
		LearningRate: 1e-3,
		L2:           0.0,
		GradientClip: 1.0,
	}
}

const (
	huberDelta  = 1.0
	adamBeta1   = 0.9
	adamBeta2   = 0.999
	adamEpsilon = 1e-8
)

type layer struct {
	w, b     *mat.Dense // w: in x out, b: 1 x out
	mw, vw   *mat.Dense
	mb, vb   *mat.Dense
}

// Manual is a dense feed-forward network: input StateDim -> Dense[hidden...]
// with ReLU -> output ActionDim linear, trained with Adam and Huber loss.
type Manual struct {
	cfg    Config
	layers []*layer
	sizes  []int
	adamT  int
}

var _ Backend = (*Manual)(nil)

// NewManual constructs a Manual backend with He-initialized weights.
func NewManual(cfg Config) *Manual {
	sizes := append([]int{encode.StateDim}, cfg.HiddenLayers...)
	sizes = append(sizes, encode.ActionDim)

	rng := newHeRand(cfg.Seed)
	m := &Manual{cfg: cfg, sizes: sizes}
	for i := 0; i < len(sizes)-1; i++ {
		in, out := sizes[i], sizes[i+1]
		w := mat.NewDense(in, out, nil)
		std := math.Sqrt(2.0 / float64(in))
		for r := 0; r < in; r++ {
			for c := 0; c < out; c++ {
				w.Set(r, c, rng()*std)
			}
		}
		m.layers = append(m.layers, &layer{
			w:  w,
			b:  mat.NewDense(1, out, nil),
			mw: mat.NewDense(in, out, nil),
			vw: mat.NewDense(in, out, nil),
			mb: mat.NewDense(1, out, nil),
			vb: mat.NewDense(1, out, nil),
		})
	}
	return m
}

func (m *Manual) BackendID() string { return "manual" }

func (m *Manual) ParameterCount() int {
	n := 0
	for i := 0; i < len(m.sizes)-1; i++ {
		n += m.sizes[i]*m.sizes[i+1] + m.sizes[i+1]
	}
	return n
}

func toMat(batch [][]float32) *mat.Dense {
	rows := len(batch)
	cols := 0
	if rows > 0 {
		cols = len(batch[0])
	}
	out := mat.NewDense(rows, cols, nil)
	for r, row := range batch {
		for c, v := range row {
			out.Set(r, c, float64(v))
		}
	}
	return out
}

func fromMat(m *mat.Dense) [][]float32 {
	rows, cols := m.Dims()
	out := make([][]float32, rows)
	for r := 0; r < rows; r++ {
		out[r] = make([]float32, cols)
		for c := 0; c < cols; c++ {
			out[r][c] = float32(m.At(r, c))
		}
	}
	return out
}

// forward runs the network on x, returning the input of every layer (x,
// then each hidden layer's post-ReLU output; needed for backprop) plus the
// final linear output (logits).
func (m *Manual) forward(x *mat.Dense) (acts []*mat.Dense, logits *mat.Dense) {
	acts = append(acts, x)
	cur := x
	for i, l := range m.layers {
		rows, _ := cur.Dims()
		_, out := l.w.Dims()
		z := mat.NewDense(rows, out, nil)
		z.Mul(cur, l.w)
		z.Apply(func(r, c int, v float64) float64 { return v + l.b.At(0, c) }, z)

		if i == len(m.layers)-1 {
			logits = z
			break
		}
		a := mat.NewDense(rows, out, nil)
		a.Apply(func(_, _ int, v float64) float64 {
			if v < 0 {
				return 0
			}
			return v
		}, z)
		acts = append(acts, a)
		cur = a
	}
	return acts, logits
}

// Predict returns Q-values for a batch of encoded states.
func (m *Manual) Predict(states [][]float32) [][]float32 {
	if len(states) == 0 {
		return nil
	}
	_, logits := m.forward(toMat(states))
	return fromMat(logits)
}

func huberLossAndGrad(pred, target float64) (loss, grad float64) {
	diff := pred - target
	ad := math.Abs(diff)
	if ad <= huberDelta {
		return 0.5 * diff * diff, diff
	}
	return huberDelta * (ad - 0.5*huberDelta), huberDelta * sign(diff)
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

// TrainBatch performs one Adam step over the batch toward targets, using
// Huber loss per output element, and returns the pre-clip gradient norm.
func (m *Manual) TrainBatch(states, targets [][]float32) (float64, float64, error) {
	if len(states) == 0 {
		return 0, 0, fmt.Errorf("network: empty batch")
	}
	x := toMat(states)
	y := toMat(targets)
	rows, cols := y.Dims()

	acts, logits := m.forward(x)

	dLogits := mat.NewDense(rows, cols, nil)
	totalLoss := 0.0
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			l, g := huberLossAndGrad(logits.At(r, c), y.At(r, c))
			totalLoss += l
			dLogits.Set(r, c, g/float64(rows))
		}
	}
	meanLoss := totalLoss / float64(rows*cols)
	if math.IsNaN(meanLoss) || math.IsInf(meanLoss, 0) {
		return 0, 0, ErrNonFinite
	}

	// Backprop through layers in reverse.
	grad := dLogits
	gradNormSq := 0.0
	type paramGrad struct {
		dw, db *mat.Dense
	}
	grads := make([]paramGrad, len(m.layers))

	for i := len(m.layers) - 1; i >= 0; i-- {
		l := m.layers[i]
		a := acts[i] // input to this layer

		dw := mat.NewDense(l.w.RawMatrix().Rows, l.w.RawMatrix().Cols, nil)
		dw.Mul(a.T(), grad)
		if m.cfg.L2 > 0 {
			dw.Apply(func(r, c int, v float64) float64 { return v + m.cfg.L2*l.w.At(r, c) }, dw)
		}

		db := mat.NewDense(1, grad.RawMatrix().Cols, nil)
		for c := 0; c < grad.RawMatrix().Cols; c++ {
			sum := 0.0
			for r := 0; r < rows; r++ {
				sum += grad.At(r, c)
			}
			db.Set(0, c, sum)
		}

		grads[i] = paramGrad{dw: dw, db: db}
		sumSquares(dw, &gradNormSq)
		sumSquares(db, &gradNormSq)

		if i > 0 {
			dIn := mat.NewDense(rows, l.w.RawMatrix().Rows, nil)
			dIn.Mul(grad, l.w.T())
			// ReLU derivative using the pre-activation sign stored in acts[i]
			// (acts[i] is already post-ReLU, so zero entries had z<=0).
			dIn.Apply(func(r, c int, v float64) float64 {
				if a.At(r, c) <= 0 {
					return 0
				}
				return v
			}, dIn)
			grad = dIn
		}
	}

	gradNorm := math.Sqrt(gradNormSq)
	clip := m.cfg.GradientClip
	if clip <= 0 {
		clip = 1.0
	}

	m.adamT++
	lr := m.cfg.LearningRate
	bc1 := 1 - math.Pow(adamBeta1, float64(m.adamT))
	bc2 := 1 - math.Pow(adamBeta2, float64(m.adamT))

	for i, l := range m.layers {
		applyAdam(l.w, l.mw, l.vw, grads[i].dw, lr, clip, bc1, bc2)
		applyAdam(l.b, l.mb, l.vb, grads[i].db, lr, clip, bc1, bc2)
	}

	return meanLoss, gradNorm, nil
}

func sumSquares(m *mat.Dense, acc *float64) {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			*acc += v * v
		}
	}
}

func applyAdam(param, m, v, grad *mat.Dense, lr, clip, bc1, bc2 float64) {
	r, c := param.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			g := grad.At(i, j)
			if g > clip {
				g = clip
			} else if g < -clip {
				g = -clip
			}
			newM := adamBeta1*m.At(i, j) + (1-adamBeta1)*g
			newV := adamBeta2*v.At(i, j) + (1-adamBeta2)*g*g
			m.Set(i, j, newM)
			v.Set(i, j, newV)
			mHat := newM / bc1
			vHat := newV / bc2
			param.Set(i, j, param.At(i, j)-lr*mHat/(math.Sqrt(vHat)+adamEpsilon))
		}
	}
}

// CopyWeightsTo duplicates parameters into other, parameter-by-parameter.
func (m *Manual) CopyWeightsTo(other Backend) error {
	target, ok := other.(*Manual)
	if !ok {
		return ErrCrossBackendCopy
	}
	if len(target.layers) != len(m.layers) {
		return fmt.Errorf("%w: layer count mismatch", ErrCrossBackendCopy)
	}
	for i, l := range m.layers {
		target.layers[i].w.Copy(l.w)
		target.layers[i].b.Copy(l.b)
	}
	return nil
}

// manualArtifact is the JSON-on-disk representation for a Manual backend's
// weights (format is private to this backend per the Network Backend
// contract; the checkpoint manager only records the backend id).
type manualArtifact struct {
	Sizes   []int       `json:"sizes"`
	Config  Config      `json:"config"`
	Weights [][]float64 `json:"weights"`
	Biases  [][]float64 `json:"biases"`
}

// Save persists weights to path atomically (temp file + fsync + rename).
func (m *Manual) Save(path string) error {
	art := manualArtifact{Sizes: m.sizes, Config: m.cfg}
	for _, l := range m.layers {
		art.Weights = append(art.Weights, l.w.RawMatrix().Data)
		art.Biases = append(art.Biases, l.b.RawMatrix().Data)
	}
	data, err := json.Marshal(art)
	if err != nil {
		return fmt.Errorf("network: marshal weights: %w", err)
	}
	return fileutil.WriteFileAtomic(path, data, 0o644)
}

// Load restores weights from a file written by Save.
func (m *Manual) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("network: read weights: %w", err)
	}
	var art manualArtifact
	if err := json.Unmarshal(data, &art); err != nil {
		return fmt.Errorf("network: unmarshal weights: %w", err)
	}
	if len(art.Sizes) != len(m.sizes) {
		return fmt.Errorf("network: architecture mismatch loading %s", path)
	}
	for i := range m.sizes {
		if art.Sizes[i] != m.sizes[i] {
			return fmt.Errorf("network: architecture mismatch at layer %d loading %s", i, path)
		}
	}
	for i, l := range m.layers {
		copy(l.w.RawMatrix().Data, art.Weights[i])
		copy(l.b.RawMatrix().Data, art.Biases[i])
	}
	return nil
}

func newHeRand(seed int64) func() float64 {
	state := uint64(seed) + 0x9e3779b97f4a7c15
	next := func() float64 {
		state ^= state >> 12
		state ^= state << 25
		state ^= state >> 27
		v := state * 2685821657736338717
		// map to roughly N(0,1) via Box-Muller on two uniform draws derived
		// from the same xorshift stream.
		u1 := float64(v>>11) / (1 << 53)
		if u1 <= 1e-12 {
			u1 = 1e-12
		}
		state ^= state >> 12
		state ^= state << 25
		state ^= state >> 27
		v2 := state * 2685821657736338717
		u2 := float64(v2>>11) / (1 << 53)
		return math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
	}
	return next
}

// New constructs a Backend by name. "manual" is the only name currently
// wired.
func New(name string, cfg Config) (Backend, error) {
	switch name {
	case "", "manual":
		return NewManual(cfg), nil
	default:
		return nil, fmt.Errorf("network: unknown backend %q", name)
	}
}
