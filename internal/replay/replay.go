// Package replay implements the Replay Buffer (C5): a bounded store of
// transitions in uniform (FIFO) or prioritized mode. Buffers are
// single-owner — the training pipeline is the only caller, self-play
// workers never touch it directly; their transitions are merged in after
// each cycle completes.
package replay

import (
	"math"
	"math/rand/v2"
)

// Transition is one (s, a, r, s', done) tuple, immutable once stored.
type Transition struct {
	State     []float32
	Action    int
	Reward    float64
	NextState []float32
	Done      bool
	// NextLegalActions is the legal action set at NextState, used by
	// Double-DQN/vanilla target computation; nil means "unavailable",
	// which callers must treat as the documented all-actions degradation.
	NextLegalActions []int
}

// Buffer is the capability set both replay modes implement.
type Buffer interface {
	// Add inserts a transition, evicting per policy if at capacity. After
	// Add, Len() <= Capacity() always holds.
	Add(t Transition)

	// Sample draws n transitions (without replacement when n <= Len()).
	// The returned Batch includes importance weights (all 1.0 for uniform
	// sampling) and original-index handles for UpdatePriorities.
	Sample(n int, rng *rand.Rand) Batch

	// UpdatePriorities is a no-op for uniform buffers; prioritized buffers
	// use it to refresh priorities from TD errors after a train step.
	UpdatePriorities(indices []int, tdErrors []float64)

	Len() int
	Capacity() int
}

// Batch is a sampled mini-batch plus bookkeeping needed to report
// priorities back after a training step.
type Batch struct {
	Transitions []Transition
	Weights     []float64 // importance-sampling weights (1.0 under uniform)
	Indices     []int     // internal buffer indices, for UpdatePriorities
}

// PrioritizedConfig holds the alpha/beta schedule parameters (§9 open
// question, standardized here).
type PrioritizedConfig struct {
	Alpha     float64 // priority exponent
	BetaStart float64
	BetaEnd   float64
	BetaCycles int // cycles over which beta anneals from BetaStart to BetaEnd
}

// DefaultPrioritizedConfig matches the spec's standardized defaults.
func DefaultPrioritizedConfig() PrioritizedConfig {
	return PrioritizedConfig{Alpha: 0.6, BetaStart: 0.4, BetaEnd: 1.0, BetaCycles: 100}
}

// New constructs a Buffer by replay type ("UNIFORM" or "PRIORITIZED").
func New(replayType string, capacity int, cfg PrioritizedConfig) Buffer {
	switch replayType {
	case "PRIORITIZED":
		return NewPrioritized(capacity, cfg)
	default:
		return NewUniform(capacity)
	}
}

// Uniform is a FIFO ring buffer with uniform sampling.
type Uniform struct {
	data     []Transition
	capacity int
	next     int
	full     bool
}

var _ Buffer = (*Uniform)(nil)

// NewUniform constructs an empty FIFO buffer with the given capacity.
func NewUniform(capacity int) *Uniform {
	return &Uniform{data: make([]Transition, capacity), capacity: capacity}
}

func (b *Uniform) Add(t Transition) {
	b.data[b.next] = t
	b.next = (b.next + 1) % b.capacity
	if b.next == 0 {
		b.full = true
	}
}

func (b *Uniform) Len() int {
	if b.full {
		return b.capacity
	}
	return b.next
}

func (b *Uniform) Capacity() int { return b.capacity }

func (b *Uniform) Sample(n int, rng *rand.Rand) Batch {
	length := b.Len()
	if n > length {
		n = length
	}
	indices := rng.Perm(length)[:n]
	batch := Batch{
		Transitions: make([]Transition, n),
		Weights:     make([]float64, n),
		Indices:     make([]int, n),
	}
	for i, idx := range indices {
		batch.Transitions[i] = b.data[idx]
		batch.Weights[i] = 1.0
		batch.Indices[i] = idx
	}
	return batch
}

func (b *Uniform) UpdatePriorities(_ []int, _ []float64) {}

// Prioritized stores transitions with a priority and samples proportional
// to p^alpha, returning importance-sampling weights w_i = (1/(N*P_i))^beta.
type Prioritized struct {
	data       []Transition
	priorities []float64
	capacity   int
	next       int
	full       bool
	cfg        PrioritizedConfig
	maxPriority float64
	cycle      int // current cycle, for the beta schedule
}

var _ Buffer = (*Prioritized)(nil)

// NewPrioritized constructs an empty prioritized buffer.
func NewPrioritized(capacity int, cfg PrioritizedConfig) *Prioritized {
	return &Prioritized{
		data:        make([]Transition, capacity),
		priorities:  make([]float64, capacity),
		capacity:    capacity,
		cfg:         cfg,
		maxPriority: 1.0,
	}
}

// SetCycle updates the current cycle index, which drives the beta anneal
// schedule (beta -> 1.0 over BetaCycles).
func (b *Prioritized) SetCycle(cycle int) { b.cycle = cycle }

func (b *Prioritized) beta() float64 {
	if b.cfg.BetaCycles <= 0 {
		return b.cfg.BetaEnd
	}
	frac := float64(b.cycle) / float64(b.cfg.BetaCycles)
	if frac > 1 {
		frac = 1
	}
	return b.cfg.BetaStart + frac*(b.cfg.BetaEnd-b.cfg.BetaStart)
}

func (b *Prioritized) Add(t Transition) {
	b.data[b.next] = t
	b.priorities[b.next] = b.maxPriority // new entries get max priority
	b.next = (b.next + 1) % b.capacity
	if b.next == 0 {
		b.full = true
	}
}

func (b *Prioritized) Len() int {
	if b.full {
		return b.capacity
	}
	return b.next
}

func (b *Prioritized) Capacity() int { return b.capacity }

func (b *Prioritized) Sample(n int, rng *rand.Rand) Batch {
	length := b.Len()
	if n > length {
		n = length
	}
	weightsRaw := make([]float64, length)
	total := 0.0
	for i := 0; i < length; i++ {
		w := math.Pow(b.priorities[i], b.cfg.Alpha)
		weightsRaw[i] = w
		total += w
	}

	indices := make([]int, 0, n)
	seen := make(map[int]bool, n)
	for len(indices) < n {
		idx := weightedPick(weightsRaw, total, rng)
		if seen[idx] {
			continue
		}
		seen[idx] = true
		indices = append(indices, idx)
	}

	beta := b.beta()
	batch := Batch{
		Transitions: make([]Transition, n),
		Weights:     make([]float64, n),
		Indices:     make([]int, n),
	}
	maxWeight := 0.0
	rawWeights := make([]float64, n)
	for i, idx := range indices {
		p := weightsRaw[idx] / total
		w := math.Pow(1.0/(float64(length)*p), beta)
		rawWeights[i] = w
		if w > maxWeight {
			maxWeight = w
		}
		batch.Transitions[i] = b.data[idx]
		batch.Indices[i] = idx
	}
	if maxWeight == 0 {
		maxWeight = 1
	}
	for i := range rawWeights {
		batch.Weights[i] = rawWeights[i] / maxWeight
	}
	return batch
}

func weightedPick(weights []float64, total float64, rng *rand.Rand) int {
	if total <= 0 {
		return rng.IntN(len(weights))
	}
	target := rng.Float64() * total
	cum := 0.0
	for i, w := range weights {
		cum += w
		if target <= cum {
			return i
		}
	}
	return len(weights) - 1
}

func (b *Prioritized) UpdatePriorities(indices []int, tdErrors []float64) {
	for i, idx := range indices {
		p := math.Abs(tdErrors[i]) + 1e-6
		b.priorities[idx] = p
		if p > b.maxPriority {
			b.maxPriority = p
		}
	}
}
