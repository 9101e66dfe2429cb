// Package checkpoint implements the Checkpoint Manager (C9): versioned
// artifacts, atomic writes, retention, and best-model resolution.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/chessrl/chessrl/internal/fileutil"
	"github.com/chessrl/chessrl/internal/network"
)

// ErrCheckpointIO is the sentinel §7 CheckpointError error kind.
var ErrCheckpointIO = errors.New("checkpoint: I/O failure")

// Metadata is the `*_meta.json` sidecar for one checkpoint artifact.
type Metadata struct {
	Cycle             int       `json:"cycle"`
	IsBest            bool      `json:"is_best"`
	Performance       float64   `json:"performance"`
	Timestamp         time.Time `json:"timestamp"`
	Backend           string    `json:"backend"`
	ConfigFingerprint string    `json:"config_fingerprint"`
}

// Manager persists and resolves checkpoint artifacts under one directory.
// The weights format/extension is owned by whichever network.Backend the
// pipeline uses; the manager only ever treats it as an opaque blob name.
type Manager struct {
	dir         string
	ext         string
	maxVersions int
	keepEvery   int
	bestPerf    float64
	haveBest    bool
}

// NewManager constructs a Manager. maxVersions <= 0 means unbounded;
// keepEvery <= 0 disables the "keep every Nth" retention supplement.
func NewManager(dir, ext string, maxVersions, keepEvery int) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating %s: %v", ErrCheckpointIO, dir, err)
	}
	m := &Manager{dir: dir, ext: ext, maxVersions: maxVersions, keepEvery: keepEvery}
	if meta, ok := m.readMeta(m.bestMetaPath()); ok && meta.IsBest {
		m.bestPerf, m.haveBest = meta.Performance, true
	}
	return m, nil
}

func (m *Manager) weightsPath(cycle int) string {
	return filepath.Join(m.dir, fmt.Sprintf("checkpoint_cycle_%d.%s", cycle, m.ext))
}

func (m *Manager) metaPath(cycle int) string {
	return filepath.Join(m.dir, fmt.Sprintf("checkpoint_cycle_%d_meta.json", cycle))
}

func (m *Manager) bestWeightsPath() string { return filepath.Join(m.dir, "best_model."+m.ext) }
func (m *Manager) bestMetaPath() string    { return filepath.Join(m.dir, "best_model_meta.json") }

// Save persists one checkpoint: the backend's own weights file plus a JSON
// metadata sidecar, both written atomically. isBest is decided by the
// caller (the pipeline replaces "best" when performance strictly
// increases); when true, Save additionally refreshes the best_model.*
// compatibility artifact. Save retries once on I/O failure before
// surfacing ErrCheckpointIO, per §7.
func (m *Manager) Save(backend network.Backend, cycle int, performance float64, isBest bool, fingerprint string) error {
	return m.saveWithRetry(func() error {
		return m.save(backend, cycle, performance, isBest, fingerprint)
	})
}

func (m *Manager) saveWithRetry(fn func() error) error {
	if err := fn(); err != nil {
		if err2 := fn(); err2 != nil {
			return fmt.Errorf("%w: %v", ErrCheckpointIO, err2)
		}
	}
	return nil
}

func (m *Manager) save(backend network.Backend, cycle int, performance float64, isBest bool, fingerprint string) error {
	weightsPath := m.weightsPath(cycle)
	if err := backend.Save(weightsPath); err != nil {
		return fmt.Errorf("saving weights: %w", err)
	}

	meta := Metadata{
		Cycle:             cycle,
		IsBest:            isBest,
		Performance:       performance,
		Timestamp:         time.Now(),
		Backend:           backend.BackendID(),
		ConfigFingerprint: fingerprint,
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}
	if err := fileutil.WriteFileAtomic(m.metaPath(cycle), data, 0o644); err != nil {
		return fmt.Errorf("writing metadata: %w", err)
	}

	if isBest {
		m.bestPerf, m.haveBest = performance, true
		if err := backend.Save(m.bestWeightsPath()); err != nil {
			return fmt.Errorf("saving best weights: %w", err)
		}
		if err := fileutil.WriteFileAtomic(m.bestMetaPath(), data, 0o644); err != nil {
			return fmt.Errorf("writing best metadata: %w", err)
		}
	}

	return m.applyRetention()
}

// IsNewBest reports whether performance would strictly improve on the best
// recorded so far (the pipeline calls this before Save to decide isBest).
func (m *Manager) IsNewBest(performance float64) bool {
	return !m.haveBest || performance > m.bestPerf
}

// listCheckpointCycles returns the cycle numbers with a weights file on
// disk, sorted ascending.
func (m *Manager) listCheckpointCycles() ([]int, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: listing %s: %v", ErrCheckpointIO, m.dir, err)
	}
	prefix, suffix := "checkpoint_cycle_", "."+m.ext
	var cycles []int
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
			continue
		}
		numStr := strings.TrimSuffix(strings.TrimPrefix(name, prefix), suffix)
		n, err := strconv.Atoi(numStr)
		if err != nil {
			continue
		}
		cycles = append(cycles, n)
	}
	sort.Ints(cycles)
	return cycles, nil
}

// applyRetention deletes old checkpoint artifacts beyond maxVersions,
// optionally keeping every keepEvery-th cycle regardless; the best
// checkpoint (tracked separately as best_model.*) is never touched by
// retention since it is never named checkpoint_cycle_*.
func (m *Manager) applyRetention() error {
	if m.maxVersions <= 0 {
		return nil
	}
	cycles, err := m.listCheckpointCycles()
	if err != nil {
		return err
	}
	if len(cycles) <= m.maxVersions {
		return nil
	}

	toDelete := len(cycles) - m.maxVersions
	deleted := 0
	for _, cycle := range cycles {
		if deleted >= toDelete {
			break
		}
		if m.keepEvery > 0 && cycle%m.keepEvery == 0 {
			continue
		}
		if err := os.Remove(m.weightsPath(cycle)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("%w: removing %s: %v", ErrCheckpointIO, m.weightsPath(cycle), err)
		}
		_ = os.Remove(m.metaPath(cycle))
		deleted++
	}
	return nil
}

// Resolve finds the weights path and metadata to load, following §4.9's
// order: (1) explicitPath if non-empty, (2) highest-performance isBest
// metadata, (3) newest weights file by cycle, (4) best_model.<ext>
// compatibility fallback.
func (m *Manager) Resolve(explicitPath string) (string, Metadata, error) {
	if explicitPath != "" {
		meta, _ := m.loadMetaFor(explicitPath)
		return explicitPath, meta, nil
	}

	if meta, ok := m.readMeta(m.bestMetaPath()); ok && meta.IsBest {
		if _, err := os.Stat(m.bestWeightsPath()); err == nil {
			return m.bestWeightsPath(), meta, nil
		}
	}

	cycles, err := m.listCheckpointCycles()
	if err != nil {
		return "", Metadata{}, err
	}
	if len(cycles) > 0 {
		newest := cycles[len(cycles)-1]
		meta, _ := m.readMeta(m.metaPath(newest))
		return m.weightsPath(newest), meta, nil
	}

	if _, err := os.Stat(m.bestWeightsPath()); err == nil {
		meta, _ := m.readMeta(m.bestMetaPath())
		return m.bestWeightsPath(), meta, nil
	}

	return "", Metadata{}, fmt.Errorf("%w: no checkpoint found in %s", ErrCheckpointIO, m.dir)
}

func (m *Manager) loadMetaFor(weightsPath string) (Metadata, bool) {
	base := strings.TrimSuffix(weightsPath, filepath.Ext(weightsPath))
	return m.readMeta(base + "_meta.json")
}

func (m *Manager) readMeta(path string) (Metadata, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, false
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return Metadata{}, false
	}
	return meta, true
}
