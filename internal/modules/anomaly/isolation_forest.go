package anomaly

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"
)

// ArtifactKindIsolationForest tags artifacts produced by IsolationForest
const ArtifactKindIsolationForest = "isolation_forest"

// Forest defaults
const (
	DefaultTrees      = 200
	DefaultMaxSamples = 256
	DefaultSeed       = 42
)

const eulerGamma = 0.5772156649

// ForestConfig configures an IsolationForest
type ForestConfig struct {
	Trees         int
	MaxSamples    int
	Seed          int64
	Workers       int
	SchemaVersion int
}

// IsolationForest isolates points with randomized partitioning trees.
// Points with short average isolation paths are anomalous.
type IsolationForest struct {
	cfg ForestConfig
	now func() time.Time
}

// NewIsolationForest creates a detector, filling zero config values with defaults
func NewIsolationForest(cfg ForestConfig) *IsolationForest {
	if cfg.Trees <= 0 {
		cfg.Trees = DefaultTrees
	}
	if cfg.MaxSamples <= 0 {
		cfg.MaxSamples = DefaultMaxSamples
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	return &IsolationForest{cfg: cfg, now: time.Now}
}

// Fit grows the forest on m. Trees are built in parallel, each from its own
// seed drawn in order from the master seed, so the result does not depend on scheduling.
func (f *IsolationForest) Fit(ctx context.Context, m Matrix) (*Artifact, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if len(m.Rows) < 2 {
		return nil, errors.New("need at least two rows to fit")
	}

	sampleSize := f.cfg.MaxSamples
	if sampleSize > len(m.Rows) {
		sampleSize = len(m.Rows)
	}
	maxDepth := int(math.Ceil(math.Log2(float64(sampleSize))))

	master := rand.New(rand.NewSource(f.cfg.Seed))
	seeds := make([]int64, f.cfg.Trees)
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	trees := make([]Tree, f.cfg.Trees)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.Workers)

	for i := range trees {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(seeds[i]))
			sample := rng.Perm(len(m.Rows))[:sampleSize]
			b := treeBuilder{rows: m.Rows, width: len(m.Features), maxDepth: maxDepth, rng: rng}
			b.grow(sample, 0)
			trees[i] = Tree{Nodes: b.nodes}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to fit isolation forest: %w", err)
	}

	features := make([]string, len(m.Features))
	copy(features, m.Features)

	return &Artifact{
		Kind:          ArtifactKindIsolationForest,
		SchemaVersion: f.cfg.SchemaVersion,
		Features:      features,
		Seed:          f.cfg.Seed,
		SampleSize:    sampleSize,
		Rows:          len(m.Rows),
		TrainedAt:     f.now().UTC(),
		Trees:         trees,
	}, nil
}

// Score returns 0.5 - 2^(-E[h(x)]/c(n)) per row: positive for inliers, negative for outliers
func (f *IsolationForest) Score(ctx context.Context, artifact *Artifact, m Matrix) ([]float64, error) {
	if artifact == nil || len(artifact.Trees) == 0 {
		return nil, errors.New("artifact has no trees")
	}
	if artifact.Kind != ArtifactKindIsolationForest {
		return nil, fmt.Errorf("artifact kind %q is not %q: %w", artifact.Kind, ArtifactKindIsolationForest, ErrSchemaMismatch)
	}
	if err := artifact.CheckSchema(f.cfg.SchemaVersion, m.Features); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	norm := averagePathLength(artifact.SampleSize)
	out := make([]float64, len(m.Rows))
	for i, row := range m.Rows {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		var total float64
		for _, t := range artifact.Trees {
			total += t.pathLength(row)
		}
		mean := total / float64(len(artifact.Trees))
		anomaly := 1.0
		if norm > 0 {
			anomaly = math.Pow(2, -mean/norm)
		}
		out[i] = 0.5 - anomaly
	}
	return out, nil
}

func (t Tree) pathLength(x []float64) float64 {
	depth := 0
	idx := int32(0)
	for {
		n := t.Nodes[idx]
		if n.IsLeaf() {
			return float64(depth) + averagePathLength(int(n.Size))
		}
		if x[n.Feature] <= n.Threshold {
			idx = n.Left
		} else {
			idx = n.Right
		}
		depth++
	}
}

// averagePathLength is c(n), the mean path length of an unsuccessful BST search over n points
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	fn := float64(n)
	return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
}

type treeBuilder struct {
	rows     [][]float64
	width    int
	maxDepth int
	rng      *rand.Rand
	nodes    []Node
}

func (b *treeBuilder) leaf(size int) int32 {
	b.nodes = append(b.nodes, Node{Left: -1, Right: -1, Size: int32(size)})
	return int32(len(b.nodes) - 1)
}

// grow appends the subtree for idx and returns its node index
func (b *treeBuilder) grow(idx []int, depth int) int32 {
	if depth >= b.maxDepth || len(idx) <= 1 {
		return b.leaf(len(idx))
	}

	// try features in random order until one is not constant on this node
	for _, feature := range b.rng.Perm(b.width) {
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, r := range idx {
			v := b.rows[r][feature]
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		if !(hi > lo) {
			continue
		}

		threshold := lo + b.rng.Float64()*(hi-lo)
		left := make([]int, 0, len(idx))
		right := make([]int, 0, len(idx))
		for _, r := range idx {
			if b.rows[r][feature] <= threshold {
				left = append(left, r)
			} else {
				right = append(right, r)
			}
		}

		self := int32(len(b.nodes))
		b.nodes = append(b.nodes, Node{Feature: feature, Threshold: threshold, Size: int32(len(idx))})
		l := b.grow(left, depth+1)
		r := b.grow(right, depth+1)
		b.nodes[self].Left = l
		b.nodes[self].Right = r
		return self
	}

	return b.leaf(len(idx))
}
