package anomaly

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clusterMatrix(n int, seed int64) Matrix {
	rng := rand.New(rand.NewSource(seed))
	m := Matrix{Features: []string{"a", "b", "c"}}
	for i := 0; i < n; i++ {
		m.Rows = append(m.Rows, []float64{rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64()})
	}
	return m
}

func TestAveragePathLength(t *testing.T) {
	assert.Equal(t, 0.0, averagePathLength(0))
	assert.Equal(t, 0.0, averagePathLength(1))
	assert.Equal(t, 1.0, averagePathLength(2))
	assert.InDelta(t, 1.2073923, averagePathLength(3), 1e-6)
	assert.InDelta(t, 10.2447709, averagePathLength(256), 1e-6)
}

func TestIsolationForest_OutlierScoresLowest(t *testing.T) {
	m := clusterMatrix(300, 7)
	m.Rows = append(m.Rows, []float64{12, -12, 12})

	forest := NewIsolationForest(ForestConfig{Seed: 42})
	artifact, err := forest.Fit(context.Background(), m)
	require.NoError(t, err)

	assert.Equal(t, ArtifactKindIsolationForest, artifact.Kind)
	assert.Len(t, artifact.Trees, DefaultTrees)
	assert.Equal(t, DefaultMaxSamples, artifact.SampleSize)
	assert.Equal(t, 301, artifact.Rows)

	raw, err := forest.Score(context.Background(), artifact, m)
	require.NoError(t, err)
	require.Len(t, raw, 301)

	outlier := raw[300]
	assert.Less(t, outlier, 0.0, "far outlier should have a negative decision value")
	for i := 0; i < 300; i++ {
		assert.Less(t, outlier, raw[i])
	}
}

func TestIsolationForest_DeterministicAcrossWorkerCounts(t *testing.T) {
	m := clusterMatrix(220, 3)

	serial := NewIsolationForest(ForestConfig{Seed: 42, Workers: 1})
	parallel := NewIsolationForest(ForestConfig{Seed: 42, Workers: 8})

	a1, err := serial.Fit(context.Background(), m)
	require.NoError(t, err)
	a2, err := parallel.Fit(context.Background(), m)
	require.NoError(t, err)

	assert.Equal(t, a1.Trees, a2.Trees)

	s1, err := serial.Score(context.Background(), a1, m)
	require.NoError(t, err)
	s2, err := parallel.Score(context.Background(), a2, m)
	require.NoError(t, err)
	assert.Equal(t, s1, s2)
}

func TestIsolationForest_SmallSampleCapsSampleSize(t *testing.T) {
	m := clusterMatrix(50, 1)
	artifact, err := NewIsolationForest(ForestConfig{Trees: 10, Seed: 1}).Fit(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, 50, artifact.SampleSize)
}

func TestIsolationForest_ConstantColumnsStillFit(t *testing.T) {
	m := Matrix{Features: []string{"a", "b"}}
	for i := 0; i < 20; i++ {
		m.Rows = append(m.Rows, []float64{1, 1})
	}

	forest := NewIsolationForest(ForestConfig{Trees: 5, Seed: 1})
	artifact, err := forest.Fit(context.Background(), m)
	require.NoError(t, err)

	for _, tree := range artifact.Trees {
		require.Len(t, tree.Nodes, 1)
		assert.True(t, tree.Nodes[0].IsLeaf())
	}

	raw, err := forest.Score(context.Background(), artifact, m)
	require.NoError(t, err)
	for _, v := range raw[1:] {
		assert.Equal(t, raw[0], v)
	}
}

func TestIsolationForest_ScoreRejectsOtherSchema(t *testing.T) {
	m := clusterMatrix(30, 1)
	forest := NewIsolationForest(ForestConfig{Trees: 5, Seed: 1})
	artifact, err := forest.Fit(context.Background(), m)
	require.NoError(t, err)

	other := Matrix{Features: []string{"a", "b", "z"}, Rows: m.Rows}
	_, err = forest.Score(context.Background(), artifact, other)
	assert.ErrorIs(t, err, ErrSchemaMismatch)

	short := Matrix{Features: m.Features, Rows: [][]float64{{1, 2}}}
	_, err = forest.Score(context.Background(), artifact, short)
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestIsolationForest_ScoreRejectsOtherSchemaVersion(t *testing.T) {
	m := clusterMatrix(30, 1)
	artifact, err := NewIsolationForest(ForestConfig{Trees: 5, Seed: 1, SchemaVersion: 1}).Fit(context.Background(), m)
	require.NoError(t, err)

	_, err = NewIsolationForest(ForestConfig{Trees: 5, Seed: 1, SchemaVersion: 2}).Score(context.Background(), artifact, m)
	assert.ErrorIs(t, err, ErrSchemaMismatch)

	_, err = NewIsolationForest(ForestConfig{Trees: 5, Seed: 1, SchemaVersion: 1}).Score(context.Background(), artifact, m)
	assert.NoError(t, err)
}

func TestIsolationForest_FitHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewIsolationForest(ForestConfig{Seed: 1}).Fit(ctx, clusterMatrix(50, 1))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestArtifact_EncodeDecode(t *testing.T) {
	m := clusterMatrix(64, 5)
	forest := NewIsolationForest(ForestConfig{Trees: 20, Seed: 9, SchemaVersion: 3})
	artifact, err := forest.Fit(context.Background(), m)
	require.NoError(t, err)
	artifact.Symbol = "AAPL"

	data, err := artifact.Encode()
	require.NoError(t, err)

	decoded, err := DecodeArtifact(data)
	require.NoError(t, err)
	assert.Equal(t, "AAPL", decoded.Symbol)
	assert.Equal(t, 3, decoded.SchemaVersion)
	assert.Equal(t, artifact.Features, decoded.Features)
	assert.True(t, artifact.TrainedAt.Equal(decoded.TrainedAt))

	want, err := forest.Score(context.Background(), artifact, m)
	require.NoError(t, err)
	got, err := forest.Score(context.Background(), decoded, m)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = DecodeArtifact([]byte("not msgpack"))
	assert.Error(t, err)
}
