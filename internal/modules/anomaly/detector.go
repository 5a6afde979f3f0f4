// Package anomaly fits and applies the unsupervised outlier model behind the risk score.
package anomaly

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

var (
	// ErrSchemaMismatch means a stored model was trained on a different feature set
	ErrSchemaMismatch = errors.New("model feature schema mismatch")
	// ErrModelNotFound means no trained model has been persisted for the instrument
	ErrModelNotFound = errors.New("no trained model")
)

// Matrix is a feature matrix with named, ordered columns
type Matrix struct {
	Features []string
	Rows     [][]float64
}

// Validate checks that every row has one value per column
func (m Matrix) Validate() error {
	if len(m.Features) == 0 {
		return errors.New("matrix has no features")
	}
	for i, row := range m.Rows {
		if len(row) != len(m.Features) {
			return fmt.Errorf("row %d has %d values, expected %d: %w", i, len(row), len(m.Features), ErrSchemaMismatch)
		}
	}
	return nil
}

// Detector fits a model artifact and scores a matrix against it.
// Score returns the raw statistic where higher means more normal.
type Detector interface {
	Fit(ctx context.Context, m Matrix) (*Artifact, error)
	Score(ctx context.Context, artifact *Artifact, m Matrix) ([]float64, error)
}

// Artifact is a trained model bound to one instrument and one feature schema
type Artifact struct {
	Kind          string    `msgpack:"kind"`
	Symbol        string    `msgpack:"symbol"`
	SchemaVersion int       `msgpack:"schema_version"`
	Features      []string  `msgpack:"features"`
	Seed          int64     `msgpack:"seed"`
	SampleSize    int       `msgpack:"sample_size"`
	Rows          int       `msgpack:"rows"`
	TrainedAt     time.Time `msgpack:"trained_at"`
	Trees         []Tree    `msgpack:"trees"`
}

// Tree is a flattened isolation tree; node 0 is the root
type Tree struct {
	Nodes []Node `msgpack:"n"`
}

// Node is one split or leaf. Leaves have Left == -1.
type Node struct {
	Feature   int     `msgpack:"f"`
	Threshold float64 `msgpack:"t"`
	Left      int32   `msgpack:"l"`
	Right     int32   `msgpack:"r"`
	Size      int32   `msgpack:"s"`
}

// IsLeaf reports whether the node terminates a path
func (n Node) IsLeaf() bool {
	return n.Left < 0
}

// CheckSchema fails with ErrSchemaMismatch unless the artifact was trained on features at version
func (a *Artifact) CheckSchema(version int, features []string) error {
	if a.SchemaVersion != version {
		return fmt.Errorf("artifact schema v%d, expected v%d: %w", a.SchemaVersion, version, ErrSchemaMismatch)
	}
	if len(a.Features) != len(features) {
		return fmt.Errorf("artifact has %d features, expected %d: %w", len(a.Features), len(features), ErrSchemaMismatch)
	}
	for i := range features {
		if a.Features[i] != features[i] {
			return fmt.Errorf("feature %d is %q, expected %q: %w", i, a.Features[i], features[i], ErrSchemaMismatch)
		}
	}
	return nil
}

// Encode serializes the artifact with msgpack
func (a *Artifact) Encode() ([]byte, error) {
	data, err := msgpack.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("failed to encode artifact: %w", err)
	}
	return data, nil
}

// DecodeArtifact deserializes an artifact written by Encode
func DecodeArtifact(data []byte) (*Artifact, error) {
	var a Artifact
	if err := msgpack.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to decode artifact: %w", err)
	}
	return &a, nil
}
