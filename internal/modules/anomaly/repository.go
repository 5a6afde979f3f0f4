package anomaly

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/aristath/sentinel-signals/internal/modelstore"
	"github.com/rs/zerolog"
)

// Repository persists one artifact per instrument
type Repository interface {
	Save(ctx context.Context, symbol string, artifact *Artifact) error
	Load(ctx context.Context, symbol string) (*Artifact, error)
}

// ArtifactRepository stages artifacts in local files and moves them through a model store
type ArtifactRepository struct {
	store  modelstore.Store
	prefix string
	tmpDir string
	log    zerolog.Logger
}

// NewArtifactRepository creates a repository; tmpDir may be empty for the OS default
func NewArtifactRepository(store modelstore.Store, prefix, tmpDir string, log zerolog.Logger) *ArtifactRepository {
	return &ArtifactRepository{
		store:  store,
		prefix: prefix,
		tmpDir: tmpDir,
		log:    log.With().Str("component", "artifact_repository").Logger(),
	}
}

// Save encodes and uploads the artifact under the instrument's model key
func (r *ArtifactRepository) Save(ctx context.Context, symbol string, artifact *Artifact) error {
	data, err := artifact.Encode()
	if err != nil {
		return err
	}

	f, err := os.CreateTemp(r.tmpDir, "model-*.msgpack")
	if err != nil {
		return fmt.Errorf("failed to stage model: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to stage model: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to stage model: %w", err)
	}

	key := modelstore.Key(r.prefix, symbol)
	if err := r.store.Upload(ctx, key, path); err != nil {
		return err
	}

	r.log.Info().
		Str("symbol", symbol).
		Str("key", key).
		Int("bytes", len(data)).
		Int("trees", len(artifact.Trees)).
		Msg("Model saved")
	return nil
}

// Load downloads and decodes the instrument's artifact, returning ErrModelNotFound when absent
func (r *ArtifactRepository) Load(ctx context.Context, symbol string) (*Artifact, error) {
	f, err := os.CreateTemp(r.tmpDir, "model-*.msgpack")
	if err != nil {
		return nil, fmt.Errorf("failed to stage model: %w", err)
	}
	path := f.Name()
	f.Close()
	defer os.Remove(path)

	key := modelstore.Key(r.prefix, symbol)
	if err := r.store.Download(ctx, key, path); err != nil {
		if errors.Is(err, modelstore.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", symbol, ErrModelNotFound)
		}
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model: %w", err)
	}
	return DecodeArtifact(data)
}
