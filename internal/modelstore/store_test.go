package modelstore

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "stocks/models/AAPL/aapl_iso_forest.msgpack", Key("stocks/models", "aapl"))
	assert.Equal(t, "stocks/models/BRK.B/brk.b_iso_forest.msgpack", Key("/stocks/models/", "BRK.B"))
	assert.Equal(t, "MSFT/msft_iso_forest.msgpack", Key("", "MSFT"))
}

func TestFileStore_RoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	work := t.TempDir()
	src := filepath.Join(work, "model.bin")
	require.NoError(t, os.WriteFile(src, []byte("forest"), 0644))

	key := Key("stocks/models", "AAPL")
	require.NoError(t, store.Upload(context.Background(), key, src))

	dst := filepath.Join(work, "downloaded.bin")
	require.NoError(t, store.Download(context.Background(), key, dst))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "forest", string(got))
}

func TestFileStore_UploadOverwrites(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	work := t.TempDir()
	src := filepath.Join(work, "model.bin")
	key := Key("m", "AAPL")

	for _, body := range []string{"v1", "v2"} {
		require.NoError(t, os.WriteFile(src, []byte(body), 0644))
		require.NoError(t, store.Upload(context.Background(), key, src))
	}

	dst := filepath.Join(work, "out.bin")
	require.NoError(t, store.Download(context.Background(), key, dst))
	got, _ := os.ReadFile(dst)
	assert.Equal(t, "v2", string(got))
}

func TestFileStore_DownloadMissing(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	err = store.Download(context.Background(), Key("m", "NOPE"), filepath.Join(t.TempDir(), "x"))
	assert.True(t, errors.Is(err, ErrNotFound))
}

func newTestS3Store(t *testing.T, handler http.HandlerFunc) *S3Store {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := s3.New(s3.Options{
		Region:       "us-east-1",
		BaseEndpoint: aws.String(srv.URL),
		UsePathStyle: true,
		Credentials:  credentials.NewStaticCredentialsProvider("key", "secret", ""),
	})
	return NewS3StoreWithClient(client, "models", zerolog.Nop())
}

func TestS3Store_Download(t *testing.T) {
	store := newTestS3Store(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/models/stocks/models/AAPL/aapl_iso_forest.msgpack", r.URL.Path)
		w.Header().Set("Content-Length", "6")
		w.Header().Set("Content-Range", "bytes 0-5/6")
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte("forest"))
	})

	dst := filepath.Join(t.TempDir(), "model.bin")
	require.NoError(t, store.Download(context.Background(), Key("stocks/models", "AAPL"), dst))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "forest", string(got))
}

func TestS3Store_DownloadMissingKey(t *testing.T) {
	store := newTestS3Store(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>` +
			`<Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`))
	})

	dst := filepath.Join(t.TempDir(), "model.bin")
	err := store.Download(context.Background(), Key("stocks/models", "AAPL"), dst)
	assert.True(t, errors.Is(err, ErrNotFound))

	_, statErr := os.Stat(dst)
	assert.True(t, os.IsNotExist(statErr))
}

func TestNewS3Store_RequiresBucket(t *testing.T) {
	_, err := NewS3Store(context.Background(), S3Config{}, zerolog.Nop())
	assert.Error(t, err)
}
