// Package modelstore keeps one serialized model blob per instrument at a key derived from its symbol.
package modelstore

import (
	"context"
	"errors"
	"path"
	"strings"
)

// ErrNotFound is returned by Download when no blob exists for the key
var ErrNotFound = errors.New("model not found")

// ModelFileSuffix names the serialized isolation forest blob
const ModelFileSuffix = "_iso_forest.msgpack"

// Store moves model blobs between local files and the backing storage
type Store interface {
	Upload(ctx context.Context, key, localPath string) error
	Download(ctx context.Context, key, localPath string) error
}

// Key returns {prefix}/{SYMBOL}/{symbol}_iso_forest.msgpack
func Key(prefix, symbol string) string {
	symbol = strings.TrimSpace(symbol)
	return path.Join(
		strings.Trim(prefix, "/"),
		strings.ToUpper(symbol),
		strings.ToLower(symbol)+ModelFileSuffix,
	)
}
