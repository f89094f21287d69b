// Package cache provides byte caches for conversion and rendering results.
//
// Every backend implements [Cache]. Keys are built by a [Keyer] so that the
// same inputs always map to the same key across processes:
//   - FileCache: files under a directory, for the CLI
//   - RedisCache: a shared Redis instance, for the HTTP server
//   - NullCache: stores nothing, for --no-cache and tests
package cache

import (
	"context"
	"time"
)

// Cache stores opaque byte values with an optional time to live.
type Cache interface {
	// Get returns the value for key. A miss is reported as (nil, false, nil).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key. A ttl of zero never expires.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases the backend's resources.
	Close() error
}

// Keyer builds cache keys.
type Keyer interface {
	// ConvertKey returns the key for a format conversion result.
	ConvertKey(inputHash string, opts ConvertKeyOpts) string

	// RenderKey returns the key for a rendered graph of a document.
	RenderKey(inputHash string, opts RenderKeyOpts) string
}

// ConvertKeyOpts are the conversion settings that change the output.
type ConvertKeyOpts struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Indent string `json:"indent,omitempty"`
}

// RenderKeyOpts are the render settings that change the output.
type RenderKeyOpts struct {
	Format   string `json:"format"`
	Detailed bool   `json:"detailed,omitempty"`
	Guess    bool   `json:"guess,omitempty"`
}

// DefaultKeyer hashes key options together with the input hash.
type DefaultKeyer struct{}

// NewDefaultKeyer returns the default keyer.
func NewDefaultKeyer() Keyer {
	return DefaultKeyer{}
}

// ConvertKey returns "convert:<sha256>".
func (DefaultKeyer) ConvertKey(inputHash string, opts ConvertKeyOpts) string {
	return hashKey("convert", inputHash, opts)
}

// RenderKey returns "render:<sha256>".
func (DefaultKeyer) RenderKey(inputHash string, opts RenderKeyOpts) string {
	return hashKey("render", inputHash, opts)
}
