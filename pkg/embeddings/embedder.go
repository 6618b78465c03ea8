// Package embeddings defines the embedding gateway interface.
//
// Embedders are batch-oriented: the vectorization worker submits up to a
// batch worth of texts per call. Every embedder exposes a fingerprint
// identifying its model and dimensionality; vectors tagged with a different
// fingerprint than the active embedder are stale and must be rebuilt.
package embeddings

import "context"

// Embedder provides batch text embedding.
type Embedder interface {
	// Embed converts texts into vector embeddings, one per input, in input
	// order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Fingerprint identifies the embedding engine (provider, model and
	// dimensionality) for cache invalidation.
	Fingerprint() string

	// Close releases any resources held by the embedder.
	Close() error
}
