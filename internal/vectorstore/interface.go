// Package vectorstore provides the persistent vector index backing
// guideline retrieval.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// Sentinel errors for vector store operations.
var (
	// ErrCollectionNotFound is returned when a collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyDocuments indicates empty or nil documents.
	ErrEmptyDocuments = errors.New("empty or nil documents")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("failed to generate embeddings")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")
)

// CollectionInfo contains metadata about a vector collection.
type CollectionInfo struct {
	// Name is the collection name.
	Name string `json:"name"`

	// PointCount is the number of vectors in the collection.
	PointCount int `json:"point_count"`

	// VectorSize is the dimensionality of vectors in this collection.
	VectorSize int `json:"vector_size"`
}

// Embedder generates vector embeddings from text.
//
// The same embedder instance must be used at ingestion and query time;
// mismatched models produce valid-shaped vectors and silently degrade
// relevance rather than failing.
type Embedder interface {
	// EmbedDocuments generates embeddings for multiple texts.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Store is the interface for vector storage operations.
//
// Entries are addressed only by similarity query and never mutated
// after insertion; re-ingestion rebuilds or appends at collection
// granularity. The result count k is always an explicit per-call
// parameter — stores hold no mutable retrieval settings.
type Store interface {
	// AddDocuments embeds and persists documents into their collection.
	// Returns the IDs of added documents.
	AddDocuments(ctx context.Context, docs []Document) ([]string, error)

	// SearchInCollection returns up to k documents most similar to the
	// query, ordered by similarity score (highest first). Searching an
	// empty collection returns an empty result, not an error.
	SearchInCollection(ctx context.Context, collectionName string, query string, k int) ([]SearchResult, error)

	// CollectionExists reports whether a collection exists.
	CollectionExists(ctx context.Context, collectionName string) (bool, error)

	// GetCollectionInfo returns collection metadata including point count.
	// Returns ErrCollectionNotFound if the collection doesn't exist.
	GetCollectionInfo(ctx context.Context, collectionName string) (*CollectionInfo, error)

	// DeleteCollection deletes a collection and all its documents.
	DeleteCollection(ctx context.Context, collectionName string) error

	// Close closes the vector store and releases resources.
	Close() error
}

var collectionNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidateCollectionName rejects empty, oversized, or unsafe names
// before they reach the storage layer.
func ValidateCollectionName(name string) error {
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidCollectionName, name)
	}
	return nil
}
