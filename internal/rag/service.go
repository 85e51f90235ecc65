package rag

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/evidenced/internal/vectorstore"
)

// DefaultK is the result count used when a request does not specify one
// and for the readiness probe.
const DefaultK = 6

// readinessProbeQuery is the synthetic query used by Readiness.
const readinessProbeQuery = "readiness-probe"

var (
	// ErrUnavailable indicates the vector store collection is missing,
	// empty, or not answering. Surfaces as service-unavailable so
	// operators can tell "not ready yet" from "broken".
	ErrUnavailable = errors.New("vector store unavailable")

	// ErrMissingSources indicates a composed result without a sources
	// list — an internal invariant violation, not a user error.
	ErrMissingSources = errors.New("query result has no sources")
)

// Service exposes retrieval and answer composition over an ingested
// collection. The result count k is threaded through every call; the
// service holds no mutable per-request state and is safe for
// concurrent use.
type Service struct {
	store      vectorstore.Store
	collection string
	composer   *Composer
	logger     *zap.Logger
}

// ReadinessInfo reports the dependency checks behind /readyz.
type ReadinessInfo struct {
	CollectionCount int
	NumResults      int
	K               int
}

// NewService creates a query service over the given store and collection.
func NewService(store vectorstore.Store, collection string, composer *Composer, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if composer == nil {
		return nil, fmt.Errorf("composer is required")
	}
	if err := vectorstore.ValidateCollectionName(collection); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:      store,
		collection: collection,
		composer:   composer,
		logger:     logger,
	}, nil
}

// Retrieve returns the k most similar stored chunks for the question.
func (s *Service) Retrieve(ctx context.Context, question string, k int) ([]vectorstore.SearchResult, error) {
	results, err := s.store.SearchInCollection(ctx, s.collection, question, k)
	if err != nil {
		if errors.Is(err, vectorstore.ErrCollectionNotFound) {
			return nil, fmt.Errorf("%w: collection %q does not exist", ErrUnavailable, s.collection)
		}
		return nil, fmt.Errorf("retrieving chunks: %w", err)
	}
	return results, nil
}

// Ask retrieves k chunks and composes the answer for the question.
func (s *Service) Ask(ctx context.Context, question string, k int) (*QueryResult, error) {
	results, err := s.Retrieve(ctx, question, k)
	if err != nil {
		return nil, err
	}

	result, err := s.composer.Compose(ctx, question, results)
	if err != nil {
		return nil, fmt.Errorf("composing answer: %w", err)
	}
	if result.Sources == nil {
		return nil, ErrMissingSources
	}

	s.logger.Debug("query answered",
		zap.Int("k", k),
		zap.Int("retrieved", len(results)),
		zap.Bool("generated", result.Answer != nil && len(results) > 0),
	)

	return result, nil
}

// Readiness verifies the collection exists and is non-empty and that a
// synthetic probe query succeeds. A liveness check this is not — see
// the /healthz handler for that.
func (s *Service) Readiness(ctx context.Context) (*ReadinessInfo, error) {
	exists, err := s.store.CollectionExists(ctx, s.collection)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: collection %q does not exist", ErrUnavailable, s.collection)
	}

	info, err := s.store.GetCollectionInfo(ctx, s.collection)
	if err != nil {
		if errors.Is(err, vectorstore.ErrCollectionNotFound) {
			return nil, fmt.Errorf("%w: collection %q does not exist", ErrUnavailable, s.collection)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if info.PointCount == 0 {
		return nil, fmt.Errorf("%w: collection %q is empty", ErrUnavailable, s.collection)
	}

	results, err := s.store.SearchInCollection(ctx, s.collection, readinessProbeQuery, DefaultK)
	if err != nil {
		return nil, fmt.Errorf("%w: probe query failed: %v", ErrUnavailable, err)
	}

	return &ReadinessInfo{
		CollectionCount: info.PointCount,
		NumResults:      len(results),
		K:               DefaultK,
	}, nil
}
