// Package vectorstore provides the vector index backends and the collection
// manager that owns collection bootstrap and the dimensionality contract.
//
// All writes go through a *Collection obtained from Manager.Ensure. The
// handle rejects vectors of the wrong length before the physical index is
// touched, so backends never see a mismatched vector.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

var (
	// ErrCollectionNotFound indicates the collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrCollectionExists indicates a create lost the race against another creator.
	ErrCollectionExists = errors.New("collection already exists")

	// ErrInvalidConfig indicates invalid backend configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidCollectionName indicates the collection name fails validation.
	ErrInvalidCollectionName = errors.New("invalid collection name")

	// ErrDimensionMismatch indicates a vector or collection of the wrong size.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrPointNotFound indicates no point with the requested id exists.
	ErrPointNotFound = errors.New("point not found")

	// ErrStoreUnavailable indicates the index could not be reached or timed out.
	ErrStoreUnavailable = errors.New("vector store unavailable")

	// ErrEmptyFilter indicates a bulk delete without conditions.
	ErrEmptyFilter = errors.New("filter must have at least one condition")
)

// collectionNamePattern: lowercase letters, numbers, underscores, 1-64 characters.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// ValidateCollectionName validates a collection name.
func ValidateCollectionName(name string) error {
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: must match ^[a-z0-9_]{1,64}$, got %q", ErrInvalidCollectionName, name)
	}
	return nil
}

// Point is one stored vector with its payload.
//
// Payload values are JSON-compatible: string, float64, bool, nil,
// []any and map[string]any.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// ScoredPoint is a query hit. Higher scores are more similar.
type ScoredPoint struct {
	ID      string
	Score   float32
	Payload map[string]any
}

// CollectionSpec describes a collection to bootstrap.
type CollectionSpec struct {
	Name      string
	Dimension int
	// IndexedFields are payload keys that get a keyword index where the
	// backend supports one.
	IndexedFields []string
}

// CollectionInfo describes an existing collection.
type CollectionInfo struct {
	Name       string
	Dimension  int
	PointCount int
}

// Index is the physical vector index. Implementations must make writes
// visible to reads before Upsert, Delete and DeleteByFilter return.
type Index interface {
	// DescribeCollection returns ErrCollectionNotFound if the collection is absent.
	DescribeCollection(ctx context.Context, name string) (*CollectionInfo, error)

	// CreateCollection returns ErrCollectionExists if the collection already exists.
	CreateCollection(ctx context.Context, spec CollectionSpec) error

	// Upsert inserts or fully replaces points by id.
	Upsert(ctx context.Context, collection string, points []Point) error

	// Get returns ErrPointNotFound if no point has the id.
	Get(ctx context.Context, collection, id string) (*Point, error)

	// Delete removes points by id. Missing ids are ignored.
	Delete(ctx context.Context, collection string, ids []string) error

	// DeleteByFilter removes every point matching filter.
	DeleteByFilter(ctx context.Context, collection string, filter Filter) error

	// Query returns up to k points matching filter ordered by descending similarity.
	Query(ctx context.Context, collection string, vector []float32, filter Filter, k int) ([]ScoredPoint, error)

	// Scroll returns up to limit points matching filter in backend order.
	// A limit of zero or less returns every matching point.
	Scroll(ctx context.Context, collection string, filter Filter, limit int) ([]Point, error)

	// Close releases backend resources.
	Close() error
}
