package repository

import (
	"context"

	"github.com/ammar0144/specstore/pkg/specification"
)

// Repository defines the generic repository interface.
//
// Reads never report not-found as an error: absent entities come back as nil
// and empty results as empty slices. Mutations are staged in the unit of work
// that created the repository and reach the store on Commit.
type Repository[T Entity] interface {
	// Queries
	GetByID(ctx context.Context, id int) (*T, error)
	GetAll(ctx context.Context) ([]*T, error)
	GetEntityWithSpec(ctx context.Context, spec *specification.Specification[T, T]) (*T, error)
	List(ctx context.Context, spec *specification.Specification[T, T]) ([]*T, error)
	Count(ctx context.Context, spec *specification.Specification[T, T]) (int, error)
	Exists(ctx context.Context, id int) (bool, error)

	// Staged commands
	Add(entity *T)
	AddRange(entities ...*T)
	Update(entity *T)
	Delete(entity *T)

	// Cache Management
	InvalidateCache(ctx context.Context) error
}
