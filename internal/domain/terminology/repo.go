package terminology

import "context"

// ProcedureCodeRepository provides access to CPT procedure codes.
type ProcedureCodeRepository interface {
	// Create inserts a code. Returns ErrDuplicate when the code already exists.
	Create(ctx context.Context, pc *ProcedureCode) error
	// GetByCode returns ErrNotFound when no row matches.
	GetByCode(ctx context.Context, code string) (*ProcedureCode, error)
	// Search returns up to limit codes whose code or description contains
	// query, ordered by code.
	Search(ctx context.Context, query string, limit int) ([]*ProcedureCode, error)
	Count(ctx context.Context) (int, error)
}

// Importer runs fn against a repository whose writes become visible together
// or not at all. Concurrent importers are serialized.
type Importer interface {
	Atomically(ctx context.Context, fn func(codes ProcedureCodeRepository) error) error
}
