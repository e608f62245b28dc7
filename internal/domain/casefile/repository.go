package casefile

import "context"

// Repository is the read-only view of the external case store.
type Repository interface {
	// ListCandidates returns cases that may still be open. Closed cases can
	// still appear when they are closed only through a legacy or payload
	// field, so callers must check completion themselves.
	ListCandidates(ctx context.Context) ([]*Case, error)
}
