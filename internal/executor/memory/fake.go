package memory

import (
	"context"

	"github.com/lyzr/workflowengine/internal/id"
)

// FakeStore is an in-memory Store for tests. ConflictOnce, if set,
// makes the next CompareAndSwap call fail once with ErrVersionConflict
// regardless of the version passed, to exercise the one-retry path.
type FakeStore struct {
	Blob         Blob
	ConflictOnce bool
}

// Load implements Store.
func (s *FakeStore) Load(_ context.Context, _ id.WorkflowID) (Blob, error) {
	return s.Blob, nil
}

// CompareAndSwap implements Store.
func (s *FakeStore) CompareAndSwap(_ context.Context, _ id.WorkflowID, content []byte, expectedVersion int) (int, error) {
	if s.ConflictOnce {
		s.ConflictOnce = false
		s.Blob.Version++ // simulate a concurrent writer bumping the version
		return 0, ErrVersionConflict
	}
	if expectedVersion != s.Blob.Version {
		return 0, ErrVersionConflict
	}
	s.Blob.Content = content
	s.Blob.Version++
	return s.Blob.Version, nil
}
