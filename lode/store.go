package lode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/justapithecus/lode/lode"

	"github.com/justapithecus/chartd/artifact"
)

// artifactPrefix is the key prefix for artifacts inside the Lode store.
const artifactPrefix = "artifacts/"

// ArtifactStore implements artifact.Store on top of a Lode Store.
// The store is created lazily from the factory on first use.
type ArtifactStore struct {
	factory lode.StoreFactory

	storeOnce sync.Once
	store     lode.Store
	storeErr  error
}

// NewArtifactStore creates an artifact store backed by the factory's Store.
func NewArtifactStore(factory lode.StoreFactory) *ArtifactStore {
	return &ArtifactStore{factory: factory}
}

// NewMemoryArtifactStore creates an in-memory artifact store.
// Artifacts do not survive process restart.
func NewMemoryArtifactStore() *ArtifactStore {
	return NewArtifactStore(SharedFactory(lode.NewMemory()))
}

// SharedFactory returns a StoreFactory that always returns the given store.
func SharedFactory(store lode.Store) lode.StoreFactory {
	return func() (lode.Store, error) { return store, nil }
}

// Put implements artifact.Store. Objects are written in a single Put call,
// so no partial artifact is ever visible. Lode stores refuse to overwrite,
// so an existing object at the path (an evicted key being re-rendered, or
// one left from a previous process) is deleted and written again.
func (s *ArtifactStore) Put(ctx context.Context, name string, data []byte) error {
	store, err := s.getOrCreateStore()
	if err != nil {
		return fmt.Errorf("artifact store init failed: %w", err)
	}
	path := artifactPrefix + name
	err = store.Put(ctx, path, bytes.NewReader(data))
	if errors.Is(err, lode.ErrPathExists) {
		if err := store.Delete(ctx, path); err != nil {
			return WrapWriteError(err, path)
		}
		err = store.Put(ctx, path, bytes.NewReader(data))
	}
	return WrapWriteError(err, path)
}

// Open implements artifact.Store.
func (s *ArtifactStore) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	ok, err := s.Exists(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", artifact.ErrNotFound, name)
	}

	store, err := s.getOrCreateStore()
	if err != nil {
		return nil, fmt.Errorf("artifact store init failed: %w", err)
	}
	path := artifactPrefix + name
	rc, err := store.Get(ctx, path)
	if err != nil {
		wrapped := WrapReadError(err, path)
		if errors.Is(wrapped, ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", artifact.ErrNotFound, name)
		}
		return nil, wrapped
	}
	return rc, nil
}

// Exists implements artifact.Store.
func (s *ArtifactStore) Exists(ctx context.Context, name string) (bool, error) {
	store, err := s.getOrCreateStore()
	if err != nil {
		return false, fmt.Errorf("artifact store init failed: %w", err)
	}
	path := artifactPrefix + name
	ok, err := store.Exists(ctx, path)
	if err != nil {
		return false, WrapReadError(err, path)
	}
	return ok, nil
}

// getOrCreateStore lazily initializes the Store from the factory.
func (s *ArtifactStore) getOrCreateStore() (lode.Store, error) {
	s.storeOnce.Do(func() {
		s.store, s.storeErr = s.factory()
	})
	return s.store, s.storeErr
}

// Verify ArtifactStore implements artifact.Store.
var _ artifact.Store = (*ArtifactStore)(nil)
