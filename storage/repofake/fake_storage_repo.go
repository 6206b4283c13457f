package storagerepofake

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-session-client/storage"
)

var _ storage.Repo = (*FakeStorageRepo)(nil)

type FakeStorageRepo struct {
	values map[string]string
	writes int
	lock   sync.RWMutex
}

func NewFakeStorageRepo() *FakeStorageRepo {
	return &FakeStorageRepo{
		values: make(map[string]string),
	}
}

func (r *FakeStorageRepo) Get(_ context.Context, key string) (string, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	v, ok := r.values[key]
	if !ok {
		return "", storage.ErrNotFound
	}
	return v, nil
}

func (r *FakeStorageRepo) Set(_ context.Context, key, value string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.values[key] = value
	r.writes++
	return nil
}

func (r *FakeStorageRepo) Remove(_ context.Context, key string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	delete(r.values, key)
	r.writes++
	return nil
}

// Writes counts Set and Remove calls.
func (r *FakeStorageRepo) Writes() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.writes
}

// Raw returns the stored value without going through the Repo contract.
func (r *FakeStorageRepo) Raw(key string) (string, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	v, ok := r.values[key]
	return v, ok
}

// Put seeds a value without counting it as a write.
func (r *FakeStorageRepo) Put(key, value string) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.values[key] = value
}
