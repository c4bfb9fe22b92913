package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

// Fake is an in-memory Client for tests, in the spirit of gcsfuse's
// internal/storage/fake bucket: no network, deterministic contents,
// instrumented call counts so tests can assert fetch semantics (spec §8.5).
type Fake struct {
	mu      sync.Mutex
	objects map[string][]byte
	mtimes  map[string]int64

	ListCalls  atomic.Int64
	FetchCalls atomic.Int64

	// ListErr/FetchErr, if set, are returned instead of a successful
	// result, for exercising the soft/hard failure paths (spec §7).
	ListErr  error
	FetchErr error
}

func NewFake() *Fake {
	return &Fake{objects: map[string][]byte{}, mtimes: map[string]int64{}}
}

func (f *Fake) Put(key string, content []byte, mtimeMS int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = content
	f.mtimes[key] = mtimeMS
}

func (f *Fake) Delete(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	delete(f.mtimes, key)
}

func (f *Fake) ListAll(ctx context.Context) ([]ListedObject, error) {
	f.ListCalls.Add(1)
	if f.ListErr != nil {
		return nil, &ListFailure{Cause: f.ListErr}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ListedObject, 0, len(f.objects))
	for k, v := range f.objects {
		out = append(out, ListedObject{Key: k, Size: uint64(len(v)), MtimeMS: f.mtimes[k]})
	}
	return out, nil
}

func (f *Fake) Fetch(ctx context.Context, key string) (io.ReadCloser, error) {
	f.FetchCalls.Add(1)
	if f.FetchErr != nil {
		return nil, &FetchFailure{Key: key, Cause: f.FetchErr}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.objects[key]
	if !ok {
		return nil, &FetchFailure{Key: key, Cause: fmt.Errorf("no such key")}
	}
	return io.NopCloser(bytes.NewReader(v)), nil
}
