package cachify

import (
	"context"
	"time"
)

// nullStore never stores anything: every read misses and every acquisition
// succeeds. It turns caching and locking off without touching call sites;
// do not use it where cross-process exclusion actually matters.
type nullStore struct{}

func newNullStore() Store {
	return nullStore{}
}

func (nullStore) Driver() Driver { return DriverNull }

func (nullStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, nil
}

func (nullStore) Set(context.Context, string, []byte, time.Duration) error {
	return nil
}

func (nullStore) Delete(context.Context, string) error {
	return nil
}

func (nullStore) TryAcquire(context.Context, string, string, time.Duration) (bool, error) {
	return true, nil
}

func (nullStore) Release(context.Context, string, string) (bool, error) {
	return true, nil
}
