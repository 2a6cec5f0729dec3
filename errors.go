package cachify

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInitialized is returned when the process-wide client is used
	// before Init. It signals a configuration bug, not a cache outcome.
	ErrNotInitialized = errors.New("cachify: not initialized; call Init first")

	// ErrLockNotHeld is returned by Release when the key is absent or held
	// under a different token (e.g. the lock expired and was reacquired).
	ErrLockNotHeld = errors.New("cachify: lock not held")
)

// KeyResolutionError reports a template that could not be parsed or a
// placeholder that did not resolve against the call's argument.
type KeyResolutionError struct {
	Template    string
	Placeholder string
	Reason      string
}

func (e *KeyResolutionError) Error() string {
	if e.Placeholder == "" {
		return fmt.Sprintf("cachify: key template %q: %s", e.Template, e.Reason)
	}
	return fmt.Sprintf("cachify: key template %q: placeholder {%s}: %s", e.Template, e.Placeholder, e.Reason)
}

// StoreUnavailableError reports a backend round-trip failure. It is distinct
// from a miss or contention, which are ordinary results.
type StoreUnavailableError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("cachify: store %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

// LockContentionError is the default contention outcome of a Once wrapper:
// another holder owns the lock for the rendered key. It is an expected,
// frequent condition under concurrent load.
type LockContentionError struct {
	Key string
}

func (e *LockContentionError) Error() string {
	return fmt.Sprintf("cachify: lock %q is already held", e.Key)
}

// IsContended reports whether err is a lock contention outcome.
func IsContended(err error) bool {
	var c *LockContentionError
	return errors.As(err, &c)
}

func storeErr(op, key string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreUnavailableError{Op: op, Key: key, Err: err}
}
