package cachify

import (
	"context"
	"time"
)

// Op identifies a store operation for observer events.
type Op string

const (
	OpGet       Op = "get"
	OpSet       Op = "set"
	OpDelete    Op = "delete"
	OpAcquire   Op = "acquire"
	OpContended Op = "contended"
	OpRelease   Op = "release"
	OpHit       Op = "hit"
	OpMiss      Op = "miss"
	OpReset     Op = "reset"
)

// Observer receives one event per operation that touches the store, plus
// hit/miss/reset outcomes from the wrappers. Implementations must be cheap;
// they run on the call path.
type Observer interface {
	OnOp(ctx context.Context, op Op, key string, hit bool, err error, dur time.Duration, driver Driver)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, op Op, key string, hit bool, err error, dur time.Duration, driver Driver)

// OnOp implements Observer.
func (f ObserverFunc) OnOp(ctx context.Context, op Op, key string, hit bool, err error, dur time.Duration, driver Driver) {
	if f == nil {
		return
	}
	f(ctx, op, key, hit, err, dur, driver)
}
