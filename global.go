package cachify

import "sync"

// The process-wide client is optional sugar over explicit injection: apps
// that decorate functions at package scope register one store up front
// (mirroring a lifespan/bootstrap hook) and the wrappers pick it up lazily.
// Using a wrapper before Init is a configuration error, never a miss.
var global struct {
	mu     sync.RWMutex
	client *Client
}

// Init registers the process-wide client returned by Default. Calling Init
// again replaces the previous client.
func Init(store Store, opts ...Option) *Client {
	c := New(store, opts...)
	global.mu.Lock()
	global.client = c
	global.mu.Unlock()
	return c
}

// Default returns the process-wide client, or ErrNotInitialized when Init
// has not run yet.
func Default() (*Client, error) {
	global.mu.RLock()
	c := global.client
	global.mu.RUnlock()
	if c == nil {
		return nil, ErrNotInitialized
	}
	return c, nil
}

// Close drops the process-wide client. Wrappers holding it keep working;
// new Default calls fail until the next Init.
func Close() {
	global.mu.Lock()
	global.client = nil
	global.mu.Unlock()
}
