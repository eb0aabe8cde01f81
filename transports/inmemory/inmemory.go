// Package inmemory provides a process-local Transport useful for tests and
// single-binary demos: packets "sent" to a path are queued in a package-level
// map and handed back to whichever InMemory instance is listening on that
// path.
package inmemory

import (
	"sync"

	"github.com/kenneth/mesher/mesher"
)

var (
	mu      sync.Mutex
	packets = map[string][][]byte{}
)

// InMemory is a Transport that never leaves the process. Every InMemory
// instance for a given scheme shares the same underlying packet queues, so
// a sender and receiver in the same test binary can talk to each other
// without any real network.
type InMemory struct {
	mu        sync.Mutex
	listening []string
}

// New constructs an InMemory transport. It ignores scheme and always
// succeeds.
func New(scheme string) (*InMemory, error) {
	return &InMemory{}, nil
}

// Factory adapts New to the mesher.Factory signature for use with
// Mesher.AddTransport.
func Factory(scheme string) (mesher.Transport, error) {
	return New(scheme)
}

// Send queues blob under path for later delivery to whoever is listening on
// it.
func (t *InMemory) Send(path string, blob []byte) error {
	mu.Lock()
	defer mu.Unlock()
	packets[path] = append(packets[path], blob)
	return nil
}

// Listen remembers path so future Receive calls drain its queue.
func (t *InMemory) Listen(path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listening = append(t.listening, path)
	return nil
}

// Receive drains and returns every packet queued for every path this
// instance is listening on.
func (t *InMemory) Receive() ([][]byte, error) {
	t.mu.Lock()
	paths := append([]string(nil), t.listening...)
	t.mu.Unlock()

	mu.Lock()
	defer mu.Unlock()
	var out [][]byte
	for _, path := range paths {
		out = append(out, packets[path]...)
		packets[path] = nil
	}
	return out, nil
}

// Reset clears every queued packet across all schemes and instances. It
// exists for test isolation, since the packet queue is package-global.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	packets = map[string][][]byte{}
}
