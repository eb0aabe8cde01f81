package mesher

// Transport is how a Mesher actually moves packet bytes. Implementations
// own any background goroutines they need (a listener loop, a poller); the
// Mesher core itself stays single-threaded and synchronous, calling Send,
// Listen, and Receive on its own goroutine only.
type Transport interface {
	// Send delivers blob along path. path is the full URL the packet was
	// addressed with, including scheme.
	Send(path string, blob []byte) error
	// Listen tells the transport to start accepting traffic on path. The
	// exact behavior is transport-defined: it might open a listener, or
	// simply remember path to poll later.
	Listen(path string) error
	// Receive returns every packet the transport has queued since the
	// last call, then clears its queue. It must not block.
	Receive() ([][]byte, error)
}

// Factory constructs a Transport for the given URL scheme. Go has no
// generic "impl Transport" registration the way the original design's
// `Transport::new(scheme)` associated function does; a Factory closure (or
// plain function value) fills the same role and is what AddTransport
// expects.
type Factory func(scheme string) (Transport, error)
