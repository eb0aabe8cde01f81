// Package tcp provides a real-network Transport: Send dials out a plain TCP
// connection per packet, Listen accepts connections on a background
// goroutine, and each connection is read to EOF and queued as one packet.
package tcp

import (
	"errors"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/kenneth/mesher/mesher"
)

// ErrBadAddress is returned when a path does not start with this
// transport's "<scheme>:" prefix or has nothing after it. The rest of the
// path is not validated here; a malformed host:port fails in net.Dial or
// net.Listen instead.
var ErrBadAddress = errors.New("tcp: not a valid scheme-prefixed address")

// TCP is a Transport backed by net.Listen/net.Dial. One TCP value is bound
// to a single scheme at construction; paths passed to Send/Listen must carry
// that same scheme prefix.
type TCP struct {
	scheme string

	mu       sync.Mutex
	queue    [][]byte
	listener net.Listener
}

// New constructs a TCP transport for scheme. It does nothing with the
// network until Listen or Send is called.
func New(scheme string) (*TCP, error) {
	return &TCP{scheme: scheme}, nil
}

// Factory adapts New to the mesher.Factory signature for use with
// Mesher.AddTransport.
func Factory(scheme string) (mesher.Transport, error) {
	return New(scheme)
}

func (t *TCP) addrFromPath(path string) (string, error) {
	prefix := t.scheme + ":"
	if !strings.HasPrefix(path, prefix) {
		return "", ErrBadAddress
	}
	addr := path[len(prefix):]
	if addr == "" {
		return "", ErrBadAddress
	}
	return addr, nil
}

// Send dials addr (the part of path after the scheme) and writes blob,
// closing the connection once every byte has been written.
func (t *TCP) Send(path string, blob []byte) error {
	addr, err := t.addrFromPath(path)
	if err != nil {
		return err
	}
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	_, err = conn.Write(blob)
	return err
}

// Listen binds addr (the part of path after the scheme) and accepts
// connections on a background goroutine until the listener is closed or the
// process exits; TCP has no Close method of its own, matching the Transport
// contract's silence on shutdown.
func (t *TCP) Listen(path string) error {
	addr, err := t.addrFromPath(path)
	if err != nil {
		return err
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.listener = ln
	t.mu.Unlock()

	go t.acceptLoop(ln)
	return nil
}

func (t *TCP) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go t.handleConn(conn)
	}
}

func (t *TCP) handleConn(conn net.Conn) {
	defer conn.Close()
	data, err := io.ReadAll(conn)
	if err != nil {
		return
	}
	t.mu.Lock()
	t.queue = append(t.queue, data)
	t.mu.Unlock()
}

// Receive drains and returns every packet received since the last call.
func (t *TCP) Receive() ([][]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.queue
	t.queue = nil
	return out, nil
}
