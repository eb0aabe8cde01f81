// Package mesher ties packet assembly/parsing (package packet) and pluggable
// Transports together into a node that can send, forward, and receive mesh
// packets.
//
// A Mesher only ever stores keys and registered transports; it does no key
// management of its own. Callers are responsible for generating,
// persisting, and rotating the keys it's given.
package mesher

import (
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/kenneth/mesher/meshcrypto"
	"github.com/kenneth/mesher/metrics"
	"github.com/kenneth/mesher/packet"
)

// Options configures ambient concerns that aren't part of the mesh protocol
// itself. Either field may be left zero: a nil Logger falls back to a
// logrus.Logger with default settings, and a nil Metrics disables metrics
// recording entirely.
type Options struct {
	Logger  *logrus.Logger
	Metrics *metrics.Metrics
}

// Mesher is the control interface for a single mesh node: it holds the
// node's own secret keys, its registered transports, and (in signed mode)
// the keys it accepts signatures from.
type Mesher struct {
	mu              sync.Mutex
	transports      map[string]Transport
	schemeOrder     []string
	ownSecrets      []meshcrypto.SecretKey
	acceptedSigners []meshcrypto.SignPublicKey
	signingKey      *meshcrypto.SignSecretKey

	logger  *logrus.Logger
	metrics *metrics.Metrics
}

func newMesher(ownSecrets []meshcrypto.SecretKey, opts Options) *Mesher {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}
	return &Mesher{
		transports: make(map[string]Transport),
		ownSecrets: append([]meshcrypto.SecretKey(nil), ownSecrets...),
		logger:     logger,
		metrics:    opts.Metrics,
	}
}

// NewUnsigned creates a Mesher that does not sign outgoing packets.
// ownSecrets are used to decrypt chunks addressed to this node.
func NewUnsigned(ownSecrets []meshcrypto.SecretKey, opts Options) *Mesher {
	return newMesher(ownSecrets, opts)
}

// NewSigned creates a Mesher that signs every chunk it produces with
// signingKey. Use SetAcceptedSigners to tell it which signers it will trust
// on receipt; with an empty accepted-signer list it parses received packets
// in unsigned mode: no signature is checked, so signed chunks fail
// decryption and are dropped while unsigned chunks are accepted.
func NewSigned(ownSecrets []meshcrypto.SecretKey, signingKey meshcrypto.SignSecretKey, opts Options) *Mesher {
	m := newMesher(ownSecrets, opts)
	m.signingKey = &signingKey
	return m
}

// TransportCount reports how many transports are currently registered. It's
// intended for readiness checks: a node with zero transports can neither
// send nor receive anything.
func (m *Mesher) TransportCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.transports)
}

// AddOwnSecret adds an additional secret key this node will try when
// decrypting received chunks.
func (m *Mesher) AddOwnSecret(sk meshcrypto.SecretKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ownSecrets = append(m.ownSecrets, sk)
}

// SetAcceptedSigners replaces the set of signing public keys this node
// trusts when parsing received packets. It is safe to call concurrently
// with Receive, and is the hook keywatch uses for live key-set reloads.
func (m *Mesher) SetAcceptedSigners(signers []meshcrypto.SignPublicKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acceptedSigners = append([]meshcrypto.SignPublicKey(nil), signers...)
}

// NewPacket builds an empty Packet configured the same way this Mesher is:
// signed if the Mesher was created with NewSigned, unsigned otherwise.
func (m *Mesher) NewPacket() *packet.Packet {
	m.mu.Lock()
	signingKey := m.signingKey
	m.mu.Unlock()

	if signingKey != nil {
		return packet.NewSigned(*signingKey)
	}
	return packet.NewUnsigned()
}

// Reply builds a new Packet preloaded with msg's reply path via
// packet.Packet.ReplyTo, ready for the caller to add a message onto before
// calling Launch. It fails with an ErrNoReplyRoute MesherError if msg
// carries no reply path.
func (m *Mesher) Reply(msg *packet.Message) (*packet.Packet, error) {
	p := m.NewPacket()
	if err := p.ReplyTo(msg); err != nil {
		return nil, newErr(ErrNoReplyRoute, "", err)
	}
	return p, nil
}

// AddTransport registers a Transport for scheme, built by calling factory
// with that scheme. If factory fails, nothing is added. Registration order
// is preserved and determines the polling order Receive uses; re-registering
// an existing scheme does not change its position.
func (m *Mesher) AddTransport(scheme string, factory Factory) error {
	t, err := factory(scheme)
	if err != nil {
		return newErr(ErrSetupFailure, scheme, err)
	}
	m.mu.Lock()
	if _, exists := m.transports[scheme]; !exists {
		m.schemeOrder = append(m.schemeOrder, scheme)
	}
	m.transports[scheme] = t
	m.mu.Unlock()
	m.logger.WithField("scheme", scheme).Info("transport registered")
	return nil
}

func schemeOf(path string) (string, error) {
	scheme, _, ok := strings.Cut(path, ":")
	if !ok || scheme == "" {
		return "", newErr(ErrInvalidURL, path, nil)
	}
	return scheme, nil
}

func (m *Mesher) transportFor(path string) (Transport, string, error) {
	scheme, err := schemeOf(path)
	if err != nil {
		return nil, "", err
	}
	m.mu.Lock()
	t, ok := m.transports[scheme]
	m.mu.Unlock()
	if !ok {
		return nil, scheme, newErr(ErrUnregisteredScheme, scheme, nil)
	}
	return t, scheme, nil
}

// ListenOn tells the transport registered for path's scheme to start
// accepting traffic on path.
func (m *Mesher) ListenOn(path string) error {
	t, scheme, err := m.transportFor(path)
	if err != nil {
		return err
	}
	if err := t.Listen(path); err != nil {
		return newErr(ErrListenFailure, scheme, err)
	}
	m.logger.WithFields(logrus.Fields{"scheme": scheme, "path": path}).Info("listening")
	return nil
}

// Launch serializes pkt and sends it along firstHop. The packet is not
// processed locally, so any instructions it carries for this node are only
// acted on if it's received back through a transport later.
func (m *Mesher) Launch(pkt *packet.Packet, firstHop string) error {
	return m.bounce(pkt.Serialize(), firstHop)
}

func (m *Mesher) bounce(raw []byte, path string) error {
	t, scheme, err := m.transportFor(path)
	if err != nil {
		return err
	}
	if err := t.Send(path, raw); err != nil {
		if m.metrics != nil {
			m.metrics.RecordTransportSendError(scheme)
		}
		return newErr(ErrSendFailure, scheme, err)
	}
	if m.metrics != nil {
		m.metrics.RecordPacketSent(scheme)
	}
	return nil
}

// Receive polls every registered transport for queued packets, in the order
// transports were registered via AddTransport, parses each one, forwards any
// Transport chunks found in it, and returns every Message chunk addressed to
// this node. A packet whose outer framing is invalid fails the call with
// ErrInvalidPacket, and a forward that cannot be sent (bad URL, unregistered
// scheme, transport send failure) fails it with that error; either one
// aborts the rest of the batch, and messages from packets already drained
// in this call are not returned. If this Mesher has no own secret keys, it
// fails with ErrNoKeys: with nothing to decrypt with, receiving can never
// yield anything but dropped chunks.
func (m *Mesher) Receive() ([]packet.Message, error) {
	m.mu.Lock()
	if len(m.ownSecrets) == 0 {
		m.mu.Unlock()
		return nil, newErr(ErrNoKeys, "", nil)
	}
	schemeOrder := append([]string(nil), m.schemeOrder...)
	transports := make(map[string]Transport, len(m.transports))
	for scheme, t := range m.transports {
		transports[scheme] = t
	}
	ownSecrets := append([]meshcrypto.SecretKey(nil), m.ownSecrets...)
	acceptedSigners := append([]meshcrypto.SignPublicKey(nil), m.acceptedSigners...)
	m.mu.Unlock()

	var raws [][]byte
	for _, scheme := range schemeOrder {
		t, ok := transports[scheme]
		if !ok {
			continue
		}
		pkts, err := t.Receive()
		if err != nil {
			return nil, newErr(ErrReceiveFailure, scheme, err)
		}
		if m.metrics != nil {
			for range pkts {
				m.metrics.RecordPacketReceived(scheme)
			}
		}
		raws = append(raws, pkts...)
	}

	parser := packet.Parser{
		OwnSecrets:      ownSecrets,
		AcceptedSigners: acceptedSigners,
	}
	if m.metrics != nil {
		parser.Metrics = m.metrics
	}

	var messages []packet.Message
	for _, raw := range raws {
		if m.metrics != nil {
			m.metrics.RecordPacketParsed()
		}
		result, err := parser.Parse(raw)
		if err != nil {
			m.logger.WithError(err).Error("received packet with invalid framing")
			return nil, newErr(ErrInvalidPacket, "", err)
		}
		for _, fwd := range result.Forwards {
			if err := m.bounce(raw, fwd.URL); err != nil {
				m.logger.WithError(err).WithField("url", fwd.URL).Error("forward failed")
				return nil, err
			}
		}
		messages = append(messages, result.Messages...)
	}

	if m.metrics != nil {
		seen := make(map[*packet.ReplyBlock]struct{})
		for _, msg := range messages {
			if msg.ReplyPath != nil {
				seen[msg.ReplyPath] = struct{}{}
			}
		}
		m.metrics.SetReplyBlocksActive(len(seen))
	}
	return messages, nil
}
