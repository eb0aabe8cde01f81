// Package packet implements the mesh packet format: assembly on the
// sending side (Packet, ReplyHandle) and parsing/dispatch on the receiving
// side (Parse). A packet is an ordered list of blocks — block 0 is the
// main forwarding path, blocks 1..N are reply-path templates — where each
// block is a shuffled list of individually encrypted (and optionally
// signed) chunks.
package packet

import (
	"errors"

	"github.com/kenneth/mesher/internal/chunk"
	"github.com/kenneth/mesher/meshcrypto"
)

// maxReplyBlocks mirrors the wire format's single-byte reply-block index:
// a reply_ref byte of 0 means "none", so at most 255 reply blocks (indices
// 1..255) can be addressed.
const maxReplyBlocks = 255

// ErrNoReplyRoute is returned by ReplyTo when the message it was given
// carries no reply path.
var ErrNoReplyRoute = errors.New("packet: message has no reply path")

// Packet is a packet under construction by a sender.
type Packet struct {
	mainBlock   [][]byte
	replyBlocks [][][]byte
	signingKey  *meshcrypto.SignSecretKey
}

// NewUnsigned creates an empty packet whose chunks will not be signed.
func NewUnsigned() *Packet {
	return &Packet{}
}

// NewSigned creates an empty packet whose chunks will be signed with key.
func NewSigned(key meshcrypto.SignSecretKey) *Packet {
	return &Packet{signingKey: &key}
}

// addInstruction encrypts the serialized chunk body to target, signs it if
// the packet is in signed mode, and appends it to the named block (nil
// block means the main block).
func (p *Packet) addInstruction(block *[][]byte, body []byte, target meshcrypto.PublicKey) error {
	sealed, err := meshcrypto.Seal(body, target)
	if err != nil {
		return err
	}
	if p.signingKey != nil {
		sealed = meshcrypto.Sign(sealed, *p.signingKey)
	}
	if block == nil {
		p.mainBlock = append(p.mainBlock, sealed)
	} else {
		*block = append(*block, sealed)
	}
	return nil
}

// AddMessage appends a Message chunk with no reply reference to the main
// block, encrypted to target.
func (p *Packet) AddMessage(payload []byte, target meshcrypto.PublicKey) error {
	return p.addInstruction(nil, chunk.EncodeMessage(payload, nil), target)
}

// AddHop appends a Transport chunk to the main block, directing whichever
// node holds the matching secret key to forward the packet to url.
func (p *Packet) AddHop(url string, target meshcrypto.PublicKey) error {
	return p.addInstruction(nil, chunk.EncodeTransport(url), target)
}

// AddReplyPath appends a new, empty reply block and returns a handle bound
// to it. It returns (nil, false) once 255 reply blocks already exist.
func (p *Packet) AddReplyPath() (*ReplyHandle, bool) {
	if len(p.replyBlocks) >= maxReplyBlocks {
		return nil, false
	}
	p.replyBlocks = append(p.replyBlocks, [][]byte{})
	idx := len(p.replyBlocks) - 1
	return &ReplyHandle{idx: idx, owner: p}, true
}

// ReplyTo replaces this packet's main block with a clone of msg's reply
// path, so that further AddMessage/AddHop calls append to that cloned
// path. It fails with ErrNoReplyRoute if msg carries no reply path.
//
// Calling ReplyTo after other Add* calls on this packet discards whatever
// was already in the main block — it replaces, it does not merge.
func (p *Packet) ReplyTo(msg *Message) error {
	if msg.ReplyPath == nil {
		return ErrNoReplyRoute
	}
	cloned := make([][]byte, len(msg.ReplyPath.chunks))
	copy(cloned, msg.ReplyPath.chunks)
	p.mainBlock = cloned
	return nil
}

// Serialize shuffles the main block and every reply block independently
// (mandatory: absolute position must not leak forwarding order), then
// encodes the whole packet as a length-prefixed binary structure.
func (p *Packet) Serialize() []byte {
	blocks := make([][][]byte, 0, len(p.replyBlocks)+1)

	main := append([][]byte(nil), p.mainBlock...)
	secureShuffle(main)
	blocks = append(blocks, main)

	for _, rb := range p.replyBlocks {
		cp := append([][]byte(nil), rb...)
		secureShuffle(cp)
		blocks = append(blocks, cp)
	}

	return encodeBlocks(blocks)
}

// ReplyHandle lets a sender build a reply block: a pre-assembled packet
// tail a recipient can use to send a message back along a sender-chosen
// path, without ever needing to know the path itself.
//
// Go has no borrow checker, so a ReplyHandle is just an index into its
// owning Packet's reply-block list plus a pointer back to that packet;
// every method forwards to the owner.
type ReplyHandle struct {
	idx   int
	owner *Packet
}

// AddHop appends a Transport chunk into this reply block.
func (h *ReplyHandle) AddHop(url string, target meshcrypto.PublicKey) error {
	return h.owner.addInstruction(&h.owner.replyBlocks[h.idx], chunk.EncodeTransport(url), target)
}

// UseForMessage appends a Message chunk to the packet's MAIN block whose
// reply_ref points at this reply block: whoever decrypts this message
// gains a ready-made packet tail usable to reply.
func (h *ReplyHandle) UseForMessage(payload []byte, target meshcrypto.PublicKey) error {
	idx := h.idx
	return h.owner.addInstruction(nil, chunk.EncodeMessage(payload, &idx), target)
}
