// Package chunk implements the pre-encryption wire shape of a single chunk
// instruction: a one-byte tag followed by a tag-specific body. Encryption,
// signing and the outer block framing are handled by the packet package;
// this package only knows how to turn a Message or Transport instruction
// into bytes and back.
package chunk

import "unicode/utf8"

// Kind distinguishes the two chunk instruction types.
type Kind int

const (
	// KindMessage carries an opaque payload for the decrypting node.
	KindMessage Kind = iota
	// KindTransport carries a URL the decrypting node should forward the
	// whole packet to.
	KindTransport
)

const (
	tagMessage   byte = 0x00
	tagTransport byte = 0x01
)

// Decoded is the result of successfully decoding a chunk's plaintext body.
type Decoded struct {
	Kind Kind

	// Set when Kind == KindMessage.
	Payload []byte
	// ReplyRef is 0 for "no reply block", else (index+1) of the reply
	// block this message names.
	ReplyRef byte

	// Set when Kind == KindTransport.
	URL string
}

// EncodeMessage serializes a Message chunk's pre-encryption body. replyRef
// is nil for "no reply", else the 0-based index of a reply block.
func EncodeMessage(payload []byte, replyRef *int) []byte {
	out := make([]byte, 0, 2+len(payload))
	out = append(out, tagMessage)
	var ref byte
	if replyRef != nil {
		ref = byte(*replyRef + 1)
	}
	out = append(out, ref)
	out = append(out, payload...)
	return out
}

// EncodeTransport serializes a Transport chunk's pre-encryption body.
func EncodeTransport(url string) []byte {
	out := make([]byte, 0, 1+len(url))
	out = append(out, tagTransport)
	out = append(out, url...)
	return out
}

// Decode parses a chunk's plaintext body. It reports ok=false — never an
// error — for any malformed input: an unrecognized tag, a truncated
// Message header, or a Transport body that isn't valid UTF-8. Per-chunk
// decode failure is expected and must stay silent, matching Seal/Open.
func Decode(data []byte) (Decoded, bool) {
	if len(data) == 0 {
		return Decoded{}, false
	}
	switch data[0] {
	case tagMessage:
		if len(data) < 2 {
			return Decoded{}, false
		}
		return Decoded{
			Kind:     KindMessage,
			ReplyRef: data[1],
			Payload:  append([]byte(nil), data[2:]...),
		}, true
	case tagTransport:
		body := data[1:]
		if !utf8.Valid(body) {
			return Decoded{}, false
		}
		return Decoded{Kind: KindTransport, URL: string(body)}, true
	default:
		return Decoded{}, false
	}
}
