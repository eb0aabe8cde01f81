package packet

import (
	"github.com/kenneth/mesher/internal/chunk"
	"github.com/kenneth/mesher/meshcrypto"
)

// ReplyBlock is a received reply block: an immutable list of still-sealed
// chunks that one or more delivered Messages may point at. Go's garbage
// collector makes the reference-counting the original design calls for
// unnecessary — every Message that names the same reply block holds a
// pointer to the same ReplyBlock value, so it is never copied.
type ReplyBlock struct {
	chunks [][]byte
}

// Message is a chunk that decrypted to a Message instruction, ready to
// hand to a caller.
type Message struct {
	Contents  []byte
	ReplyPath *ReplyBlock
}

// Forward is a chunk that decrypted to a Transport instruction: the
// current node is being asked to resend the whole received packet to URL.
type Forward struct {
	URL string
}

// MetricsSink receives coarse, aggregate counts of chunk outcomes during
// parsing. It deliberately carries no per-chunk identifying information
// (no scheme, no URL, no content) — only a stage label — so that metrics
// can never become an oracle for which chunks in a packet were meant for
// this node. A nil MetricsSink is a no-op.
type MetricsSink interface {
	RecordChunkProcessed()
	RecordChunkDropped(stage string)
}

type noopSink struct{}

func (noopSink) RecordChunkProcessed()     {}
func (noopSink) RecordChunkDropped(string) {}

// Parser decrypts and classifies the main block of a received packet.
// AcceptedSigners empty means unsigned mode: chunks are not expected to
// carry a signature. A signed mesher receiving an unsigned packet (or vice
// versa) silently drops every chunk, by construction — decryption and
// verification both simply fail, with no special-cased detection.
type Parser struct {
	OwnSecrets      []meshcrypto.SecretKey
	AcceptedSigners []meshcrypto.SignPublicKey
	Metrics         MetricsSink
}

// Result holds everything a single Parse call recovered from a packet.
type Result struct {
	Messages []Message
	Forwards []Forward
}

// Parse decodes raw as a wire-format packet and classifies every chunk in
// its main block. Decoding failure of the outer block structure is the
// only error Parse ever returns (ErrInvalidPacket); every per-chunk
// failure — bad signature, no matching secret key, malformed plaintext,
// out-of-range reply reference — silently drops that chunk.
func (p Parser) Parse(raw []byte) (Result, error) {
	blocks, err := decodeBlocks(raw)
	if err != nil || len(blocks) == 0 {
		return Result{}, ErrInvalidPacket
	}

	main := blocks[0]
	replyBlocksRaw := blocks[1:]
	replyBlocks := make([]*ReplyBlock, len(replyBlocksRaw))
	for i, rb := range replyBlocksRaw {
		replyBlocks[i] = &ReplyBlock{chunks: rb}
	}

	sink := p.Metrics
	if sink == nil {
		sink = noopSink{}
	}

	var result Result
	signedMode := len(p.AcceptedSigners) > 0

	for _, entry := range main {
		data := entry

		if signedMode {
			verified, ok := verifyAny(data, p.AcceptedSigners)
			if !ok {
				sink.RecordChunkDropped("verify")
				continue
			}
			data = verified
		}

		plaintext, ok := openAny(data, p.OwnSecrets)
		if !ok {
			sink.RecordChunkDropped("decrypt")
			continue
		}

		decoded, ok := chunk.Decode(plaintext)
		if !ok {
			sink.RecordChunkDropped("deserialize")
			continue
		}

		switch decoded.Kind {
		case chunk.KindMessage:
			var reply *ReplyBlock
			if decoded.ReplyRef > 0 {
				idx := int(decoded.ReplyRef) - 1
				if idx < 0 || idx >= len(replyBlocks) {
					sink.RecordChunkDropped("deserialize")
					continue
				}
				reply = replyBlocks[idx]
			}
			result.Messages = append(result.Messages, Message{Contents: decoded.Payload, ReplyPath: reply})
		case chunk.KindTransport:
			result.Forwards = append(result.Forwards, Forward{URL: decoded.URL})
		}
		sink.RecordChunkProcessed()
	}

	return result, nil
}

func verifyAny(data []byte, signers []meshcrypto.SignPublicKey) ([]byte, bool) {
	for _, signer := range signers {
		if msg, ok := meshcrypto.Verify(data, signer); ok {
			return msg, true
		}
	}
	return nil, false
}

func openAny(data []byte, secrets []meshcrypto.SecretKey) ([]byte, bool) {
	for _, secret := range secrets {
		if plaintext, ok := meshcrypto.Open(data, secret); ok {
			return plaintext, true
		}
	}
	return nil, false
}
