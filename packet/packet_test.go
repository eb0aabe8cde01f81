package packet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kenneth/mesher/meshcrypto"
)

func genKeypair(t *testing.T) (meshcrypto.PublicKey, meshcrypto.SecretKey) {
	t.Helper()
	pub, sec, err := meshcrypto.GenerateEncryptionKeypair()
	require.NoError(t, err)
	return pub, sec
}

func TestUnsignedSerializeParseRoundTrip(t *testing.T) {
	pk1, sk1 := genKeypair(t)
	pk2, sk2 := genKeypair(t)

	p := NewUnsigned()
	require.NoError(t, p.AddHop("hello", pk1))
	require.NoError(t, p.AddMessage([]byte{1, 2, 3}, pk2))

	wire := p.Serialize()

	res1, err := Parser{OwnSecrets: []meshcrypto.SecretKey{sk1}}.Parse(wire)
	require.NoError(t, err)
	require.Len(t, res1.Forwards, 1)
	assert.Equal(t, "hello", res1.Forwards[0].URL)
	assert.Empty(t, res1.Messages)

	res2, err := Parser{OwnSecrets: []meshcrypto.SecretKey{sk2}}.Parse(wire)
	require.NoError(t, err)
	require.Len(t, res2.Messages, 1)
	assert.Equal(t, []byte{1, 2, 3}, res2.Messages[0].Contents)
	assert.Nil(t, res2.Messages[0].ReplyPath)
}

func TestSignedSerializeParseRoundTrip(t *testing.T) {
	spk, ssk, err := meshcrypto.GenerateSigningKeypair()
	require.NoError(t, err)
	pk1, sk1 := genKeypair(t)
	pk2, sk2 := genKeypair(t)

	p := NewSigned(ssk)
	require.NoError(t, p.AddHop("hello", pk1))
	require.NoError(t, p.AddMessage([]byte{1, 2, 3}, pk2))

	wire := p.Serialize()

	res1, err := Parser{OwnSecrets: []meshcrypto.SecretKey{sk1}, AcceptedSigners: []meshcrypto.SignPublicKey{spk}}.Parse(wire)
	require.NoError(t, err)
	require.Len(t, res1.Forwards, 1)

	res2, err := Parser{OwnSecrets: []meshcrypto.SecretKey{sk2}, AcceptedSigners: []meshcrypto.SignPublicKey{spk}}.Parse(wire)
	require.NoError(t, err)
	require.Len(t, res2.Messages, 1)
	assert.Equal(t, []byte{1, 2, 3}, res2.Messages[0].Contents)
}

func TestSignedModeRejectsWrongSigner(t *testing.T) {
	_, ssk1, err := meshcrypto.GenerateSigningKeypair()
	require.NoError(t, err)
	spk2, _, err := meshcrypto.GenerateSigningKeypair()
	require.NoError(t, err)
	pk, sk := genKeypair(t)

	p := NewSigned(ssk1)
	require.NoError(t, p.AddMessage([]byte{9}, pk))
	wire := p.Serialize()

	res, err := Parser{OwnSecrets: []meshcrypto.SecretKey{sk}, AcceptedSigners: []meshcrypto.SignPublicKey{spk2}}.Parse(wire)
	require.NoError(t, err)
	assert.Empty(t, res.Messages)
	assert.Empty(t, res.Forwards)
}

func TestParseWithNoMatchingKeysYieldsEmpty(t *testing.T) {
	pk, _ := genKeypair(t)
	_, otherSk := genKeypair(t)

	p := NewUnsigned()
	require.NoError(t, p.AddMessage([]byte{1}, pk))
	wire := p.Serialize()

	res, err := Parser{OwnSecrets: []meshcrypto.SecretKey{otherSk}}.Parse(wire)
	require.NoError(t, err)
	assert.Empty(t, res.Messages)
	assert.Empty(t, res.Forwards)
}

func TestParseInvalidPacket(t *testing.T) {
	_, err := Parser{}.Parse([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrInvalidPacket)

	_, err = Parser{}.Parse(encodeBlocks(nil))
	assert.ErrorIs(t, err, ErrInvalidPacket)
}

func TestAddReplyPathLimit(t *testing.T) {
	p := NewUnsigned()
	for i := 0; i < 255; i++ {
		h, ok := p.AddReplyPath()
		require.True(t, ok, "reply path %d", i)
		require.NotNil(t, h)
	}
	h, ok := p.AddReplyPath()
	assert.False(t, ok)
	assert.Nil(t, h)
}

func TestReplyToClonesReplyBlock(t *testing.T) {
	pk, sk := genKeypair(t)
	tpk, _ := genKeypair(t)

	p := NewUnsigned()
	require.NoError(t, p.AddHop("foo1", tpk))
	require.NoError(t, p.AddMessage([]byte{1}, pk))

	rh, ok := p.AddReplyPath()
	require.True(t, ok)
	require.NoError(t, rh.AddHop("foo2", pk))
	require.NoError(t, rh.UseForMessage([]byte{2}, pk))

	wire := p.Serialize()
	res, err := Parser{OwnSecrets: []meshcrypto.SecretKey{sk}}.Parse(wire)
	require.NoError(t, err)
	require.Len(t, res.Messages, 2)

	var withReply, withoutReply *Message
	for i := range res.Messages {
		m := &res.Messages[i]
		if m.ReplyPath != nil {
			withReply = m
		} else {
			withoutReply = m
		}
	}
	require.NotNil(t, withReply)
	require.NotNil(t, withoutReply)
	assert.Equal(t, []byte{2}, withReply.Contents)
	assert.Equal(t, []byte{1}, withoutReply.Contents)

	reply := NewUnsigned()
	require.NoError(t, reply.ReplyTo(withReply))
	require.NoError(t, reply.AddMessage([]byte{42}, pk))
	replyWire := reply.Serialize()

	replyRes, err := Parser{OwnSecrets: []meshcrypto.SecretKey{sk}}.Parse(replyWire)
	require.NoError(t, err)

	var forwards, msgs int
	for _, f := range replyRes.Forwards {
		assert.Equal(t, "foo2", f.URL)
		forwards++
	}
	for _, m := range replyRes.Messages {
		assert.Equal(t, []byte{42}, m.Contents)
		msgs++
	}
	assert.Equal(t, 1, forwards)
	assert.Equal(t, 1, msgs)
}

func TestReplyToWithoutReplyPathFails(t *testing.T) {
	p := NewUnsigned()
	err := p.ReplyTo(&Message{Contents: []byte{1}})
	assert.ErrorIs(t, err, ErrNoReplyRoute)
}

func TestSharedReplyBlockAcrossMessages(t *testing.T) {
	pk, sk := genKeypair(t)
	tpk, _ := genKeypair(t)

	p := NewUnsigned()
	require.NoError(t, p.AddHop("foo1", tpk))

	rh1, ok := p.AddReplyPath()
	require.True(t, ok)
	require.NoError(t, rh1.AddHop("foo2", tpk))
	require.NoError(t, rh1.UseForMessage([]byte{2}, pk))
	require.NoError(t, rh1.UseForMessage([]byte{3}, pk))

	rh2, ok := p.AddReplyPath()
	require.True(t, ok)
	require.NoError(t, rh2.AddHop("foo4", tpk))
	require.NoError(t, rh2.UseForMessage([]byte{4}, pk))
	require.NoError(t, rh2.UseForMessage([]byte{5}, pk))

	wire := p.Serialize()
	res, err := Parser{OwnSecrets: []meshcrypto.SecretKey{sk}}.Parse(wire)
	require.NoError(t, err)
	require.Len(t, res.Messages, 4)

	byFirstByte := map[byte]*ReplyBlock{}
	for i := range res.Messages {
		m := &res.Messages[i]
		byFirstByte[m.Contents[0]] = m.ReplyPath
	}

	assert.Same(t, byFirstByte[2], byFirstByte[3])
	assert.Same(t, byFirstByte[4], byFirstByte[5])
	assert.NotSame(t, byFirstByte[3], byFirstByte[4])
}

func TestSerializeShufflesIntraBlockOrder(t *testing.T) {
	pk, sk := genKeypair(t)

	build := func() *Packet {
		p := NewUnsigned()
		for i := 0; i < 12; i++ {
			require.NoError(t, p.AddMessage([]byte{byte(i)}, pk))
		}
		return p
	}

	a := build().Serialize()
	b := build().Serialize()
	assert.NotEqual(t, a, b, "serialize output should differ in intra-block order with high probability")

	resA, err := Parser{OwnSecrets: []meshcrypto.SecretKey{sk}}.Parse(a)
	require.NoError(t, err)
	resB, err := Parser{OwnSecrets: []meshcrypto.SecretKey{sk}}.Parse(b)
	require.NoError(t, err)

	seenA := map[byte]int{}
	for _, m := range resA.Messages {
		seenA[m.Contents[0]]++
	}
	seenB := map[byte]int{}
	for _, m := range resB.Messages {
		seenB[m.Contents[0]]++
	}
	assert.Equal(t, seenA, seenB)
}
