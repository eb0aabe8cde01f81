package inmemory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendReceiveRoundTrip(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	sender, err := New("mem")
	require.NoError(t, err)
	receiver, err := New("mem")
	require.NoError(t, err)

	require.NoError(t, receiver.Listen("mem:inbox"))
	require.NoError(t, sender.Send("mem:inbox", []byte("hello")))
	require.NoError(t, sender.Send("mem:inbox", []byte("world")))

	got, err := receiver.Receive()
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("hello"), []byte("world")}, got)

	// queue is drained after Receive
	got, err = receiver.Receive()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReceiveIgnoresUnlistenedPaths(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	sender, err := New("mem")
	require.NoError(t, err)
	receiver, err := New("mem")
	require.NoError(t, err)

	require.NoError(t, sender.Send("mem:other", []byte("x")))
	require.NoError(t, receiver.Listen("mem:inbox"))

	got, err := receiver.Receive()
	require.NoError(t, err)
	assert.Empty(t, got)
}
