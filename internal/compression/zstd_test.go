package compression

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	c, err := New(LevelDefault, true)
	require.NoError(t, err)
	defer c.Close()

	big := bytes.Repeat([]byte("amber "), 200)
	frame := c.Encode(big)
	assert.Less(t, len(frame), len(big))
	got, err := c.Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, big, got)

	small := []byte("tiny")
	frame = c.Encode(small)
	assert.Equal(t, byte(0), frame[0])
	got, err = c.Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, small, got)
}

func TestDisabledStillDecodesCompressedFrames(t *testing.T) {
	on, err := New(LevelBest, true)
	require.NoError(t, err)
	off, err := New(LevelBest, false)
	require.NoError(t, err)

	big := bytes.Repeat([]byte{7}, 4096)
	got, err := off.Decode(on.Encode(big))
	require.NoError(t, err)
	assert.Equal(t, big, got)

	assert.Equal(t, byte(0), off.Encode(big)[0])
}

func TestDecodeCorrupt(t *testing.T) {
	c, err := New(LevelFastest, true)
	require.NoError(t, err)

	_, err = c.Decode(nil)
	assert.ErrorIs(t, err, ErrCorrupt)
	_, err = c.Decode([]byte{9, 1, 2})
	assert.ErrorIs(t, err, ErrCorrupt)
	_, err = c.Decode([]byte{1, 1, 2})
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestCompressRaw(t *testing.T) {
	c, err := New(LevelDefault, false)
	require.NoError(t, err)
	data := bytes.Repeat([]byte("layer"), 100)
	raw, err := c.Compress(data)
	require.NoError(t, err)
	got, err := c.Decompress(raw)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}
