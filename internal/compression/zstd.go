// Package compression wraps zstd for payloads written to disk and to
// registries.
package compression

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Level selects the encoder speed/ratio trade-off.
type Level int

const (
	LevelFastest Level = iota + 1
	LevelDefault
	LevelBest
)

// Frames written by Encode start with one of these markers so Decode never
// has to guess whether a payload was compressed.
const (
	markerRaw  byte = 0
	markerZstd byte = 1
)

// MinSize is the payload size below which Encode stores data as is.
const MinSize = 128

var ErrCorrupt = errors.New("compression: corrupt frame")

type Compressor struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	enabled bool
}

// New returns a compressor. A disabled compressor still frames its output so
// data written with compression off remains readable once it is turned on.
func New(level Level, enabled bool) (*Compressor, error) {
	c := &Compressor{enabled: enabled}

	var encoderLevel zstd.EncoderLevel
	switch level {
	case LevelFastest:
		encoderLevel = zstd.SpeedFastest
	case LevelBest:
		encoderLevel = zstd.SpeedBetterCompression
	default:
		encoderLevel = zstd.SpeedDefault
	}

	var err error
	if enabled {
		c.encoder, err = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(encoderLevel),
			zstd.WithEncoderConcurrency(1),
		)
		if err != nil {
			return nil, fmt.Errorf("zstd encoder: %w", err)
		}
	}
	c.decoder, err = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return c, nil
}

// Encode frames data, compressing it when that makes it smaller.
func (c *Compressor) Encode(data []byte) []byte {
	if c.enabled && len(data) >= MinSize {
		out := c.encoder.EncodeAll(data, append(make([]byte, 0, len(data)/2+1), markerZstd))
		if len(out) < len(data)+1 {
			return out
		}
	}
	return append([]byte{markerRaw}, data...)
}

// Decode reverses Encode.
func (c *Compressor) Decode(frame []byte) ([]byte, error) {
	if len(frame) == 0 {
		return nil, ErrCorrupt
	}
	switch frame[0] {
	case markerRaw:
		return frame[1:], nil
	case markerZstd:
		data, err := c.decoder.DecodeAll(frame[1:], nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("%w: marker %#x", ErrCorrupt, frame[0])
}

// Compress returns the raw zstd stream of data with no framing, for
// consumers that carry the media type out of band.
func (c *Compressor) Compress(data []byte) ([]byte, error) {
	if c.encoder == nil {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("create zstd encoder: %w", err)
		}
		defer enc.Close()
		return enc.EncodeAll(data, nil), nil
	}
	return c.encoder.EncodeAll(data, nil), nil
}

// Decompress reverses Compress.
func (c *Compressor) Decompress(data []byte) ([]byte, error) {
	out, err := c.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return out, nil
}

func (c *Compressor) Close() error {
	if c.encoder != nil {
		c.encoder.Close()
	}
	if c.decoder != nil {
		c.decoder.Close()
	}
	return nil
}
