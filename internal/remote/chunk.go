package remote

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

const (
	LayerMinSize = 2 * 1024 * 1024  // 2MB minimum before combining
	LayerSoftMax = 10 * 1024 * 1024 // 10MB soft maximum
	nameLen      = 256
)

var ErrNameTooLong = errors.New("remote: file name longer than 256 bytes")

// PackLayer packs files into binary format: [name 256B][length 8B][data]...
// Names are written in sorted order so equal inputs give equal layers.
func PackLayer(files map[string][]byte) ([]byte, error) {
	names := make([]string, 0, len(files))
	for n := range files {
		if len(n) > nameLen {
			return nil, fmt.Errorf("%w: %q", ErrNameTooLong, n)
		}
		names = append(names, n)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	nameBuf := make([]byte, nameLen)
	lenBuf := make([]byte, 8)

	for _, n := range names {
		data := files[n]

		clear(nameBuf)
		copy(nameBuf, n)
		buf.Write(nameBuf)

		binary.BigEndian.PutUint64(lenBuf, uint64(len(data)))
		buf.Write(lenBuf)

		buf.Write(data)
	}
	return buf.Bytes(), nil
}

// UnpackLayer reverses PackLayer.
func UnpackLayer(data []byte) (map[string][]byte, error) {
	result := make(map[string][]byte)
	r := bytes.NewReader(data)
	nameBuf := make([]byte, nameLen)

	for r.Len() > 0 {
		if _, err := io.ReadFull(r, nameBuf); err != nil {
			return nil, fmt.Errorf("read name: %w", err)
		}
		name := strings.TrimRight(string(nameBuf), "\x00")

		var length uint64
		if err := binary.Read(r, binary.BigEndian, &length); err != nil {
			return nil, fmt.Errorf("read length of %q: %w", name, err)
		}
		if length > uint64(r.Len()) {
			return nil, fmt.Errorf("read data of %q: %w", name, io.ErrUnexpectedEOF)
		}

		payload := make([]byte, length)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, fmt.Errorf("read data of %q: %w", name, err)
		}
		result[name] = payload
	}
	return result, nil
}

// BuildLayerPlan groups files into layers by size. Files are taken in path
// order so files of one directory tend to share a layer; a layer is closed
// once adding the next file would pass LayerSoftMax, unless it is still
// under LayerMinSize.
func BuildLayerPlan(sizes map[string]int64) [][]string {
	paths := make([]string, 0, len(sizes))
	for p := range sizes {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var layers [][]string
	var current []string
	var size int64

	for _, p := range paths {
		fileSize := sizes[p]

		if len(current) == 0 {
			current = append(current, p)
			size = fileSize
			continue
		}

		newSize := size + fileSize
		switch {
		case newSize <= LayerSoftMax:
			current = append(current, p)
			size = newSize
		case size < LayerMinSize && newSize <= 2*LayerSoftMax:
			current = append(current, p)
			size = newSize
		default:
			layers = append(layers, current)
			current = []string{p}
			size = fileSize
		}
	}

	if len(current) > 0 {
		layers = append(layers, current)
	}
	return layers
}
