// Package ident implements the 16-byte identifiers used for repository
// entries, variants and revisions.
//
// Identifiers are computed once, when the entity is created, from content
// (names, tags, sizes) through a digest. Later changes to that content never
// alter an identifier. The first bytes of an identifier keep a readable
// prefix of the name it was derived from.
package ident

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// Size is the length of an identifier in bytes.
const Size = 16

// ID is a fixed 16-byte identifier. The zero value is the sentinel meaning
// "default / unspecified".
type ID [Size]byte

// Zero is the reserved sentinel identifier.
var Zero ID

// Set is a used-set of identifiers, scoped to one generation run.
type Set map[ID]struct{}

// Has reports whether id is already registered.
func (s Set) Has(id ID) bool {
	_, ok := s[id]
	return ok
}

// Add registers id.
func (s Set) Add(id ID) { s[id] = struct{}{} }

// IsZero reports whether id is the sentinel.
func (id ID) IsZero() bool { return id == Zero }

// Words returns the identifier as four big-endian signed 32-bit words.
func (id ID) Words() [4]int32 {
	var w [4]int32
	for i := range w {
		w[i] = int32(binary.BigEndian.Uint32(id[i*4:]))
	}
	return w
}

// FromWords builds an identifier from four big-endian words.
func FromWords(w [4]int32) ID {
	var id ID
	for i, v := range w {
		binary.BigEndian.PutUint32(id[i*4:], uint32(v))
	}
	return id
}

// FromBytes builds an identifier from b, right-padding with zero bytes or
// truncating to Size.
func FromBytes(b []byte) ID {
	var id ID
	copy(id[:], b)
	return id
}

// Hex returns the lowercase hex form of all 16 bytes.
func (id ID) Hex() string { return hex.EncodeToString(id[:]) }

func (id ID) String() string { return id.Hex() }

// ParseHex decodes a hex identifier. Shorter values are right-padded with
// zero bytes; values longer than Size bytes are rejected.
func ParseHex(s string) (ID, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Zero, fmt.Errorf("ident: parse %q: %w", s, err)
	}
	if len(b) > Size {
		return Zero, fmt.Errorf("ident: parse %q: %d bytes exceeds %d", s, len(b), Size)
	}
	return FromBytes(b), nil
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(text []byte) error {
	v, err := ParseHex(string(text))
	if err != nil {
		return err
	}
	*id = v
	return nil
}

// RepositoryKey returns the repository part of an entry identifier: its
// first 8 bytes, zero padded. Entry identifiers embed the first 8 bytes of
// the repository identifier they belong to.
func RepositoryKey(id ID) ID {
	var k ID
	copy(k[:8], id[:8])
	return k
}

// Compose builds an entry identifier from a repository identifier and an
// asset key: repo[:8] ++ asset[:8].
func Compose(repo ID, asset []byte) ID {
	var id ID
	copy(id[:8], repo[:8])
	n := min(len(asset), 8)
	copy(id[8:], asset[:n])
	return id
}

// Synthesize derives the identifier of a plain directory row from its path
// and an ordinal, since raw filesystem entries carry no content-stable
// identifier.
func Synthesize(path string, ordinal uint32) ID {
	p := []byte(path)
	if len(p) > 8 {
		p = p[:8]
	}
	b := make([]byte, 0, Size)
	b = append(b, p...)
	b = append(b, '|')
	b = binary.LittleEndian.AppendUint32(b, ordinal)
	return FromBytes(b)
}
