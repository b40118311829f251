package ident

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"errors"
	"hash"
	"strconv"
)

// DefaultMaxAttempts bounds the counter fallback of Generate.
const DefaultMaxAttempts = 100000

// nonZero replaces zero bytes so an identifier can never be mistaken for the
// sentinel and stays safe in contexts that treat zero as a terminator.
const nonZero = 0x01

const separator = '|'

// ErrNotFound is returned when every candidate and every fallback counter
// collided. Callers skip the entity instead of failing the listing.
var ErrNotFound = errors.New("ident: no free identifier")

// Generator derives identifiers from content seeds.
type Generator struct {
	// NewHash returns the digest used for derivation. Defaults to MD5.
	NewHash func() hash.Hash
	// MaxAttempts bounds the counter fallback. Defaults to DefaultMaxAttempts.
	MaxAttempts int
}

// Default is the generator used by the package-level helpers.
var Default = &Generator{}

func (g *Generator) newHash() hash.Hash {
	if g.NewHash != nil {
		return g.NewHash()
	}
	return md5.New()
}

func (g *Generator) maxAttempts() int {
	if g.MaxAttempts > 0 {
		return g.MaxAttempts
	}
	return DefaultMaxAttempts
}

// Generate seeds the digest with seed and tries each candidate in order; the
// digest is cumulative, so every candidate also depends on the ones before
// it. The identifier is (root ++ digest) truncated to 16 bytes with zero
// bytes replaced. The first identifier absent from used is registered and
// returned. When all candidates collide, 4-byte little-endian counters are
// fed until a free identifier turns up or the bound is reached.
func (g *Generator) Generate(used Set, root, seed []byte, candidates ...string) (ID, error) {
	h := g.newHash()
	h.Write(seed)

	for _, c := range candidates {
		if id, ok := try(used, root, h, []byte(c)); ok {
			return id, nil
		}
	}

	var counter [4]byte
	for i := range g.maxAttempts() {
		binary.LittleEndian.PutUint32(counter[:], uint32(i))
		if id, ok := try(used, root, h, counter[:]); ok {
			return id, nil
		}
	}
	return Zero, ErrNotFound
}

func try(used Set, root []byte, h hash.Hash, arg []byte) (ID, bool) {
	h.Write(arg)
	raw := append(bytes.Clone(root), h.Sum(nil)...)
	id := FromBytes(raw)
	for i := range id {
		if id[i] == 0 {
			id[i] = nonZero
		}
	}
	if used.Has(id) {
		return Zero, false
	}
	used.Add(id)
	return id, true
}

func nameRoot(name string) []byte {
	b := []byte(name)
	if len(b) > 8 {
		b = b[:8]
	}
	return append(bytes.Clone(b), separator)
}

// Asset derives an asset identifier. The root keeps the first 8 bytes of the
// name, the digest is seeded with the repository storage path and fed the
// name then each tag.
func (g *Generator) Asset(used Set, storagePath, name string, tags []string) (ID, error) {
	candidates := append([]string{name}, tags...)
	return g.Generate(used, nameRoot(name), []byte(storagePath), candidates...)
}

// Variant derives a variant identifier from its name and owning asset.
func (g *Generator) Variant(used Set, asset ID, name string) (ID, error) {
	return g.Generate(used, nameRoot(name), asset[:], name)
}

// Revision derives a revision identifier from its number, size and
// timestamp, seeded with the owning variant.
func (g *Generator) Revision(used Set, variant ID, number int, size int64, timestamp float64) (ID, error) {
	num := strconv.Itoa(number)
	root := append([]byte(num), separator)
	return g.Generate(used, root, variant[:],
		num,
		strconv.FormatInt(size, 10),
		strconv.FormatFloat(timestamp, 'f', -1, 64),
	)
}
