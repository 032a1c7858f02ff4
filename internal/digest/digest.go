// Package digest computes the content digests Axiograph anchors certificates
// and snapshot ids to. Every digest is FNV-1a-64 over canonical bytes, so two
// machines that agree on the canonical byte form of a document agree on its
// digest without any further negotiation.
package digest

import (
	"encoding/hex"
	"hash/fnv"
	"sort"
)

// Prefix is prepended to every digest's hex encoding so callers (and JSON
// payloads) can tell a digest from an opaque id at a glance.
const Prefix = "fnv1a64:"

// Of returns the canonical digest string for data, e.g. "fnv1a64:9e3...".
func Of(data []byte) string {
	h := fnv.New64a()
	_, _ = h.Write(data) // hash.Hash64 never errors
	return Prefix + hex.EncodeToString(h.Sum(nil))
}

// OfString is a convenience wrapper around Of for text input.
func OfString(s string) string {
	return Of([]byte(s))
}

// Pair is a single (field, value) fragment contributing to a fact node's
// name digest (§3 "Fact nodes"). Fields are interned names, values their
// string form; both are hashed as UTF-8 text.
type Pair struct {
	Field string
	Value string
}

// OfFact computes the deterministic digest of a fact node: the schema name,
// the relation name, and the ordered (field, value) pairs sorted by field so
// that field declaration order in the source module never affects the
// resulting id.
func OfFact(schema, relation string, pairs []Pair) string {
	sorted := make([]Pair, len(pairs))
	copy(sorted, pairs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Field < sorted[j].Field })

	h := fnv.New64a()
	write := func(s string) {
		_, _ = h.Write([]byte(s))
		_, _ = h.Write([]byte{0}) // NUL-separate fields so "ab","c" != "a","bc"
	}
	write(schema)
	write(relation)
	for _, p := range sorted {
		write(p.Field)
		write(p.Value)
	}
	return Prefix + hex.EncodeToString(h.Sum(nil))
}
