// Package identity derives and validates the opaque display identifiers
// assigned to personnel records.
//
// An opaque ID is 21 characters: a two-letter category prefix, an
// 18-character base-62 payload derived one-way from the record's surrogate
// key, and one trailing check character. The payload is a truncated SHA-256
// digest, so the ID encodes nothing recoverable about the subject beyond the
// category prefix, and deriving it twice from the same inputs always yields
// the same string. The check character is a Luhn mod-62 digit over the
// preceding 20 symbols, catching single-character substitutions and adjacent
// transpositions without a storage lookup.
//
// Validate proves well-formedness only. It does not prove the ID was ever
// issued; callers must confirm existence in storage.
package identity

import (
	"crypto/sha256"
	"math/big"
	"strings"

	"github.com/google/uuid"

	dErrors "prismid/pkg/domain-errors"
)

// Category tags carried in the ID prefix. Conversion from intern to employee
// re-derives the ID under the new tag; the surrogate key never changes.
type Category string

const (
	CategoryIntern   Category = "INTERN"
	CategoryEmployee Category = "EMPLOYEE"
)

const (
	alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	radix    = len(alphabet)

	prefixLen  = 2
	payloadLen = 18
	// IDLength is the fixed total length: prefix + payload + check character.
	IDLength = prefixLen + payloadLen + 1

	// digestBytes of the SHA-256 digest feed the payload. 13 bytes is 104
	// bits, which always fits 18 base-62 symbols (62^18 > 2^107).
	digestBytes = 13
)

var categoryPrefix = map[Category]string{
	CategoryIntern:   "IN",
	CategoryEmployee: "EM",
}

var symbolValue = func() map[byte]int {
	m := make(map[byte]int, radix)
	for i := 0; i < radix; i++ {
		m[alphabet[i]] = i
	}
	return m
}()

// Codec derives opaque IDs under a fixed application salt. The salt must be
// stable for the lifetime of a deployment: re-derivation after a category
// conversion has to reproduce the same payload positions for the same key.
type Codec struct {
	salt string
}

func NewCodec(salt string) *Codec {
	return &Codec{salt: salt}
}

// Derive computes the opaque display ID for a record. It fails only when the
// category tag is unrecognized.
func (c *Codec) Derive(internalKey uuid.UUID, category Category) (string, error) {
	prefix, ok := categoryPrefix[category]
	if !ok {
		return "", dErrors.Newf(dErrors.CodeValidation, "unknown category tag %q", category)
	}

	digest := sha256.Sum256([]byte(string(category) + "|" + internalKey.String() + "|" + c.salt))

	var b strings.Builder
	b.Grow(IDLength)
	b.WriteString(prefix)
	b.WriteString(encodePayload(digest[:digestBytes]))

	body := b.String()
	b.WriteByte(alphabet[checkValue(body)])
	return b.String(), nil
}

// Validate reports whether id is a well-formed opaque ID: exact length, known
// category prefix, alphabet-only symbols, and a correct check character.
// It never panics and never returns an error; malformed input is simply false.
func Validate(id string) bool {
	if len(id) != IDLength {
		return false
	}
	known := false
	for _, p := range categoryPrefix {
		if strings.HasPrefix(id, p) {
			known = true
			break
		}
	}
	if !known {
		return false
	}
	for i := 0; i < len(id); i++ {
		if _, ok := symbolValue[id[i]]; !ok {
			return false
		}
	}
	return checkValue(id[:IDLength-1]) == symbolValue[id[IDLength-1]]
}

// CategoryOf returns the category encoded in the prefix of a valid opaque ID.
func CategoryOf(id string) (Category, bool) {
	if !Validate(id) {
		return "", false
	}
	for cat, p := range categoryPrefix {
		if strings.HasPrefix(id, p) {
			return cat, true
		}
	}
	return "", false
}

// encodePayload converts the digest prefix to exactly payloadLen base-62
// symbols, left-padded with the zero symbol.
func encodePayload(digest []byte) string {
	n := new(big.Int).SetBytes(digest)
	base := big.NewInt(int64(radix))
	mod := new(big.Int)

	buf := make([]byte, payloadLen)
	for i := payloadLen - 1; i >= 0; i-- {
		n.DivMod(n, base, mod)
		buf[i] = alphabet[mod.Int64()]
	}
	return string(buf)
}

// checkValue computes the Luhn mod-N check value over the symbol positions of
// body, with N = 62. The returned value is the alphabet index of the check
// character that makes the full string sum to zero.
func checkValue(body string) int {
	factor := 2
	sum := 0
	for i := len(body) - 1; i >= 0; i-- {
		addend := factor * symbolValue[body[i]]
		addend = addend/radix + addend%radix
		sum += addend
		if factor == 2 {
			factor = 1
		} else {
			factor = 2
		}
	}
	return (radix - sum%radix) % radix
}
