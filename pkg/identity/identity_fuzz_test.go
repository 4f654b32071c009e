//go:build go1.18

package identity

import (
	"testing"

	"github.com/google/uuid"
)

// FuzzValidate tests that validation never panics on arbitrary input and
// that acceptance implies a consistent category lookup.
func FuzzValidate(f *testing.F) {
	seedCodec := NewCodec("fuzz-salt")
	seed, _ := seedCodec.Derive(uuid.MustParse("550e8400-e29b-41d4-a716-446655440000"), CategoryIntern)

	f.Add(seed)
	f.Add("")
	f.Add("IN000000000000000000!")
	f.Add("EM0000000000000000000")
	f.Add("'; DROP TABLE personnel;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))
	f.Add(seed + "\x00suffix")

	f.Fuzz(func(t *testing.T, input string) {
		ok := Validate(input)

		// No panics (implicit - test would fail).

		// Acceptance implies fixed length and a resolvable category.
		if ok {
			if len(input) != IDLength {
				t.Errorf("accepted ID with length %d", len(input))
			}
			if _, found := CategoryOf(input); !found {
				t.Error("accepted ID without a resolvable category")
			}
		}

		// Rejection must agree with CategoryOf.
		if !ok {
			if _, found := CategoryOf(input); found {
				t.Error("CategoryOf resolved a rejected ID")
			}
		}
	})
}
