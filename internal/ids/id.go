// Package ids implements CALIBER's time-ordered entity identifiers (spec C1).
//
// Every entity kind gets a distinct Go type wrapping the same 128-bit
// layout, so mixing identifier kinds at a call site is a compile error
// rather than a runtime surprise. The layout is a v7-style UUID: a 48-bit
// big-endian millisecond timestamp prefix (so byte-wise comparison sorts
// by creation time) followed by version/variant bits and a random suffix.
package ids

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ID is the untyped 128-bit value backing every entity identifier.
type ID [16]byte

// Nil is the zero value, used to represent "unset" optional references.
var Nil ID

// New generates a new time-ordered ID using the current wall clock.
// google/uuid's NewV7 already produces the 48-bit-millisecond-prefix
// layout this package relies on for byte-wise creation ordering; newAt
// remains as the deterministic-timestamp path for tests and the fallback
// when the entropy source fails.
func New() ID {
	if u, err := uuid.NewV7(); err == nil {
		return ID(u)
	}
	return newAt(time.Now())
}

func newAt(t time.Time) ID {
	var id ID

	ms := uint64(t.UnixMilli())
	// 48-bit big-endian millisecond timestamp prefix.
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], ms)
	copy(id[0:6], buf[2:8])

	var rnd [10]byte
	if _, err := rand.Read(rnd[:]); err != nil {
		// crypto/rand.Read on a real OS does not fail in practice; a
		// zero-filled suffix degrades ordering uniqueness, not correctness.
		rnd = [10]byte{}
	}
	copy(id[6:16], rnd[:])

	// Version 7 in the high nibble of byte 6, variant bits in byte 8.
	id[6] = (id[6] & 0x0f) | 0x70
	id[8] = (id[8] & 0x3f) | 0x80

	return id
}

// Time extracts the millisecond timestamp encoded in the ID's prefix.
func (id ID) Time() time.Time {
	var buf [8]byte
	copy(buf[2:8], id[0:6])
	ms := binary.BigEndian.Uint64(buf[:])
	return time.UnixMilli(int64(ms))
}

// IsNil reports whether the ID is the zero value.
func (id ID) IsNil() bool {
	return id == Nil
}

// Compare returns -1, 0, or 1 comparing two IDs byte-wise (creation order
// for IDs minted via New/newAt).
func (id ID) Compare(other ID) int {
	for i := range id {
		if id[i] != other[i] {
			if id[i] < other[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// String renders the canonical 8-4-4-4-12 hyphenated hex form.
func (id ID) String() string {
	var b strings.Builder
	b.Grow(36)
	hexEnc := hex.EncodeToString(id[:])
	b.WriteString(hexEnc[0:8])
	b.WriteByte('-')
	b.WriteString(hexEnc[8:12])
	b.WriteByte('-')
	b.WriteString(hexEnc[12:16])
	b.WriteByte('-')
	b.WriteString(hexEnc[16:20])
	b.WriteByte('-')
	b.WriteString(hexEnc[20:32])
	return b.String()
}

// ErrMalformed is returned by Parse when the input, with every hyphen
// removed, is not exactly 32 hex digits.
var ErrMalformed = errors.New("ids: malformed identifier")

// Parse decodes the canonical hyphenated form back into an ID. This is the
// ingress boundary where an ill-typed string becomes a validation error
// (spec §4.1) rather than propagating further into the system.
func Parse(s string) (ID, error) {
	stripped := strings.ReplaceAll(s, "-", "")
	if len(stripped) != 32 {
		return Nil, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	raw, err := hex.DecodeString(stripped)
	if err != nil {
		return Nil, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	var id ID
	copy(id[:], raw)
	return id, nil
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
