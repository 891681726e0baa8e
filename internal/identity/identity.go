package identity

import (
	"encoding/base32"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"strings"
)

// Identity is a caller principal in canonical text form.
// The text is the lowercase base32 encoding of crc32(bytes) ++ bytes,
// split into groups of five characters joined by "-".
type Identity string

const (
	// Anonymous is the principal of an unauthenticated caller.
	// It is never an authorized owner or recipient.
	Anonymous Identity = "2vxsx-fae"

	// Placeholder is the owner reported on redacted and not-found capsules.
	Placeholder Identity = "aaaaa-aa"

	// MaxBytes is the maximum raw length of a principal.
	MaxBytes = 29

	groupLen = 5
)

var (
	ErrEmpty     = errors.New("principal is empty")
	ErrMalformed = errors.New("principal is malformed")
	ErrChecksum  = errors.New("principal checksum mismatch")
	ErrTooLong   = errors.New("principal exceeds 29 bytes")
)

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// FromBytes builds the canonical text form of a raw principal.
func FromBytes(raw []byte) Identity {
	buf := make([]byte, 4+len(raw))
	binary.BigEndian.PutUint32(buf, crc32.ChecksumIEEE(raw))
	copy(buf[4:], raw)
	text := strings.ToLower(encoding.EncodeToString(buf))

	var b strings.Builder
	for i := 0; i < len(text); i += groupLen {
		if i > 0 {
			b.WriteByte('-')
		}
		b.WriteString(text[i:min(i+groupLen, len(text))])
	}
	return Identity(b.String())
}

// Parse validates a principal in text form and returns it.
// Only the canonical form (lowercase, correctly grouped) is accepted.
func Parse(text string) (Identity, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmpty
	}

	groups := strings.Split(text, "-")
	for i, g := range groups {
		if g == "" || len(g) > groupLen {
			return "", ErrMalformed
		}
		if i < len(groups)-1 && len(g) != groupLen {
			return "", ErrMalformed
		}
	}

	data, err := encoding.DecodeString(strings.ToUpper(strings.Join(groups, "")))
	if err != nil || len(data) < 4 {
		return "", ErrMalformed
	}
	raw := data[4:]
	if len(raw) > MaxBytes {
		return "", ErrTooLong
	}
	if binary.BigEndian.Uint32(data[:4]) != crc32.ChecksumIEEE(raw) {
		return "", ErrChecksum
	}

	id := FromBytes(raw)
	if string(id) != text {
		return "", ErrMalformed
	}
	return id, nil
}

// MustParse is like Parse but panics on error. Intended for constants and tests.
func MustParse(text string) Identity {
	id, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return id
}

// ParseAll parses a list of principals, returning the first error encountered.
func ParseAll(texts []string) ([]Identity, error) {
	ids := make([]Identity, 0, len(texts))
	for _, t := range texts {
		id, err := Parse(t)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Bytes returns the raw principal bytes, or nil if the text is not a valid principal.
func (id Identity) Bytes() []byte {
	data, err := encoding.DecodeString(strings.ToUpper(strings.ReplaceAll(string(id), "-", "")))
	if err != nil || len(data) < 4 {
		return nil
	}
	return data[4:]
}

// String returns the canonical text form.
func (id Identity) String() string {
	return string(id)
}

// IsAnonymous reports whether id is the anonymous principal or absent.
func (id Identity) IsAnonymous() bool {
	return id == "" || id == Anonymous
}
