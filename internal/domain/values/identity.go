package values

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// IdentityLength is the size of an address in bytes
const IdentityLength = 20

// Identity is an opaque fixed-format account address. The zero value is the
// null identity.
type Identity [IdentityLength]byte

// NullIdentity is the unset address
var NullIdentity Identity

// ParseIdentity parses a 0x-prefixed, 40 hex character address. Case is ignored.
func ParseIdentity(s string) (Identity, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return Identity{}, fmt.Errorf("address %q must start with 0x", s)
	}
	raw := s[2:]
	if len(raw) != IdentityLength*2 {
		return Identity{}, fmt.Errorf("address %q must have %d hex characters", s, IdentityLength*2)
	}

	var id Identity
	if _, err := hex.Decode(id[:], []byte(raw)); err != nil {
		return Identity{}, fmt.Errorf("address %q is not hex: %w", s, err)
	}
	return id, nil
}

// MustParseIdentity panics on malformed input (for constants/tests)
func MustParseIdentity(s string) Identity {
	id, err := ParseIdentity(s)
	if err != nil {
		panic(err)
	}
	return id
}

// IsZero reports whether this is the null identity
func (i Identity) IsZero() bool {
	return i == NullIdentity
}

// String returns the lower-case 0x form
func (i Identity) String() string {
	return "0x" + hex.EncodeToString(i[:])
}

// MarshalText implements encoding.TextMarshaler
func (i Identity) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (i *Identity) UnmarshalText(text []byte) error {
	id, err := ParseIdentity(string(text))
	if err != nil {
		return err
	}
	*i = id
	return nil
}
