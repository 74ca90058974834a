package protocol

import (
	"fmt"
)

// HostAddress is a four character hexadecimal address as carried on the wire.
type HostAddress [4]byte

// Identity is the two byte nibble-packed form of a hex address.
type Identity [2]byte

// Default addresses used when the configuration block is erased.
var (
	DefaultHostAddress    = HostAddress{'1', '2', '3', '4'}
	DefaultPollingAddress = HostAddress{'4', '3', '2', '1'}
	AnnounceAddress       = HostAddress{'0', '0', '0', '0'}
)

// ParseHostAddress accepts exactly four characters.
func ParseHostAddress(s string) (HostAddress, error) {
	var a HostAddress
	if len(s) != len(a) {
		return a, fmt.Errorf("host address %q: want 4 characters", s)
	}
	copy(a[:], s)
	return a, nil
}

func (a HostAddress) String() string {
	return string(a[:])
}

// IsErased reports whether the address was read back from an erased block.
func (a HostAddress) IsErased() bool {
	return a[0] == EmptySlot
}

// DeriveIdentity packs four hex characters into two bytes, high nibble
// first. Characters outside 0-9, A-F and a-f count as zero.
func DeriveIdentity(hex [4]byte) Identity {
	return Identity{
		nibble(hex[0])<<4 | nibble(hex[1]),
		nibble(hex[2])<<4 | nibble(hex[3]),
	}
}

func nibble(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return 0
	}
}

func (id Identity) String() string {
	return fmt.Sprintf("%02X%02X", id[0], id[1])
}
