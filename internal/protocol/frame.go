package protocol

import (
	"errors"
	"fmt"
	"strings"
)

// Wire framing constants.
const (
	FrameSize    = 8
	BodySize     = 7
	IdentitySize = 4

	// Broadcast is the destination byte every node accepts.
	Broadcast byte = 254
	// EmptySlot marks an unused group slot and an erased flash byte.
	EmptySlot byte = 0xFF
	// DeviceType is the payload of every address response.
	DeviceType byte = 8
	// Ack is the payload of acknowledge-only responses.
	Ack byte = 's'
)

var (
	ErrBodyLength   = errors.New("command body must be 7 bytes")
	ErrReservedByte = errors.New("byte is reserved for framing")
)

// Frame is one assembled command: seven body bytes followed by the
// destination address byte.
type Frame [FrameSize]byte

// NewFrame builds a frame from a command body such as "ADSPL50".
func NewFrame(body string, addr byte) (Frame, error) {
	var f Frame
	if len(body) != BodySize {
		return f, fmt.Errorf("%q: %w", body, ErrBodyLength)
	}
	for i := 0; i < BodySize; i++ {
		if Discarded(body[i]) {
			return f, fmt.Errorf("body offset %d: %w", i, ErrReservedByte)
		}
		f[i] = body[i]
	}
	if Discarded(addr) {
		return f, fmt.Errorf("address %d: %w", addr, ErrReservedByte)
	}
	f[BodySize] = addr
	return f, nil
}

// Body returns the seven command bytes as a string.
func (f Frame) Body() string {
	return string(f[:BodySize])
}

// Dest returns the destination address byte.
func (f Frame) Dest() byte {
	return f[BodySize]
}

func (f Frame) String() string {
	var sb strings.Builder
	for _, c := range f[:BodySize] {
		if c >= 0x20 && c < 0x7F {
			sb.WriteByte(c)
		} else {
			fmt.Fprintf(&sb, "\\x%02x", c)
		}
	}
	fmt.Fprintf(&sb, "@%d", f.Dest())
	return sb.String()
}

// Discarded reports whether the assembler drops b on arrival.
func Discarded(b byte) bool {
	return b == 0 || b == '\n' || b == '\r' || b == 0xFF
}
