package protocol

import (
	"bytes"
	"fmt"
)

// Escape codes substituted for line terminators inside a response.
const (
	EscNewline byte = 254
	EscReturn  byte = 255
)

// maskBase is always set so the mask byte itself is never zero.
const maskBase byte = 0x01

// escapeSlots is the number of mask bits available above maskBase.
const escapeSlots = 7

var marker = []byte{'D', ' '}

var lineEnd = []byte{'\n', '\r'}

// Response is an outgoing reply. Values are sentinel-escaped; Raw bytes
// follow them unescaped. Both count towards the checksum.
type Response struct {
	Address  HostAddress
	Identity Identity
	Values   []byte
	Raw      []byte
}

// Checksum is the 16-bit sum of the identity and payload bytes.
func (r Response) Checksum() uint16 {
	sum := uint16(r.Identity[0]) + uint16(r.Identity[1])
	for _, v := range r.Values {
		sum += uint16(v)
	}
	for _, v := range r.Raw {
		sum += uint16(v)
	}
	return sum
}

// Encode serializes the response. Mask bits are assigned from 0x80 down
// in order: identity bytes, escapable values, checksum low, checksum high.
func (r Response) Encode() ([]byte, error) {
	if 2+len(r.Values)+2 > escapeSlots {
		return nil, fmt.Errorf("%d values: %w", len(r.Values), ErrTooManyValues)
	}

	out := make([]byte, 0, 16+len(r.Values)+len(r.Raw))
	out = append(out, marker...)
	out = append(out, r.Address[:]...)
	out = append(out, ' ')

	mask := maskBase
	bit := byte(0x80)
	put := func(b byte) {
		switch b {
		case '\n':
			b = EscNewline
			mask |= bit
		case '\r':
			b = EscReturn
			mask |= bit
		}
		out = append(out, b)
		bit >>= 1
	}

	put(r.Identity[0])
	put(r.Identity[1])
	for _, v := range r.Values {
		put(v)
	}
	// Raw bytes are sent as they are, even line terminators.
	out = append(out, r.Raw...)
	sum := r.Checksum()
	put(byte(sum))
	put(byte(sum >> 8))
	out = append(out, mask)
	out = append(out, lineEnd...)
	return out, nil
}

// DecodeResponse parses one response line, with or without its line end.
// escapable is the number of leading payload bytes that were subject to
// sentinel substitution.
func DecodeResponse(line []byte, escapable int) (Response, error) {
	var r Response
	line = bytes.TrimSuffix(line, lineEnd)
	const fixed = 2 + 4 + 1 + 2 + 2 + 1
	if len(line) < fixed || !bytes.HasPrefix(line, marker) {
		return r, fmt.Errorf("%d bytes: %w", len(line), ErrShortResponse)
	}
	copy(r.Address[:], line[2:6])

	mask := line[len(line)-1]
	body := line[7 : len(line)-1]
	payload := body[2 : len(body)-2]
	if escapable > len(payload) {
		escapable = len(payload)
	}

	bit := byte(0x80)
	take := func(b byte) byte {
		if mask&bit != 0 {
			switch b {
			case EscNewline:
				b = '\n'
			case EscReturn:
				b = '\r'
			}
		}
		bit >>= 1
		return b
	}

	r.Identity[0] = take(body[0])
	r.Identity[1] = take(body[1])
	r.Values = make([]byte, escapable)
	for i := range r.Values {
		r.Values[i] = take(payload[i])
	}
	if rest := payload[escapable:]; len(rest) > 0 {
		r.Raw = append([]byte(nil), rest...)
	}
	lo := take(body[len(body)-2])
	hi := take(body[len(body)-1])

	if got, want := uint16(hi)<<8|uint16(lo), r.Checksum(); got != want {
		return r, fmt.Errorf("got %#04x, computed %#04x: %w", got, want, ErrChecksum)
	}
	return r, nil
}

// Announcement is the unsolicited level line sent to the lighting group
// when occupancy switches the load.
func Announcement(on bool, group byte) []byte {
	level := "00"
	if on {
		level = "99"
	}
	out := make([]byte, 0, 18)
	out = append(out, marker...)
	out = append(out, AnnounceAddress[:]...)
	out = append(out, " ADSPL"...)
	out = append(out, level...)
	out = append(out, group)
	out = append(out, lineEnd...)
	return out
}
