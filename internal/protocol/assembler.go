package protocol

// FeedResult tells the caller what a byte did to the assembly state.
type FeedResult uint8

const (
	// Dropped means the byte was a reserved framing byte.
	Dropped FeedResult = iota
	// Started means the byte opened a new frame; the idle-gap timer
	// should be armed.
	Started
	// Accepted means the byte was stored and the frame is still short.
	Accepted
	// FrameReady means an 8-byte frame completed; read it with Frame.
	FrameReady
	// IdentityReady means a 4-byte identity reply completed; read it with
	// IdentityBytes.
	IdentityReady
)

func (r FeedResult) String() string {
	switch r {
	case Dropped:
		return "dropped"
	case Started:
		return "started"
	case Accepted:
		return "accepted"
	case FrameReady:
		return "frame_ready"
	case IdentityReady:
		return "identity_ready"
	default:
		return "unknown"
	}
}

// Assembler turns a byte stream into frames. It is not safe for
// concurrent use; the node loop owns it.
type Assembler struct {
	buf      Frame
	n        int
	identity bool

	frame Frame
	ident [IdentitySize]byte
}

// AwaitIdentity switches the assembler to collect the next 4-byte
// identity reply instead of a command frame.
func (a *Assembler) AwaitIdentity() {
	a.identity = true
	a.n = 0
}

// CancelIdentity returns to command framing.
func (a *Assembler) CancelIdentity() {
	a.identity = false
	a.n = 0
}

// AwaitingIdentity reports whether an identity reply is expected.
func (a *Assembler) AwaitingIdentity() bool {
	return a.identity
}

// Feed consumes one byte.
func (a *Assembler) Feed(b byte) FeedResult {
	if Discarded(b) {
		return Dropped
	}
	a.buf[a.n] = b
	a.n++

	if a.identity && a.n == IdentitySize {
		copy(a.ident[:], a.buf[:IdentitySize])
		a.n = 0
		a.identity = false
		return IdentityReady
	}
	if a.n == FrameSize {
		a.frame = a.buf
		a.n = 0
		return FrameReady
	}
	if a.n == 1 {
		return Started
	}
	return Accepted
}

// Frame returns the most recently completed frame.
func (a *Assembler) Frame() Frame {
	return a.frame
}

// IdentityBytes returns the most recently completed identity reply.
func (a *Assembler) IdentityBytes() [IdentitySize]byte {
	return a.ident
}

// Pending returns the number of bytes held for the frame in progress.
func (a *Assembler) Pending() int {
	return a.n
}

// Expire discards a partial frame after the idle gap and returns how many
// bytes were dropped.
func (a *Assembler) Expire() int {
	n := a.n
	a.n = 0
	return n
}
