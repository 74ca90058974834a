package protocol

import "errors"

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrShortResponse  = errors.New("response too short")
	ErrChecksum       = errors.New("response checksum mismatch")
	ErrTooManyValues  = errors.New("too many escapable response values")
)
