package at

import (
	"bufio"
	"bytes"
)

// MaxFrameLen bounds a single inbound command line.
const MaxFrameLen = 512

// Codec is the encode/decode boundary between raw frames and structured
// values.
type Codec interface {
	Decode(frame []byte) (Command, error)
	Encode(r Response) ([]byte, error)
}

// TextCodec is the plain AT text codec.
type TextCodec struct{}

func (TextCodec) Decode(frame []byte) (Command, error) {
	if len(frame) > MaxFrameLen {
		return Command{}, ErrFrameTooLarge
	}
	return ParseCommand(frame)
}

func (TextCodec) Encode(r Response) ([]byte, error) {
	return r.Encode()
}

// NewCommandSplitter returns a bufio.SplitFunc yielding one command per CR
// or LF terminated line. Empty lines are dropped. A line that grows past
// MaxFrameLen is returned once, oversized, so the decoder rejects it, and
// the rest of that line is discarded up to its terminator.
func NewCommandSplitter() bufio.SplitFunc {
	discarding := false
	return func(data []byte, atEOF bool) (advance int, token []byte, err error) {
		if discarding {
			i := bytes.IndexAny(data, "\r\n")
			if i < 0 {
				return len(data), nil, nil
			}
			discarding = false
			return i + 1, nil, nil
		}
		start := 0
		for start < len(data) && (data[start] == '\r' || data[start] == '\n') {
			start++
		}
		if start == len(data) {
			if atEOF {
				return len(data), nil, nil
			}
			return start, nil, nil
		}
		if i := bytes.IndexAny(data[start:], "\r\n"); i >= 0 {
			return start + i + 1, data[start : start+i], nil
		}
		if len(data)-start > MaxFrameLen {
			discarding = true
			return len(data), data[start:], nil
		}
		if atEOF {
			return len(data), data[start:], nil
		}
		return start, nil, nil
	}
}
