package protocol

import "bytes"

// Framer recovers discrete JSON envelopes from an unprefixed byte stream.
// Envelope boundaries are found by brace-depth counting over the buffered
// bytes, honoring quoted strings and escape characters so braces inside
// string values never corrupt the count. It handles both partial delivery
// (one envelope split across reads) and coalesced delivery (several
// envelopes in one read).
type Framer struct {
	buf []byte
}

// Feed appends p to the buffer and returns every complete envelope now
// available, in arrival order. An incomplete trailing envelope stays
// buffered until more bytes arrive. Bytes before the first opening brace
// are garbage and are discarded.
func (that *Framer) Feed(p []byte) [][]byte {
	that.buf = append(that.buf, p...)

	var frames [][]byte
	for {
		frame, ok := that.next()
		if !ok {
			break
		}
		frames = append(frames, frame)
	}

	return frames
}

// Pending reports how many bytes are buffered awaiting completion.
func (that *Framer) Pending() int {
	return len(that.buf)
}

func (that *Framer) next() ([]byte, bool) {
	start := bytes.IndexByte(that.buf, '{')
	if start < 0 {
		that.buf = nil
		return nil, false
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(that.buf); i++ {
		c := that.buf[i]

		if escaped {
			escaped = false
			continue
		}

		switch {
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
			// braces inside string values do not count
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				frame := make([]byte, i+1-start)
				copy(frame, that.buf[start:i+1])
				that.buf = that.buf[i+1:]
				return frame, true
			}
		}
	}

	// incomplete envelope: keep it, drop leading garbage
	if start > 0 {
		that.buf = that.buf[start:]
	}

	return nil, false
}
