package main

import "io"

// escapeFilter wraps stdin and turns a lone escape byte at the start of a
// line, followed by '.', into a local detach instead of forwarding it to
// the transport, mirroring the "~." escape convention of serial terminal
// clients like cu/minicom. atLineStart tracks whether the previous byte
// seen was a newline (or this is the very first byte), since the escape
// only takes effect there.
type escapeFilter struct {
	r           io.Reader
	escape      byte
	atLineStart bool
	armed       bool
}

func (f *escapeFilter) Read(p []byte) (int, error) {
	buf := make([]byte, len(p))
	n, err := f.r.Read(buf)
	if n == 0 {
		return 0, err
	}

	out := 0
	for i := 0; i < n && out < len(p); i++ {
		b := buf[i]

		if f.armed {
			f.armed = false
			if b == '.' {
				return out, io.EOF
			}
			if out < len(p) {
				p[out] = f.escape
				out++
			}
		}

		if b == f.escape && f.atLineStart {
			f.armed = true
			f.atLineStart = false
			continue
		}

		if out < len(p) {
			p[out] = b
			out++
		}
		f.atLineStart = b == '\r' || b == '\n'
	}
	return out, err
}
