// Package sse implements the incremental server-sent-event decoder of
// spec §4.3: a byte-stream to frame decoder that tolerates arbitrary chunk
// boundaries, including mid-rune and mid-control-sequence splits.
package sse

import (
	"strings"
	"unicode/utf8"
)

// Frame is a decoded SSE event, per spec §3: an optional event name, a
// joined data payload, and a terminal flag for dialect end markers.
type Frame struct {
	Event      string
	Data       string
	IsTerminal bool
}

// Decoder maintains the carry-over buffer across Feed calls. It is safe to
// reuse across the lifetime of a single connection, but MUST NOT be reused
// mid-stream across connections (spec §4.3: "restartable between
// connections but not mid-stream" means construct a new Decoder per
// connection).
type Decoder struct {
	buf []byte // carry-over bytes not yet resolved into a full line

	eventName  string
	dataLines  []string
	sawAnyLine bool
}

// New returns a fresh Decoder.
func New() *Decoder {
	return &Decoder{}
}

// Feed appends chunk to the carry-over buffer and returns every complete
// frame it can now resolve. Bytes that do not yet form a complete line, or
// that end mid-UTF-8-rune, are retained for the next Feed/Close call.
func (d *Decoder) Feed(chunk []byte) []Frame {
	d.buf = append(d.buf, chunk...)

	var frames []Frame
	for {
		// Find the next line terminator. Accept both "\n" and the CR
		// preceding it; CRLF is normalized by trimming a trailing \r.
		idx := indexByte(d.buf, '\n')
		if idx < 0 {
			// No full line yet. If the tail looks like an in-progress
			// UTF-8 rune, leave it; otherwise there is simply no newline
			// yet either way -- nothing to do until more bytes arrive.
			return frames
		}

		line := d.buf[:idx]
		rest := d.buf[idx+1:]

		// Do not split a line whose last byte(s) are an incomplete rune
		// followed immediately by \n -- \n is ASCII and can never be a
		// continuation byte, so a complete line up to \n always ends on
		// a rune boundary. The carry-over buffer after this line is what
		// needs the incomplete-rune guard, handled by leaving `rest` in
		// d.buf for the next pass (below) rather than scanning here.
		if len(line) > 0 && line[len(line)-1] == '\r' {
			line = line[:len(line)-1]
		}

		d.buf = rest

		if len(line) == 0 {
			// Blank line: frame terminator.
			if frame, ok := d.flush(); ok {
				frames = append(frames, frame)
			}
			continue
		}

		d.consumeLine(string(line))
	}
}

// consumeLine applies one SSE field line to the in-progress frame.
func (d *Decoder) consumeLine(line string) {
	d.sawAnyLine = true

	if strings.HasPrefix(line, ":") {
		return // comment
	}

	field, value := splitField(line)
	switch field {
	case "event":
		d.eventName = value
	case "data":
		d.dataLines = append(d.dataLines, value)
	default:
		// Unrecognized fields (id:, retry:, or anything else) are
		// ignored; spec §4.3 only names event/data/comment handling.
	}
}

// splitField splits "field: value" or "field:value" into its name and
// value, trimming at most one leading space from the value per the SSE
// spec and spec §4.3's "with or without a leading space" rule.
func splitField(line string) (string, string) {
	colon := strings.IndexByte(line, ':')
	if colon < 0 {
		return line, ""
	}
	field := line[:colon]
	value := line[colon+1:]
	value = strings.TrimPrefix(value, " ")
	return field, value
}

// flush emits the in-progress frame (if anything was accumulated) and
// resets decoder state for the next frame.
func (d *Decoder) flush() (Frame, bool) {
	if !d.sawAnyLine {
		return Frame{}, false
	}

	data := strings.Join(d.dataLines, "\n")
	frame := Frame{
		Event:      d.eventName,
		Data:       data,
		IsTerminal: data == "[DONE]",
	}

	d.eventName = ""
	d.dataLines = nil
	d.sawAnyLine = false

	return frame, true
}

// Close flushes any trailing in-progress frame even without a final blank
// line. Upstream connections that close immediately after their last data
// line (no terminating \n\n) still produce that frame.
func (d *Decoder) Close() []Frame {
	var frames []Frame
	if len(d.buf) > 0 {
		// Treat any remaining carry-over as a final, unterminated line.
		line := string(d.buf)
		d.buf = nil
		if line != "" {
			d.consumeLine(line)
		}
	}
	if frame, ok := d.flush(); ok {
		frames = append(frames, frame)
	}
	return frames
}

// indexByte finds the first occurrence of b in buf that is not part of an
// incomplete trailing UTF-8 rune. Since '\n' is a single-byte ASCII
// character, it can never appear as a continuation byte of a multi-byte
// rune, so a plain byte search is always correct for finding line breaks;
// the incomplete-rune case only matters for bytes held *after* the last
// '\n', which Feed leaves untouched in the carry-over buffer until a
// terminator arrives.
func indexByte(buf []byte, b byte) int {
	for i, c := range buf {
		if c == b {
			return i
		}
	}
	return -1
}

// validUTF8Prefix reports whether buf ends on a complete rune boundary,
// used defensively by callers that want to peek at pending data before a
// line terminator has arrived (Feed itself never needs this, since it only
// acts on complete lines).
func validUTF8Prefix(buf []byte) bool {
	if len(buf) == 0 {
		return true
	}
	return utf8.Valid(buf)
}
