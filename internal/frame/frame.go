// Package frame converts between the fixed-capacity reads of the chat wire
// protocol and the text they carry.
package frame

import (
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/dcrodman/roomchat/internal/protocol"
)

// Size is the capacity of a single frame read. Responses longer than this
// will be split across reads on the receiving side.
const Size = 180

var (
	// ErrPeerClosed is returned when the connection can no longer be used,
	// either because the remote end went away or an I/O call failed.
	ErrPeerClosed = errors.New("peer closed")
	// ErrInvalidEncoding is returned when a frame was read but its payload
	// isn't UTF-8. The connection itself is still usable.
	ErrInvalidEncoding = errors.New("frame is not valid utf-8")
)

// Read performs one read of up to Size bytes from r and returns the number
// of bytes read along with the trimmed text.
func Read(r io.Reader) (int, string, error) {
	buf := make([]byte, Size)
	n, err := r.Read(buf)
	if n == 0 || err != nil {
		if err == nil {
			err = io.EOF
		}
		return n, "", fmt.Errorf("%w: %v", ErrPeerClosed, err)
	}

	payload := Trim(buf[:n])
	if !utf8.Valid(payload) {
		return n, "", ErrInvalidEncoding
	}
	return n, string(payload), nil
}

// Trim strips null padding from b and then a single trailing line feed
// (along with a carriage return preceding it).
func Trim(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for _, c := range b {
		if c != 0 {
			out = append(out, c)
		}
	}

	if l := len(out); l > 0 && out[l-1] == '\n' {
		out = out[:l-1]
		if l := len(out); l > 0 && out[l-1] == '\r' {
			out = out[:l-1]
		}
	}
	return out
}

// Write sends text to w as-is. No delimiter or length prefix is added, so one
// Write corresponds to one frame on the reading side. Writing an empty string
// sends nothing.
func Write(w io.Writer, text string) error {
	data := []byte(text)
	for sent := 0; sent < len(data); {
		n, err := w.Write(data[sent:])
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPeerClosed, err)
		}
		sent += n
	}
	return nil
}

// Decode classifies the result of Read as a protocol command. Connection
// failures become protocol.Error and undecodable payloads protocol.Invalid.
func Decode(text string, readErr error) (protocol.Command, []string) {
	switch {
	case readErr == nil:
		return protocol.Parse(text)
	case errors.Is(readErr, ErrInvalidEncoding):
		return protocol.Invalid, nil
	default:
		return protocol.Error, nil
	}
}
