package wire

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// MaxFrameSize bounds the length prefix a peer may declare. Anything larger
// is treated as a hostile or corrupt frame and the connection is torn down.
const MaxFrameSize = 1 << 20 // 1 MiB

// headerSize is the width of the big-endian length prefix.
const headerSize = 4

// FramingError reports a frame that could not be read or decoded. The
// connection it occurred on is unusable afterwards.
type FramingError struct {
	Op  string // "read header", "read payload", "decode", "oversize"
	Err error
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("framing: %s: %v", e.Op, e.Err)
}

func (e *FramingError) Unwrap() error { return e.Err }

// WriteMessage encodes msg as JSON and writes the length prefix plus payload
// in a single Write call, so a frame is never interleaved with another
// writer's bytes as long as callers serialize writes per connection.
func WriteMessage(w io.Writer, msg *Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("encode frame: payload %d exceeds max %d", len(payload), MaxFrameSize)
	}

	buf := make([]byte, headerSize+len(payload))
	binary.BigEndian.PutUint32(buf[:headerSize], uint32(len(payload)))
	copy(buf[headerSize:], payload)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// ReadMessage blocks until one full frame has been consumed and returns the
// decoded message. Every failure mode — connection closed mid-frame, a
// length prefix beyond MaxFrameSize, or a payload that is not valid JSON —
// is reported as a *FramingError.
func ReadMessage(r io.Reader) (*Message, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, &FramingError{Op: "read header", Err: err}
	}

	length := binary.BigEndian.Uint32(header[:])
	if length > MaxFrameSize {
		return nil, &FramingError{Op: "oversize", Err: fmt.Errorf("declared length %d exceeds max %d", length, MaxFrameSize)}
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, &FramingError{Op: "read payload", Err: err}
	}

	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, &FramingError{Op: "decode", Err: err}
	}
	return &msg, nil
}
