package subproc

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// MaxMessageSize is the maximum allowed worker message payload (1 MiB).
const MaxMessageSize = 1 << 20

// Request is the JSON payload sent from the server to a worker on stdin.
type Request struct {
	ID         string `json:"id"`
	DurationMS int64  `json:"duration_ms"`
}

// Response is the final result a worker reports.
type Response struct {
	DurationMS int64  `json:"duration_ms"`
	Iterations uint64 `json:"iterations"`
	Error      string `json:"error,omitempty"`
}

// Worker→server message types.
const (
	MsgTypeProgress = "progress"
	MsgTypeResult   = "result"
)

// Message is the envelope for all worker→server messages on stdout.
// During execution the worker sends Type="progress"; after the workload
// finishes it sends exactly one Type="result" and exits.
type Message struct {
	Type      string    `json:"type"`
	ElapsedMS int64     `json:"elapsed_ms,omitempty"`
	Response  *Response `json:"response,omitempty"`
}

// WriteMessage writes a length-prefixed JSON message to w.
// The frame format is: 4-byte big-endian length prefix followed by the JSON payload.
func WriteMessage(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	if len(data) > MaxMessageSize {
		return fmt.Errorf("message size %d exceeds maximum %d", len(data), MaxMessageSize)
	}

	frame := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(frame, uint32(len(data)))
	copy(frame[4:], data)

	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// ReadMessage reads a length-prefixed JSON message from r and decodes it into v.
// A clean end of stream before the length prefix is reported as io.EOF.
func ReadMessage(r io.Reader, v any) error {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if err == io.EOF {
			return io.EOF
		}
		return fmt.Errorf("read length prefix: %w", err)
	}

	length := binary.BigEndian.Uint32(prefix[:])
	if length > MaxMessageSize {
		return fmt.Errorf("message size %d exceeds maximum %d", length, MaxMessageSize)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return fmt.Errorf("read payload: %w", err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal message: %w", err)
	}
	return nil
}
