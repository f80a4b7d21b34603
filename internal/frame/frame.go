package frame

import (
	"encoding/binary"
	"errors"
	"io"
)

const (
	// PrefixLen is the size of the little-endian length prefix.
	PrefixLen = 4
	// MaxFrameBytes bounds a single payload (10 MiB).
	MaxFrameBytes = 10 * 1024 * 1024
)

// ValidateLength checks a declared payload length against the frame bounds.
// Lengths are signed so a prefix read as int32 by a foreign peer is still
// rejected when negative.
func ValidateLength(n int64) error {
	if n <= 0 || n > MaxFrameBytes {
		return &FramingError{Length: n}
	}
	return nil
}

// Encode serializes v and prepends the length prefix.
func Encode[T any](codec Codec[T], v T) ([]byte, error) {
	payload, err := codec.Marshal(v)
	if err != nil {
		return nil, &EncodingError{Err: err}
	}
	if err := ValidateLength(int64(len(payload))); err != nil {
		return nil, &EncodingError{Err: err}
	}
	buf := make([]byte, PrefixLen+len(payload))
	binary.LittleEndian.PutUint32(buf[:PrefixLen], uint32(len(payload)))
	copy(buf[PrefixLen:], payload)
	return buf, nil
}

// Decode is the inverse of Encode. The buffer must hold exactly one frame.
func Decode[T any](codec Codec[T], b []byte) (T, error) {
	var zero T
	if len(b) < PrefixLen {
		return zero, &FramingError{Length: int64(len(b)) - PrefixLen}
	}
	n, err := ParsePrefix(b[:PrefixLen])
	if err != nil {
		return zero, err
	}
	if len(b)-PrefixLen != n {
		return zero, &FramingError{Length: int64(n)}
	}
	return Unmarshal(codec, b[PrefixLen:])
}

// Unmarshal decodes a payload that has already been unframed.
func Unmarshal[T any](codec Codec[T], payload []byte) (T, error) {
	v, err := codec.Unmarshal(payload)
	if err != nil {
		var zero T
		return zero, &DecodingError{Size: len(payload), Err: err}
	}
	return v, nil
}

// ReadPrefix reads and validates one length prefix. A peer that closed the
// stream before sending any byte yields io.EOF; a partial prefix yields
// io.ErrUnexpectedEOF.
func ReadPrefix(r io.Reader) (int, error) {
	var prefix [PrefixLen]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return 0, err
	}
	return ParsePrefix(prefix[:])
}

// ParsePrefix validates a raw 4-byte prefix and returns the payload length.
func ParsePrefix(prefix []byte) (int, error) {
	if len(prefix) != PrefixLen {
		return 0, &FramingError{Length: int64(len(prefix)) - PrefixLen}
	}
	n := int64(int32(binary.LittleEndian.Uint32(prefix)))
	if err := ValidateLength(n); err != nil {
		return 0, err
	}
	return int(n), nil
}

// ReadFrame reads one complete payload from r.
func ReadFrame(r io.Reader) ([]byte, error) {
	n, err := ReadPrefix(r)
	if err != nil {
		return nil, err
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return payload, nil
}

// WriteFrame writes payload with its prefix in a single Write call.
func WriteFrame(w io.Writer, payload []byte) error {
	if err := ValidateLength(int64(len(payload))); err != nil {
		return err
	}
	buf := make([]byte, PrefixLen+len(payload))
	binary.LittleEndian.PutUint32(buf[:PrefixLen], uint32(len(payload)))
	copy(buf[PrefixLen:], payload)
	_, err := w.Write(buf)
	return err
}
