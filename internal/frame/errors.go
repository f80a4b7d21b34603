package frame

import (
	"errors"
	"fmt"
)

var (
	// ErrFraming matches any *FramingError.
	ErrFraming = errors.New("frame: invalid length prefix")
	// ErrDecoding matches any *DecodingError.
	ErrDecoding = errors.New("frame: payload decode failed")
	// ErrEncoding matches any *EncodingError.
	ErrEncoding = errors.New("frame: payload encode failed")
)

// FramingError reports a length prefix outside the accepted range.
type FramingError struct {
	Length int64
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("frame: invalid length %d (want 1..%d)", e.Length, MaxFrameBytes)
}

func (e *FramingError) Is(target error) bool { return target == ErrFraming }

// DecodingError wraps a serializer failure for a well-framed payload.
type DecodingError struct {
	Size int
	Err  error
}

func (e *DecodingError) Error() string {
	return fmt.Sprintf("frame: decode %d byte payload: %v", e.Size, e.Err)
}

func (e *DecodingError) Unwrap() error { return e.Err }

func (e *DecodingError) Is(target error) bool { return target == ErrDecoding }

// EncodingError wraps a serializer failure on the send side.
type EncodingError struct {
	Err error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("frame: encode payload: %v", e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

func (e *EncodingError) Is(target error) bool { return target == ErrEncoding }
