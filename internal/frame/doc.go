// Package frame turns typed payloads into length-prefixed wire frames and
// back.
//
// A frame is a 4-byte little-endian length followed by exactly that many
// payload bytes. Lengths outside (0, MaxFrameBytes] are rejected before any
// payload buffer is allocated, so a corrupted or hostile prefix cannot force
// a large allocation. Serialization is pluggable through Codec; JSONCodec is
// the default used by every channel in the repository.
//
// Callers tell the three error kinds apart: FramingError means the
// stream can no longer be trusted, DecodingError means one well-framed
// message carried bad content, and EncodingError means a payload could not be
// serialized before it ever reached the wire.
package frame
