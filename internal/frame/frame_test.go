package frame_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"reflect"
	"testing"

	"pipelink/internal/frame"
)

type sample struct {
	Name  string            `json:"name"`
	Count int               `json:"count"`
	Tags  []string          `json:"tags,omitempty"`
	Meta  map[string]string `json:"meta,omitempty"`
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	codec := frame.JSONCodec[sample]{}
	cases := []sample{
		{Name: "a"},
		{Name: "unicode ✓", Count: -3, Tags: []string{"x", "y"}},
		{Name: "", Count: 1 << 30, Meta: map[string]string{"k": "v"}},
	}
	for _, want := range cases {
		buf, err := frame.Encode[sample](codec, want)
		if err != nil {
			t.Fatalf("Encode(%+v): %v", want, err)
		}
		if got := binary.LittleEndian.Uint32(buf[:frame.PrefixLen]); int(got) != len(buf)-frame.PrefixLen {
			t.Fatalf("prefix %d does not match payload length %d", got, len(buf)-frame.PrefixLen)
		}
		got, err := frame.Decode[sample](codec, buf)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("round trip mismatch: got %+v want %+v", got, want)
		}
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	codec := frame.JSONCodec[sample]{}
	v := sample{Name: "n", Meta: map[string]string{"b": "2", "a": "1", "c": "3"}}
	first, err := frame.Encode[sample](codec, v)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	for i := 0; i < 20; i++ {
		again, err := frame.Encode[sample](codec, v)
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("encoding differs between calls:\n%s\n%s", first, again)
		}
	}
}

func TestValidateLengthBounds(t *testing.T) {
	cases := []struct {
		name string
		n    int64
		ok   bool
	}{
		{"zero", 0, false},
		{"negative", -1, false},
		{"one", 1, true},
		{"max", frame.MaxFrameBytes, true},
		{"max plus one", frame.MaxFrameBytes + 1, false},
		{"twenty million", 20_000_000, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := frame.ValidateLength(tc.n)
			if tc.ok && err != nil {
				t.Fatalf("expected %d to be valid, got %v", tc.n, err)
			}
			if !tc.ok {
				if !errors.Is(err, frame.ErrFraming) {
					t.Fatalf("expected framing error for %d, got %v", tc.n, err)
				}
				var fe *frame.FramingError
				if !errors.As(err, &fe) || fe.Length != tc.n {
					t.Fatalf("expected FramingError with length %d, got %#v", tc.n, err)
				}
			}
		})
	}
}

// countingReader fails the test if more than limit bytes are requested.
type countingReader struct {
	t     *testing.T
	r     io.Reader
	read  int
	limit int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.read += n
	if c.read > c.limit {
		c.t.Fatalf("reader consumed %d bytes, limit %d", c.read, c.limit)
	}
	return n, err
}

func TestReadFrameRejectsBadPrefixWithoutReadingPayload(t *testing.T) {
	cases := []struct {
		name   string
		prefix uint32
	}{
		{"zero", 0},
		{"negative as int32", 0xFFFFFFFF},
		{"oversized", 20_000_000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			_ = binary.Write(&buf, binary.LittleEndian, tc.prefix)
			buf.Write(bytes.Repeat([]byte{'x'}, 64))
			r := &countingReader{t: t, r: &buf, limit: frame.PrefixLen}
			_, err := frame.ReadFrame(r)
			if !errors.Is(err, frame.ErrFraming) {
				t.Fatalf("expected framing error, got %v", err)
			}
		})
	}
}

func TestReadFrameEOF(t *testing.T) {
	if _, err := frame.ReadFrame(bytes.NewReader(nil)); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF on empty stream, got %v", err)
	}
	if _, err := frame.ReadFrame(bytes.NewReader([]byte{1, 0})); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected unexpected EOF on short prefix, got %v", err)
	}
	short := []byte{10, 0, 0, 0, 'a', 'b'}
	if _, err := frame.ReadFrame(bytes.NewReader(short)); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected unexpected EOF on short payload, got %v", err)
	}
}

func TestWriteThenReadFrame(t *testing.T) {
	var buf bytes.Buffer
	for _, payload := range []string{"one", "two", "three"} {
		if err := frame.WriteFrame(&buf, []byte(payload)); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
	}
	for _, want := range []string{"one", "two", "three"} {
		got, err := frame.ReadFrame(&buf)
		if err != nil {
			t.Fatalf("ReadFrame: %v", err)
		}
		if string(got) != want {
			t.Fatalf("got %q want %q", got, want)
		}
	}
	if err := frame.WriteFrame(&buf, nil); !errors.Is(err, frame.ErrFraming) {
		t.Fatalf("expected framing error for empty payload, got %v", err)
	}
}

func TestDecodeErrorIsDistinctFromFraming(t *testing.T) {
	codec := frame.JSONCodec[sample]{}
	var buf bytes.Buffer
	if err := frame.WriteFrame(&buf, []byte(`{"name": 12`)); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	_, err := frame.Decode[sample](codec, buf.Bytes())
	if !errors.Is(err, frame.ErrDecoding) {
		t.Fatalf("expected decoding error, got %v", err)
	}
	if errors.Is(err, frame.ErrFraming) {
		t.Fatal("decoding error must not match framing error")
	}
}

func TestStrictCodecRejectsUnknownFields(t *testing.T) {
	payload := []byte(`{"name":"a","extra":true}`)
	if _, err := frame.Unmarshal[sample](frame.JSONCodec[sample]{}, payload); err != nil {
		t.Fatalf("lenient codec should accept unknown fields: %v", err)
	}
	if _, err := frame.Unmarshal[sample](frame.JSONCodec[sample]{Strict: true}, payload); !errors.Is(err, frame.ErrDecoding) {
		t.Fatalf("strict codec should reject unknown fields, got %v", err)
	}
}

func TestEncodeErrorOnUnserializablePayload(t *testing.T) {
	codec := frame.JSONCodec[any]{}
	_, err := frame.Encode[any](codec, map[string]any{"fn": func() {}})
	if !errors.Is(err, frame.ErrEncoding) {
		t.Fatalf("expected encoding error, got %v", err)
	}
}
