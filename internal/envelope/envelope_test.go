package envelope

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"pipelink/internal/frame"
)

func TestKindDecodingAcceptsNamesAndNumbers(t *testing.T) {
	cases := []struct {
		raw  string
		want Kind
	}{
		{`{"kind":"Get","modelType":"Status"}`, Get},
		{`{"kind":"Set","modelType":"Status"}`, Set},
		{`{"kind":"Response","modelType":"Status"}`, Response},
		{`{"kind":0,"modelType":"Status"}`, Get},
		{`{"kind":1,"modelType":"Status"}`, Set},
		{`{"kind":2,"modelType":"Status"}`, Response},
	}
	for _, tc := range cases {
		var env Envelope
		if err := json.Unmarshal([]byte(tc.raw), &env); err != nil {
			t.Fatalf("unmarshal %s: %v", tc.raw, err)
		}
		if env.Kind != tc.want {
			t.Fatalf("%s: got kind %v want %v", tc.raw, env.Kind, tc.want)
		}
	}
}

func TestUnknownKindIsDecodingError(t *testing.T) {
	codec := Codec{}
	for _, raw := range []string{`{"kind":"Delete","modelType":"x"}`, `{"kind":7,"modelType":"x"}`, `{"kind":true}`} {
		if _, err := frame.Unmarshal[Envelope](codec, []byte(raw)); !errors.Is(err, frame.ErrDecoding) {
			t.Fatalf("%s: expected decoding error, got %v", raw, err)
		}
	}
}

func TestEnvelopeWireShape(t *testing.T) {
	data, err := json.Marshal(Envelope{Kind: Get, ModelType: "Status"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if got := string(data); got != `{"kind":"Get","modelType":"Status"}` {
		t.Fatalf("unexpected encoding %s", got)
	}
	if _, err := json.Marshal(Envelope{Kind: Kind(9)}); err == nil {
		t.Fatal("expected invalid kind to fail encoding")
	}
}

func TestEnvelopeFrameRoundTrip(t *testing.T) {
	codec := Codec{}
	in := Envelope{Kind: Set, ModelType: "LogLevel", ModelData: "debug", RequestID: "abc"}
	buf, err := frame.Encode[Envelope](codec, in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := frame.Decode[Envelope](codec, buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out != in {
		t.Fatalf("got %+v want %+v", out, in)
	}
}

func TestReplyKeepsCorrelation(t *testing.T) {
	req := Envelope{Kind: Get, ModelType: "Status", RequestID: "r-1"}
	resp := Reply(req, "ok")
	if resp.Kind != Response || resp.ModelType != "Status" || resp.RequestID != "r-1" || resp.ModelData != "ok" {
		t.Fatalf("unexpected reply %+v", resp)
	}
	id, ok := Binding().ResponseID(resp)
	if !ok || id != "r-1" {
		t.Fatalf("binding did not recognise reply: %q %v", id, ok)
	}
	if _, ok := Binding().ResponseID(req); ok {
		t.Fatal("request must not be treated as a response")
	}
	if resp.Err() != nil {
		t.Fatalf("unexpected remote error %v", resp.Err())
	}

	failed := Fail(req, errors.New("boom"))
	var remote *RemoteError
	if err := failed.Err(); !errors.As(err, &remote) || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected remote error, got %v", err)
	}
}

func TestVerbs(t *testing.T) {
	if !NewVerb(VerbOpenSysLog).IsVerb() || !NewVerb(VerbCloseSysLog).IsVerb() {
		t.Fatal("verbs not recognised")
	}
	if NewGet(VerbOpenSysLog).IsVerb() {
		t.Fatal("Get envelope must not be a verb")
	}
	stamped := Binding().Stamp(NewVerb(VerbOpenSysLog), "id")
	if stamped.IsVerb() {
		t.Fatal("correlated envelope must not be a verb")
	}
}
