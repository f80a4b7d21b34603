// Package envelope defines the message shape exchanged between the service
// and its management clients.
package envelope

import (
	"encoding/json"
	"fmt"
	"strconv"

	"pipelink/internal/frame"
)

// Kind distinguishes reads, writes, and replies.
type Kind int

const (
	Get Kind = iota
	Set
	Response
)

// Control verbs travel as Response envelopes with one of these model types.
const (
	VerbOpenSysLog  = "OpenSysLog"
	VerbCloseSysLog = "CloseSysLog"
)

// ModelSysLog is the model type of pushed log lines.
const ModelSysLog = "SysLog"

var kindNames = [...]string{Get: "Get", Set: "Set", Response: "Response"}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// Valid reports whether k is one of the defined kinds.
func (k Kind) Valid() bool {
	return k >= Get && k <= Response
}

// ParseKind accepts the kind name, case-sensitively.
func ParseKind(s string) (Kind, error) {
	for i, name := range kindNames {
		if name == s {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown envelope kind %q", s)
}

func (k Kind) MarshalJSON() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("unknown envelope kind %d", int(k))
	}
	return json.Marshal(k.String())
}

// UnmarshalJSON accepts the string name or the numeric form.
func (k *Kind) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		parsed, err := ParseKind(name)
		if err != nil {
			return err
		}
		*k = parsed
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("envelope kind must be a string or integer: %s", data)
	}
	if !Kind(n).Valid() {
		return fmt.Errorf("unknown envelope kind %d", n)
	}
	*k = Kind(n)
	return nil
}

// Envelope is the unit of exchange. ModelData carries the serialized model;
// its format is up to the model.
type Envelope struct {
	Kind      Kind   `json:"kind"`
	ModelType string `json:"modelType"`
	ModelData string `json:"modelData,omitempty"`
	RequestID string `json:"requestId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Codec is the channel codec for envelopes.
type Codec = frame.JSONCodec[Envelope]

// NewGet builds a read request.
func NewGet(modelType string) Envelope {
	return Envelope{Kind: Get, ModelType: modelType}
}

// NewSet builds a write request carrying data.
func NewSet(modelType, data string) Envelope {
	return Envelope{Kind: Set, ModelType: modelType, ModelData: data}
}

// NewVerb builds a control verb.
func NewVerb(verb string) Envelope {
	return Envelope{Kind: Response, ModelType: verb}
}

// Reply answers req, keeping its model type and correlation id.
func Reply(req Envelope, data string) Envelope {
	return Envelope{
		Kind:      Response,
		ModelType: req.ModelType,
		ModelData: data,
		RequestID: req.RequestID,
	}
}

// Fail answers req with an error.
func Fail(req Envelope, err error) Envelope {
	resp := Reply(req, "")
	if err != nil {
		resp.Error = err.Error()
	}
	return resp
}

// IsVerb reports whether e is one of the control verbs.
func (e Envelope) IsVerb() bool {
	if e.Kind != Response || e.RequestID != "" {
		return false
	}
	return e.ModelType == VerbOpenSysLog || e.ModelType == VerbCloseSysLog
}

// Err returns the remote failure carried by a response, if any.
func (e Envelope) Err() error {
	if e.Error == "" {
		return nil
	}
	return &RemoteError{ModelType: e.ModelType, Message: e.Error}
}

// RemoteError is a failure reported by the other side.
type RemoteError struct {
	ModelType string
	Message   string
}

func (e *RemoteError) Error() string {
	if e.ModelType == "" {
		return "remote: " + e.Message
	}
	return fmt.Sprintf("remote %s: %s", e.ModelType, e.Message)
}

// CorrelationBinding stores correlation ids in RequestID and treats
// Response envelopes carrying one as replies.
type CorrelationBinding struct{}

// Binding returns the correlator binding for envelopes.
func Binding() CorrelationBinding { return CorrelationBinding{} }

func (CorrelationBinding) Stamp(e Envelope, id string) Envelope {
	e.RequestID = id
	return e
}

func (CorrelationBinding) ResponseID(e Envelope) (string, bool) {
	if e.Kind != Response || e.RequestID == "" {
		return "", false
	}
	return e.RequestID, true
}
