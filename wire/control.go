package wire

import "encoding/json"

// Control-plane payload types. These are carried inside a Message's
// Payload field, JSON-encoded, for every endpoint except the high-volume
// NativeTraceSender broadcast (see native.go). encoding/json round-trips
// int64/uint64, UTF-8 strings, []byte (base64), slices and string-keyed
// maps without loss, which is all the spec requires of this encoding.

// IntrospectResponse lists the endpoint names a transport currently has
// registered.
type IntrospectResponse struct {
	Endpoints []string `json:"endpoints"`
}

// ProcessInfoRequest is sent with Cmd == "info"; no other command is
// currently defined.
type ProcessInfoRequest struct {
	Cmd string `json:"cmd"`
}

// ProcessInfoResponse describes the serving process and its traced
// producers.
type ProcessInfoResponse struct {
	PID     uint64            `json:"pid"`
	Name    string            `json:"name"`
	Threads map[string]string `json:"threads"`
}

// TraceMappingResponse is the pid → (trace id → name) map assembled from
// every known peer's StaticStringTracker snapshot. Keys are stringified
// because JSON object keys must be strings.
type TraceMappingResponse struct {
	Mapping map[string]map[string]string `json:"mapping"`
}

// ConfiguratorState is both the request and response payload shape for
// the TraceConfigurator endpoint. Field names match the wire contract in
// spec §6 exactly ("p", "sp", "nt", "snt", "t") for cross-implementation
// compatibility.
type ConfiguratorState struct {
	ProcessEnabled     bool            `json:"p"`
	SetProcess         bool            `json:"sp"`
	NewProducerEnabled bool            `json:"nt"`
	SetNewProducer     bool            `json:"snt"`
	Producers          map[string]bool `json:"t"`
}

// ConfiguratorRequest wraps a ConfiguratorState with the command that
// should be applied to it ("set" or "get").
type ConfiguratorRequest struct {
	Cmd   string            `json:"cmd"`
	State ConfiguratorState `json:"state"`
}

// MarshalJSON and UnmarshalJSON convenience wrappers keep call sites
// short and give every control payload a single place to adjust encoding
// behavior (e.g. if a future version needs to switch away from
// encoding/json for this path).

func MarshalControl(v any) ([]byte, error) { return json.Marshal(v) }

func UnmarshalControl(data []byte, v any) error { return json.Unmarshal(data, v) }
