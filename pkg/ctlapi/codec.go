package ctlapi

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// jsonCodec is a grpc encoding.Codec that marshals the plain Go structs in
// messages.go as JSON. It registers itself under grpc's own default
// content-subtype name ("proto"), which google.golang.org/grpc's own
// encoding/proto subpackage also registers under at import time; Go
// guarantees imported packages finish their init() before this package's,
// so this registration runs after grpc's and wins the map entry. This
// keeps the real grpc transport, interceptor chain and codes/status
// machinery while sidestepping a protoc build step for a handful of
// small flat messages.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return "proto"
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
