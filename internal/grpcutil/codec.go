// Package grpcutil holds the codec and error mapping shared by the gRPC service and its clients.
package grpcutil

import (
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// CodecName is the content subtype requests are sent with (application/grpc+json)
const CodecName = "json"

// JSONCodec marshals gRPC messages as JSON, so plain Go structs can be used as messages
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (JSONCodec) Name() string { return CodecName }

func init() {
	encoding.RegisterCodec(JSONCodec{})
}

// CallOption selects the JSON codec on a client call
func CallOption() grpc.CallOption {
	return grpc.CallContentSubtype(CodecName)
}
