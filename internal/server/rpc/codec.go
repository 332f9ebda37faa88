// Package rpc builds gRPC services from plain Go handlers. Messages are the
// JSON structs in package api, carried with the "json" content subtype.
package rpc

import (
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// CodecName is the content subtype clients must request:
//
//	conn.Invoke(ctx, method, in, out, rpc.CallJSON())
const CodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return CodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// CallJSON selects the JSON codec for a client call.
func CallJSON() grpc.CallOption {
	return grpc.CallContentSubtype(CodecName)
}
