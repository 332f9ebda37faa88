package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// Package is the gRPC package every service lives under.
const Package = "muzz.matchmaking.v1"

// Method is one unary endpoint of a service.
type Method struct {
	Name    string
	Handler func(service string) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error)
}

// Unary adapts a typed handler into a gRPC method. Requests are decoded into a
// fresh *Req; interceptors see the full method name.
func Unary[Req, Resp any](name string, fn func(context.Context, *Req) (*Resp, error)) Method {
	return Method{
		Name: name,
		Handler: func(service string) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			full := "/" + service + "/" + name
			return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
				in := new(Req)
				if err := dec(in); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return fn(ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
				return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
					return fn(ctx, req.(*Req))
				})
			}
		},
	}
}

// ServiceDesc assembles a service named Package + "." + name.
func ServiceDesc(name string, methods ...Method) *grpc.ServiceDesc {
	full := Package + "." + name
	desc := &grpc.ServiceDesc{
		ServiceName: full,
		HandlerType: (*any)(nil),
		Streams:     []grpc.StreamDesc{},
		Metadata:    CodecName,
	}
	for _, m := range methods {
		desc.Methods = append(desc.Methods, grpc.MethodDesc{MethodName: m.Name, Handler: m.Handler(full)})
	}
	return desc
}

// FullMethod is the path a client invokes, e.g. "/muzz.matchmaking.v1.Matchmaking/Start".
func FullMethod(service, method string) string {
	return "/" + Package + "." + service + "/" + method
}
