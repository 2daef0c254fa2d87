// Package proto defines the internal admin gRPC service for scanvault.
//
// The descriptor is hand-written and messages travel as JSON through the
// codec registered below, so no protoc step is needed. Clients must call
// with grpc.CallContentSubtype(CodecName), which NewAdminServiceClient
// does for them.
package proto

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// CodecName is the content-subtype the admin service speaks.
const CodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return CodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// ---- messages ----

type GetStatsRequest struct{}

type GetStatsResponse struct {
	Total    int64 `json:"total"`
	Clean    int64 `json:"clean"`
	Infected int64 `json:"infected"`
	Error    int64 `json:"error"`
}

// DeleteFileRequest names the file to remove. CallerId is optional and only
// matters when the server scopes deletes to owners.
type DeleteFileRequest struct {
	FileId   string `json:"file_id"`
	CallerId string `json:"caller_id,omitempty"`
}

type DeleteFileResponse struct {
	FileId       string `json:"file_id"`
	ScansRemoved int64  `json:"scans_removed"`
	BytesRemoved bool   `json:"bytes_removed"`
}

type DeleteInfectedRequest struct{}

type DeleteFailure struct {
	FileId string `json:"file_id"`
	Error  string `json:"error"`
}

type DeleteInfectedResponse struct {
	Deleted []string         `json:"deleted"`
	Failed  []*DeleteFailure `json:"failed"`
}

// AdminServiceServer is the server-side interface for the AdminService.
type AdminServiceServer interface {
	GetStats(context.Context, *GetStatsRequest) (*GetStatsResponse, error)
	DeleteFile(context.Context, *DeleteFileRequest) (*DeleteFileResponse, error)
	DeleteInfected(context.Context, *DeleteInfectedRequest) (*DeleteInfectedResponse, error)
}

// AdminServiceClient is the client-side interface for the AdminService.
type AdminServiceClient interface {
	GetStats(ctx context.Context, in *GetStatsRequest, opts ...grpc.CallOption) (*GetStatsResponse, error)
	DeleteFile(ctx context.Context, in *DeleteFileRequest, opts ...grpc.CallOption) (*DeleteFileResponse, error)
	DeleteInfected(ctx context.Context, in *DeleteInfectedRequest, opts ...grpc.CallOption) (*DeleteInfectedResponse, error)
}

// ---- server registration ----

const serviceName = "scanvault.AdminService"

// ServiceDesc is the grpc.ServiceDesc for the AdminService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*AdminServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetStats",
			Handler:    _AdminService_GetStats_Handler,
		},
		{
			MethodName: "DeleteFile",
			Handler:    _AdminService_DeleteFile_Handler,
		},
		{
			MethodName: "DeleteInfected",
			Handler:    _AdminService_DeleteInfected_Handler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "proto/scanvault.proto",
}

// RegisterAdminServiceServer registers the server implementation with a gRPC server.
func RegisterAdminServiceServer(s grpc.ServiceRegistrar, srv AdminServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func _AdminService_GetStats_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GetStatsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminServiceServer).GetStats(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/GetStats"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AdminServiceServer).GetStats(ctx, req.(*GetStatsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _AdminService_DeleteFile_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(DeleteFileRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminServiceServer).DeleteFile(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/DeleteFile"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AdminServiceServer).DeleteFile(ctx, req.(*DeleteFileRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _AdminService_DeleteInfected_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(DeleteInfectedRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminServiceServer).DeleteInfected(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/DeleteInfected"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AdminServiceServer).DeleteInfected(ctx, req.(*DeleteInfectedRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// ---- client implementation ----

type adminServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewAdminServiceClient creates a new AdminService gRPC client.
func NewAdminServiceClient(cc grpc.ClientConnInterface) AdminServiceClient {
	return &adminServiceClient{cc: cc}
}

func (c *adminServiceClient) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, "/"+serviceName+"/"+method, in, out, opts...)
}

func (c *adminServiceClient) GetStats(ctx context.Context, in *GetStatsRequest, opts ...grpc.CallOption) (*GetStatsResponse, error) {
	out := new(GetStatsResponse)
	if err := c.invoke(ctx, "GetStats", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *adminServiceClient) DeleteFile(ctx context.Context, in *DeleteFileRequest, opts ...grpc.CallOption) (*DeleteFileResponse, error) {
	out := new(DeleteFileResponse)
	if err := c.invoke(ctx, "DeleteFile", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *adminServiceClient) DeleteInfected(ctx context.Context, in *DeleteInfectedRequest, opts ...grpc.CallOption) (*DeleteInfectedResponse, error) {
	out := new(DeleteInfectedResponse)
	if err := c.invoke(ctx, "DeleteInfected", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}
