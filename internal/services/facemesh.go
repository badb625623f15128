package services

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"onnoon-care/eye-monitor/internal/fatigue"
)

const faceMeshDetectMethod = "/facemesh.FaceMesh/Detect"

// FaceMeshServer is the server side of the landmark service.
type FaceMeshServer interface {
	Detect(ctx context.Context, frame *wrapperspb.BytesValue) (*structpb.Struct, error)
}

func faceMeshDetectHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FaceMeshServer).Detect(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: faceMeshDetectMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(FaceMeshServer).Detect(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

var faceMeshServiceDesc = grpc.ServiceDesc{
	ServiceName: "facemesh.FaceMesh",
	HandlerType: (*FaceMeshServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Detect",
			Handler:    faceMeshDetectHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "facemesh.proto",
}

// RegisterFaceMeshServer registers a landmark service implementation.
func RegisterFaceMeshServer(s grpc.ServiceRegistrar, srv FaceMeshServer) {
	s.RegisterService(&faceMeshServiceDesc, srv)
}

// LandmarksResponse encodes points the way ParseLandmarks reads them.
// nil points encode "no face".
func LandmarksResponse(points []fatigue.Point) (*structpb.Struct, error) {
	flat := make([]interface{}, 0, 2*len(points))
	for _, p := range points {
		flat = append(flat, p.X, p.Y)
	}
	return structpb.NewStruct(map[string]interface{}{
		"landmarks": flat,
	})
}
