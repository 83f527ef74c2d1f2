package grpc

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/HarshaVardhanRao/StudentActivityCentre/internal/attendance"
)

const (
	QueryServiceName = "sac.attendance.v1.AttendanceQueryService"

	verifyReferenceMethod    = "/" + QueryServiceName + "/VerifyReference"
	listSessionRecordsMethod = "/" + QueryServiceName + "/ListSessionRecords"
)

// AttendanceQueryService is the read-only API offered to other SAC services.
// Messages are protobuf well-known types so no generated code is needed.
type AttendanceQueryService interface {
	VerifyReference(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	ListSessionRecords(context.Context, *wrapperspb.Int64Value) (*structpb.Struct, error)
}

var AttendanceQueryServiceDesc = grpc.ServiceDesc{
	ServiceName: QueryServiceName,
	HandlerType: (*AttendanceQueryService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "VerifyReference", Handler: verifyReferenceHandler},
		{MethodName: "ListSessionRecords", Handler: listSessionRecordsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "sac/attendance/v1/query.proto",
}

func RegisterAttendanceQueryService(s grpc.ServiceRegistrar, srv AttendanceQueryService) {
	s.RegisterService(&AttendanceQueryServiceDesc, srv)
}

func verifyReferenceHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AttendanceQueryService).VerifyReference(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: verifyReferenceMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AttendanceQueryService).VerifyReference(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func listSessionRecordsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.Int64Value)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AttendanceQueryService).ListSessionRecords(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: listSessionRecordsMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AttendanceQueryService).ListSessionRecords(ctx, req.(*wrapperspb.Int64Value))
	}
	return interceptor(ctx, in, info, handler)
}

type AttendanceQueryServer struct {
	svc *attendance.Service
}

func NewAttendanceQueryServer(svc *attendance.Service) *AttendanceQueryServer {
	return &AttendanceQueryServer{svc: svc}
}

func (s *AttendanceQueryServer) VerifyReference(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	code := strings.TrimSpace(req.GetValue())
	if code == "" {
		return nil, status.Error(codes.InvalidArgument, "ref_code required")
	}
	v, err := s.svc.Verify(ctx, code)
	if err != nil {
		return nil, toStatus(err)
	}
	return structpb.NewStruct(map[string]interface{}{
		"ref_code":      v.RefCode,
		"event_name":    v.EventName,
		"session_label": v.SessionLabel,
		"roll_no":       v.RollNo,
		"student_name":  v.StudentName,
		"status":        string(v.Status),
		"recorded_at":   v.RecordedAt.UTC().Format(time.RFC3339),
	})
}

func (s *AttendanceQueryServer) ListSessionRecords(ctx context.Context, req *wrapperspb.Int64Value) (*structpb.Struct, error) {
	if req.GetValue() <= 0 {
		return nil, status.Error(codes.InvalidArgument, "session_id required")
	}
	rows, err := s.svc.SessionRecords(ctx, req.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	records := make([]interface{}, 0, len(rows))
	for _, row := range rows {
		records = append(records, map[string]interface{}{
			"student_id":  row.StudentID,
			"roll_no":     row.RollNo,
			"name":        row.Name,
			"department":  row.Department,
			"status":      string(row.Status),
			"recorded_at": row.RecordedAt.UTC().Format(time.RFC3339),
			"ref_code":    row.RefCode,
		})
	}
	return structpb.NewStruct(map[string]interface{}{
		"session_id": req.GetValue(),
		"records":    records,
	})
}

func toStatus(err error) error {
	if e, ok := attendance.AsError(err); ok {
		switch e.Kind {
		case attendance.KindInvalid:
			return status.Error(codes.InvalidArgument, e.Code)
		case attendance.KindNotFound:
			return status.Error(codes.NotFound, e.Code)
		case attendance.KindForbidden:
			return status.Error(codes.PermissionDenied, e.Code)
		case attendance.KindState, attendance.KindConflict:
			return status.Error(codes.FailedPrecondition, e.Code)
		}
	}
	if errors.Is(err, context.Canceled) {
		return status.Error(codes.Canceled, "canceled")
	}
	log.Printf("grpc query failed: %v", err)
	return status.Error(codes.Internal, "internal")
}

// AttendanceQueryClient calls AttendanceQueryService over an existing connection.
type AttendanceQueryClient struct {
	cc grpc.ClientConnInterface
}

func NewAttendanceQueryClient(cc grpc.ClientConnInterface) *AttendanceQueryClient {
	return &AttendanceQueryClient{cc: cc}
}

func (c *AttendanceQueryClient) VerifyReference(ctx context.Context, code string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, verifyReferenceMethod, wrapperspb.String(code), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *AttendanceQueryClient) ListSessionRecords(ctx context.Context, sessionID int64, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, listSessionRecordsMethod, wrapperspb.Int64(sessionID), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
