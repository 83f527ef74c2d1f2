package clients

import (
	"context"
	"errors"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	attendancegrpc "github.com/HarshaVardhanRao/StudentActivityCentre/internal/grpc"
)

// Clients holds the connections used by tools that talk to a running
// attendance server over gRPC.
type Clients struct {
	AttendanceConn *grpc.ClientConn
	Attendance     *attendancegrpc.AttendanceQueryClient
}

func New(ctx context.Context, attendanceAddr, serviceToken string, timeout time.Duration, opts ...grpc.DialOption) (*Clients, error) {
	if serviceToken == "" {
		return nil, errors.New("service auth token required")
	}
	conn, err := dial(ctx, attendanceAddr, serviceToken, timeout, opts...)
	if err != nil {
		return nil, err
	}
	return &Clients{
		AttendanceConn: conn,
		Attendance:     attendancegrpc.NewAttendanceQueryClient(conn),
	}, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.AttendanceConn != nil {
		_ = c.AttendanceConn.Close()
	}
}

func dial(ctx context.Context, addr, serviceToken string, timeout time.Duration, extra ...grpc.DialOption) (*grpc.ClientConn, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(attendancegrpc.ServiceTokenUnaryClientInterceptor(serviceToken)),
	}, extra...)
	return grpc.DialContext(ctx, addr, opts...)
}
