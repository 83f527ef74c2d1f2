package grpc

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/HarshaVardhanRao/StudentActivityCentre/internal/attendance"
	"github.com/HarshaVardhanRao/StudentActivityCentre/internal/attendance/memstore"
	"github.com/HarshaVardhanRao/StudentActivityCentre/internal/auth"
)

const testServiceToken = "svc-token"

type fixture struct {
	client    *AttendanceQueryClient
	sessionID int64
	refCode   string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()
	store.AddUser(attendance.Student{ID: 2, FirstName: "Olu"}, auth.RoleEventOrganizer)
	store.AddUser(attendance.Student{ID: 42, RollNo: "CS042", FirstName: "Ravi", LastName: "Kumar", Department: "CSE"}, auth.RoleStudent)
	store.AddEvent(attendance.Event{ID: 7, Name: "Tech Fest", Status: attendance.EventApproved, StartsAt: time.Now()}, 2)
	store.Register(7, 42)

	svc := attendance.NewService(store, attendance.Config{DefaultSessionDuration: time.Hour})
	organizer, err := svc.Principal(ctx, 2)
	if err != nil {
		t.Fatalf("principal: %v", err)
	}
	session, err := svc.OpenSession(ctx, organizer, attendance.OpenSessionParams{EventID: 7, Label: "Day 1", ForceOpen: true})
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	result, err := svc.RecordStatus(ctx, organizer, session.ID, 42, attendance.StatusPresent)
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	interceptor, err := NewServiceAuthUnaryInterceptor(testServiceToken)
	if err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	listener := bufconn.Listen(1 << 20)
	server := grpc.NewServer(grpc.UnaryInterceptor(interceptor))
	RegisterAttendanceQueryService(server, NewAttendanceQueryServer(svc))
	go func() {
		_ = server.Serve(listener)
	}()
	t.Cleanup(server.Stop)

	conn, err := grpc.DialContext(ctx, "bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return listener.Dial() }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	return fixture{client: NewAttendanceQueryClient(conn), sessionID: session.ID, refCode: result.Record.RefCode}
}

func withToken(token string) context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), ServiceTokenHeader, token)
}

func TestServiceAuthRequiresToken(t *testing.T) {
	if _, err := NewServiceAuthUnaryInterceptor(""); err == nil {
		t.Fatalf("expected error for empty token")
	}
	f := newFixture(t)

	_, err := f.client.VerifyReference(context.Background(), f.refCode)
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated, got %v", err)
	}
	_, err = f.client.VerifyReference(withToken("wrong"), f.refCode)
	if status.Code(err) != codes.PermissionDenied {
		t.Fatalf("expected PermissionDenied, got %v", err)
	}
}

func TestVerifyReference(t *testing.T) {
	f := newFixture(t)

	out, err := f.client.VerifyReference(withToken(testServiceToken), strings.ToLower(f.refCode))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	fields := out.GetFields()
	if fields["ref_code"].GetStringValue() != f.refCode {
		t.Fatalf("expected ref code %s, got %s", f.refCode, fields["ref_code"].GetStringValue())
	}
	if fields["student_name"].GetStringValue() != "Ravi Kumar" || fields["status"].GetStringValue() != "PRESENT" {
		t.Fatalf("unexpected verification %v", fields)
	}

	_, err = f.client.VerifyReference(withToken(testServiceToken), "UNKNOWN1")
	if status.Code(err) != codes.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
	_, err = f.client.VerifyReference(withToken(testServiceToken), "  ")
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestListSessionRecords(t *testing.T) {
	f := newFixture(t)

	out, err := f.client.ListSessionRecords(withToken(testServiceToken), f.sessionID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	records := out.GetFields()["records"].GetListValue().GetValues()
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	record := records[0].GetStructValue().GetFields()
	if record["roll_no"].GetStringValue() != "CS042" || int64(record["student_id"].GetNumberValue()) != 42 {
		t.Fatalf("unexpected record %v", record)
	}

	_, err = f.client.ListSessionRecords(withToken(testServiceToken), 0)
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
	_, err = f.client.ListSessionRecords(withToken(testServiceToken), 999)
	if status.Code(err) != codes.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestToStatus(t *testing.T) {
	cases := map[attendance.Kind]codes.Code{
		attendance.KindInvalid:   codes.InvalidArgument,
		attendance.KindNotFound:  codes.NotFound,
		attendance.KindForbidden: codes.PermissionDenied,
		attendance.KindState:     codes.FailedPrecondition,
		attendance.KindConflict:  codes.FailedPrecondition,
	}
	for kind, expected := range cases {
		err := toStatus(&attendance.Error{Kind: kind, Code: "x"})
		if status.Code(err) != expected {
			t.Fatalf("kind %s expected %v got %v", kind, expected, status.Code(err))
		}
	}
	if status.Code(toStatus(context.Canceled)) != codes.Canceled {
		t.Fatalf("expected Canceled")
	}
	if status.Code(toStatus(attendance.ErrRefCodeExhausted)) != codes.Internal {
		t.Fatalf("expected Internal")
	}
}
