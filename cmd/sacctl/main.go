// Command sacctl queries a running attendance server over gRPC.
//
//	sacctl verify <ref-code>
//	sacctl records <session-id>
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/HarshaVardhanRao/StudentActivityCentre/internal/clients"
	"github.com/HarshaVardhanRao/StudentActivityCentre/internal/config"
)

func main() {
	if err := config.LoadDotEnv(os.Getenv("ENV_FILE")); err != nil {
		log.Fatalf("env file: %v", err)
	}
	cfg := config.Load()

	addr := flag.String("addr", cfg.GRPCAddr, "attendance gRPC address")
	token := flag.String("token", cfg.ServiceAuthToken, "service auth token")
	timeout := flag.Duration("timeout", 5*time.Second, "call timeout")
	flag.Parse()
	if flag.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "usage: sacctl [flags] verify <ref-code> | records <session-id>")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	c, err := clients.New(ctx, *addr, *token, *timeout)
	if err != nil {
		log.Fatalf("grpc dial failed: %v", err)
	}
	defer c.Close()

	var out *structpb.Struct
	switch flag.Arg(0) {
	case "verify":
		out, err = c.Attendance.VerifyReference(ctx, flag.Arg(1))
	case "records":
		sessionID, parseErr := strconv.ParseInt(flag.Arg(1), 10, 64)
		if parseErr != nil {
			log.Fatalf("invalid session id %q", flag.Arg(1))
		}
		out, err = c.Attendance.ListSessionRecords(ctx, sessionID)
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.Fatalf("%s failed: %v", flag.Arg(0), err)
	}
	data, err := protojson.MarshalOptions{Multiline: true}.Marshal(out)
	if err != nil {
		log.Fatalf("encode: %v", err)
	}
	fmt.Println(string(data))
}
