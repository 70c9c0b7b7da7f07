package gcp

import (
	"errors"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/studymill/studymill-backend/internal/pkg/errs"
)

func TestClassifyRPC(t *testing.T) {
	cases := []struct {
		name string
		in   error
		want error
	}{
		{"unauthenticated", status.Error(codes.Unauthenticated, "bad creds"), errs.ErrAuth},
		{"permission denied", status.Error(codes.PermissionDenied, "no access"), errs.ErrAuth},
		{"invalid argument", status.Error(codes.InvalidArgument, "bad encoding"), errs.ErrInvalidInput},
		{"out of range", status.Error(codes.OutOfRange, "audio too long"), errs.ErrInvalidInput},
	}
	for _, tc := range cases {
		if got := classifyRPC(tc.in); !errors.Is(got, tc.want) {
			t.Fatalf("%s: classifyRPC(%v) = %v, want %v", tc.name, tc.in, got, tc.want)
		}
	}
}

func TestClassifyRPCPassesTransientThrough(t *testing.T) {
	in := status.Error(codes.Unavailable, "backend overloaded")
	got := classifyRPC(in)
	if errs.NonRetryable(got) {
		t.Fatalf("unavailable classified non-retryable: %v", got)
	}
	if !errors.Is(got, in) {
		t.Fatalf("transient error rewritten: %v", got)
	}
}
