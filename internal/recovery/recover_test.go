package recovery

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestCall(t *testing.T) {
	v, err := Call(quiet, "ok", func() (int, error) { return 7, nil })
	if err != nil || v != 7 {
		t.Fatalf("Call() = %d, %v", v, err)
	}

	v, err = Call(quiet, "boom", func() (int, error) { panic("bad state") })
	var perr *PanicError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *PanicError, got %v", err)
	}
	if v != 0 || perr.Op != "boom" || perr.Value != "bad state" {
		t.Errorf("unexpected result %d, %+v", v, perr)
	}
}

func TestDo(t *testing.T) {
	sentinel := errors.New("plain")
	if err := Do(quiet, "err", func() error { return sentinel }); !errors.Is(err, sentinel) {
		t.Errorf("expected sentinel error, got %v", err)
	}
	if err := Do(nil, "panic", func() error { panic(42) }); err == nil {
		t.Error("expected error from panic")
	}
}

func TestGRPC(t *testing.T) {
	err := GRPC(quiet, "DoGet", func() error { panic("nil table") })
	if status.Code(err) != codes.Internal {
		t.Errorf("expected codes.Internal, got %v", status.Code(err))
	}
}
