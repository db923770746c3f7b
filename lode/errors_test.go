package lode

import (
	"errors"
	"fmt"
	"testing"
)

type netTimeout struct{}

func (netTimeout) Error() string { return "read tcp: something slow" }
func (netTimeout) Timeout() bool { return true }

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind error
	}{
		{"timeout interface", netTimeout{}, ErrTimeout},
		{"context deadline exceeded", errors.New("context deadline exceeded"), ErrTimeout},
		{"AccessDenied response", errors.New("AccessDenied: you do not have access"), ErrPermissionDenied},
		{"EACCES", errors.New("open /out/x.png: permission denied"), ErrPermissionDenied},
		{"NoSuchKey", errors.New("NoSuchKey: The specified key does not exist"), ErrNotFound},
		{"ENOSPC", errors.New("write /out/x.png: no space left on device"), ErrDiskFull},
		{"SlowDown", errors.New("SlowDown: Please reduce your request rate"), ErrThrottled},
		{"expired token", errors.New("ExpiredToken: the security token has expired"), ErrAuth},
		{"connection refused", errors.New("dial tcp 127.0.0.1:9000: connection refused"), ErrNetwork},
		{"unknown", errors.New("something odd"), errUnclassified},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyError(tt.err); got != tt.wantKind {
				t.Errorf("classifyError(%q) = %v, want %v", tt.err, got, tt.wantKind)
			}
		})
	}
}

func TestWrapErrors(t *testing.T) {
	if WrapWriteError(nil, "p") != nil || WrapReadError(nil, "p") != nil {
		t.Fatal("wrapping nil must return nil")
	}

	base := errors.New("NoSuchKey: gone")
	err := WrapReadError(base, "artifacts/abc.png")

	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Error("underlying error should remain reachable")
	}

	var se *StorageError
	if !errors.As(err, &se) {
		t.Fatal("expected *StorageError")
	}
	if se.Op != "read" || se.Path != "artifacts/abc.png" {
		t.Errorf("unexpected op/path: %q %q", se.Op, se.Path)
	}
	want := "read artifacts/abc.png: not found: NoSuchKey: gone"
	if se.Error() != want {
		t.Errorf("Error() = %q, want %q", se.Error(), want)
	}

	wrapped := fmt.Errorf("put: %w", WrapWriteError(errors.New("disk full"), ""))
	if !errors.Is(wrapped, ErrDiskFull) {
		t.Errorf("expected ErrDiskFull through wrapping, got %v", wrapped)
	}
	if got := wrapped.Error(); got != "put: write: no space left on device: disk full" {
		t.Errorf("unexpected message %q", got)
	}
}
