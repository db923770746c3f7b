package types //nolint:revive // types is a valid package name

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_Message(t *testing.T) {
	cause := errors.New("net::ERR_CONNECTION_REFUSED")

	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"validation message only", NewValidationError("data cannot be empty", nil), "data cannot be empty"},
		{"validation with cause", NewValidationError("invalid query", cause), "invalid query: net::ERR_CONNECTION_REFUSED"},
		{"render stage", NewRenderError(StageNavigate, cause), "navigate failed: net::ERR_CONNECTION_REFUSED"},
		{"offload task", NewOffloadError("chart.summary", cause), `task "chart.summary" failed: net::ERR_CONNECTION_REFUSED`},
		{"cause only", &Error{Kind: KindRender, Err: cause}, "net::ERR_CONNECTION_REFUSED"},
		{"bare kind", &Error{Kind: KindOffload}, "offload error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestError_KindThroughWrapping(t *testing.T) {
	cause := errors.New("timeout")
	err := fmt.Errorf("render chart: %w", NewRenderError(StageWait, cause))

	if !IsKind(err, KindRender) {
		t.Errorf("expected render kind, got %q", KindOf(err))
	}
	if IsKind(err, KindValidation) {
		t.Error("render error must not report validation kind")
	}
	if !errors.Is(err, cause) {
		t.Error("cause should be reachable through Unwrap")
	}

	var te *Error
	if !errors.As(err, &te) || te.Stage != StageWait {
		t.Errorf("expected wait stage, got %+v", te)
	}

	if KindOf(errors.New("plain")) != "" {
		t.Error("plain errors have no kind")
	}
	if KindOf(nil) != "" {
		t.Error("nil has no kind")
	}
}

func TestRequestState_Terminal(t *testing.T) {
	for _, s := range []RequestState{StateResponded, StateFailed} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []RequestState{StateReceived, StateValidated, StateCacheHit, StateCacheMiss, StateRendering, StateRendered} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
