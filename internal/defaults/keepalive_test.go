package defaults

import (
	"testing"
	"time"
)

func TestHeartbeatIntervalFor(t *testing.T) {
	t.Run("non-positive read timeout disables heartbeat", func(t *testing.T) {
		if got := HeartbeatIntervalFor(0); got != 0 {
			t.Fatalf("expected 0, got %v", got)
		}
		if got := HeartbeatIntervalFor(-1); got != 0 {
			t.Fatalf("expected 0, got %v", got)
		}
	})

	t.Run("readTimeout/2 default", func(t *testing.T) {
		if got := HeartbeatIntervalFor(60 * time.Second); got != 30*time.Second {
			t.Fatalf("expected 30s, got %v", got)
		}
	})

	t.Run("min clamp and strict less than read timeout", func(t *testing.T) {
		readTimeout := 1 * time.Second
		got := HeartbeatIntervalFor(readTimeout)
		if got != 500*time.Millisecond {
			t.Fatalf("expected 500ms, got %v", got)
		}
		if got >= readTimeout {
			t.Fatalf("expected heartbeat interval < read timeout, got interval=%v readTimeout=%v", got, readTimeout)
		}
	})
}
