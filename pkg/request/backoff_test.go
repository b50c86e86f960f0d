package request

import (
	"testing"
	"time"
)

func TestProviderBackoff_ExponentialDelay(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		baseDelay time.Duration
		maxDelay  time.Duration
		wantMinMs int64
		wantMaxMs int64
	}{
		{"First failure", 1, 1 * time.Second, 60 * time.Second, 1000, 1200},
		{"Second failure", 2, 1 * time.Second, 60 * time.Second, 2000, 2400},
		{"Third failure", 3, 1 * time.Second, 60 * time.Second, 4000, 4800},
		{"Max cap hit", 10, 1 * time.Second, 60 * time.Second, 60000, 66000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewProviderBackoff(tt.baseDelay, tt.maxDelay)

			for i := 0; i < tt.failures; i++ {
				b.RecordFailure("reuters-world")
			}

			fc, nextAllowed := b.GetState("reuters-world")
			if fc != tt.failures {
				t.Errorf("failureCount = %d, want %d", fc, tt.failures)
			}

			delayMs := time.Until(nextAllowed).Milliseconds()

			// Allow some tolerance for jitter and timing
			if delayMs < tt.wantMinMs || delayMs > tt.wantMaxMs {
				t.Errorf("delay = %dms, want between %dms and %dms", delayMs, tt.wantMinMs, tt.wantMaxMs)
			}
		})
	}
}

func TestProviderBackoff_GradualRecovery(t *testing.T) {
	b := NewProviderBackoff(1*time.Second, 60*time.Second)

	b.RecordFailure("source")
	b.RecordFailure("source")
	b.RecordFailure("source")

	fc, _ := b.GetState("source")
	if fc != 3 {
		t.Errorf("after 3 failures, count = %d, want 3", fc)
	}

	// Each success walks one step back down
	b.RecordSuccess("source")
	fc, _ = b.GetState("source")
	if fc != 2 {
		t.Errorf("after 1 success, count = %d, want 2", fc)
	}

	b.RecordSuccess("source")
	b.RecordSuccess("source")
	fc, _ = b.GetState("source")
	if fc != 0 {
		t.Errorf("after full recovery, count = %d, want 0", fc)
	}
}

func TestProviderBackoff_IsolatedProviders(t *testing.T) {
	b := NewProviderBackoff(1*time.Second, 60*time.Second)

	b.RecordFailure("aljazeera-all")
	b.RecordFailure("aljazeera-all")

	fc1, _ := b.GetState("aljazeera-all")
	fc2, _ := b.GetState("bbc-world")

	if fc1 != 2 {
		t.Errorf("aljazeera-all failures = %d, want 2", fc1)
	}
	if fc2 != 0 {
		t.Errorf("bbc-world failures = %d, want 0 (isolated)", fc2)
	}
}

func TestProviderBackoff_Ready(t *testing.T) {
	b := NewProviderBackoff(time.Hour, 2*time.Hour)

	if !b.Ready("unknown") {
		t.Error("provider with no history must be ready")
	}

	b.RecordFailure("flaky")
	if b.Ready("flaky") {
		t.Error("provider inside its backoff window must not be ready")
	}

	b.RecordSuccess("flaky")
	if !b.Ready("flaky") {
		t.Error("fully recovered provider must be ready")
	}
}
