package ratelimit

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestTracker_Record(t *testing.T) {
	buf := &bytes.Buffer{}
	tracker := NewTracker(zerolog.New(buf))

	now := time.Now()
	tracker.Record(42, Signal{Wait: 2 * time.Second, FromHeader: true, ReceivedAt: now})

	if tracker.Count() != 1 {
		t.Errorf("Count() = %d, want 1", tracker.Count())
	}
	if got := tracker.Last(); got.Wait != 2*time.Second {
		t.Errorf("Last().Wait = %v, want 2s", got.Wait)
	}

	out := buf.String()
	if !strings.Contains(out, `"entry_id":42`) {
		t.Errorf("log output missing entry_id: %s", out)
	}
	if !strings.Contains(out, `"level":"warn"`) {
		t.Errorf("rate limit should be logged at warn: %s", out)
	}
}

func TestTracker_LastKeepsNewest(t *testing.T) {
	tracker := NewTracker(zerolog.Nop())
	now := time.Now()

	tracker.Record(1, Signal{Wait: time.Second, ReceivedAt: now})
	tracker.Record(2, Signal{Wait: 9 * time.Second, ReceivedAt: now.Add(-time.Minute)})

	if got := tracker.Last(); got.Wait != time.Second {
		t.Errorf("Last() should keep the newest signal, got %+v", got)
	}
}

func TestTracker_Concurrent(t *testing.T) {
	tracker := NewTracker(zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			tracker.Record(id, Signal{Wait: time.Second, ReceivedAt: time.Now()})
		}(i)
	}
	wg.Wait()

	if tracker.Count() != 100 {
		t.Errorf("Count() = %d, want 100", tracker.Count())
	}
}
