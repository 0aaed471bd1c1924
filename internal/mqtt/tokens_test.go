package mqtt

import (
	"sync"
	"testing"
	"time"
)

func TestDailyUsage_Record(t *testing.T) {
	du := NewDailyUsage(time.UTC)
	du.OnTokens(100, 200)
	du.OnTokens(50, 75)

	input, output, requests := du.Snapshot()
	if input != 150 || output != 275 || requests != 2 {
		t.Errorf("got (%d, %d, %d), want (150, 275, 2)", input, output, requests)
	}
	if du.LastRequest().IsZero() {
		t.Error("LastRequest not set")
	}
}

func TestDailyUsage_ZeroInitially(t *testing.T) {
	du := NewDailyUsage(time.UTC)
	input, output, requests := du.Snapshot()
	if input != 0 || output != 0 || requests != 0 {
		t.Errorf("got (%d, %d, %d), want (0, 0, 0)", input, output, requests)
	}
	if !du.LastRequest().IsZero() {
		t.Error("LastRequest should be zero before any request")
	}
}

func TestDailyUsage_Concurrent(t *testing.T) {
	du := NewDailyUsage(time.UTC)
	var wg sync.WaitGroup

	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			du.OnTokens(10, 20)
		}()
	}
	wg.Wait()

	input, output, requests := du.Snapshot()
	if input != 1000 || output != 2000 || requests != 100 {
		t.Errorf("got (%d, %d, %d), want (1000, 2000, 100)", input, output, requests)
	}
}

func TestDailyUsage_MidnightRollover(t *testing.T) {
	clock := time.Date(2026, 12, 31, 23, 59, 0, 0, time.UTC)
	du := NewDailyUsage(time.UTC)
	du.now = func() time.Time { return clock }
	du.day = du.today()

	du.OnTokens(500, 600)

	// Year boundary: same day-of-year arithmetic would not catch this.
	clock = time.Date(2027, 1, 1, 0, 1, 0, 0, time.UTC)
	input, output, requests := du.Snapshot()
	if input != 0 || output != 0 || requests != 0 {
		t.Errorf("after rollover got (%d, %d, %d), want zeros", input, output, requests)
	}
}

func TestDailyUsage_NilLocation(t *testing.T) {
	du := NewDailyUsage(nil)
	if du.loc != time.Local {
		t.Error("nil location should default to time.Local")
	}
	du.OnTokens(1, 1)
	if input, _, _ := du.Snapshot(); input != 1 {
		t.Errorf("input = %d, want 1", input)
	}
}
