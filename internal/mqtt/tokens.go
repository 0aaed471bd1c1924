package mqtt

import (
	"sync"
	"time"
)

// DailyUsage accumulates LLM token counts for the current local day.
// It is safe for concurrent use; the agent loop reports into it after
// every chat round.
type DailyUsage struct {
	mu       sync.Mutex
	input    int64
	output   int64
	requests int64
	day      string // 2006-01-02 of the running totals
	last     time.Time
	loc      *time.Location
	now      func() time.Time
}

// NewDailyUsage creates an accumulator that rolls over at midnight in
// loc. A nil loc means [time.Local].
func NewDailyUsage(loc *time.Location) *DailyUsage {
	if loc == nil {
		loc = time.Local
	}
	d := &DailyUsage{loc: loc, now: time.Now}
	d.day = d.today()
	return d
}

func (d *DailyUsage) today() string {
	return d.now().In(d.loc).Format("2006-01-02")
}

// OnTokens records one completed LLM request.
func (d *DailyUsage) OnTokens(inputTokens, outputTokens int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.rollover()
	d.input += int64(inputTokens)
	d.output += int64(outputTokens)
	d.requests++
	d.last = d.now()
}

// Snapshot returns today's input tokens, output tokens, and request
// count.
func (d *DailyUsage) Snapshot() (input, output, requests int64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.rollover()
	return d.input, d.output, d.requests
}

// LastRequest returns when the most recent request was recorded, or the
// zero time if none has been.
func (d *DailyUsage) LastRequest() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

// rollover zeroes the totals on a new day. Must be called with d.mu held.
func (d *DailyUsage) rollover() {
	if today := d.today(); today != d.day {
		d.input, d.output, d.requests = 0, 0, 0
		d.day = today
	}
}
