package payment

import (
	"sort"
	"sync"
	"testing"
	"time"
)

func Test_tokenClock_next(t *testing.T) {
	var c tokenClock
	now := time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC)
	millis := now.UnixNano() / int64(time.Millisecond)

	tests := []struct {
		name string
		now  time.Time
		want int64
	}{
		{name: "first tick", now: now, want: millis},
		{name: "same millisecond", now: now, want: millis + 1},
		{name: "clock went back", now: now.Add(-time.Second), want: millis + 2},
		{name: "clock moved on", now: now.Add(time.Second), want: millis + 1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.next(tt.now); got != tt.want {
				t.Errorf("next() = %d, want %d", got, tt.want)
			}
		})
	}

	id := "018e9a3c-5b40-7c1e-8f2a-3d9b7e4c1a0f"
	if got := receiptNumber(millis, id); got != "RCP-1711965600000-7E4C1A0F" {
		t.Errorf("receiptNumber() = %s", got)
	}
	if got := paymentReference(millis, id); got != "PAY-1711965600000-7E4C1A0F" {
		t.Errorf("paymentReference() = %s", got)
	}
}

func Test_receiptNumber_sameTickAcrossProcesses(t *testing.T) {
	// two processes with their own clock issue the same tick
	var a, b tokenClock
	now := time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC)
	tickA, tickB := a.next(now), b.next(now)
	if tickA != tickB {
		t.Fatalf("ticks differ: %d / %d", tickA, tickB)
	}

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		rcp := receiptNumber(tickA, newTransactionID())
		if seen[rcp] {
			t.Fatalf("receipt number %s issued twice", rcp)
		}
		seen[rcp] = true
		if len(rcp) > 32 {
			t.Fatalf("receipt number %s does not fit its column", rcp)
		}
	}
}

func Test_newTransactionID_timeOrdered(t *testing.T) {
	ids := make([]string, 0, 100)
	for i := 0; i < 100; i++ {
		ids = append(ids, newTransactionID())
	}
	if !sort.StringsAreSorted(ids) {
		t.Error("newTransactionID() ids are not time-ordered")
	}
}

func Test_keyedMutex(t *testing.T) {
	km := newKeyedMutex()
	a, b := 0, 0
	counters := map[string]*int{"a": &a, "b": &b}
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		for key := range counters {
			wg.Add(1)
			go func(key string) {
				defer wg.Done()
				unlock := km.Lock(key)
				defer unlock()
				*counters[key]++
			}(key)
		}
	}
	wg.Wait()

	if a != 50 || b != 50 {
		t.Errorf("lost updates: a=%d b=%d", a, b)
	}
	if n := km.size(); n != 0 {
		t.Errorf("size() = %d after all unlocks, want 0", n)
	}
}
