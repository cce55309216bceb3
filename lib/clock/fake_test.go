// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock_test

import (
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/depot/lib/clock"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeIsFrozen(t *testing.T) {
	c := clock.Fake(epoch)
	if !c.Now().Equal(epoch) {
		t.Fatalf("Now: got %v, want %v", c.Now(), epoch)
	}
	if !c.Now().Equal(c.Now()) {
		t.Fatal("fake clock moved on its own")
	}
}

func TestAdvance(t *testing.T) {
	c := clock.Fake(epoch)
	c.Advance(90 * time.Second)
	want := epoch.Add(90 * time.Second)
	if !c.Now().Equal(want) {
		t.Fatalf("Now after Advance: got %v, want %v", c.Now(), want)
	}
}

func TestAdvanceNegativePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on negative Advance")
		}
	}()
	clock.Fake(epoch).Advance(-time.Second)
}

func TestSet(t *testing.T) {
	c := clock.Fake(epoch)
	later := epoch.AddDate(0, 1, 0)
	c.Set(later)
	if !c.Now().Equal(later) {
		t.Fatalf("Now after Set: got %v, want %v", c.Now(), later)
	}
}

func TestConcurrentUse(t *testing.T) {
	c := clock.Fake(epoch)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Advance(time.Millisecond)
				_ = c.Now()
			}
		}()
	}
	wg.Wait()
	want := epoch.Add(800 * time.Millisecond)
	if !c.Now().Equal(want) {
		t.Fatalf("Now after concurrent advances: got %v, want %v", c.Now(), want)
	}
}

func TestRealTracksWallClock(t *testing.T) {
	c := clock.Real()
	before := time.Now()
	got := c.Now()
	after := time.Now()
	if got.Before(before) || got.After(after) {
		t.Fatalf("Real().Now() = %v outside [%v, %v]", got, before, after)
	}
}
