// Copyright 2026 The Composed Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

func TestFakeSleepAdvances(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fake := Fake(start)

	fake.Sleep(250 * time.Millisecond)
	fake.Sleep(250 * time.Millisecond)

	if got, want := fake.Now(), start.Add(500*time.Millisecond); !got.Equal(want) {
		t.Errorf("Now() = %v, want %v", got, want)
	}
	if got, want := fake.Slept(), 500*time.Millisecond; got != want {
		t.Errorf("Slept() = %v, want %v", got, want)
	}
}

func TestFakeSleepIgnoresNonPositive(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fake := Fake(start)

	fake.Sleep(0)
	fake.Sleep(-time.Second)

	if !fake.Now().Equal(start) {
		t.Errorf("Now() = %v, want unchanged %v", fake.Now(), start)
	}
}

func TestFakeAdvance(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fake := Fake(start)

	fake.Advance(3 * time.Second)

	if got, want := fake.Now(), start.Add(3*time.Second); !got.Equal(want) {
		t.Errorf("Now() = %v, want %v", got, want)
	}
	if fake.Slept() != 0 {
		t.Errorf("Advance must not count toward Slept, got %v", fake.Slept())
	}
}
