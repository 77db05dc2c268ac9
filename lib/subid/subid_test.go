// Copyright 2026 The Composed Authors
// SPDX-License-Identifier: Apache-2.0

package subid

import (
	"errors"
	"testing"
)

func TestFindParentID(t *testing.T) {
	m := FromRanges(Range{ChildStart: 0, ParentStart: 100, Length: 10})

	got, err := m.FindParentID(5)
	if err != nil {
		t.Fatalf("FindParentID(5): %v", err)
	}
	if got != 105 {
		t.Errorf("FindParentID(5) = %d, want 105", got)
	}
}

func TestFindParentIDOutsideRange(t *testing.T) {
	m := FromRanges(Range{ChildStart: 0, ParentStart: 100, Length: 10})

	if _, err := m.FindParentID(20); !errors.Is(err, ErrNoSuchID) {
		t.Errorf("FindParentID(20) err = %v, want ErrNoSuchID", err)
	}
	// Range bounds are half-open: length 10 starting at 0 covers 0..9.
	if _, err := m.FindParentID(10); !errors.Is(err, ErrNoSuchID) {
		t.Errorf("FindParentID(10) err = %v, want ErrNoSuchID", err)
	}
}

func TestEmptyMapIsIdentity(t *testing.T) {
	var m Map
	for _, id := range []int{0, 1, 1000, 65536} {
		got, err := m.FindParentID(id)
		if err != nil {
			t.Fatalf("FindParentID(%d): %v", id, err)
		}
		if got != id {
			t.Errorf("FindParentID(%d) = %d, want identity", id, got)
		}
	}
}

func TestFindParentIDSecondRange(t *testing.T) {
	m := FromRanges(
		Range{ChildStart: 0, ParentStart: 1, Length: 1000},
		Range{ChildStart: 1000, ParentStart: 0, Length: 1},
		Range{ChildStart: 1001, ParentStart: 1001, Length: 64536},
	)

	cases := []struct{ child, parent int }{
		{0, 1},
		{999, 1000},
		{1000, 0},
		{1001, 1001},
		{65535, 65535},
	}
	for _, c := range cases {
		got, err := m.FindParentID(c.child)
		if err != nil {
			t.Fatalf("FindParentID(%d): %v", c.child, err)
		}
		if got != c.parent {
			t.Errorf("FindParentID(%d) = %d, want %d", c.child, got, c.parent)
		}
	}
}

func TestParseProcMap(t *testing.T) {
	text := "         0       1000          1\n         1     100000      65536\n"
	m, err := ParseProcMap(text)
	if err != nil {
		t.Fatalf("ParseProcMap: %v", err)
	}

	got, err := m.FindParentID(0)
	if err != nil {
		t.Fatalf("FindParentID(0): %v", err)
	}
	if got != 1000 {
		t.Errorf("FindParentID(0) = %d, want 1000", got)
	}
	got, err = m.FindParentID(5)
	if err != nil {
		t.Fatalf("FindParentID(5): %v", err)
	}
	if got != 100004 {
		t.Errorf("FindParentID(5) = %d, want 100004", got)
	}
	if m.Size() != 65536 {
		t.Errorf("Size() = %d, want 65536", m.Size())
	}
}

func TestParseProcMapMalformed(t *testing.T) {
	for _, text := range []string{"0 1000", "a b c", "0 1000 -1"} {
		if _, err := ParseProcMap(text); err == nil {
			t.Errorf("ParseProcMap(%q) succeeded, want error", text)
		}
	}
}

func TestParseInspectMap(t *testing.T) {
	m, err := ParseInspectMap([]string{"0:1:1000", "1000:0:1"})
	if err != nil {
		t.Fatalf("ParseInspectMap: %v", err)
	}

	got, err := m.FindParentID(1000)
	if err != nil {
		t.Fatalf("FindParentID(1000): %v", err)
	}
	if got != 0 {
		t.Errorf("FindParentID(1000) = %d, want 0", got)
	}
}

func TestParseInspectMapMalformed(t *testing.T) {
	for _, entries := range [][]string{{"0:1"}, {"0:1:x"}, {"0:1:2:3"}} {
		if _, err := ParseInspectMap(entries); err == nil {
			t.Errorf("ParseInspectMap(%v) succeeded, want error", entries)
		}
	}
}

func TestSizeIsLargestNotSum(t *testing.T) {
	m := FromRanges(
		Range{ChildStart: 0, ParentStart: 0, Length: 100},
		Range{ChildStart: 100, ParentStart: 100, Length: 65536},
	)
	if m.Size() != 65536 {
		t.Errorf("Size() = %d, want 65536 (largest range, not the sum)", m.Size())
	}
	var empty Map
	if empty.Size() != 0 {
		t.Errorf("empty Size() = %d, want 0", empty.Size())
	}
}
