// Copyright 2026 The Composed Authors
// SPDX-License-Identifier: Apache-2.0

package subid

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNoSuchID reports a lookup for a child ID that no range covers.
var ErrNoSuchID = errors.New("no such ID defined in the remapping table")

// Range maps the child-namespace IDs [ChildStart, ChildStart+Length)
// onto the parent-namespace IDs [ParentStart, ParentStart+Length).
type Range struct {
	ChildStart  int
	ParentStart int
	Length      int
}

// Map is an ordered remapping table. The zero value is the identity
// map: it covers nothing explicitly and translates every ID to itself.
type Map struct {
	ranges []Range
}

// FromRanges builds a Map from explicit ranges.
func FromRanges(ranges ...Range) Map {
	return Map{ranges: ranges}
}

// ParseProcMap parses the whitespace-separated triple format of
// /proc/<pid>/uid_map and gid_map: one "child parent length" line per
// range, blank lines ignored.
func ParseProcMap(text string) (Map, error) {
	var ranges []Range
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			return Map{}, fmt.Errorf("malformed id_map line %q: want 3 fields, got %d", line, len(fields))
		}
		r, err := parseRange(fields)
		if err != nil {
			return Map{}, fmt.Errorf("malformed id_map line %q: %w", line, err)
		}
		ranges = append(ranges, r)
	}
	return Map{ranges: ranges}, nil
}

// ParseInspectMap parses the "child:parent:length" entries podman
// inspect reports under HostConfig.IDMappings.UidMap and GidMap.
func ParseInspectMap(entries []string) (Map, error) {
	var ranges []Range
	for _, entry := range entries {
		fields := strings.Split(strings.TrimSpace(entry), ":")
		if len(fields) != 3 {
			return Map{}, fmt.Errorf("malformed idmap entry %q: want 3 colon-separated fields", entry)
		}
		r, err := parseRange(fields)
		if err != nil {
			return Map{}, fmt.Errorf("malformed idmap entry %q: %w", entry, err)
		}
		ranges = append(ranges, r)
	}
	return Map{ranges: ranges}, nil
}

func parseRange(fields []string) (Range, error) {
	values := make([]int, 3)
	for i, field := range fields {
		v, err := strconv.Atoi(field)
		if err != nil {
			return Range{}, err
		}
		if v < 0 {
			return Range{}, fmt.Errorf("negative value %d", v)
		}
		values[i] = v
	}
	return Range{ChildStart: values[0], ParentStart: values[1], Length: values[2]}, nil
}

// Empty reports whether the map carries no ranges, i.e. is the
// identity map.
func (m Map) Empty() bool { return len(m.ranges) == 0 }

// FindParentID translates a child-namespace ID to its parent-namespace
// ID. The empty map returns the input unchanged. A non-empty map with
// no covering range returns ErrNoSuchID: a child ID outside every
// declared range does not exist in the parent namespace, and guessing
// an owner would silently mismap ownership.
func (m Map) FindParentID(childID int) (int, error) {
	if m.Empty() {
		return childID, nil
	}
	for _, r := range m.ranges {
		if childID >= r.ChildStart && childID < r.ChildStart+r.Length {
			return r.ParentStart + childID - r.ChildStart, nil
		}
	}
	return 0, fmt.Errorf("child ID %d: %w", childID, ErrNoSuchID)
}

// Size returns the length of the largest range. Callers use this as an
// upper bound when placing a synthesized range above all explicit ones;
// it is deliberately not the sum of all range lengths.
func (m Map) Size() int {
	largest := 0
	for _, r := range m.ranges {
		if r.Length > largest {
			largest = r.Length
		}
	}
	return largest
}
