package model

import (
	"fmt"
	"regexp"
	"strconv"
)

// floorRangePattern matches the "(#start-end)" marker embedded in an Event
// summary. The first match wins when a summary carries several.
var floorRangePattern = regexp.MustCompile(`\(#(\d+)-(\d+)\)`)

// FloorRange is the inclusive span of transcript floors an Event covers.
type FloorRange struct {
	Start int
	End   int
}

// Contains reports whether the floor falls inside the range.
func (r FloorRange) Contains(floor int) bool {
	return floor >= r.Start && floor <= r.End
}

// FormatFloorRange renders the marker an Event summary embeds.
func FormatFloorRange(start, end int) string {
	return fmt.Sprintf("(#%d-%d)", start, end)
}

// ParseFloorRange extracts the floor-range marker from an Event summary.
// The second return is false when no marker is present or it is degenerate
// (start > end).
func ParseFloorRange(summary string) (FloorRange, bool) {
	m := floorRangePattern.FindStringSubmatch(summary)
	if m == nil {
		return FloorRange{}, false
	}

	start, err := strconv.Atoi(m[1])
	if err != nil {
		return FloorRange{}, false
	}
	end, err := strconv.Atoi(m[2])
	if err != nil {
		return FloorRange{}, false
	}
	if start > end {
		return FloorRange{}, false
	}

	return FloorRange{Start: start, End: end}, true
}
