package trackers

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Appsum/JackettCore/internal/indexer"
)

var sizeUnits = map[string]int64{
	"B":   1,
	"KB":  1 << 10,
	"KIB": 1 << 10,
	"MB":  1 << 20,
	"MIB": 1 << 20,
	"GB":  1 << 30,
	"GIB": 1 << 30,
	"TB":  1 << 40,
	"TIB": 1 << 40,
}

// parseSize converts a human size string like "1.4 GB" or "700 MiB" to bytes.
func parseSize(s string) (int64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return 0, fmt.Errorf("unrecognized size %q", s)
	}
	value, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, fmt.Errorf("unrecognized size %q", s)
	}
	unit, ok := sizeUnits[strings.ToUpper(fields[1])]
	if !ok {
		return 0, fmt.Errorf("unrecognized size unit %q", fields[1])
	}
	return int64(value * float64(unit)), nil
}

var dateLayouts = []string{
	time.RFC3339,
	"Jan 02 2006, 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// parseDate tries the date formats the supported sites are known to emit.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// cleanNumber strips thousands separators and whitespace from a numeric cell.
func cleanNumber(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ',', ' ', '\n', '\t', ' ':
			return -1
		}
		return r
	}, s)
}

// nativeCategories translates the query's universal categories into the
// site's native IDs, deduplicated.
func nativeCategories(m *indexer.CategoryMap, universal []int) []int {
	seen := make(map[int]bool)
	var out []int
	for _, u := range universal {
		for _, native := range m.Native(u) {
			if !seen[native] {
				seen[native] = true
				out = append(out, native)
			}
		}
	}
	return out
}
