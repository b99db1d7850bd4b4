// Package pages turns user page selections into page numbers and plans
// how a document is cut into contiguous groups.
package pages

import (
	"errors"
	"math"
	"sort"
	"strconv"
	"strings"
)

// ParseRange parses a selection such as "1-3, 5, 8-10" against a document
// with pageCount pages. Tokens that are not numbers, or that fall outside
// 1..pageCount, are dropped rather than reported. The result is sorted
// ascending with no duplicates and is empty (never nil) when nothing matches.
func ParseRange(input string, pageCount int) []int {
	seen := make(map[int]struct{})

	for _, part := range strings.Split(input, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if startStr, endStr, isPair := strings.Cut(part, "-"); isPair {
			// An open start ("-3") counts from the first page.
			start := 0
			if startStr = strings.TrimSpace(startStr); startStr != "" {
				n, err := atoiSaturated(startStr)
				if err != nil {
					continue
				}
				start = n
			}
			end, err := atoiSaturated(strings.TrimSpace(endStr))
			if err != nil {
				continue
			}
			for i := max(1, start); i <= min(pageCount, end); i++ {
				seen[i] = struct{}{}
			}
			continue
		}

		num, err := atoiSaturated(part)
		if err != nil {
			continue
		}
		if num >= 1 && num <= pageCount {
			seen[num] = struct{}{}
		}
	}

	selection := make([]int, 0, len(seen))
	for page := range seen {
		selection = append(selection, page)
	}
	sort.Ints(selection)
	return selection
}

// atoiSaturated is strconv.Atoi with out-of-range numbers clamped to the
// int limits instead of rejected.
func atoiSaturated(s string) (int, error) {
	n, err := strconv.Atoi(s)
	var numErr *strconv.NumError
	if errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrRange) {
		if strings.HasPrefix(s, "-") {
			return math.MinInt, nil
		}
		return math.MaxInt, nil
	}
	return n, err
}
