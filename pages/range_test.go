package pages

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRange(t *testing.T) {
	tests := []struct {
		name      string
		selection string
		pageCount int
		want      []int
	}{
		{"empty", "", 5, []int{}},
		{"overlap collapses", "1-3,2", 5, []int{1, 2, 3}},
		{"clamps both ends", "0-10", 3, []int{1, 2, 3}},
		{"clamps start at zero", "0-5", 3, []int{1, 2, 3}},
		{"single out of range", "7", 3, []int{}},
		{"single beyond count", "5", 3, []int{}},
		{"reversed pair", "4-2", 5, []int{}},
		{"unsorted input", "5, 1, 3", 5, []int{1, 3, 5}},
		{"whitespace", "  2 - 3 ,  1 ", 5, []int{1, 2, 3}},
		{"garbage dropped", "abc, 2, x-4, 3-y", 5, []int{2}},
		{"open start", "-2", 5, []int{1, 2}},
		{"open end", "3-", 5, []int{}},
		{"repeated singles", "2,2,2", 5, []int{2}},
		{"zero pages", "1-3", 0, []int{}},
		{"overflowing end clamps", "1-99999999999999999999", 3, []int{1, 2, 3}},
		{"overflowing start selects nothing", "99999999999999999999-2", 3, []int{}},
		{"overflowing single dropped", "99999999999999999999, 2", 3, []int{2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseRange(tt.selection, tt.pageCount))
		})
	}
}

func TestParseRange_Invariants(t *testing.T) {
	selections := []string{"", "1", "1-100", "3,1,2,2,1-4", "0-0", "-5-3", "9-1,8", "1,,2", "10-20, 15-25, 1", "2-99999999999999999999"}
	for _, selection := range selections {
		for pageCount := 0; pageCount <= 30; pageCount++ {
			got := ParseRange(selection, pageCount)
			for i, page := range got {
				assert.GreaterOrEqual(t, page, 1, "selection %q count %d", selection, pageCount)
				assert.LessOrEqual(t, page, pageCount, "selection %q count %d", selection, pageCount)
				if i > 0 {
					assert.Greater(t, page, got[i-1], "selection %q count %d", selection, pageCount)
				}
			}
		}
	}
}
