package pages

import (
	"fmt"

	"github.com/jupark12/docqueue/models"
)

// Group is a half-open, zero-based page interval [Start, End).
type Group struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of pages in the group.
func (g Group) Len() int {
	return g.End - g.Start
}

// Pages returns the 1-based page numbers covered by the group.
func (g Group) Pages() []int {
	nums := make([]int, 0, g.Len())
	for i := g.Start; i < g.End; i++ {
		nums = append(nums, i+1)
	}
	return nums
}

// Partition is an ordered, exhaustive, non-overlapping grouping of pages.
type Partition []Group

// Sizes returns the length of every group in order.
func (p Partition) Sizes() []int {
	sizes := make([]int, len(p))
	for i, g := range p {
		sizes[i] = g.Len()
	}
	return sizes
}

// ByGroupSize cuts totalPages into consecutive groups of groupSize pages;
// the last group holds whatever is left. A group size below 1 is rejected.
func ByGroupSize(totalPages, groupSize int) (Partition, error) {
	if groupSize < 1 {
		return nil, models.ValidationError(fmt.Sprintf("pages per file must be at least 1, got %d", groupSize), nil)
	}
	if totalPages < 0 {
		return nil, models.ValidationError(fmt.Sprintf("page count cannot be negative, got %d", totalPages), nil)
	}

	partition := make(Partition, 0, (totalPages+groupSize-1)/groupSize)
	for start := 0; start < totalPages; start += groupSize {
		partition = append(partition, Group{Start: start, End: min(start+groupSize, totalPages)})
	}
	return partition, nil
}

// ByPartCount sizes groups as ceil(totalPages/partCount) and delegates to
// ByGroupSize. The result can hold fewer than partCount groups, e.g. 7 pages
// in 5 parts gives groups of 2,2,2,1.
func ByPartCount(totalPages, partCount int) (Partition, error) {
	if partCount < 1 {
		return nil, models.ValidationError(fmt.Sprintf("number of parts must be at least 1, got %d", partCount), nil)
	}
	if totalPages == 0 {
		return Partition{}, nil
	}

	groupSize := (totalPages + partCount - 1) / partCount
	return ByGroupSize(totalPages, groupSize)
}
