package distribution

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) time.Time {
	return time.Date(2025, 3, d, 9, 0, 0, 0, time.UTC)
}

func TestGroupLinesKeepsFirstAppearanceOrder(t *testing.T) {
	lines := []OrderLine{
		{ExternalOrderID: "B", OrderName: "#2", OrderDate: day(2), SKU: "s1", Quantity: 1},
		{ExternalOrderID: "A", OrderName: "#1", OrderDate: day(1), SKU: "s2", Quantity: 2},
		{ExternalOrderID: "B", OrderName: "ignored", OrderDate: day(9), SKU: "s3", Quantity: 4},
	}
	groups := GroupLines(lines)
	require.Len(t, groups, 2)

	assert.Equal(t, "B", groups[0].ExternalOrderID)
	assert.Equal(t, "#2", groups[0].OrderName)
	assert.Equal(t, day(2), groups[0].OrderDate)
	assert.Equal(t, 5, groups[0].TotalUnits)
	require.Len(t, groups[0].Items, 2)
	assert.Equal(t, "s1", groups[0].Items[0].SKU)
	assert.Equal(t, "s3", groups[0].Items[1].SKU)

	assert.Equal(t, "A", groups[1].ExternalOrderID)
	assert.Equal(t, 2, groups[1].TotalUnits)
}

func TestGroupLinesEmpty(t *testing.T) {
	assert.Empty(t, GroupLines(nil))
}

func TestRank(t *testing.T) {
	tests := []struct {
		name   string
		groups []OrderGroup
		want   []string
	}{
		{
			name: "more units first",
			groups: []OrderGroup{
				{ExternalOrderID: "small", TotalUnits: 1, OrderDate: day(1)},
				{ExternalOrderID: "big", TotalUnits: 5, OrderDate: day(3)},
			},
			want: []string{"big", "small"},
		},
		{
			name: "earlier date breaks ties",
			groups: []OrderGroup{
				{ExternalOrderID: "late", TotalUnits: 2, OrderDate: day(5)},
				{ExternalOrderID: "early", TotalUnits: 2, OrderDate: day(1)},
			},
			want: []string{"early", "late"},
		},
		{
			name: "full ties keep input order",
			groups: []OrderGroup{
				{ExternalOrderID: "first", TotalUnits: 2, OrderDate: day(1)},
				{ExternalOrderID: "second", TotalUnits: 2, OrderDate: day(1)},
				{ExternalOrderID: "third", TotalUnits: 2, OrderDate: day(1)},
				{ExternalOrderID: "top", TotalUnits: 3, OrderDate: day(7)},
			},
			want: []string{"top", "first", "second", "third"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Rank(tt.groups)
			got := make([]string, len(tt.groups))
			for i, g := range tt.groups {
				got[i] = g.ExternalOrderID
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseStoreIDs(t *testing.T) {
	tests := []struct {
		in   string
		want []int
	}{
		{"1, 10, 11, 12", []int{1, 10, 11, 12}},
		{" 23,20 ,x, 26,", []int{23, 20, 26}},
		{"7", []int{7}},
		{"", nil},
		{"abc", []int{}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseStoreIDs(tt.in), tt.in)
	}
	assert.Equal(t, "1, 10, 11", FormatStoreIDs([]int{1, 10, 11}))
}
