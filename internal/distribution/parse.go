package distribution

import (
	"strconv"
	"strings"
)

// ParseStoreIDs turns "1, 10, 11" into [1 10 11]. Tokens that are not integers are
// dropped.
func ParseStoreIDs(csv string) []int {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	ids := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			continue
		}
		ids = append(ids, n)
	}
	return ids
}

// FormatStoreIDs is the inverse of ParseStoreIDs.
func FormatStoreIDs(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ", ")
}
