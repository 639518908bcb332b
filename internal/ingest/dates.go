package ingest

import (
	"strconv"
	"time"
)

var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"01/02/2006",
	"01/02/2006 15:04",
}

// ParseDate reads a spreadsheet date: an Excel serial number or one of the common text
// layouts. Empty and unreadable values fall back to fallback.
func ParseDate(value string, fallback time.Time) time.Time {
	if value == "" {
		return fallback
	}
	if serial, err := strconv.ParseFloat(value, 64); err == nil {
		if serial <= 0 {
			return fallback
		}
		return excelEpoch.Add(time.Duration(serial * float64(24*time.Hour))).Round(time.Second)
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC()
		}
	}
	return fallback
}
