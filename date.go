package excelts

import (
	"math"
	"time"
)

var (
	epoch1900 = time.Date(1899, 12, 31, 0, 0, 0, 0, time.UTC)
	epoch1904 = time.Date(1904, 1, 1, 0, 0, 0, 0, time.UTC)
)

// SerialToTime converts a spreadsheet serial date number to a UTC time.
// Serial numbers count days since the workbook epoch, with the time of day
// in the fraction. The 1900 system carries a phantom leap day at serial 60:
// serials at or above it sit one day further from the epoch than a plain
// day count suggests. Serial 60 itself decodes as 1900-02-28.
func SerialToTime(serial float64, date1904 bool) time.Time {
	days := math.Floor(serial)
	frac := serial - days

	epoch := epoch1904
	if !date1904 {
		epoch = epoch1900
		if days >= 60 {
			days--
		}
	}
	t := epoch.AddDate(0, 0, int(days))
	// Round the day fraction to the nearest millisecond to absorb the float
	// representation of thirds of a second and similar.
	ms := math.Round(frac * 24 * 60 * 60 * 1000)
	return t.Add(time.Duration(ms) * time.Millisecond)
}

// TimeToSerial converts a time to a spreadsheet serial date number, using
// the wall-clock fields of t.
func TimeToSerial(t time.Time, date1904 bool) float64 {
	u := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(),
		t.Nanosecond(), time.UTC)

	epoch := epoch1904
	if !date1904 {
		epoch = epoch1900
	}
	serial := float64(u.Sub(epoch)) / float64(24*time.Hour)
	if !date1904 && serial >= 60 {
		serial++
	}
	return serial
}
