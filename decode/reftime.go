package decode

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/soniakeys/meeus/v3/julian"
)

// ParseReferenceTime parses a run header's reference time, given as
// "yyyy/ddd hh:mm:ss" (day-of-year, UTC), into a time.Time.
func ParseReferenceTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}

	fields := strings.Fields(s)
	if len(fields) != 2 {
		return time.Time{}, fmt.Errorf("decode: malformed reference time %q", s)
	}

	datePart := strings.SplitN(fields[0], "/", 2)
	if len(datePart) != 2 {
		return time.Time{}, fmt.Errorf("decode: malformed reference date %q", fields[0])
	}
	year, err := strconv.Atoi(datePart[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("decode: malformed reference year %q: %w", datePart[0], err)
	}
	doy, err := strconv.Atoi(datePart[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("decode: malformed reference day-of-year %q: %w", datePart[1], err)
	}
	month, day := julian.DayOfYearToCalendar(doy, julian.LeapYearGregorian(year))

	hms := strings.Split(fields[1], ":")
	if len(hms) != 3 {
		return time.Time{}, fmt.Errorf("decode: malformed reference time-of-day %q", fields[1])
	}
	parts := make([]int, 3)
	for i, v := range hms {
		parts[i], err = strconv.Atoi(v)
		if err != nil {
			return time.Time{}, fmt.Errorf("decode: malformed reference time-of-day %q: %w", fields[1], err)
		}
	}

	return time.Date(year, time.Month(month), day, parts[0], parts[1], parts[2], 0, time.UTC), nil
}
