package util

import "time"

const isoDate = "2006-01-02"

// Today returns the current UTC date as an ISO date string.
func Today() string {
	return time.Now().UTC().Format(isoDate)
}

// DaysAgo returns the ISO date n calendar days before today (UTC).
func DaysAgo(n int) string {
	return time.Now().UTC().AddDate(0, 0, -n).Format(isoDate)
}

// YearsAgo returns the ISO date n calendar years before today (UTC).
func YearsAgo(n int) string {
	return time.Now().UTC().AddDate(-n, 0, 0).Format(isoDate)
}
