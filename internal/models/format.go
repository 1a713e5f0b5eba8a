package models

import "strconv"

// FormatFloat renders v with the shortest representation that round-trips,
// so 90 prints as "90" and 1000.5 as "1000.5".
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
