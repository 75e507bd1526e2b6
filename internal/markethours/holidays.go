package markethours

import "time"

// NSE equity segment trading holidays. 2026 dates marked tentative by the
// exchange may move.
var nseHolidays = map[int][]struct {
	month time.Month
	day   int
}{
	2024: {
		{time.January, 22}, {time.January, 26}, {time.March, 8}, {time.March, 25},
		{time.March, 29}, {time.April, 11}, {time.April, 17}, {time.May, 1},
		{time.May, 20}, {time.June, 17}, {time.July, 17}, {time.August, 15},
		{time.October, 2}, {time.November, 1}, {time.November, 15}, {time.November, 20},
		{time.December, 25},
	},
	2025: {
		{time.February, 26}, {time.March, 14}, {time.March, 31}, {time.April, 10},
		{time.April, 14}, {time.April, 18}, {time.May, 1}, {time.August, 15},
		{time.August, 27}, {time.October, 2}, {time.October, 21}, {time.October, 22},
		{time.November, 5}, {time.December, 25},
	},
	2026: {
		{time.January, 26}, {time.February, 17}, {time.March, 14}, {time.March, 31},
		{time.April, 2}, {time.April, 6}, {time.April, 10}, {time.April, 14},
		{time.May, 1}, {time.June, 7}, {time.July, 6}, {time.August, 15},
		{time.August, 16}, {time.September, 5}, {time.October, 2}, {time.October, 20},
		{time.October, 21}, {time.November, 5}, {time.November, 6}, {time.November, 7},
		{time.November, 19}, {time.December, 25},
	},
}

func dateKey(t time.Time) string {
	return t.Format(time.DateOnly)
}
