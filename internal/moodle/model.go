package moodle

import "time"

// MonthKey identifies one query unit against the Moodle calendar endpoint.
type MonthKey struct {
	Year  int
	Month time.Month
}

// MonthsInRange enumerates every calendar month whose span intersects
// [start, end], stepping by whole months from start's month to end's month
// inclusive. Day-of-month values do not affect the result.
func MonthsInRange(start, end time.Time) []MonthKey {
	var months []MonthKey
	cursor := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, time.UTC)
	for !cursor.After(last) {
		months = append(months, MonthKey{Year: cursor.Year(), Month: cursor.Month()})
		cursor = cursor.AddDate(0, 1, 0)
	}
	return months
}

// MonthData is the payload of one core_calendar_get_calendar_monthly_view
// call: a week -> day -> event tree.
//
// Integration contract v1: the AJAX endpoint wraps this payload in a JSON
// array of RPC envelopes. The array-wrapped form is the contract; a bare
// object is treated as a decode error rather than handled silently.
type MonthData struct {
	Weeks []Week `json:"weeks"`
}

// Week is one row of the monthly view.
type Week struct {
	Days []Day `json:"days"`
}

// Day holds the events of a single day. A missing events array contributes
// zero items.
type Day struct {
	Events []RawEvent `json:"events"`
}

// RawEvent is a leaf event as Moodle reports it.
type RawEvent struct {
	Name         string     `json:"name"`
	TimeStart    int64      `json:"timestart"`
	TimeDuration int64      `json:"timeduration"`
	Location     string     `json:"location"`
	Course       *RawCourse `json:"course"`
	Description  string     `json:"description"`
	URL          string     `json:"url"`
}

// RawCourse carries the course an event belongs to, when any.
type RawCourse struct {
	FullName string `json:"fullname"`
}
