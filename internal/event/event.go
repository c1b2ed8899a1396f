package event

import "time"

// DateTime pairs an absolute instant with the IANA time zone label used for
// display at the sink. The label does not alter the instant.
type DateTime struct {
	Time     time.Time
	TimeZone string
}

// SourceRef points back at the originating Moodle entry.
type SourceRef struct {
	Title string
	URL   string
}

// Event is a sink-ready calendar entry produced by normalization.
type Event struct {
	Summary     string
	Location    string
	Start       DateTime
	End         DateTime
	Description string
	Source      SourceRef
}
