package uploader

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/vhramos/moodle-calendar-sync/internal/event"
)

// GoogleInserter creates events on the user's primary Google calendar.
type GoogleInserter struct {
	service *calendar.Service
}

// NewGoogleInserter builds a Calendar API client authenticated with the
// given access token.
func NewGoogleInserter(ctx context.Context, accessToken string) (*GoogleInserter, error) {
	source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
	service, err := calendar.NewService(ctx, option.WithTokenSource(source))
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return &GoogleInserter{service: service}, nil
}

// Insert creates one event. Every created entry gets default reminder
// settings and a source reference back to the Moodle entry.
func (g *GoogleInserter) Insert(ctx context.Context, ev event.Event) error {
	entry := &calendar.Event{
		Summary:     ev.Summary,
		Location:    ev.Location,
		Description: ev.Description,
		Start: &calendar.EventDateTime{
			DateTime: ev.Start.Time.Format(time.RFC3339),
			TimeZone: ev.Start.TimeZone,
		},
		End: &calendar.EventDateTime{
			DateTime: ev.End.Time.Format(time.RFC3339),
			TimeZone: ev.End.TimeZone,
		},
		Reminders: &calendar.EventReminders{
			UseDefault:      true,
			ForceSendFields: []string{"UseDefault"},
		},
		Source: &calendar.EventSource{
			Title: ev.Source.Title,
			Url:   ev.Source.URL,
		},
	}

	_, err := g.service.Events.Insert("primary", entry).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}
