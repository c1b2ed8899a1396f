package uploader

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/vhramos/moodle-calendar-sync/internal/event"
)

const (
	defaultBatchSize   = 10
	defaultMaxAttempts = 3
	defaultBackoffStep = time.Second
)

// ValidationError reports a required field missing from an event. A
// validation failure fails that single item immediately, with no retry.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("event is missing required field %q", e.Field)
}

// FailedEvent pairs an event with the reason its creation failed.
type FailedEvent struct {
	Event event.Event
	Error string
}

// Result is the per-item accounting of one upload run.
type Result struct {
	Total        int
	Successful   int
	Failed       int
	FailedEvents []FailedEvent
}

// Partial reports whether the run completed with at least one failure,
// distinguishing it from total success.
func (r *Result) Partial() bool {
	return r.Failed > 0
}

// TokenValidator re-validates the access token before upload and supplies a
// fresh one when it no longer passes introspection.
type TokenValidator interface {
	Introspect(ctx context.Context, accessToken string) error
	ValidToken(ctx context.Context) (*oauth2.Token, error)
}

// Inserter creates one calendar entry at the sink.
type Inserter interface {
	Insert(ctx context.Context, ev event.Event) error
}

// Uploader delivers normalized events to the sink calendar in batches,
// with bounded per-item retry and partial-failure accounting. Batches run
// sequentially; items within a batch run concurrently, which caps in-flight
// requests at the batch size.
type Uploader struct {
	validator   TokenValidator
	newInserter func(ctx context.Context, accessToken string) (Inserter, error)
	logger      *slog.Logger

	batchSize   int
	maxAttempts int
	backoffStep time.Duration
	sleep       func(time.Duration)
}

// New creates an Uploader that inserts through the Google Calendar API.
func New(validator TokenValidator, logger *slog.Logger) *Uploader {
	return &Uploader{
		validator: validator,
		newInserter: func(ctx context.Context, accessToken string) (Inserter, error) {
			return NewGoogleInserter(ctx, accessToken)
		},
		logger:      logger,
		batchSize:   defaultBatchSize,
		maxAttempts: defaultMaxAttempts,
		backoffStep: defaultBackoffStep,
		sleep:       time.Sleep,
	}
}

// Upload creates every event at the sink and accounts for each outcome.
// A zero-length input returns an empty Result without any network call.
// Item failures never abort the run; the Result carries them all.
func (u *Uploader) Upload(ctx context.Context, events []event.Event, accessToken string) (*Result, error) {
	result := &Result{Total: len(events)}
	if len(events) == 0 {
		return result, nil
	}

	// Pre-flight: the token may have expired since authentication.
	if err := u.validator.Introspect(ctx, accessToken); err != nil {
		u.logger.Info("access token failed pre-flight validation, refreshing")
		token, err := u.validator.ValidToken(ctx)
		if err != nil {
			return nil, err
		}
		accessToken = token.AccessToken
	}

	inserter, err := u.newInserter(ctx, accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create sink client: %w", err)
	}

	for start := 0; start < len(events); start += u.batchSize {
		end := min(start+u.batchSize, len(events))
		batch := events[start:end]

		// Barrier: every item in this batch settles before the next starts.
		errs := make([]error, len(batch))
		var wg sync.WaitGroup
		for i, ev := range batch {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs[i] = u.uploadOne(ctx, inserter, ev)
			}()
		}
		wg.Wait()

		for i, itemErr := range errs {
			if itemErr != nil {
				result.Failed++
				result.FailedEvents = append(result.FailedEvents, FailedEvent{
					Event: batch[i],
					Error: itemErr.Error(),
				})
				u.logger.Warn("failed to create event", "summary", batch[i].Summary, "err", itemErr)
				continue
			}
			result.Successful++
		}
	}

	u.logger.Info("upload finished",
		"total", result.Total, "successful", result.Successful, "failed", result.Failed)
	return result, nil
}

// uploadOne validates and inserts a single event, retrying transport
// failures with linearly increasing backoff.
func (u *Uploader) uploadOne(ctx context.Context, inserter Inserter, ev event.Event) error {
	if err := validate(ev); err != nil {
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= u.maxAttempts; attempt++ {
		lastErr = inserter.Insert(ctx, ev)
		if lastErr == nil {
			return nil
		}
		if attempt < u.maxAttempts {
			u.sleep(time.Duration(attempt) * u.backoffStep)
		}
	}
	return fmt.Errorf("gave up after %d attempts: %w", u.maxAttempts, lastErr)
}

func validate(ev event.Event) error {
	if ev.Summary == "" {
		return &ValidationError{Field: "summary"}
	}
	if ev.Start.Time.IsZero() {
		return &ValidationError{Field: "start"}
	}
	if ev.End.Time.IsZero() {
		return &ValidationError{Field: "end"}
	}
	return nil
}
