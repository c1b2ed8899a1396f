package sync

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/oauth2"

	"github.com/vhramos/moodle-calendar-sync/internal/event"
	"github.com/vhramos/moodle-calendar-sync/internal/moodle"
	"github.com/vhramos/moodle-calendar-sync/internal/session"
	"github.com/vhramos/moodle-calendar-sync/internal/uploader"
)

// DateRange is the caller-supplied sync window. End is treated as inclusive
// through 23:59:59.999 of its day. start <= end is the caller's
// responsibility.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// TokenAcquirer guarantees a Moodle session token before querying.
type TokenAcquirer interface {
	AcquireToken(ctx context.Context) (string, error)
	AcquireTokenWithNavigation(ctx context.Context) (string, error)
}

// MonthFetcher retrieves the raw monthly views for a set of months.
type MonthFetcher interface {
	FetchMonths(ctx context.Context, token string, months []moodle.MonthKey) ([]*moodle.MonthData, error)
}

// Authenticator supplies a validated sink access token.
type Authenticator interface {
	ValidToken(ctx context.Context) (*oauth2.Token, error)
}

// EventUploader delivers normalized events to the sink.
type EventUploader interface {
	Upload(ctx context.Context, events []event.Event, accessToken string) (*uploader.Result, error)
}

// Syncer sequences the pipeline: session bootstrap, per-month fan-out
// fetch, normalization, sink authentication, batched upload.
type Syncer struct {
	state    *session.State
	tokens   TokenAcquirer
	fetcher  MonthFetcher
	auth     Authenticator
	uploader EventUploader
	timeZone string
	logger   *slog.Logger
}

// NewSyncer creates a Syncer. timeZone labels normalized events; empty
// falls back to the Moodle default.
func NewSyncer(state *session.State, tokens TokenAcquirer, fetcher MonthFetcher,
	auth Authenticator, up EventUploader, timeZone string, logger *slog.Logger) *Syncer {
	return &Syncer{
		state:    state,
		tokens:   tokens,
		fetcher:  fetcher,
		auth:     auth,
		uploader: up,
		timeZone: timeZone,
		logger:   logger,
	}
}

// HandleSessionToken accepts an externally observed session token. It
// always overwrites the current value and unblocks any pending acquisition.
func (s *Syncer) HandleSessionToken(token string) {
	s.state.Set(token)
}

// Sync runs the whole pipeline for one date range. Any stage failure before
// the upload begins aborts the sync; once the upload starts, item failures
// are recorded in the Result instead.
func (s *Syncer) Sync(ctx context.Context, r DateRange) (*uploader.Result, error) {
	token, err := s.tokens.AcquireTokenWithNavigation(ctx)
	if err != nil {
		return nil, err
	}

	months := moodle.MonthsInRange(r.Start, r.End)
	s.logger.Info("fetching Moodle calendar", "months", len(months))

	raws, err := s.fetcher.FetchMonths(ctx, token, months)
	if err != nil {
		return nil, err
	}

	events := moodle.Normalize(raws, r.Start, r.End, s.timeZone)
	s.logger.Info("normalized events", "count", len(events))

	accessToken, err := s.auth.ValidToken(ctx)
	if err != nil {
		return nil, err
	}

	return s.uploader.Upload(ctx, events, accessToken.AccessToken)
}
