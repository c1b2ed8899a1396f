package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vhramos/moodle-calendar-sync/internal/googleauth"
	"github.com/vhramos/moodle-calendar-sync/internal/moodle"
	"github.com/vhramos/moodle-calendar-sync/internal/session"
	"github.com/vhramos/moodle-calendar-sync/internal/uploader"
)

// Control actions accepted from the presentation layer.
const (
	ActionStartSync       = "start-sync"
	ActionGetSessionToken = "get-session-token"
)

// Response statuses.
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusError   = "error"
)

// dateLayout is the wire format of the control-message date strings.
const dateLayout = "2006-01-02"

// Dates carries the requested sync window as date strings.
type Dates struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Request is an inbound control message.
type Request struct {
	Action string `json:"action"`
	Dates  *Dates `json:"dates,omitempty"`
}

// Response is the aggregate outcome reported back to the caller.
type Response struct {
	Status  string           `json:"status"`
	Message string           `json:"message"`
	Details *uploader.Result `json:"details,omitempty"`
	Sesskey string           `json:"sesskey,omitempty"`
}

// Dispatch routes one control message to the pipeline and maps its outcome
// onto the status/message/details contract.
func (s *Syncer) Dispatch(ctx context.Context, req Request) Response {
	switch req.Action {
	case ActionStartSync:
		return s.handleStartSync(ctx, req)
	case ActionGetSessionToken:
		return s.handleGetSessionToken(ctx)
	default:
		return Response{Status: StatusError, Message: fmt.Sprintf("unknown action %q", req.Action)}
	}
}

func (s *Syncer) handleStartSync(ctx context.Context, req Request) Response {
	if req.Dates == nil {
		return Response{Status: StatusError, Message: "start and end dates are required"}
	}
	start, err := time.Parse(dateLayout, req.Dates.Start)
	if err != nil {
		return Response{Status: StatusError, Message: fmt.Sprintf("invalid start date %q", req.Dates.Start)}
	}
	end, err := time.Parse(dateLayout, req.Dates.End)
	if err != nil {
		return Response{Status: StatusError, Message: fmt.Sprintf("invalid end date %q", req.Dates.End)}
	}

	result, err := s.Sync(ctx, DateRange{Start: start, End: end})
	if err != nil {
		return Response{Status: StatusError, Message: classify(err)}
	}

	if result.Partial() {
		return Response{
			Status: StatusPartial,
			Message: fmt.Sprintf("Synced %d of %d events (%d failed)",
				result.Successful, result.Total, result.Failed),
			Details: result,
		}
	}
	return Response{
		Status:  StatusSuccess,
		Message: fmt.Sprintf("Sync successful! %d events added", result.Successful),
		Details: result,
	}
}

func (s *Syncer) handleGetSessionToken(ctx context.Context) Response {
	token, err := s.tokens.AcquireToken(ctx)
	if err != nil {
		return Response{Status: StatusError, Message: classify(err)}
	}
	return Response{Status: StatusSuccess, Sesskey: token}
}

// classify maps a pipeline failure onto its user-facing message. Typed
// errors carry their own remediation text; anything else is wrapped.
func classify(err error) string {
	var timeoutErr *session.TimeoutError
	if errors.As(err, &timeoutErr) {
		return timeoutErr.Error()
	}
	var authErr *googleauth.AuthError
	if errors.As(err, &authErr) {
		return authErr.Error()
	}
	var transportErr *moodle.TransportError
	if errors.As(err, &transportErr) {
		return transportErr.Error()
	}
	return fmt.Sprintf("Error: %v", err)
}
