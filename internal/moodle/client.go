package moodle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	ajaxPath        = "/lib/ajax/service.php"
	monthViewMethod = "core_calendar_get_calendar_monthly_view"
)

// TransportError is a network-level failure or non-2xx response from the
// Moodle endpoint. The upstream message is preserved when one is available.
type TransportError struct {
	StatusCode int
	Message    string
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("moodle request failed with status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("moodle request failed: %s", e.Message)
}

// rpcCall is one descriptor in the AJAX request body.
type rpcCall struct {
	Index      int           `json:"index"`
	MethodName string        `json:"methodname"`
	Args       monthViewArgs `json:"args"`
}

// monthViewArgs carries the fixed argument set the monthly-view method
// expects. courseid, day and view never vary.
type monthViewArgs struct {
	Year     int    `json:"year"`
	Month    int    `json:"month"`
	CourseID int    `json:"courseid"`
	Day      int    `json:"day"`
	View     string `json:"view"`
}

// rpcEnvelope is one element of the array-wrapped AJAX response.
type rpcEnvelope struct {
	Error     bool          `json:"error"`
	Exception *rpcException `json:"exception"`
	Data      MonthData     `json:"data"`
}

type rpcException struct {
	Message   string `json:"message"`
	ErrorCode string `json:"errorcode"`
}

// Client issues authenticated calls against a Moodle instance. Session
// identity travels as the MoodleSession cookie; the sesskey security token
// is a URL query parameter supplied per call.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	sessionCookie string
	logger        *slog.Logger
}

// NewClient creates a Moodle client for the given base URL and session
// cookie value. A nil httpClient falls back to a default with a timeout.
func NewClient(baseURL, sessionCookie string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		httpClient:    httpClient,
		baseURL:       strings.TrimRight(baseURL, "/"),
		sessionCookie: sessionCookie,
		logger:        logger,
	}
}

// FetchMonth retrieves the monthly view for one year/month pair. There is
// no retry at this layer; failures propagate to the orchestrator.
func (c *Client) FetchMonth(ctx context.Context, token string, year int, month time.Month) (*MonthData, error) {
	body, err := json.Marshal([]rpcCall{{
		Index:      0,
		MethodName: monthViewMethod,
		Args: monthViewArgs{
			Year:     year,
			Month:    int(month),
			CourseID: 1,
			Day:      1,
			View:     "month",
		},
	}})
	if err != nil {
		return nil, fmt.Errorf("failed to encode month request: %w", err)
	}

	endpoint := fmt.Sprintf("%s%s?sesskey=%s&info=%s",
		c.baseURL, ajaxPath, url.QueryEscape(token), monthViewMethod)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build month request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: "MoodleSession", Value: c.sessionCookie})

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Message: err.Error()}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{StatusCode: resp.StatusCode, Message: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TransportError{StatusCode: resp.StatusCode, Message: upstreamMessage(payload)}
	}

	var envelopes []rpcEnvelope
	if err := json.Unmarshal(payload, &envelopes); err != nil {
		return nil, fmt.Errorf("unexpected moodle response shape: %w", err)
	}
	if len(envelopes) == 0 {
		return nil, fmt.Errorf("moodle response contained no envelopes")
	}

	envelope := envelopes[0]
	if envelope.Error {
		msg := "unspecified moodle error"
		if envelope.Exception != nil && envelope.Exception.Message != "" {
			msg = envelope.Exception.Message
		}
		return nil, &TransportError{StatusCode: resp.StatusCode, Message: msg}
	}

	c.logger.Debug("fetched month", "year", year, "month", int(month), "weeks", len(envelope.Data.Weeks))
	return &envelope.Data, nil
}

// FetchMonths requests every month concurrently and joins before returning.
// Results are ordered to match the months argument; any single failure
// fails the whole fan-out.
func (c *Client) FetchMonths(ctx context.Context, token string, months []MonthKey) ([]*MonthData, error) {
	results := make([]*MonthData, len(months))

	g, gctx := errgroup.WithContext(ctx)
	for i, key := range months {
		g.Go(func() error {
			data, err := c.FetchMonth(gctx, token, key.Year, key.Month)
			if err != nil {
				return fmt.Errorf("month %d-%02d: %w", key.Year, int(key.Month), err)
			}
			results[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// upstreamMessage prefers a structured error body over raw text.
func upstreamMessage(payload []byte) string {
	var structured struct {
		Error     string `json:"error"`
		Exception *struct {
			Message string `json:"message"`
		} `json:"exception"`
	}
	if err := json.Unmarshal(payload, &structured); err == nil {
		if structured.Exception != nil && structured.Exception.Message != "" {
			return structured.Exception.Message
		}
		if structured.Error != "" {
			return structured.Error
		}
	}
	text := strings.TrimSpace(string(payload))
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}
