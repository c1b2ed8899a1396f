package moodle

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func monthResponse(weeks int) string {
	data := MonthData{}
	for i := 0; i < weeks; i++ {
		data.Weeks = append(data.Weeks, Week{})
	}
	payload, _ := json.Marshal([]rpcEnvelope{{Data: data}})
	return string(payload)
}

func TestFetchMonthRequestShape(t *testing.T) {
	var gotURL, gotCookie string
	var gotBody []rpcCall

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotURL = r.URL.String()
		if c, err := r.Cookie("MoodleSession"); err == nil {
			gotCookie = c.Value
		}
		raw, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(raw, &gotBody); err != nil {
			t.Errorf("request body is not an RPC array: %v", err)
		}
		io.WriteString(w, monthResponse(5))
	}))
	defer server.Close()

	client := NewClient(server.URL, "cookie-value", server.Client(), slog.Default())
	data, err := client.FetchMonth(context.Background(), "AbC123", 2025, time.March)
	if err != nil {
		t.Fatalf("FetchMonth returned error: %v", err)
	}
	if len(data.Weeks) != 5 {
		t.Errorf("expected 5 weeks, got %d", len(data.Weeks))
	}

	wantURL := "/lib/ajax/service.php?sesskey=AbC123&info=core_calendar_get_calendar_monthly_view"
	if gotURL != wantURL {
		t.Errorf("request URL: got %q, want %q", gotURL, wantURL)
	}
	if gotCookie != "cookie-value" {
		t.Errorf("session cookie: got %q", gotCookie)
	}
	if len(gotBody) != 1 {
		t.Fatalf("expected 1 RPC descriptor, got %d", len(gotBody))
	}
	call := gotBody[0]
	if call.MethodName != "core_calendar_get_calendar_monthly_view" {
		t.Errorf("methodname: got %q", call.MethodName)
	}
	wantArgs := monthViewArgs{Year: 2025, Month: 3, CourseID: 1, Day: 1, View: "month"}
	if call.Args != wantArgs {
		t.Errorf("args: got %+v, want %+v", call.Args, wantArgs)
	}
}

func TestFetchMonthEnvelopeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[{"error":true,"exception":{"message":"Invalid sesskey","errorcode":"invalidsesskey"}}]`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "cookie", server.Client(), slog.Default())
	_, err := client.FetchMonth(context.Background(), "stale", 2025, time.March)

	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if transportErr.Message != "Invalid sesskey" {
		t.Errorf("expected upstream message preserved, got %q", transportErr.Message)
	}
}

func TestFetchMonthNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		io.WriteString(w, `{"error":"maintenance mode"}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "cookie", server.Client(), slog.Default())
	_, err := client.FetchMonth(context.Background(), "AbC123", 2025, time.March)

	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if transportErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status code: got %d", transportErr.StatusCode)
	}
	if transportErr.Message != "maintenance mode" {
		t.Errorf("expected structured error body preferred, got %q", transportErr.Message)
	}
}

func TestFetchMonthBareObjectIsDecodeError(t *testing.T) {
	// The integration contract is the array-wrapped envelope. A bare object
	// must surface as a broken contract, not be handled silently.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"error":false,"data":{"weeks":[]}}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "cookie", server.Client(), slog.Default())
	_, err := client.FetchMonth(context.Background(), "AbC123", 2025, time.March)
	if err == nil {
		t.Fatal("expected decode error for bare-object response")
	}
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		t.Errorf("a contract break should not be classified as TransportError: %v", err)
	}
}

func TestFetchMonthsFanOut(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]int{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var calls []rpcCall
		json.Unmarshal(raw, &calls)
		mu.Lock()
		seen[monthLabel(calls[0].Args.Year, calls[0].Args.Month)]++
		mu.Unlock()
		// Weeks count encodes the month so ordering can be verified.
		io.WriteString(w, monthResponse(calls[0].Args.Month))
	}))
	defer server.Close()

	client := NewClient(server.URL, "cookie", server.Client(), slog.Default())
	months := MonthsInRange(date(2025, time.February, 20), date(2025, time.April, 3))

	results, err := client.FetchMonths(context.Background(), "AbC123", months)
	if err != nil {
		t.Fatalf("FetchMonths returned error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, key := range months {
		if len(results[i].Weeks) != int(key.Month) {
			t.Errorf("result %d out of order: %d weeks for month %d", i, len(results[i].Weeks), int(key.Month))
		}
	}
	for label, count := range seen {
		if count != 1 {
			t.Errorf("month %s requested %d times", label, count)
		}
	}
}

func TestFetchMonthsSingleFailureFailsAll(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var calls []rpcCall
		json.Unmarshal(raw, &calls)
		if calls[0].Args.Month == 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		io.WriteString(w, monthResponse(1))
	}))
	defer server.Close()

	client := NewClient(server.URL, "cookie", server.Client(), slog.Default())
	months := MonthsInRange(date(2025, time.February, 1), date(2025, time.April, 30))

	_, err := client.FetchMonths(context.Background(), "AbC123", months)
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected TransportError from failed month, got %v", err)
	}
}

func monthLabel(year, month int) string {
	return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC).Format("2006-01")
}
