package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// scriptTokenPattern matches a sesskey assignment inside inline script text,
// e.g. `"sesskey":"AbC123xYz"` or `sesskey: 'AbC123xYz'`.
var scriptTokenPattern = regexp.MustCompile(`sesskey["']?\s*:\s*["']([a-zA-Z0-9]+)["']`)

// Observer watches a browser tab on the Moodle domain and publishes every
// sesskey it can recover to the shared State. Two independent paths feed it:
// a network-layer listener over all outbound requests, and on-demand DOM
// extraction after a page load. The network path extracts from request URLs
// and POST bodies; the DOM path reads Moodle's JS config, inline scripts and
// form inputs.
type Observer struct {
	state  *State
	host   string
	logger *slog.Logger
}

// NewObserver creates an Observer scoped to the host of sourceURL.
func NewObserver(state *State, sourceURL string, logger *slog.Logger) (*Observer, error) {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return nil, err
	}
	return &Observer{state: state, host: u.Host, logger: logger}, nil
}

// Attach registers the network-layer listener on a chromedp context. The
// caller is responsible for running network.Enable() on the same context.
func (o *Observer) Attach(ctx context.Context) {
	chromedp.ListenTarget(ctx, func(ev any) {
		req, ok := ev.(*network.EventRequestWillBeSent)
		if !ok {
			return
		}
		o.observeRequest(ctx, req)
	})
}

// observeRequest applies the extraction strategies in priority order to one
// outbound request: URL query parameter first, then the POST body. First
// match wins; the body is not inspected when the URL already carried a token.
func (o *Observer) observeRequest(ctx context.Context, ev *network.EventRequestWillBeSent) {
	u, err := url.Parse(ev.Request.URL)
	if err != nil || !strings.EqualFold(u.Host, o.host) {
		return
	}

	if token := TokenFromURL(ev.Request.URL); token != "" {
		o.publish(token, "request-url")
		return
	}

	if !ev.Request.HasPostData {
		return
	}

	// Fetching the body is a CDP round trip; do it off the event callback
	// so the listener never blocks target dispatch.
	requestID := ev.RequestID
	go func() {
		c := chromedp.FromContext(ctx)
		if c == nil || c.Target == nil {
			return
		}
		body, err := network.GetRequestPostData(requestID).Do(cdp.WithExecutor(ctx, c.Target))
		if err != nil {
			return
		}
		if token := TokenFromBody(body); token != "" {
			o.publish(token, "request-body")
		}
	}()
}

// ExtractFromPage tries the page-level strategies against the currently
// loaded document, in priority order: Moodle's M.cfg object, inline script
// text, then a form input named sesskey. Returns false when nothing matched.
func (o *Observer) ExtractFromPage(ctx context.Context) (string, bool) {
	var token string
	err := chromedp.Run(ctx,
		chromedp.Evaluate(`(window.M && M.cfg && M.cfg.sesskey) || ""`, &token))
	if err == nil && token != "" {
		o.publish(token, "page-config")
		return token, true
	}

	var scripts string
	err = chromedp.Run(ctx,
		chromedp.Evaluate(`Array.from(document.querySelectorAll("script")).map(s => s.textContent).join("\n")`, &scripts))
	if err == nil {
		if m := scriptTokenPattern.FindStringSubmatch(scripts); m != nil {
			o.publish(m[1], "inline-script")
			return m[1], true
		}
	}

	err = chromedp.Run(ctx,
		chromedp.Evaluate(`(document.querySelector('input[name="sesskey"]') || {value: ""}).value`, &token))
	if err == nil && token != "" {
		o.publish(token, "form-input")
		return token, true
	}

	return "", false
}

func (o *Observer) publish(token, via string) {
	o.logger.Debug("captured session token", "via", via)
	o.state.Set(token)
}

// TokenFromURL extracts a sesskey query parameter from a request URL.
// Returns "" when the URL has no such parameter.
func TokenFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Query().Get("sesskey")
}

// TokenFromBody extracts a sesskey field from an outbound request body.
// The body is parsed as JSON first; if that fails it is treated as
// form-encoded key/value pairs.
func TokenFromBody(body string) string {
	var fields map[string]any
	if err := json.Unmarshal([]byte(body), &fields); err == nil {
		if token, ok := fields["sesskey"].(string); ok {
			return token
		}
		return ""
	}

	values, err := url.ParseQuery(body)
	if err != nil {
		return ""
	}
	return values.Get("sesskey")
}
