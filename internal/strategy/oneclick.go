package strategy

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"mailsweep/internal/model"
)

// oneClickBody is the fixed POST body RFC 8058 requires.
const oneClickBody = "List-Unsubscribe=One-Click"

// HeaderOneClick issues the one-click POST advertised by the
// List-Unsubscribe-Post header. No redirects: one-click endpoints must answer
// directly.
type HeaderOneClick struct {
	Client   *http.Client
	Throttle ThrottleReporter
}

func (s *HeaderOneClick) Name() string { return "header-one-click" }

func (s *HeaderOneClick) CanHandle(g *model.SenderGroup) bool {
	_, ok := firstRef(g, model.RefHeaderOneClick)
	return ok
}

func (s *HeaderOneClick) Attempt(ctx context.Context, g *model.SenderGroup) Outcome {
	u, ok := firstRef(g, model.RefHeaderOneClick)
	if !ok {
		return Outcome{Success: false, Detail: "no one-click reference"}
	}
	newReq := func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(),
			strings.NewReader(oneClickBody))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	}
	return doWithRetry(s.Client, s.Throttle, u, newReq)
}

// doWithRetry issues the request, retrying once on a transient failure
// (transport error or 5xx). Throttling responses are reported and fail the
// attempt without retrying.
func doWithRetry(client *http.Client, throttle ThrottleReporter, u *url.URL,
	newReq func() (*http.Request, error)) Outcome {

	var lastDetail string
	for try := 0; try < 2; try++ {
		req, err := newReq()
		if err != nil {
			return Outcome{Success: false, Detail: fmt.Sprintf("build request: %v", err)}
		}
		resp, err := client.Do(req)
		if err != nil {
			lastDetail = fmt.Sprintf("request failed: %v", err)
			continue // transient: retry once
		}
		resp.Body.Close()
		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return Outcome{Success: true, Detail: fmt.Sprintf("http %d", resp.StatusCode)}
		case resp.StatusCode == http.StatusTooManyRequests:
			if throttle != nil {
				throttle.Throttled(u.Hostname())
			}
			return Outcome{Success: false, Detail: "throttled (429)"}
		case resp.StatusCode >= 500:
			lastDetail = fmt.Sprintf("http %d", resp.StatusCode)
			continue // transient: retry once
		default:
			return Outcome{Success: false, Detail: fmt.Sprintf("http %d", resp.StatusCode)}
		}
	}
	return Outcome{Success: false, Detail: lastDetail}
}
