package strategy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"mailsweep/internal/model"
)

var (
	errTooManyRedirects = errors.New("too many redirects")
	errRedirectHijack   = errors.New("redirect left the original domain")
)

const maxRedirectHops = 3

// DirectLink drives plain HTTP unsubscribe links: GET first, one retry with
// POST on method-not-allowed, at most three redirect hops, and an abort if a
// redirect leaves the link's domain.
type DirectLink struct {
	Client   *http.Client
	Throttle ThrottleReporter
}

func (s *DirectLink) Name() string { return "direct-link" }

func (s *DirectLink) CanHandle(g *model.SenderGroup) bool {
	_, ok := firstRef(g, model.RefHTTPLink)
	return ok
}

func (s *DirectLink) Attempt(ctx context.Context, g *model.SenderGroup) Outcome {
	u, ok := firstRef(g, model.RefHTTPLink)
	if !ok {
		return Outcome{Success: false, Detail: "no http reference"}
	}

	client := s.redirectGuardedClient(u)

	out, methodNotAllowed := s.tryMethod(ctx, client, u, http.MethodGet)
	if out.Success || !methodNotAllowed {
		return out
	}
	// Alternate method, once.
	out, _ = s.tryMethod(ctx, client, u, http.MethodPost)
	return out
}

// tryMethod issues the request with one transient retry. The second return
// is true when the server answered 405, signalling the alternate-method
// retry.
func (s *DirectLink) tryMethod(ctx context.Context, client *http.Client, u *url.URL, method string) (Outcome, bool) {
	var lastDetail string
	for try := 0; try < 2; try++ {
		req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
		if err != nil {
			return Outcome{Success: false, Detail: fmt.Sprintf("build request: %v", err)}, false
		}
		resp, err := client.Do(req)
		if err != nil {
			if errors.Is(err, errRedirectHijack) || errors.Is(err, errTooManyRedirects) {
				return Outcome{Success: false, Detail: fmt.Sprintf("%s %s: %v", method, u.Hostname(), unwrapURLError(err))}, false
			}
			lastDetail = fmt.Sprintf("%s failed: %v", method, err)
			continue // transient
		}
		resp.Body.Close()
		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return Outcome{Success: true, Detail: fmt.Sprintf("%s http %d", method, resp.StatusCode)}, false
		case resp.StatusCode == http.StatusMethodNotAllowed:
			return Outcome{Success: false, Detail: "http 405"}, true
		case resp.StatusCode == http.StatusTooManyRequests:
			if s.Throttle != nil {
				s.Throttle.Throttled(u.Hostname())
			}
			return Outcome{Success: false, Detail: "throttled (429)"}, false
		case resp.StatusCode >= 500:
			lastDetail = fmt.Sprintf("%s http %d", method, resp.StatusCode)
			continue // transient
		default:
			return Outcome{Success: false, Detail: fmt.Sprintf("%s http %d", method, resp.StatusCode)}, false
		}
	}
	return Outcome{Success: false, Detail: lastDetail}, false
}

// redirectGuardedClient copies the strategy's client with a redirect policy
// bound to the link's domain.
func (s *DirectLink) redirectGuardedClient(origin *url.URL) *http.Client {
	base := s.Client
	if base == nil {
		base = &http.Client{Timeout: DefaultTimeout}
	}
	originHost := origin.Hostname()
	return &http.Client{
		Transport: base.Transport,
		Timeout:   base.Timeout,
		Jar:       base.Jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			// via includes the original request, so the nth redirect hop
			// sees len(via) == n.
			if len(via) > maxRedirectHops {
				return errTooManyRedirects
			}
			if !sameDomain(originHost, req.URL.Hostname()) {
				return errRedirectHijack
			}
			return nil
		},
	}
}

// sameDomain compares hosts by their last two labels, so a hop from
// links.example.com to www.example.com is fine but example.com to evil.net
// is not.
func sameDomain(a, b string) bool {
	return baseDomain(a) == baseDomain(b)
}

func baseDomain(host string) string {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	labels := strings.Split(host, ".")
	if len(labels) <= 2 {
		return host
	}
	return strings.Join(labels[len(labels)-2:], ".")
}

// unwrapURLError strips the *url.Error wrapper so redirect-policy details
// read cleanly in the ledger.
func unwrapURLError(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return ue.Err
	}
	return err
}
