// Package cix talks to the forum service's JSON API.
package cix

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"

	"github.com/lu-zhengda/termcix/internal/provider"
)

// DefaultBaseURL is the production API endpoint.
const DefaultBaseURL = "https://api.cixonline.com/v2.0/cix.svc/"

// ErrUnauthorized means the service rejected the session credentials.
var ErrUnauthorized = errors.New("credentials rejected")

// Gateway performs raw requests against the API. Resources are paths
// relative to the base URL; results are JSON.
type Gateway struct {
	base   *url.URL
	client *http.Client
	log    *logrus.Entry
}

// NewGateway returns a gateway that authenticates every request with
// tokens from ts. A nil ts sends requests unauthenticated.
func NewGateway(baseURL string, ts oauth2.TokenSource) (*Gateway, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse base url %q: %w", baseURL, err)
	}

	var transport http.RoundTripper = http.DefaultTransport
	if ts != nil {
		transport = &oauth2.Transport{Source: ts, Base: transport}
	}
	return &Gateway{
		base: base,
		client: &http.Client{
			Transport: otelhttp.NewTransport(transport),
			Timeout:   60 * time.Second,
		},
		log: logrus.WithField("pkg", "cix"),
	}, nil
}

// errorBody is the JSON error envelope returned with non-2xx statuses.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Fetch reads a resource and decodes the result into out.
func (g *Gateway) Fetch(ctx context.Context, resource string, query url.Values, out any) error {
	u := g.base.JoinPath(resource)
	u.RawQuery = query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", resource, err)
	}
	return g.do(req, resource, out)
}

// Submit posts payload to a resource and decodes the result into out. A
// nil out discards the result.
func (g *Gateway) Submit(ctx context.Context, resource string, payload, out any) error {
	var body io.Reader = http.NoBody
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode payload for %s: %w", resource, err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.base.JoinPath(resource).String(), body)
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", resource, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return g.do(req, resource, out)
}

func (g *Gateway) do(req *http.Request, resource string, out any) error {
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return ctxErr
		}
		g.log.WithError(err).WithField("resource", resource).Debug("Request failed")
		return fmt.Errorf("%w: %s: %v", provider.ErrOffline, resource, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read %s: %v", provider.ErrOffline, resource, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp.StatusCode, resource, data)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: malformed result from %s: %v", provider.ErrServer, resource, err)
	}
	return nil
}

// statusError translates an HTTP status and the service's result code into
// the provider error taxonomy.
func statusError(status int, resource string, data []byte) error {
	var body errorBody
	_ = json.Unmarshal(data, &body)

	var kind error
	switch body.Code {
	case "NoSuchForum":
		kind = provider.ErrNoSuchForum
	case "NoSuchUser":
		kind = provider.ErrNoSuchUser
	case "JoinFailed":
		kind = provider.ErrJoinFailed
	case "ResignFailed":
		kind = provider.ErrResignFailed
	}
	if kind == nil {
		switch {
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			return fmt.Errorf("%w: %s: %w", provider.ErrServer, resource, ErrUnauthorized)
		case status == http.StatusNotFound || status == http.StatusGone:
			kind = provider.ErrNotFound
		case status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable:
			kind = provider.ErrBusy
		default:
			kind = provider.ErrServer
		}
	}

	msg := body.Message
	if msg == "" {
		msg = http.StatusText(status)
	}
	return fmt.Errorf("%w: %s: %s", kind, resource, msg)
}
