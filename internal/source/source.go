package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	appLog "epdcard/internal/log"
)

const (
	defaultTimeout  = 15 * time.Second
	maxDocumentSize = 1 << 20 // 1 MiB guard
	userAgent       = "epdcard/1.0"
)

// ErrStatus is matched (errors.Is) by StatusError.
var ErrStatus = errors.New("source: unexpected status")

// StatusError reports a response other than 200 OK.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("source: unexpected status %d (%s)", e.Code, strings.TrimSpace(e.Status))
}

func (e *StatusError) Is(target error) bool { return target == ErrStatus }

// Response is one raw fetch result.
type Response struct {
	StatusCode int
	Status     string
	Body       []byte
	FetchedAt  time.Time
}

// OK reports whether the response may be parsed.
func (r Response) OK() bool {
	return r.StatusCode == http.StatusOK
}

// Err returns a *StatusError for non-200 responses and nil otherwise.
func (r Response) Err() error {
	if r.OK() {
		return nil
	}
	return &StatusError{Code: r.StatusCode, Status: r.Status}
}

// HTTP fetches a card document with a plain GET.
type HTTP struct {
	client *http.Client
	url    string
}

// Option mutates an HTTP source during construction.
type Option func(*HTTP)

// WithHTTPClient installs a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(h *HTTP) { h.client = hc }
}

// WithTimeout sets the per-request timeout of the default client.
func WithTimeout(d time.Duration) Option {
	return func(h *HTTP) {
		if d > 0 {
			h.client = &http.Client{Timeout: d}
		}
	}
}

// NewHTTP returns a source for url.
func NewHTTP(url string, opts ...Option) *HTTP {
	h := &HTTP{
		client: &http.Client{Timeout: defaultTimeout},
		url:    strings.TrimSpace(url),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.client == nil {
		h.client = &http.Client{Timeout: defaultTimeout}
	}
	return h
}

// Fetch performs one GET. Any HTTP response, including non-200, is
// returned without error; only transport failures are errors.
func (h *HTTP) Fetch(ctx context.Context) (Response, error) {
	if h.url == "" {
		return Response{}, errors.New("source: URL is empty")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return Response{}, fmt.Errorf("source: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	appLog.Debug("source fetch start", "url", RedactURL(h.url))

	resp, err := h.client.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("source: execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return Response{}, fmt.Errorf("source: read body: %w", err)
	}

	appLog.Debug("source fetch done", "url", RedactURL(h.url), "status", resp.StatusCode, "bytes", len(body))

	return Response{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       body,
		FetchedAt:  time.Now(),
	}, nil
}

// RedactURL hides path and query of u for logging, e.g.
// https://example.com/private.json?token=abcd -> https://example.com/...(redacted)
func RedactURL(u string) string {
	const redactedSuffix = "/...(redacted)"

	i := strings.Index(u, "://")
	if i == -1 {
		return "url://...(redacted)"
	}
	rest := u[i+3:]
	if j := strings.IndexByte(rest, '/'); j >= 0 {
		rest = rest[:j]
	}
	return u[:i+3] + rest + redactedSuffix
}
