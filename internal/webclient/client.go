// Package webclient is the transport layer indexers use to talk to their
// sites: cookie-jar persistence across calls, optional redirect following,
// and retry on transient failures.
package webclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

// Request describes one transport call.
type Request struct {
	URL     string
	Referer string
	// Cookies overrides the jar with an explicit Cookie header when non-empty.
	Cookies string
	// FollowRedirects controls whether 3xx responses are chased.
	FollowRedirects bool
}

// Response is the uniform shape indexers consume.
type Response struct {
	Status        int
	RedirectingTo string
	Body          []byte
	// Cookies is the Cookie-header form of the session cookies after the
	// call, suitable for persisting in an indexer's configuration.
	Cookies string
}

// IsRedirect reports whether the response asked for a redirect.
func (r *Response) IsRedirect() bool {
	switch r.Status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther, http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

// Content returns the body as a string.
func (r *Response) Content() string {
	return string(r.Body)
}

// Client is the transport abstraction consumed by indexers.
type Client interface {
	Get(ctx context.Context, req Request) (*Response, error)
	PostForm(ctx context.Context, req Request, form url.Values) (*Response, error)
}

// HTTPClient implements Client on net/http with a shared cookie jar and
// retry-on-transient-failure.
type HTTPClient struct {
	jar        *cookiejar.Jar
	direct     *http.Client // never follows redirects
	redirector *http.Client // follows redirects
	attempts   int
	retryDelay time.Duration
	logger     zerolog.Logger
}

// New creates a transport client with a fresh cookie jar.
func New(logger zerolog.Logger) (*HTTPClient, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	noRedirect := func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}

	return &HTTPClient{
		jar: jar,
		direct: &http.Client{
			Jar:           jar,
			Timeout:       60 * time.Second,
			CheckRedirect: noRedirect,
		},
		redirector: &http.Client{
			Jar:     jar,
			Timeout: 60 * time.Second,
		},
		attempts:   3,
		retryDelay: 2 * time.Second,
		logger:     logger.With().Str("component", "webclient").Logger(),
	}, nil
}

// Get performs a GET request.
func (c *HTTPClient) Get(ctx context.Context, req Request) (*Response, error) {
	return c.do(ctx, http.MethodGet, req, "", "")
}

// PostForm performs a form-encoded POST request.
func (c *HTTPClient) PostForm(ctx context.Context, req Request, form url.Values) (*Response, error) {
	return c.do(ctx, http.MethodPost, req, form.Encode(), "application/x-www-form-urlencoded")
}

func (c *HTTPClient) do(ctx context.Context, method string, req Request, body, contentType string) (*Response, error) {
	var lastErr error
	delay := c.retryDelay

	for attempt := 1; attempt <= c.attempts; attempt++ {
		resp, err := c.doOnce(ctx, method, req, body, contentType)
		if err == nil && resp.Status < http.StatusInternalServerError {
			return resp, nil
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("server returned status %d", resp.Status)
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt == c.attempts {
			break
		}

		c.logger.Debug().
			Err(lastErr).
			Str("url", req.URL).
			Int("attempt", attempt).
			Msg("transient request failure, retrying")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}

	return nil, fmt.Errorf("%s %s failed after %d attempts: %w", method, req.URL, c.attempts, lastErr)
}

func (c *HTTPClient) doOnce(ctx context.Context, method string, req Request, body, contentType string) (*Response, error) {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	httpReq.Header.Set("User-Agent", defaultUserAgent)
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if req.Referer != "" {
		httpReq.Header.Set("Referer", req.Referer)
	}
	if req.Cookies != "" {
		httpReq.Header.Set("Cookie", req.Cookies)
	}

	client := c.direct
	if req.FollowRedirects {
		client = c.redirector
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	return &Response{
		Status:        resp.StatusCode,
		RedirectingTo: resp.Header.Get("Location"),
		Body:          data,
		Cookies:       c.cookieHeader(httpReq.URL),
	}, nil
}

// cookieHeader renders the jar's cookies for a URL as a Cookie header value.
func (c *HTTPClient) cookieHeader(u *url.URL) string {
	cookies := c.jar.Cookies(u)
	parts := make([]string, 0, len(cookies))
	for _, ck := range cookies {
		parts = append(parts, ck.Name+"="+ck.Value)
	}
	return strings.Join(parts, "; ")
}

// ImportCookies seeds the jar from a persisted Cookie header value.
func (c *HTTPClient) ImportCookies(siteLink, header string) error {
	u, err := url.Parse(siteLink)
	if err != nil {
		return fmt.Errorf("parse site link: %w", err)
	}

	var cookies []*http.Cookie
	for _, part := range strings.Split(header, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		cookies = append(cookies, &http.Cookie{Name: name, Value: value, Path: "/"})
	}

	c.jar.SetCookies(u, cookies)
	return nil
}
