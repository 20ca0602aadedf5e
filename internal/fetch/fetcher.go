package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html/charset"
)

const (
	// DefaultTimeout bounds a single fetch including the body read.
	DefaultTimeout = 10 * time.Second

	// AcceptHeader prefers feed media types over generic XML and anything else.
	AcceptHeader = "application/rss+xml, application/atom+xml, application/xml, text/xml, application/feed+json;q=0.9, */*;q=0.1"

	// MaxBodyBytes is the largest response body accepted. Larger bodies fail
	// instead of being truncated.
	MaxBodyBytes = 5 << 20

	maxRedirects = 10
)

// Options carries the validators from the previous poll and the fetch deadline.
type Options struct {
	ETag         string
	LastModified string
	Timeout      time.Duration
}

// Result is the outcome of a fetch that did not fail.
type Result struct {
	NotModified  bool
	Status       int
	Body         string
	ETag         string
	LastModified string
	FinalURL     string // URL after redirects; used to resolve relative links
}

// Fetcher performs conditional GETs of feed URLs. It holds no per-feed state.
type Fetcher struct {
	client    *http.Client
	userAgent string
}

// NewFetcher creates a fetcher with a pooled transport shared by all feeds.
func NewFetcher(userAgent string) *Fetcher {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   DefaultMaxPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	client := &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
	return NewFetcherWithClient(client, userAgent)
}

// NewFetcherWithClient creates a fetcher around an existing client.
func NewFetcherWithClient(client *http.Client, userAgent string) *Fetcher {
	return &Fetcher{client: client, userAgent: userAgent}
}

// Fetch performs one conditional GET of feedURL.
func (f *Fetcher) Fetch(ctx context.Context, feedURL string, opts Options) (*Result, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, &NetworkError{URL: feedURL, Err: fmt.Errorf("create request: %w", err)}
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", AcceptHeader)
	if opts.ETag != "" {
		req.Header.Set("If-None-Match", opts.ETag)
	}
	if opts.LastModified != "" {
		req.Header.Set("If-Modified-Since", opts.LastModified)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(ctx, feedURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return &Result{NotModified: true, Status: resp.StatusCode, FinalURL: resp.Request.URL.String()}, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return nil, &HTTPError{URL: feedURL, Status: resp.StatusCode}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes+1))
	if err != nil {
		return nil, classifyTransportError(ctx, feedURL, fmt.Errorf("read body: %w", err))
	}
	if len(raw) > MaxBodyBytes {
		return nil, &BodyTooLargeError{URL: feedURL, Limit: MaxBodyBytes}
	}

	body, err := decodeBody(raw, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, err
	}

	return &Result{
		Status:       resp.StatusCode,
		Body:         body,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		FinalURL:     resp.Request.URL.String(),
	}, nil
}

func classifyTransportError(ctx context.Context, feedURL string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{URL: feedURL, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TimeoutError{URL: feedURL, Err: err}
	}
	return &NetworkError{URL: feedURL, Err: err}
}

// decodeBody converts raw to a UTF-8 string using the charset parameter of
// contentType. An unknown charset fails rather than guessing.
func decodeBody(raw []byte, contentType string) (string, error) {
	label := charsetLabel(contentType)
	if label == "" {
		return string(raw), nil
	}

	enc, name := charset.Lookup(label)
	if enc == nil {
		return "", &DecodeError{Charset: label}
	}
	if name == "utf-8" {
		return string(raw), nil
	}

	decoded, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return "", &DecodeError{Charset: label, Err: err}
	}
	return string(decoded), nil
}

func charsetLabel(contentType string) string {
	if contentType == "" {
		return ""
	}
	if _, params, err := mime.ParseMediaType(contentType); err == nil {
		return strings.ToLower(strings.TrimSpace(params["charset"]))
	}

	// Malformed media types still often carry a usable charset parameter.
	lower := strings.ToLower(contentType)
	idx := strings.Index(lower, "charset=")
	if idx < 0 {
		return ""
	}
	value := lower[idx+len("charset="):]
	if end := strings.IndexByte(value, ';'); end >= 0 {
		value = value[:end]
	}
	return strings.Trim(strings.TrimSpace(value), `"'`)
}
