package fetch

import (
	"fmt"
)

// NetworkError reports a connection, DNS or transport failure.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error fetching %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// TimeoutError reports that a fetch exceeded its deadline and was aborted.
type TimeoutError struct {
	URL string
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout fetching %s: %v", e.URL, e.Err)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// HTTPError reports a response status outside the accepted 2xx/3xx range.
type HTTPError struct {
	URL    string
	Status int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected status %d fetching %s", e.Status, e.URL)
}

// BodyTooLargeError reports a response body over the accepted size.
type BodyTooLargeError struct {
	URL   string
	Limit int
}

func (e *BodyTooLargeError) Error() string {
	return fmt.Sprintf("response body of %s exceeds %d bytes", e.URL, e.Limit)
}

// DecodeError reports a response body that could not be decoded with the
// charset declared by the server.
type DecodeError struct {
	Charset string
	Err     error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode body as %q: %v", e.Charset, e.Err)
	}
	return fmt.Sprintf("decode body: unsupported charset %q", e.Charset)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
