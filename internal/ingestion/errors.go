package ingestion

import (
	"context"
	"errors"
	"fmt"

	"github.com/STRATINT/feedpoller/internal/fetch"
	"github.com/STRATINT/feedpoller/internal/normalize"
)

// Error kinds reported in logs and metrics.
const (
	KindNetwork  = "network"
	KindTimeout  = "timeout"
	KindHTTP     = "http"
	KindDecode   = "decode"
	KindTooLarge = "too_large"
	KindParse    = "parse"
	KindStorage  = "storage"
	KindCanceled = "canceled"
	KindUnknown  = "unknown"
)

// StorageError wraps a failed FeedStore call made while ingesting a feed.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// Classify maps an ingestion error to its kind.
func Classify(err error) string {
	if err == nil {
		return ""
	}

	var (
		storeErr   *StorageError
		timeoutErr *fetch.TimeoutError
		networkErr *fetch.NetworkError
		httpErr    *fetch.HTTPError
		decodeErr  *fetch.DecodeError
		largeErr   *fetch.BodyTooLargeError
		parseErr   *normalize.ParseError
	)

	switch {
	case errors.As(err, &storeErr):
		return KindStorage
	case errors.As(err, &timeoutErr):
		return KindTimeout
	case errors.As(err, &httpErr):
		return KindHTTP
	case errors.As(err, &decodeErr):
		return KindDecode
	case errors.As(err, &largeErr):
		return KindTooLarge
	case errors.As(err, &parseErr):
		return KindParse
	case errors.As(err, &networkErr):
		return KindNetwork
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	default:
		return KindUnknown
	}
}
