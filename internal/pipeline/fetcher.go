package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// browserUA is sent instead of resty's default identity; plenty of origins
// refuse obvious non-browser clients outright.
const browserUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

const defaultFetchTimeout = 10 * time.Second

type Fetcher struct {
	client *resty.Client
}

func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", browserUA)
	return &Fetcher{client: client}
}

// Fetch performs a single GET attempt and returns the raw body. The caller
// is expected to have validated rawURL already.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	resp, err := f.client.R().SetContext(ctx).Get(rawURL)
	if err != nil {
		return "", classifyTransportErr(err)
	}
	if resp.IsError() || resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusMultipleChoices {
		return "", &Error{
			Kind:    KindHTTPError,
			Status:  resp.StatusCode(),
			Message: fmt.Sprintf("failed to fetch webpage: %d %s", resp.StatusCode(), http.StatusText(resp.StatusCode())),
		}
	}
	return resp.String(), nil
}

func classifyTransportErr(err error) *Error {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &Error{
			Kind:    KindNotFound,
			Message: "website not found, please check the URL",
			cause:   err,
		}
	}

	var netErr net.Error
	timedOut := errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout())
	if timedOut {
		return &Error{
			Kind:    KindTimeout,
			Message: "request timeout, the website took too long to respond",
			cause:   err,
		}
	}

	return &Error{
		Kind:    KindUnexpected,
		Message: "failed to fetch webpage",
		cause:   err,
	}
}
