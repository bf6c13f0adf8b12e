package util

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrNotFound marks a missing-resource response (404 class). Callers treat it
// as recoverable: log, skip the item, keep going.
var ErrNotFound = errors.New("resource not found")

// RetryDelays is the backoff ladder applied to transport errors before an
// item is downgraded to a skip.
var RetryDelays = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

// TransportError covers network failures, timeouts and non-2xx responses
// other than the not-found class.
type TransportError struct {
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport error: received status code %d", e.StatusCode)
	}

	return fmt.Sprintf("transport error: %s", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// DecodeError covers malformed JSON or an unexpected schema shape. Callers
// treat it like not-found: skip, never retry.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode error: %s", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Error is a helper log func that wraps err with msg (when both are present),
// logs the result and returns it. All fields can be nil.
func Error(log *zap.Logger, msg string, err error, fields ...zap.Field) error {
	if err == nil && msg == "" {
		// Nothing to do if neither error or msg is present
		return nil
	} else if err != nil && msg != "" {
		err = errors.Wrap(err, msg)
	} else if err == nil && msg != "" {
		err = errors.New(msg)
	}

	if log != nil {
		log.Error(CapitalizeFirstChar(err.Error()), fields...)
	}

	return err
}

func CapitalizeFirstChar(s string) string {
	if len(s) == 0 {
		return s
	}

	return strings.ToUpper(string(s[0])) + s[1:]
}

// DoJSON performs an HTTP request against endpoint and decodes the JSON
// response body into target (target may be nil to discard the body).
//
// Error classification:
//   - request/dial/timeout failure -> *TransportError
//   - 404/410                      -> ErrNotFound (wrapped)
//   - any other non-2xx            -> *TransportError with StatusCode set
//   - body that fails to decode    -> *DecodeError
//
// When form is non-nil it is sent urlencoded as the request body.
func DoJSON(
	ctx context.Context,
	client *http.Client,
	method,
	endpoint string,
	form url.Values,
	target any,
	header ...http.Header,
) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	request, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return errors.Wrap(err, "failed to create http request")
	}

	if form != nil {
		request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	for _, h := range header {
		for k, vv := range h {
			for _, v := range vv {
				request.Header.Set(k, v)
			}
		}
	}

	resp, err := client.Do(request)
	if err != nil {
		return &TransportError{Err: err}
	}

	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Err: errors.Wrap(err, "unable to read response body")}
	}

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return errors.Wrapf(ErrNotFound, "GET %s returned %d", endpoint, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return &TransportError{StatusCode: resp.StatusCode}
	}

	if target == nil {
		return nil
	}

	if err := json.Unmarshal(respBody, target); err != nil {
		return &DecodeError{Err: err}
	}

	return nil
}

// WithRetry runs fn, retrying on *TransportError with the RetryDelays ladder.
// Not-found and decode errors are returned immediately; they are never worth
// a retry. Context cancellation aborts the wait.
func WithRetry(ctx context.Context, log *zap.Logger, op string, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= len(RetryDelays); attempt++ {
		if attempt > 0 {
			if log != nil {
				log.Warn("retrying after transport error",
					zap.String("op", op),
					zap.Int("attempt", attempt),
					zap.Error(lastErr))
			}

			select {
			case <-ctx.Done():
				return errors.Wrap(ctx.Err(), "retry aborted")
			case <-time.After(RetryDelays[attempt-1]):
			}
		}

		err := fn()
		if err == nil {
			return nil
		}

		var te *TransportError
		if errors.As(err, &te) {
			lastErr = err
			continue
		}

		return err
	}

	return lastErr
}
