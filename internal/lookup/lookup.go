// Package lookup holds the request plumbing and error classes shared by the
// external lookup clients.
package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
)

var (
	ErrTransport     = errors.New("lookup transport failure")
	ErrTimeout       = errors.New("lookup timeout")
	ErrStatus        = errors.New("lookup non-success status")
	ErrMalformedBody = errors.New("lookup malformed body")
)

// StatusError reports a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("non-success status=%d body=%s", e.Code, e.Body)
}

func (e *StatusError) Unwrap() error { return ErrStatus }

// Class names the error class of err for logging.
func Class(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrStatus):
		return "status"
	case errors.Is(err, ErrMalformedBody):
		return "malformed_body"
	case errors.Is(err, ErrTransport):
		return "transport"
	default:
		return "other"
	}
}

// GetJSON performs req and decodes a 2xx JSON body into out.
func GetJSON(ctx context.Context, client *http.Client, req *http.Request, out any) error {
	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		if isTimeout(ctx, err) {
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(ctx, err) {
			return fmt.Errorf("%w: read body: %v", ErrTimeout, err)
		}
		return fmt.Errorf("%w: read body: %v", ErrTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode, Body: Truncate(string(body), 400)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %s", ErrMalformedBody, Truncate(string(body), 400))
	}
	return nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Truncate cuts s to at most maxChars runes.
func Truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
