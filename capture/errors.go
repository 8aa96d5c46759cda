package capture

import (
	"context"
	"errors"

	"github.com/hazyhaar/pagesnap/capture/internal/browser"
)

// Error kinds. Every error returned by Service wraps exactly one of them,
// so callers classify with errors.Is.
var (
	// ErrBinaryNotFound means no Chromium executable could be located.
	ErrBinaryNotFound = browser.ErrBinaryNotFound
	ErrLaunch         = errors.New("browser launch failed")
	ErrTimeout        = errors.New("navigation timed out")
	ErrNavigation     = errors.New("navigation failed")
	ErrCapture        = errors.New("screenshot failed")
	ErrBrowserCrashed = errors.New("browser crashed")
	ErrClosed         = errors.New("capture service closed")
	// ErrInvalidRequest is returned by the request validator (bad URL,
	// blocked target, out-of-range dimensions).
	ErrInvalidRequest = errors.New("invalid capture request")
)

// Error describes a failed capture step.
type Error struct {
	Op   string // resolve, launch, page, viewport, navigate, screenshot, acquire
	URL  string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	msg := "capture: " + e.Op
	if e.URL != "" {
		msg += " " + e.URL
	}
	msg += ": " + e.Kind.Error()
	if e.Err != nil && e.Err != e.Kind {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the underlying cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Outcome maps an error to a short label used in metrics and the journal.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrBrowserCrashed):
		return "crashed"
	case errors.Is(err, ErrNavigation):
		return "navigation"
	case errors.Is(err, ErrCapture):
		return "capture"
	case errors.Is(err, ErrBinaryNotFound):
		return "binary_not_found"
	case errors.Is(err, ErrLaunch):
		return "launch"
	case errors.Is(err, ErrClosed):
		return "closed"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid"
	}
	return "error"
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
