package auth

import (
	"time"

	"github.com/goliatone/go-command/runner"
)

const defaultCommandTimeout = 15 * time.Second

// notify hands a command result to its callback, when one is set
func notify[R any](fn func(R), res R) {
	if fn != nil {
		fn(res)
	}
}

// capture stores the command result in dst before calling next
func capture[R any](dst *R, next func(R)) func(R) {
	return func(res R) {
		*dst = res
		if next != nil {
			next(res)
		}
	}
}

// newCommandRunner runs commands for the HTTP handlers. A panicking
// handler surfaces as an error instead of killing the request.
func newCommandRunner(logger Logger, timeout time.Duration) *runner.Handler {
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	return runner.NewHandler(
		runner.WithTimeout(timeout),
		runner.WithErrorHandler(func(err error) {
			logger.Debug("command failed", "error", err)
		}),
		runner.WithDoneHandler(nil),
	)
}
