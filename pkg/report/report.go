package report

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
)

// Init configures the global sentry hub. An empty dsn leaves reporting disabled,
// every Capture call is then a no-op.
func Init(dsn, release string) error {
	if dsn == "" {
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:     dsn,
		Release: release,
	})
	if err != nil {
		return fmt.Errorf("initializing sentry: %w", err)
	}

	return nil
}

// Capture sends err with the given tags.
func Capture(err error, tags map[string]string) {
	if err == nil {
		return
	}

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		sentry.CaptureException(err)
	})
}

// Recovered reports a value obtained from recover().
func Recovered(v any) {
	sentry.CurrentHub().Recover(v)
}

func Flush() {
	sentry.Flush(2 * time.Second)
}
