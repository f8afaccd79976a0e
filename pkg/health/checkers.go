package health

import (
	"context"
	"runtime"

	"github.com/go-faster/errors"
)

// GoroutineCount returns a liveness ProbeFunc that fails when the goroutine
// count exceeds the threshold. Useful for catching goroutine leaks.
func GoroutineCount(threshold int) ProbeFunc {
	return func(_ context.Context) error {
		if count := runtime.NumGoroutine(); count > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", count, threshold)
		}
		return nil
	}
}
