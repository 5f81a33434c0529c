package health

import (
	"context"
	"fmt"
	"runtime"
)

// GoroutineCountCheck fails when the process exceeds threshold goroutines,
// a cheap proxy for leak detection.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(_ context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return fmt.Errorf("too many goroutines: %d > %d", n, threshold)
		}
		return nil
	}
}
