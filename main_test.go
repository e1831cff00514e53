package amqp

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain verifies no goroutine started by this package's tests (the
// main-loop watchers, orchestrator reconnect loops, or dispatcher workers)
// leaks past the test run.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
