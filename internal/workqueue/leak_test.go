//go:build leaktests
// +build leaktests

package workqueue

import (
	"context"
	"testing"

	"go.uber.org/goleak"

	"github.com/cpscan/engine/internal/monitor"
)

// TestRunLeavesNoGoroutinesBehind verifies that once Run drains and its
// Monitor is closed, no worker or monitor goroutine survives it.
func TestRunLeavesNoGoroutinesBehind(t *testing.T) {
	defer goleak.VerifyNone(t)

	mon := monitor.New(context.Background())
	defer mon.Close()

	err := Run(context.Background(), mon, 4, []int{1, 2, 3, 4, 5}, func(ctx context.Context, unit int, h Handle[int]) error {
		return nil
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
}
