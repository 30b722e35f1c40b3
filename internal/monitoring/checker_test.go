package monitoring

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewChecker_Defaults(t *testing.T) {
	c := NewChecker(nil, 0, 0, 0)
	assert.Equal(t, 5*time.Minute, c.interval)
	assert.Equal(t, 24, c.lookbackHours)
	assert.InDelta(t, 0.25, c.failRateWarn, 1e-9)
}

func TestChecker_RunStopsOnCancel(t *testing.T) {
	st := newTestStore(t)
	c := NewChecker(NewCollector(st), 10*time.Millisecond, 1, 0.5)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("checker did not stop after cancel")
	}
}
