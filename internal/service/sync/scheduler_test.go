package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewSchedulerClampsInterval(t *testing.T) {
	svc := NewService(&stubProvider{}, &stubStore{}, 50, discard())

	s := NewScheduler(svc, time.Second, discard())
	assert.Equal(t, time.Minute, s.interval)

	s = NewScheduler(svc, time.Hour, discard())
	assert.Equal(t, time.Hour, s.interval)
}

func TestSchedulerStopsOnCancel(t *testing.T) {
	svc := NewService(&stubProvider{}, &stubStore{}, 50, discard())
	s := NewScheduler(svc, time.Hour, discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after context cancellation")
	}
}
