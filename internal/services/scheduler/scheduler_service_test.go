package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mekong/internal/common"
	"github.com/ternarybob/mekong/internal/models"
)

// blockingRunner counts runs and holds each one until released.
type blockingRunner struct {
	mu      sync.Mutex
	runs    int
	release chan struct{}
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{release: make(chan struct{})}
}

func (r *blockingRunner) Run(ctx context.Context) (*models.RunHistory, error) {
	r.mu.Lock()
	r.runs++
	r.mu.Unlock()
	select {
	case <-r.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &models.RunHistory{Status: models.RunSuccess}, nil
}

func (r *blockingRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs
}

func testConfig() *common.SchedulerConfig {
	return &common.SchedulerConfig{
		Schedule:     "@hourly",
		StartupDelay: "1h",
		GracePeriod:  "50ms",
	}
}

func TestRunOnce(t *testing.T) {
	runner := newBlockingRunner()
	close(runner.release)

	service := NewService(runner, testConfig(), arbor.NewLogger())
	run, err := service.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.RunSuccess, run.Status)
	assert.Equal(t, 1, runner.count())
}

func TestTickIsSingleFlight(t *testing.T) {
	runner := newBlockingRunner()
	service := NewService(runner, testConfig(), arbor.NewLogger())
	require.NoError(t, service.Start())

	go service.tick()
	require.Eventually(t, func() bool { return runner.count() == 1 }, time.Second, 5*time.Millisecond)

	// Overlapping ticks must be skipped while the first run is in flight.
	service.tick()
	service.tick()
	assert.Equal(t, 1, runner.count())

	close(runner.release)
	service.Stop()
}

func TestStartTwiceFails(t *testing.T) {
	runner := newBlockingRunner()
	close(runner.release)

	service := NewService(runner, testConfig(), arbor.NewLogger())
	require.NoError(t, service.Start())
	defer service.Stop()

	assert.Error(t, service.Start())
}

func TestStopCancelsAfterGracePeriod(t *testing.T) {
	runner := newBlockingRunner()
	service := NewService(runner, testConfig(), arbor.NewLogger())
	require.NoError(t, service.Start())

	go service.tick()
	require.Eventually(t, func() bool { return runner.count() == 1 }, time.Second, 5*time.Millisecond)

	// The runner never releases, so Stop must cancel it once the grace
	// window elapses instead of hanging.
	done := make(chan struct{})
	go func() {
		service.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the grace period")
	}

	// After Stop, ticks are inert.
	service.tick()
	assert.Equal(t, 1, runner.count())
}
