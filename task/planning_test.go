package task

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oskarb/kepler/config"
	"github.com/oskarb/kepler/types"
)

type blockingRunner struct {
	started chan struct{}
	release chan struct{}
	runs    atomic.Int32
}

func (r *blockingRunner) Run(ctx context.Context) types.RunResult {
	r.runs.Add(1)
	if r.started != nil {
		r.started <- struct{}{}
	}
	if r.release != nil {
		<-r.release
	}
	return types.RunResult{Status: types.RunStatusOk}
}

func TestPlanningTaskRunsOnce(t *testing.T) {
	runner := &blockingRunner{}
	task := NewPlanningTask(slog.New(slog.NewTextHandler(io.Discard, nil)), runner, &config.AppConfig{})

	task()

	assert.Equal(t, int32(1), runner.runs.Load())
}

func TestPlanningTaskQueuesExactlyOneFollowUp(t *testing.T) {
	runner := &blockingRunner{
		started: make(chan struct{}, 2),
		release: make(chan struct{}),
	}
	task := NewPlanningTask(slog.New(slog.NewTextHandler(io.Discard, nil)), runner, &config.AppConfig{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		task()
	}()

	// Wait for the first run to hold the lock, then trigger three more
	// times. One follow-up gets queued, the other two are dropped.
	<-runner.started
	task()
	task()
	task()
	close(runner.release)
	<-runner.started
	wg.Wait()

	assert.Equal(t, int32(2), runner.runs.Load())
}
