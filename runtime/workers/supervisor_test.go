package workers

import (
	"chat-relay/errors"
	"chat-relay/mocks"
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestSupervisor_RestartOnPanic(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelError)
	ctrl := gomock.NewController(t)
	workerMock := mocks.NewMockWorker(ctrl)

	var calls atomic.Int32
	workerMock.EXPECT().
		Run(gomock.Any()).
		DoAndReturn(func(ctx context.Context) error {
			calls.Add(1)
			panic("boom")
		}).
		AnyTimes()

	sup := NewSupervisor(log).WithRestartPeriod(20 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	sup.Add(workerMock).Run(ctx)

	req.GreaterOrEqual(calls.Load(), int32(2))
}

func TestSupervisor_NoRestartOnSuccess(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelError)
	ctrl := gomock.NewController(t)
	workerMock := mocks.NewMockWorker(ctrl)

	// Given a worker running only once
	workerMock.EXPECT().Run(gomock.Any()).Return(nil).Times(1)

	sup := NewSupervisor(log)
	done := make(chan struct{})
	go func() {
		sup.Add(workerMock).Run(context.Background())
		close(done)
	}()

	// When the worker is given time to be restarted
	time.Sleep(3 * waitTimeBeforeRestart)
	sup.Stop()

	// Then the supervisor returns and the mock saw a single call
	select {
	case <-done:
	case <-time.After(time.Second):
		req.Fail("Supervisor should have stopped")
	}
}

func TestSupervisor_Spawn_While_Running(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelError)
	ctrl := gomock.NewController(t)
	workerMock := mocks.NewMockWorker(ctrl)

	started := make(chan struct{})
	workerMock.EXPECT().
		Run(gomock.Any()).
		DoAndReturn(func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			return nil
		}).
		Times(1)

	sup := NewSupervisor(log)
	done := make(chan struct{})
	go func() {
		sup.Run(context.Background())
		close(done)
	}()

	req.NoError(sup.Spawn(context.Background(), workerMock))
	select {
	case <-started:
	case <-time.After(time.Second):
		req.Fail("spawned worker never ran")
	}

	sup.Stop()
	<-done
	req.ErrorIs(sup.Spawn(context.Background(), workerMock), errors.ErrSupervisorStopped)
}

func TestSupervisor_Spawn_Before_Run_Honours_Context(t *testing.T) {
	req := require.New(t)
	sup := NewSupervisor(logs.GetLoggerFromLevel(slog.LevelError))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := sup.Spawn(ctx, mocks.NewMockWorker(gomock.NewController(t)))
	req.ErrorIs(err, context.DeadlineExceeded)
}

func TestSupervisor_Stop_Before_Run(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	workerMock := mocks.NewMockWorker(ctrl)
	workerMock.EXPECT().Run(gomock.Any()).Times(0)

	sup := NewSupervisor(logs.GetLoggerFromLevel(slog.LevelError))
	sup.Add(workerMock)
	sup.Stop()

	done := make(chan struct{})
	go func() {
		sup.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		req.Fail("Run still blocked after an earlier Stop")
	}
	req.ErrorIs(sup.Spawn(context.Background(), workerMock), errors.ErrSupervisorStopped)
}
