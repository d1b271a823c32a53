package workers

import (
	"chat-relay/contract"
	"chat-relay/errors"
	"chat-relay/observability"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const waitTimeBeforeRestart = 200 * time.Millisecond

var _ contract.ISupervisor = (*Supervisor)(nil)

// Supervisor Own a context and a Cancel function
// Run each worker in a goroutine
// Check panics and errors
// Restart workers automatically
// Accept new workers while running (one per conversation topic)
// Shutdown properly if parent context is canceled
// Wait for the end of all goroutines via WaitGroup
type Supervisor struct {
	mu            sync.Mutex
	cancel        context.CancelFunc
	ctx           context.Context
	ready         chan struct{}
	stopped       bool
	stopRequested bool
	wg            *sync.WaitGroup
	log           *slog.Logger
	workers       []contract.Worker
	restartPeriod time.Duration
}

func NewSupervisor(log *slog.Logger) *Supervisor {
	return &Supervisor{
		wg:            &sync.WaitGroup{},
		log:           log,
		ready:         make(chan struct{}),
		restartPeriod: waitTimeBeforeRestart,
	}
}

// WithRestartPeriod overrides the delay before a crashed worker is restarted.
func (s *Supervisor) WithRestartPeriod(d time.Duration) *Supervisor {
	if d > 0 {
		s.restartPeriod = d
	}
	return s
}

func (s *Supervisor) Add(worker ...contract.Worker) contract.ISupervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workers = append(s.workers, worker...)
	return s
}

// Run starts the registered workers and blocks until ctx is canceled or Stop is
// called, then waits for every worker, spawned ones included, to return.
func (s *Supervisor) Run(ctx context.Context) {
	// If the parent (main) cancels, we cancel.
	// If WE call Stop(), only our children cancel.
	supervisedCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.ctx, s.cancel = supervisedCtx, cancel
	if s.stopRequested {
		// Stop came first: nothing is started.
		cancel()
	} else {
		for _, worker := range s.workers {
			s.start(supervisedCtx, worker)
		}
	}
	s.mu.Unlock()
	close(s.ready)

	<-supervisedCtx.Done()

	// No Spawn may add to the WaitGroup once Wait has begun.
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.wg.Wait()
	s.log.Info("Supervisor stopped, all workers returned")
}

// Spawn starts a worker under supervision of a running supervisor. It waits for
// Run to have started and fails once the supervisor is stopping.
func (s *Supervisor) Spawn(ctx context.Context, worker contract.Worker) error {
	select {
	case <-s.ready:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.ctx.Err() != nil {
		return errors.ErrSupervisorStopped
	}
	s.start(s.ctx, worker)
	return nil
}

// start runs a worker under supervision, the caller holds mu.
// The worker is executed in a dedicated goroutine. If its Run method panics or
// fails, the supervisor recovers, restarts the worker, and keeps the supervision
// loop alive. A failure in one worker must not stop the supervisor itself.
func (s *Supervisor) start(ctx context.Context, worker contract.Worker) {
	s.wg.Add(1)
	workerName := contract.GetWorkerName(worker)

	go func() {
		defer s.wg.Done()

		for {
			if ctx.Err() != nil {
				s.log.Debug(fmt.Sprintf("Stopping : %s", workerName))
				return
			}

			err := func() (err error) {
				defer func() {
					if r := recover(); r != nil {
						err = fmt.Errorf("%w: %v", errors.ErrWorkerPanic, r)
					}
				}()
				// Restarted after a crash, same worker value, same channels.
				return worker.Run(ctx)
			}()

			if err == nil {
				// Terminated properly, never restart !
				s.log.Debug(fmt.Sprintf("Worker finished : %s", workerName))
				return
			}

			if ctx.Err() != nil {
				s.log.Debug("Worker stopped (context canceled)", "name", workerName)
				return
			}

			s.log.Warn("Worker crashed, restarting", "name", workerName, "error", err)
			observability.WorkerRestarts.WithLabelValues(workerName).Inc()
			select {
			case <-ctx.Done():
				// Context canceled: priority stop.
				return
			case <-time.After(s.restartPeriod):
			}
		}
	}()
}

// Stop cancels every supervised worker. Run returns once they all have.
// A Stop before Run makes Run return at once.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopRequested = true
	if s.cancel != nil {
		s.cancel()
	}
}
