package closure

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// State of the scheduler loop
type State string

const (
	StateStopped  State = "stopped"
	StateIdle     State = "idle"
	StateSweeping State = "sweeping"
)

const recordTimeout = 5 * time.Second

var ErrAlreadyRunning = errors.New("closure scheduler already running")

// StateRecorder publishes sweep reports so every scheduler instance is visible to operators
type StateRecorder interface {
	RecordSweep(ctx context.Context, instanceID string, report SweepReport) error
}

// Status is a snapshot of the scheduler
type Status struct {
	InstanceID  string        `json:"instance_id"`
	State       State         `json:"state"`
	Interval    time.Duration `json:"interval"`
	LastSweepAt *time.Time    `json:"last_sweep_at,omitempty"`
	LastReport  *SweepReport  `json:"last_report,omitempty"`
}

// Scheduler runs a sweep at start and then once per interval.
// Several instances may run against the same database; the conditional
// close makes overlapping sweeps harmless.
type Scheduler struct {
	sweeper    *Sweeper
	recorder   StateRecorder
	clock      clockwork.Clock
	interval   time.Duration
	instanceID string
	logger     *slog.Logger

	mu         sync.Mutex
	state      State
	lastSweep  *time.Time
	lastReport *SweepReport
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewScheduler creates a stopped scheduler. recorder may be nil.
func NewScheduler(
	sweeper *Sweeper,
	recorder StateRecorder,
	clock clockwork.Clock,
	interval time.Duration,
	instanceID string,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		sweeper:    sweeper,
		recorder:   recorder,
		clock:      clock,
		interval:   interval,
		instanceID: instanceID,
		logger:     logger,
		state:      StateStopped,
	}
}

// Start launches the sweep loop in the background
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return ErrAlreadyRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.state = StateIdle

	go s.loop(loopCtx, s.done)

	s.logger.Info("closure scheduler started", "instance_id", s.instanceID, "interval", s.interval)
	return nil
}

// Stop cancels the loop and waits for an in-flight sweep to finish.
// The scheduler reports running until the loop has actually exited.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	s.logger.Info("closure scheduler stopped", "instance_id", s.instanceID)
}

// Restart stops a running loop and starts a new one
func (s *Scheduler) Restart(ctx context.Context) error {
	s.Stop()
	return s.Start(ctx)
}

// Run starts the scheduler and blocks until ctx is done
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return nil
}

// Status returns a snapshot of the scheduler state
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		InstanceID: s.instanceID,
		State:      s.state,
		Interval:   s.interval,
	}
	if s.lastSweep != nil {
		at := *s.lastSweep
		st.LastSweepAt = &at
	}
	if s.lastReport != nil {
		r := *s.lastReport
		st.LastReport = &r
	}
	return st
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	// The loop clears its own registration on exit, whether it was stopped
	// or its parent context ended, and only then releases waiters.
	defer func() {
		s.mu.Lock()
		if s.done == done {
			s.cancel()
			s.cancel, s.done = nil, nil
			s.state = StateStopped
		}
		s.mu.Unlock()
		close(done)
	}()

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	// Initial run
	s.runSweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.runSweep(ctx)
		}
	}
}

func (s *Scheduler) runSweep(ctx context.Context) {
	s.setState(StateSweeping)

	report, err := s.sweeper.Sweep(ctx)
	if err != nil {
		s.logger.Error("closure sweep failed", "instance_id", s.instanceID, "error", err)
	} else if report.Candidates > 0 {
		s.logger.Info("closure sweep finished",
			"instance_id", s.instanceID,
			"candidates", report.Candidates,
			"closed", report.Closed,
			"noops", report.NoOps,
			"failed", report.Failed,
		)
	}

	s.mu.Lock()
	s.lastSweep = &report.StartedAt
	s.lastReport = &report
	if s.cancel != nil {
		s.state = StateIdle
	}
	s.mu.Unlock()

	if s.recorder != nil {
		recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
		defer cancel()
		if err := s.recorder.RecordSweep(recordCtx, s.instanceID, report); err != nil {
			s.logger.Warn("failed to record sweep state", "instance_id", s.instanceID, "error", err)
		}
	}
}

func (s *Scheduler) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}
