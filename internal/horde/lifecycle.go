package horde

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// State is a step of the job lifecycle.
type State int

const (
	StateCreated State = iota
	StateSubmitted
	StatePolling
	StateCompleted
	StateFaulted
	StateCancelled
	StateConnectionExhausted
	StateSubmissionRejected
	// StateFailed covers fatal HTTP or parse errors after the job was accepted
	StateFailed
)

var stateNames = map[State]string{
	StateCreated:             "created",
	StateSubmitted:           "submitted",
	StatePolling:             "polling",
	StateCompleted:           "completed",
	StateFaulted:             "faulted",
	StateCancelled:           "cancelled",
	StateConnectionExhausted: "connection_exhausted",
	StateSubmissionRejected:  "submission_rejected",
	StateFailed:              "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s >= StateCompleted
}

// Outcome is the final record of one lifecycle run.
type Outcome struct {
	State State

	// JobID is empty if the service never assigned one
	JobID string

	// Message is the submit body when the service returned no job id
	Message string

	// Status is the last successful poll snapshot
	Status *JobStatus

	// Result is the terminal fetch (GET, or DELETE when cancelled)
	Result *JobResult

	request JobRequest
}

// Err returns a *FaultError for faulted jobs and nil otherwise.
func (o *Outcome) Err() error {
	if o.State != StateFaulted {
		return nil
	}
	var kudos float64
	if o.Result != nil {
		kudos = o.Result.Kudos
	}
	return &FaultError{JobID: o.JobID, Kudos: kudos, Request: o.request.Summary()}
}

// LifecycleConfig tunes polling and retry behaviour.
type LifecycleConfig struct {
	// PollInterval is the cadence of check requests (default: 800ms)
	PollInterval time.Duration

	// RetryDelay is the pause after a connection failure (default: 1s)
	RetryDelay time.Duration

	// MaxRetries is the consecutive connection failure budget (default: 10)
	MaxRetries int

	// OnStatus receives every successful poll snapshot (optional)
	OnStatus func(JobStatus)

	// LogFn is an optional callback for logging (if nil, messages are dropped)
	LogFn func(level, msg string)
}

// Lifecycle runs a single job from submission to its terminal fetch.
type Lifecycle struct {
	svc     Service
	config  LifecycleConfig
	limiter *rate.Limiter
	retrier *Retrier
	state   State
}

// NewLifecycle creates a lifecycle driver for svc.
func NewLifecycle(svc Service, cfg LifecycleConfig) *Lifecycle {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 800 * time.Millisecond
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 10
	}

	l := &Lifecycle{
		svc:     svc,
		config:  cfg,
		limiter: rate.NewLimiter(rate.Every(cfg.PollInterval), 1),
		state:   StateCreated,
	}
	l.retrier = &Retrier{
		Max:   cfg.MaxRetries,
		Delay: cfg.RetryDelay,
		OnFailure: func(attempt, max int, err error) {
			l.log("error", "Error %v when retrieving status. Retry %d/%d", err, attempt, max)
		},
	}
	return l
}

// State returns the current lifecycle state.
func (l *Lifecycle) State() State {
	return l.state
}

func (l *Lifecycle) log(level, format string, args ...any) {
	if l.config.LogFn != nil {
		l.config.LogFn(level, fmt.Sprintf(format, args...))
	}
}

// Run submits req and drives it to a terminal state. Closing interrupt while
// polling cancels the job: the in-flight check completes, no further checks are
// sent, and the DELETE response becomes the result.
//
// The returned Outcome is never nil. The error is non-nil only for fatal
// conditions (rejected submission, non-success HTTP, unparseable responses,
// exhausted retries); faulted and cancelled jobs return a nil error.
func (l *Lifecycle) Run(ctx context.Context, req JobRequest, interrupt <-chan struct{}) (*Outcome, error) {
	out := &Outcome{State: StateCreated, request: req}
	if l.state != StateCreated {
		return out, fmt.Errorf("lifecycle already used (state %s)", l.state)
	}

	sub, err := l.svc.Submit(ctx, req)
	if err != nil {
		l.finish(out, StateSubmissionRejected)
		return out, fmt.Errorf("submit: %w", err)
	}
	if sub.ID == "" {
		out.Message = sub.Raw
		l.finish(out, StateSubmissionRejected)
		return out, nil
	}
	out.JobID = sub.ID
	l.transition(out, StateSubmitted)
	l.log("debug", "Submitted job %s", out.JobID)

	l.transition(out, StatePolling)
	cancelled, err := l.poll(ctx, out, interrupt)
	if err != nil {
		if errors.Is(err, ErrConnectionExhausted) {
			l.finish(out, StateConnectionExhausted)
		} else {
			l.finish(out, StateFailed)
		}
		return out, fmt.Errorf("poll %s: %w", out.JobID, err)
	}

	var result *JobResult
	if cancelled {
		l.log("info", "Cancelling %s...", out.JobID)
		result, err = l.svc.Cancel(ctx, out.JobID)
	} else {
		result, err = l.svc.Status(ctx, out.JobID)
	}
	if err != nil {
		l.finish(out, StateFailed)
		return out, fmt.Errorf("retrieve %s: %w", out.JobID, err)
	}
	out.Result = result

	switch {
	case result.Faulted:
		l.finish(out, StateFaulted)
	case cancelled:
		l.finish(out, StateCancelled)
	default:
		l.finish(out, StateCompleted)
	}
	return out, nil
}

// poll checks the job until it is done. It returns cancelled=true if the
// interrupt was observed first.
func (l *Lifecycle) poll(ctx context.Context, out *Outcome, interrupt <-chan struct{}) (bool, error) {
	wait := l.waiter(interrupt)
	for {
		if interrupted(interrupt) {
			return true, nil
		}

		reservation := l.limiter.Reserve()
		if err := wait(ctx, reservation.Delay()); err != nil {
			reservation.Cancel()
			if errors.Is(err, errInterrupted) {
				return true, nil
			}
			return false, err
		}

		var status *JobStatus
		err := l.retrier.Do(ctx, wait, func(ctx context.Context) error {
			if interrupted(interrupt) {
				return errInterrupted
			}
			s, err := l.svc.Check(ctx, out.JobID)
			if err != nil {
				return err
			}
			status = s
			return nil
		})
		if errors.Is(err, errInterrupted) {
			return true, nil
		}
		if err != nil {
			return false, err
		}

		out.Status = status
		l.log("info", "%+v", *status)
		if l.config.OnStatus != nil {
			l.config.OnStatus(*status)
		}
		if status.Done || status.Faulted {
			return false, nil
		}
	}
}

// waiter returns a waitFunc that sleeps unless interrupt closes first.
func (l *Lifecycle) waiter(interrupt <-chan struct{}) waitFunc {
	return func(ctx context.Context, d time.Duration) error {
		if interrupted(interrupt) {
			return errInterrupted
		}
		if d <= 0 {
			return ctx.Err()
		}
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-interrupt:
			return errInterrupted
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		}
	}
}

func (l *Lifecycle) transition(out *Outcome, s State) {
	l.state = s
	out.State = s
}

func (l *Lifecycle) finish(out *Outcome, s State) {
	l.transition(out, s)
	l.log("debug", "Job %q finished in state %s", out.JobID, s)
}

func interrupted(interrupt <-chan struct{}) bool {
	if interrupt == nil {
		return false
	}
	select {
	case <-interrupt:
		return true
	default:
		return false
	}
}
