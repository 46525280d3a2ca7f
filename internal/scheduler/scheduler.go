// Package scheduler polls the portal on a fixed interval for the currently
// committed credentials.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/olliecrow/campnet_monitor/internal/portal"
)

const DefaultInterval = 15 * time.Second

type FetchFunc func(context.Context, portal.Credentials) (*portal.Quota, error)

// Timer is the part of *time.Timer the scheduler needs.
type Timer interface {
	Stop() bool
}

// Update is published after every completed fetch of the current generation.
type Update struct {
	Generation  uint64
	RequestID   string
	Credentials portal.Credentials
	Quota       *portal.Quota
	Err         error
	StartedAt   time.Time
	FinishedAt  time.Time
	NextAt      time.Time
}

// State is a snapshot of the scheduler's bookkeeping.
type State struct {
	Generation   uint64
	InFlight     bool
	TimerPending bool
	NextAt       time.Time
}

type Options struct {
	// Interval between the end of one fetch and the start of the next.
	Interval time.Duration
	// Timeout bounds a whole fetch cycle. Defaults to Interval.
	Timeout   time.Duration
	Publish   func(Update)
	Logger    *log.Entry
	AfterFunc func(time.Duration, func()) Timer
	Now       func() time.Time
}

// Scheduler owns at most one pending timer and at most one fetch for the
// current generation. Every credential change or manual refresh starts a new
// generation: the pending timer is stopped, the running fetch is cancelled and
// any result it still delivers is dropped.
type Scheduler struct {
	fetch     FetchFunc
	interval  time.Duration
	timeout   time.Duration
	publish   func(Update)
	log       *log.Entry
	afterFunc func(time.Duration, func()) Timer
	now       func() time.Time

	mu       sync.Mutex
	creds    portal.Credentials
	gen      uint64
	timer    Timer
	nextAt   time.Time
	cancel   context.CancelFunc
	inFlight bool
	stopped  bool
}

func New(fetch FetchFunc, opts Options) *Scheduler {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = interval
	}
	if fetch == nil {
		fetch = func(context.Context, portal.Credentials) (*portal.Quota, error) {
			return nil, errors.New("missing fetch function")
		}
	}
	publish := opts.Publish
	if publish == nil {
		publish = func(Update) {}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "scheduler")
	}
	afterFunc := opts.AfterFunc
	if afterFunc == nil {
		afterFunc = func(d time.Duration, f func()) Timer {
			return time.AfterFunc(d, f)
		}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Scheduler{
		fetch:     fetch,
		interval:  interval,
		timeout:   timeout,
		publish:   publish,
		log:       logger,
		afterFunc: afterFunc,
		now:       now,
	}
}

// SetCredentials replaces the polled credentials and fetches immediately
// when they are complete. Incomplete credentials stop polling.
func (s *Scheduler) SetCredentials(creds portal.Credentials) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.creds = creds
	s.restartLocked()
}

// Refresh starts a new fetch now for the current credentials.
func (s *Scheduler) Refresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.restartLocked()
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		Generation:   s.gen,
		InFlight:     s.inFlight,
		TimerPending: s.timer != nil,
		NextAt:       s.nextAt,
	}
}

// Stop cancels everything. The scheduler cannot be restarted.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	s.gen++
	s.stopTimerLocked()
	s.cancelFetchLocked()
}

func (s *Scheduler) restartLocked() {
	s.gen++
	s.stopTimerLocked()
	s.cancelFetchLocked()
	if !s.creds.Complete() {
		s.log.Debug("credentials incomplete; polling paused")
		return
	}
	s.startLocked()
}

func (s *Scheduler) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.nextAt = time.Time{}
}

func (s *Scheduler) cancelFetchLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.inFlight = false
}

func (s *Scheduler) startLocked() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	s.cancel = cancel
	s.inFlight = true
	go s.run(ctx, cancel, s.gen, uuid.NewString(), s.creds, s.now())
}

func (s *Scheduler) run(ctx context.Context, cancel context.CancelFunc, gen uint64, requestID string, creds portal.Credentials, startedAt time.Time) {
	defer cancel()
	entry := s.log.WithFields(log.Fields{"generation": gen, "request_id": requestID})
	entry.Debug("fetching quota")

	quota, err := s.fetch(ctx, creds)

	s.mu.Lock()
	if s.stopped || gen != s.gen {
		s.mu.Unlock()
		entry.Debug("discarding result of superseded fetch")
		return
	}
	s.inFlight = false
	s.cancel = nil
	s.nextAt = s.now().Add(s.interval)
	s.timer = s.afterFunc(s.interval, func() { s.fire(gen) })
	update := Update{
		Generation:  gen,
		RequestID:   requestID,
		Credentials: creds,
		Quota:       quota,
		Err:         err,
		StartedAt:   startedAt,
		FinishedAt:  s.now(),
		NextAt:      s.nextAt,
	}
	s.mu.Unlock()

	if err != nil {
		entry.WithError(err).WithField("kind", portal.KindOf(err).String()).Warn("quota fetch failed; retrying after interval")
	} else if quota != nil {
		entry.Debugf("quota fetched (remaining=%.2f total=%.2f)", quota.Traffic.Remaining, quota.Traffic.Total)
	}
	s.publish(update)
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || gen != s.gen || s.inFlight {
		return
	}
	s.timer = nil
	s.nextAt = time.Time{}
	if !s.creds.Complete() {
		return
	}
	s.startLocked()
}
