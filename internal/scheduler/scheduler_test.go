package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/olliecrow/campnet_monitor/internal/portal"
)

type fakeTimer struct {
	clock   *fakeClock
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
	delays []time.Duration
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, fn: fn}
	c.timers = append(c.timers, t)
	c.delays = append(c.delays, d)
	return t
}

func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// fire runs the most recent active timer's callback.
func (c *fakeClock) fire(t *testing.T) {
	t.Helper()
	c.mu.Lock()
	var target *fakeTimer
	for i := len(c.timers) - 1; i >= 0; i-- {
		if !c.timers[i].stopped && !c.timers[i].fired {
			target = c.timers[i]
			break
		}
	}
	if target == nil {
		c.mu.Unlock()
		t.Fatalf("no pending timer to fire")
	}
	target.fired = true
	c.mu.Unlock()
	target.fn()
}

var fixedNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestScheduler(fetch FetchFunc, clock *fakeClock, updates chan Update) *Scheduler {
	return New(fetch, Options{
		Interval:  15 * time.Second,
		Timeout:   time.Minute,
		AfterFunc: clock.AfterFunc,
		Now:       func() time.Time { return fixedNow },
		Publish: func(u Update) {
			updates <- u
		},
	})
}

func waitUpdate(t *testing.T, updates chan Update) Update {
	t.Helper()
	select {
	case u := <-updates:
		return u
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for update")
	}
	return Update{}
}

func expectNoUpdate(t *testing.T, updates chan Update) {
	t.Helper()
	select {
	case u := <-updates:
		t.Fatalf("unexpected update for %q (err=%v)", u.Credentials.Username, u.Err)
	case <-time.After(50 * time.Millisecond):
	}
}

func quotaFor(total float64) *portal.Quota {
	return &portal.Quota{Traffic: portal.Traffic{Total: total, Remaining: total / 2}}
}

func TestSchedulerFetchesImmediatelyThenEveryInterval(t *testing.T) {
	clock := &fakeClock{}
	updates := make(chan Update, 4)
	var mu sync.Mutex
	calls := 0
	s := newTestScheduler(func(_ context.Context, c portal.Credentials) (*portal.Quota, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return quotaFor(1024), nil
	}, clock, updates)
	defer s.Stop()

	s.SetCredentials(portal.Credentials{Username: "u", Password: "p"})
	u := waitUpdate(t, updates)
	if u.Err != nil || u.Quota == nil || u.Quota.Traffic.Total != 1024 {
		t.Fatalf("unexpected first update: %+v", u)
	}
	if u.RequestID == "" {
		t.Fatalf("expected a request id on the update")
	}
	if !u.NextAt.Equal(fixedNow.Add(15 * time.Second)) {
		t.Fatalf("expected next fetch 15s out, got %v", u.NextAt)
	}
	state := s.State()
	if state.InFlight || !state.TimerPending {
		t.Fatalf("expected idle with pending timer, got %+v", state)
	}
	if clock.pending() != 1 || clock.delays[0] != 15*time.Second {
		t.Fatalf("expected one 15s timer, got pending=%d delays=%v", clock.pending(), clock.delays)
	}

	clock.fire(t)
	waitUpdate(t, updates)
	mu.Lock()
	defer mu.Unlock()
	if calls != 2 {
		t.Fatalf("expected second fetch after timer, got %d calls", calls)
	}
	if clock.pending() != 1 {
		t.Fatalf("expected exactly one pending timer, got %d", clock.pending())
	}
}

func TestSchedulerReschedulesAfterFailure(t *testing.T) {
	clock := &fakeClock{}
	updates := make(chan Update, 2)
	s := newTestScheduler(func(context.Context, portal.Credentials) (*portal.Quota, error) {
		return nil, &portal.Error{Kind: portal.KindNotOnNetwork, Op: "login", Err: errors.New("dial tcp: refused")}
	}, clock, updates)
	defer s.Stop()

	s.SetCredentials(portal.Credentials{Username: "u", Password: "p"})
	u := waitUpdate(t, updates)
	if !errors.Is(u.Err, portal.ErrNotOnNetwork) {
		t.Fatalf("expected not-on-network error, got %v", u.Err)
	}
	if clock.pending() != 1 {
		t.Fatalf("expected retry timer after failure, got %d", clock.pending())
	}
	if clock.delays[0] != 15*time.Second {
		t.Fatalf("expected retry without backoff, got %v", clock.delays[0])
	}
}

func TestSchedulerRapidCredentialChangesLeaveOneFetchAndOneTimer(t *testing.T) {
	clock := &fakeClock{}
	updates := make(chan Update, 16)
	release := make(chan struct{})
	returned := make(chan string, 16)
	s := newTestScheduler(func(ctx context.Context, c portal.Credentials) (*portal.Quota, error) {
		defer func() { returned <- c.Username }()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-release:
			return quotaFor(100), nil
		}
	}, clock, updates)
	defer s.Stop()

	const changes = 10
	for i := 0; i < changes; i++ {
		s.SetCredentials(portal.Credentials{Username: fmt.Sprintf("user-%d", i), Password: "p"})
	}

	state := s.State()
	if !state.InFlight || state.TimerPending {
		t.Fatalf("expected one fetch in flight and no timer, got %+v", state)
	}
	if state.Generation != changes {
		t.Fatalf("expected generation %d, got %d", changes, state.Generation)
	}

	for i := 0; i < changes-1; i++ {
		select {
		case <-returned:
		case <-time.After(2 * time.Second):
			t.Fatalf("superseded fetch %d was not cancelled", i)
		}
	}
	expectNoUpdate(t, updates)

	close(release)
	u := waitUpdate(t, updates)
	if u.Credentials.Username != fmt.Sprintf("user-%d", changes-1) {
		t.Fatalf("expected update for latest credentials, got %q", u.Credentials.Username)
	}
	expectNoUpdate(t, updates)

	state = s.State()
	if state.InFlight || !state.TimerPending {
		t.Fatalf("expected idle with one pending timer, got %+v", state)
	}
	if clock.pending() != 1 {
		t.Fatalf("expected exactly one pending timer, got %d", clock.pending())
	}
}

func TestSchedulerDiscardsLateResultFromSupersededCredentials(t *testing.T) {
	clock := &fakeClock{}
	updates := make(chan Update, 4)
	gate := make(chan struct{})
	lateDone := make(chan struct{})
	s := newTestScheduler(func(_ context.Context, c portal.Credentials) (*portal.Quota, error) {
		if c.Username == "old" {
			// ignores cancellation on purpose
			<-gate
			defer close(lateDone)
			return quotaFor(1), nil
		}
		return quotaFor(2), nil
	}, clock, updates)
	defer s.Stop()

	s.SetCredentials(portal.Credentials{Username: "old", Password: "p"})
	s.SetCredentials(portal.Credentials{Username: "new", Password: "p"})
	u := waitUpdate(t, updates)
	if u.Credentials.Username != "new" {
		t.Fatalf("expected new credentials update, got %q", u.Credentials.Username)
	}

	close(gate)
	<-lateDone
	expectNoUpdate(t, updates)
	if clock.pending() != 1 {
		t.Fatalf("late result must not schedule a timer, got %d pending", clock.pending())
	}
}

func TestSchedulerIncompleteCredentialsPausePolling(t *testing.T) {
	clock := &fakeClock{}
	updates := make(chan Update, 2)
	s := newTestScheduler(func(context.Context, portal.Credentials) (*portal.Quota, error) {
		return quotaFor(10), nil
	}, clock, updates)
	defer s.Stop()

	s.SetCredentials(portal.Credentials{Username: "u", Password: "p"})
	waitUpdate(t, updates)
	if clock.pending() != 1 {
		t.Fatalf("expected pending timer")
	}

	s.SetCredentials(portal.Credentials{})
	state := s.State()
	if state.InFlight || state.TimerPending {
		t.Fatalf("expected polling to pause, got %+v", state)
	}
	if clock.pending() != 0 {
		t.Fatalf("expected timer to be stopped, got %d", clock.pending())
	}
	expectNoUpdate(t, updates)
}

func TestSchedulerRefreshPreemptsPendingTimer(t *testing.T) {
	clock := &fakeClock{}
	updates := make(chan Update, 4)
	s := newTestScheduler(func(context.Context, portal.Credentials) (*portal.Quota, error) {
		return quotaFor(10), nil
	}, clock, updates)
	defer s.Stop()

	s.SetCredentials(portal.Credentials{Username: "u", Password: "p"})
	first := waitUpdate(t, updates)
	s.Refresh()
	second := waitUpdate(t, updates)
	if second.Generation <= first.Generation {
		t.Fatalf("expected refresh to start a new generation")
	}
	if clock.pending() != 1 {
		t.Fatalf("expected exactly one pending timer after refresh, got %d", clock.pending())
	}
}

func TestSchedulerStopCancelsEverything(t *testing.T) {
	clock := &fakeClock{}
	updates := make(chan Update, 2)
	cancelled := make(chan struct{})
	s := newTestScheduler(func(ctx context.Context, _ portal.Credentials) (*portal.Quota, error) {
		<-ctx.Done()
		close(cancelled)
		return nil, ctx.Err()
	}, clock, updates)

	s.SetCredentials(portal.Credentials{Username: "u", Password: "p"})
	s.Stop()
	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected in-flight fetch to be cancelled on stop")
	}
	expectNoUpdate(t, updates)

	s.SetCredentials(portal.Credentials{Username: "u", Password: "p"})
	if s.State().InFlight {
		t.Fatalf("stopped scheduler must not start fetches")
	}
}
