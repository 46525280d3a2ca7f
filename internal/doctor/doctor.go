// Package doctor runs setup checks for the monitor.
package doctor

import (
	"context"
	"fmt"
	"time"

	"github.com/olliecrow/campnet_monitor/internal/display"
	"github.com/olliecrow/campnet_monitor/internal/host"
	"github.com/olliecrow/campnet_monitor/internal/portal"
)

const DefaultCheckTimeout = 8 * time.Second

const (
	CheckCredentials = "credentials"
	CheckConnect     = "connect endpoint"
	CheckInternet    = "internet"
	CheckLogin       = "portal login"
	CheckQuota       = "quota fetch"
)

type Check struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Details string `json:"details"`
}

type Report struct {
	Checks []Check `json:"checks"`
}

type CredentialStore interface {
	Load() (host.CredentialsPayload, error)
	Path() string
}

type QuotaSource interface {
	Name() string
	Verify(ctx context.Context, creds portal.Credentials) error
	FetchQuota(ctx context.Context, creds portal.Credentials) (*portal.Quota, error)
}

type Prober interface {
	Reachable(ctx context.Context) bool
	Online(ctx context.Context) bool
}

type Options struct {
	Store     CredentialStore
	Source    QuotaSource
	Connector Prober
	Timeout   time.Duration
}

func Run(ctx context.Context, opts Options) Report {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultCheckTimeout
	}
	var checks []Check

	creds, credCheck := checkCredentials(opts.Store)
	checks = append(checks, credCheck)

	if opts.Connector != nil {
		checks = append(checks, checkProbe(ctx, CheckConnect, timeout, opts.Connector.Reachable,
			"captive portal answered", "captive portal unreachable (not on the campus network?)"))
		checks = append(checks, checkProbe(ctx, CheckInternet, timeout, opts.Connector.Online,
			"probe url answered", "probe url unreachable (run connect to log in)"))
	}

	if !credCheck.OK {
		checks = append(checks,
			Check{Name: CheckLogin, Details: "skipped: no usable saved credentials"},
			Check{Name: CheckQuota, Details: "skipped: no usable saved credentials"},
		)
		return Report{Checks: checks}
	}
	checks = append(checks, checkLogin(ctx, opts.Source, creds, timeout))
	checks = append(checks, checkQuota(ctx, opts.Source, creds, timeout))
	return Report{Checks: checks}
}

// Healthy needs saved credentials that log in and yield a parsed quota.
// Connectivity probes are informational.
func (r Report) Healthy() bool {
	need := map[string]bool{CheckCredentials: false, CheckLogin: false, CheckQuota: false}
	for _, c := range r.Checks {
		if _, ok := need[c.Name]; ok {
			need[c.Name] = c.OK
		}
	}
	for _, ok := range need {
		if !ok {
			return false
		}
	}
	return true
}

func checkCredentials(store CredentialStore) (portal.Credentials, Check) {
	if store == nil {
		return portal.Credentials{}, Check{Name: CheckCredentials, Details: "no credential store configured"}
	}
	payload, err := store.Load()
	if err != nil {
		return portal.Credentials{}, Check{Name: CheckCredentials, Details: fmt.Sprintf("%s: %v", store.Path(), err)}
	}
	creds, err := payload.Decode()
	if err != nil {
		return portal.Credentials{}, Check{Name: CheckCredentials, Details: fmt.Sprintf("%s: %v", store.Path(), err)}
	}
	if !creds.Complete() {
		return portal.Credentials{}, Check{Name: CheckCredentials, Details: fmt.Sprintf("%s: username or password is empty", store.Path())}
	}
	return creds, Check{
		Name:    CheckCredentials,
		OK:      true,
		Details: fmt.Sprintf("found %s for user %s", store.Path(), creds.Username),
	}
}

func checkProbe(parent context.Context, name string, timeout time.Duration, probe func(context.Context) bool, okDetails, failDetails string) Check {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()
	if probe(ctx) {
		return Check{Name: name, OK: true, Details: okDetails}
	}
	return Check{Name: name, Details: failDetails}
}

func checkLogin(parent context.Context, source QuotaSource, creds portal.Credentials, timeout time.Duration) Check {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()
	if err := source.Verify(ctx, creds); err != nil {
		return Check{Name: CheckLogin, Details: fmt.Sprintf("%s: %v", portal.KindOf(err), err)}
	}
	return Check{Name: CheckLogin, OK: true, Details: "session cookie issued by " + source.Name()}
}

func checkQuota(parent context.Context, source QuotaSource, creds portal.Credentials, timeout time.Duration) Check {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()
	quota, err := source.FetchQuota(ctx, creds)
	if err != nil {
		return Check{Name: CheckQuota, Details: fmt.Sprintf("%s: %v", portal.KindOf(err), err)}
	}
	t, u := quota.Traffic, quota.Units
	return Check{
		Name: CheckQuota,
		OK:   true,
		Details: fmt.Sprintf(
			"total=%s %s used=%s %s left=%s %s",
			display.FormatAmount(t.Total), u.Total,
			display.FormatAmount(t.Used), u.Used,
			display.FormatAmount(t.Remaining), u.Remaining,
		),
	}
}
