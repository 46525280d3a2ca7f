package tui

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	log "github.com/sirupsen/logrus"

	"github.com/olliecrow/campnet_monitor/internal/host"
	"github.com/olliecrow/campnet_monitor/internal/portal"
	"github.com/olliecrow/campnet_monitor/internal/scheduler"
)

type VerifyFunc func(context.Context, portal.Credentials) error

// Poller is the part of the scheduler the UI drives.
type Poller interface {
	SetCredentials(portal.Credentials)
	Refresh()
}

// Signals are the outbound host signals.
type Signals interface {
	Save(portal.Credentials)
	Minimise()
	Autolaunch(bool)
}

type Options struct {
	Interval      time.Duration
	Timeout       time.Duration
	VerifyTimeout time.Duration
	NoColor       bool
	AltScreen     bool

	Fetch   scheduler.FetchFunc
	Verify  VerifyFunc
	Signals Signals
	// Inbound delivers stored credentials from the host.
	Inbound <-chan host.CredentialsPayload
	// Autolaunch is the start-at-login state at startup.
	Autolaunch bool

	poller Poller
}

const (
	focusUsername = iota
	focusPassword
)

type toastLevel int

const (
	toastInfo toastLevel = iota
	toastOK
	toastError
)

type toast struct {
	text      string
	level     toastLevel
	expiresAt time.Time
}

const (
	defaultVerifyTimeout = 10 * time.Second
	toastLifetime        = 4 * time.Second
)

const (
	msgVerifying     = "Verifying credentials"
	msgVerified      = "Credentials verified!"
	msgIncorrect     = "Incorrect credentials!"
	msgNotOnNetwork  = "Not on Sophos!"
	msgCouldNotCheck = "Could not verify credentials!"
	msgIncomplete    = "Enter both username and password"
)

type Model struct {
	interval      time.Duration
	verifyTimeout time.Duration
	verify        VerifyFunc
	poller        Poller
	signals       Signals
	inbound       <-chan host.CredentialsPayload
	log           *log.Entry

	width  int
	height int

	now time.Time

	// committed drives polling and the display; the inputs below are edited
	// independently until a verification succeeds.
	committed     portal.Credentials
	quota         *portal.Quota
	fetching      bool
	lastSuccessAt time.Time
	lastError     string
	nextFetchAt   time.Time

	username  textinput.Model
	password  textinput.Model
	focus     int
	verifying bool
	verifySeq int

	toast      *toast
	autolaunch bool

	styles styles
}

type clockTickMsg struct {
	at time.Time
}

type quotaUpdateMsg struct {
	update scheduler.Update
}

type credentialsMsg struct {
	payload host.CredentialsPayload
}

type verifyResultMsg struct {
	seq   int
	creds portal.Credentials
	err   error
}

func NewModel(opts Options) Model {
	interval := opts.Interval
	if interval <= 0 {
		interval = scheduler.DefaultInterval
	}
	verifyTimeout := opts.VerifyTimeout
	if verifyTimeout <= 0 {
		verifyTimeout = defaultVerifyTimeout
	}
	verify := opts.Verify
	if verify == nil {
		verify = func(context.Context, portal.Credentials) error {
			return errors.New("missing verify function")
		}
	}
	signals := opts.Signals
	if signals == nil {
		signals = nopSignals{}
	}
	poller := opts.poller
	if poller == nil {
		poller = nopPoller{}
	}

	username := textinput.New()
	username.Prompt = "username: "
	username.Placeholder = "f20210001"
	username.CharLimit = 64
	username.Focus()

	password := textinput.New()
	password.Prompt = "password: "
	password.Placeholder = "password"
	password.CharLimit = 128
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '•'

	return Model{
		interval:      interval,
		verifyTimeout: verifyTimeout,
		verify:        verify,
		poller:        poller,
		signals:       signals,
		inbound:       opts.Inbound,
		log:           log.WithField("component", "tui"),
		now:           time.Now().UTC(),
		username:      username,
		password:      password,
		focus:         focusUsername,
		autolaunch:    opts.Autolaunch,
		styles:        defaultStyles(opts.NoColor),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, clockCmd(), listenCmd(m.inbound))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch v := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(v)
	case tea.WindowSizeMsg:
		m.width = v.Width
		m.height = v.Height
		return m, nil
	case tea.BlurMsg:
		m.signals.Minimise()
		return m, nil
	case clockTickMsg:
		m.now = v.at.UTC()
		if m.toast != nil && !m.now.Before(m.toast.expiresAt) {
			m.toast = nil
		}
		return m, clockCmd()
	case quotaUpdateMsg:
		m.applyUpdate(v.update)
		return m, nil
	case credentialsMsg:
		creds, err := v.payload.Decode()
		if err != nil {
			m.log.WithError(err).Warn("ignoring undecodable credentials signal")
			return m, listenCmd(m.inbound)
		}
		m.username.SetValue(creds.Username)
		m.password.SetValue(creds.Password)
		m.commit(creds)
		return m, listenCmd(m.inbound)
	case verifyResultMsg:
		if v.seq != m.verifySeq {
			return m, nil
		}
		m.verifying = false
		if v.err != nil {
			m.log.WithError(v.err).WithField("kind", portal.KindOf(v.err).String()).Info("verification failed")
			m.showToast(verifyFailureMessage(v.err), toastError)
			return m, nil
		}
		m.commit(v.creds)
		m.signals.Save(v.creds)
		m.showToast(msgVerified, toastOK)
		return m, nil
	}

	return m.updateFocusedInput(msg)
}

func (m Model) handleKey(k tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch k.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "ctrl+z":
		m.signals.Minimise()
		return m, tea.Suspend
	case "ctrl+r":
		if m.committed.Complete() {
			m.fetching = true
			m.poller.Refresh()
		}
		return m, nil
	case "ctrl+a":
		m.autolaunch = !m.autolaunch
		m.signals.Autolaunch(m.autolaunch)
		if m.autolaunch {
			m.showToast("Start at login enabled", toastInfo)
		} else {
			m.showToast("Start at login disabled", toastInfo)
		}
		return m, nil
	case "tab", "shift+tab", "up", "down":
		return m, m.toggleFocus()
	case "enter":
		return m.submit()
	}
	return m.updateFocusedInput(k)
}

func (m *Model) toggleFocus() tea.Cmd {
	if m.focus == focusUsername {
		m.focus = focusPassword
		m.username.Blur()
		return m.password.Focus()
	}
	m.focus = focusUsername
	m.password.Blur()
	return m.username.Focus()
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	if m.verifying {
		return m, nil
	}
	creds := m.localCredentials()
	if !creds.Complete() {
		m.showToast(msgIncomplete, toastError)
		return m, nil
	}
	m.verifying = true
	m.verifySeq++
	m.showToast(msgVerifying, toastInfo)
	return m, verifyCmd(m.verify, m.verifyTimeout, m.verifySeq, creds)
}

func (m Model) updateFocusedInput(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	if m.focus == focusUsername {
		m.username, cmd = m.username.Update(msg)
	} else {
		m.password, cmd = m.password.Update(msg)
	}
	return m, cmd
}

func (m Model) localCredentials() portal.Credentials {
	return portal.Credentials{
		Username: strings.TrimSpace(m.username.Value()),
		Password: m.password.Value(),
	}
}

// commit replaces the polled credentials. Re-committing the same pair is a
// no-op so host echoes do not restart polling.
func (m *Model) commit(creds portal.Credentials) {
	if creds == m.committed {
		return
	}
	m.committed = creds
	m.quota = nil
	m.lastError = ""
	m.lastSuccessAt = time.Time{}
	m.nextFetchAt = time.Time{}
	m.fetching = creds.Complete()
	m.poller.SetCredentials(creds)
}

func (m *Model) applyUpdate(u scheduler.Update) {
	if u.Credentials != m.committed {
		return
	}
	m.fetching = false
	m.nextFetchAt = u.NextAt.UTC()
	if u.Err != nil {
		m.lastError = u.Err.Error()
		return
	}
	m.lastError = ""
	m.lastSuccessAt = u.FinishedAt.UTC()
	m.quota = u.Quota
}

func (m *Model) showToast(text string, level toastLevel) {
	m.toast = &toast{text: text, level: level, expiresAt: m.now.Add(toastLifetime)}
}

func verifyFailureMessage(err error) string {
	switch portal.KindOf(err) {
	case portal.KindInvalidCredentials:
		return msgIncorrect
	case portal.KindNotOnNetwork:
		return msgNotOnNetwork
	default:
		return msgCouldNotCheck
	}
}

func clockCmd() tea.Cmd {
	return tea.Tick(1*time.Second, func(t time.Time) tea.Msg {
		return clockTickMsg{at: t}
	})
}

func listenCmd(ch <-chan host.CredentialsPayload) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		payload, ok := <-ch
		if !ok {
			return nil
		}
		return credentialsMsg{payload: payload}
	}
}

func verifyCmd(verify VerifyFunc, timeout time.Duration, seq int, creds portal.Credentials) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return verifyResultMsg{seq: seq, creds: creds, err: verify(ctx, creds)}
	}
}

// Run starts the UI with a scheduler feeding it quota updates.
func Run(ctx context.Context, opts Options) error {
	var prog *tea.Program
	sched := scheduler.New(opts.Fetch, scheduler.Options{
		Interval: opts.Interval,
		Timeout:  opts.Timeout,
		Publish: func(u scheduler.Update) {
			prog.Send(quotaUpdateMsg{update: u})
		},
	})
	defer sched.Stop()
	opts.poller = sched

	progOpts := []tea.ProgramOption{tea.WithContext(ctx), tea.WithReportFocus()}
	if opts.AltScreen {
		progOpts = append(progOpts, tea.WithAltScreen())
	}
	prog = tea.NewProgram(NewModel(opts), progOpts...)
	_, err := prog.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

type nopSignals struct{}

func (nopSignals) Save(portal.Credentials) {}
func (nopSignals) Minimise()               {}
func (nopSignals) Autolaunch(bool)         {}

type nopPoller struct{}

func (nopPoller) SetCredentials(portal.Credentials) {}
func (nopPoller) Refresh()                          {}
