// Package host is the native side of the UI: it persists credentials,
// handles minimise and start-at-login requests, and talks to the UI only
// through the typed signals of a Bridge.
package host

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/olliecrow/campnet_monitor/internal/portal"
)

const (
	SignalCredentials = "credentials"
	SignalSave        = "save"
	SignalMinimise    = "minimise"
	SignalAutolaunch  = "autolaunch"
)

// CredentialsPayload is the wire form of credentials: both fields are
// percent-encoded.
type CredentialsPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func EncodePayload(c portal.Credentials) CredentialsPayload {
	enc := c.Encode()
	return CredentialsPayload{Username: enc.Username, Password: enc.Password}
}

func (p CredentialsPayload) Decode() (portal.Credentials, error) {
	return portal.DecodeCredentials(portal.Credentials{Username: p.Username, Password: p.Password})
}

// Event is an outbound signal from the UI to the host.
type Event struct {
	Name        string
	Credentials CredentialsPayload
	Enabled     bool
}

// Bridge carries one inbound signal (credentials) and three outbound ones
// (save, minimise, autolaunch).
type Bridge struct {
	inbound  chan CredentialsPayload
	outbound chan Event
	log      *log.Entry
}

func NewBridge() *Bridge {
	return &Bridge{
		inbound:  make(chan CredentialsPayload, 4),
		outbound: make(chan Event, 16),
		log:      log.WithField("component", "bridge"),
	}
}

// Credentials is the UI's inbound stream.
func (b *Bridge) Credentials() <-chan CredentialsPayload {
	return b.inbound
}

func (b *Bridge) Save(c portal.Credentials) {
	b.emit(Event{Name: SignalSave, Credentials: EncodePayload(c)})
}

func (b *Bridge) Minimise() {
	b.emit(Event{Name: SignalMinimise})
}

func (b *Bridge) Autolaunch(enabled bool) {
	b.emit(Event{Name: SignalAutolaunch, Enabled: enabled})
}

// emit never blocks the UI; a full queue drops the signal.
func (b *Bridge) emit(ev Event) {
	select {
	case b.outbound <- ev:
	default:
		b.log.Warnf("dropping %s signal: host is not keeping up", ev.Name)
	}
}

// Events is the host's outbound stream.
func (b *Bridge) Events() <-chan Event {
	return b.outbound
}

// PublishCredentials sends credentials to the UI, blocking until it accepts
// them or ctx ends.
func (b *Bridge) PublishCredentials(ctx context.Context, p CredentialsPayload) error {
	select {
	case b.inbound <- p:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
