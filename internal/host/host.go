package host

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

type Options struct {
	Store     *Store
	Autostart *Autostart
	// OnMinimise runs on the serve goroutine for each minimise signal.
	OnMinimise func()
	// OnError receives failures while handling signals; nil just logs them.
	OnError func(signal string, err error)
	Logger  *log.Entry
}

// Host answers the UI's outbound signals and feeds it stored credentials,
// including edits made to the credentials file while running.
type Host struct {
	bridge     *Bridge
	store      *Store
	autostart  *Autostart
	onMinimise func()
	onError    func(string, error)
	log        *log.Entry

	mu       sync.Mutex
	lastSeen CredentialsPayload
}

func New(bridge *Bridge, opts Options) (*Host, error) {
	if bridge == nil {
		return nil, errors.New("host: bridge is required")
	}
	if opts.Store == nil {
		return nil, errors.New("host: store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "host")
	}
	return &Host{
		bridge:     bridge,
		store:      opts.Store,
		autostart:  opts.Autostart,
		onMinimise: opts.OnMinimise,
		onError:    opts.OnError,
		log:        logger,
	}, nil
}

// Serve publishes stored credentials, then handles signals until ctx ends.
func (h *Host) Serve(ctx context.Context) error {
	if err := h.store.EnsureDir(); err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create credentials watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(h.store.Dir()); err != nil {
		return fmt.Errorf("watch %s: %w", h.store.Dir(), err)
	}

	if err := h.publishStored(ctx); err != nil {
		return err
	}

	target := filepath.Clean(h.store.Path())
	for {
		select {
		case <-ctx.Done():
			h.drain()
			return nil
		case ev := <-h.bridge.Events():
			h.handle(ev)
		case fe, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(fe.Name) != target {
				continue
			}
			if fe.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if err := h.publishStored(ctx); err != nil {
				return err
			}
		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			h.log.WithError(werr).Warn("credentials watcher error")
		}
	}
}

func (h *Host) handle(ev Event) {
	switch ev.Name {
	case SignalSave:
		h.mu.Lock()
		h.lastSeen = ev.Credentials
		h.mu.Unlock()
		if err := h.store.Save(ev.Credentials); err != nil {
			h.fail(ev.Name, err)
			return
		}
		h.log.Info("saved credentials")
	case SignalMinimise:
		h.log.Debug("minimise requested")
		if h.onMinimise != nil {
			h.onMinimise()
		}
	case SignalAutolaunch:
		if h.autostart == nil {
			h.fail(ev.Name, ErrAutolaunchUnsupported)
			return
		}
		if err := h.autostart.Set(ev.Enabled); err != nil {
			h.fail(ev.Name, err)
			return
		}
		h.log.WithField("enabled", ev.Enabled).Info("updated start at login")
	default:
		h.log.Warnf("ignoring unknown signal %q", ev.Name)
	}
}

// drain handles whatever the UI queued before shutdown.
func (h *Host) drain() {
	for {
		select {
		case ev := <-h.bridge.Events():
			h.handle(ev)
		default:
			return
		}
	}
}

// publishStored sends the stored pair unless the UI already has it.
func (h *Host) publishStored(ctx context.Context) error {
	payload, err := h.store.Load()
	if err != nil && !errors.Is(err, ErrNoCredentials) {
		h.fail(SignalCredentials, err)
		return nil
	}
	h.mu.Lock()
	if payload == h.lastSeen {
		h.mu.Unlock()
		return nil
	}
	h.lastSeen = payload
	h.mu.Unlock()

	if err := h.bridge.PublishCredentials(ctx, payload); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		return err
	}
	h.log.Debug("published stored credentials")
	return nil
}

func (h *Host) fail(signal string, err error) {
	h.log.WithError(err).WithField("signal", signal).Warn("host signal failed")
	if h.onError != nil {
		h.onError(signal, err)
	}
}
