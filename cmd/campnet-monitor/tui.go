package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/olliecrow/campnet_monitor/internal/host"
	"github.com/olliecrow/campnet_monitor/internal/tui"
)

type tuiOptions struct {
	interval    time.Duration
	timeout     time.Duration
	noColor     bool
	noAltScreen bool
}

func addTUIFlags(cmd *cobra.Command, opts *tuiOptions) {
	f := cmd.Flags()
	f.DurationVar(&opts.interval, "interval", 15*time.Second, "poll interval")
	f.DurationVar(&opts.timeout, "timeout", 0, "per-poll fetch timeout (default: the poll interval)")
	f.BoolVar(&opts.noColor, "no-color", false, "disable color styling")
	f.BoolVar(&opts.noAltScreen, "no-alt-screen", false, "disable alternate screen mode")
}

func (a *app) newTUICmd() *cobra.Command {
	opts := &tuiOptions{}
	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Run the terminal user interface (default)",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runTUI(cmd, opts)
		},
	}
	addTUIFlags(cmd, opts)
	return cmd
}

func (a *app) runTUI(cmd *cobra.Command, opts *tuiOptions) error {
	interval := a.cfg.Poll.Interval
	if cmd.Flags().Changed("interval") {
		interval = opts.interval
	}
	timeout := a.cfg.Poll.Timeout
	if cmd.Flags().Changed("timeout") {
		timeout = opts.timeout
	}
	if interval <= 0 {
		return usageErrorf("--interval must be > 0")
	}
	if timeout < 0 {
		return usageErrorf("--timeout must be >= 0")
	}

	if !isTerminal(os.Stdin) || !isTerminal(os.Stdout) {
		return errors.New("interactive TUI requires a TTY")
	}

	store, err := a.store()
	if err != nil {
		return err
	}
	if err := store.EnsureDir(); err != nil {
		fmt.Fprintf(a.stderr, "warning: could not ensure monitor data dir: %v\n", err)
	}
	autostart, err := host.NewAutostart("", "")
	if err != nil {
		log.WithError(err).Warn("start at login unavailable")
	}

	ctx, cancel := signalContext(context.Background())
	defer cancel()

	bridge := host.NewBridge()
	h, err := host.New(bridge, host.Options{
		Store:     store,
		Autostart: autostart,
		OnError: func(signal string, err error) {
			log.WithError(err).WithField("signal", signal).Error("host could not handle signal")
		},
	})
	if err != nil {
		return err
	}
	hostDone := make(chan error, 1)
	go func() { hostDone <- h.Serve(ctx) }()

	client := a.client()
	log.WithField("portal", client.BaseURL()).Info("starting monitor")
	runErr := tui.Run(ctx, tui.Options{
		Interval:   interval,
		Timeout:    timeout,
		NoColor:    opts.noColor,
		AltScreen:  !opts.noAltScreen,
		Fetch:      client.FetchQuota,
		Verify:     client.Verify,
		Signals:    bridge,
		Inbound:    bridge.Credentials(),
		Autolaunch: autostart != nil && autostart.Enabled(),
	})
	cancel()
	if err := <-hostDone; err != nil {
		log.WithError(err).Warn("host stopped with error")
	}
	return runErr
}
