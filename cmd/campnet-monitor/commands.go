package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/olliecrow/campnet_monitor/internal/display"
	"github.com/olliecrow/campnet_monitor/internal/doctor"
	"github.com/olliecrow/campnet_monitor/internal/host"
	"github.com/olliecrow/campnet_monitor/internal/portal"
)

type credentialFlags struct {
	username string
	password string
}

func addCredentialFlags(cmd *cobra.Command, f *credentialFlags) {
	cmd.Flags().StringVarP(&f.username, "username", "u", "", "portal username (default: saved credentials)")
	cmd.Flags().StringVarP(&f.password, "password", "p", "", "portal password (prompted when omitted on a terminal)")
}

// credentials resolves flags first, then the saved pair.
func (a *app) credentials(f *credentialFlags) (portal.Credentials, error) {
	if strings.TrimSpace(f.username) != "" {
		password := f.password
		if password == "" {
			if !isTerminal(os.Stdin) {
				return portal.Credentials{}, usageErrorf("--password is required when stdin is not a terminal")
			}
			fmt.Fprint(a.stderr, "password: ")
			raw, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Fprintln(a.stderr)
			if err != nil {
				return portal.Credentials{}, fmt.Errorf("read password: %w", err)
			}
			password = string(raw)
		}
		return portal.Credentials{Username: strings.TrimSpace(f.username), Password: password}, nil
	}
	if f.password != "" {
		return portal.Credentials{}, usageErrorf("--password requires --username")
	}

	store, err := a.store()
	if err != nil {
		return portal.Credentials{}, err
	}
	payload, err := store.Load()
	if errors.Is(err, host.ErrNoCredentials) {
		return portal.Credentials{}, fmt.Errorf("no saved credentials in %s; run %s verify --username <user> --save", store.Path(), binaryName)
	}
	if err != nil {
		return portal.Credentials{}, err
	}
	creds, err := payload.Decode()
	if err != nil {
		return portal.Credentials{}, fmt.Errorf("decode saved credentials: %w", err)
	}
	return creds, nil
}

type quotaJSON struct {
	Username  string              `json:"username"`
	Traffic   portal.Traffic      `json:"traffic"`
	Units     portal.TrafficUnits `json:"units"`
	Rating    display.Rating      `json:"rating"`
	FetchedAt time.Time           `json:"fetched_at"`
}

func (a *app) newFetchCmd() *cobra.Command {
	creds := &credentialFlags{}
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch the data balance once and print it",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.credentials(creds)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			quota, err := a.client().FetchQuota(ctx, c)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(a.stdout, quotaJSON{
					Username:  c.Username,
					Traffic:   quota.Traffic,
					Units:     quota.Units,
					Rating:    display.RateRemaining(quota.Traffic.Remaining, quota.Traffic.Total),
					FetchedAt: quota.FetchedAt.UTC(),
				})
			}
			printQuotaHuman(a.stdout, c, quota)
			return nil
		},
	}
	addCredentialFlags(cmd, creds)
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output the data balance as JSON")
	return cmd
}

func printQuotaHuman(w io.Writer, creds portal.Credentials, quota *portal.Quota) {
	panel := display.Build(creds, quota)
	fmt.Fprintf(w, "data balance for %s\n\n", creds.Username)
	if !panel.Visible {
		fmt.Fprintln(w, "no data limit reported")
		return
	}
	for _, line := range panel.Lines {
		fmt.Fprintln(w, line.String())
	}
	fmt.Fprintf(w, "Rating: %s\n", panel.Gauge.Rating)
}

func (a *app) newVerifyCmd() *cobra.Command {
	creds := &credentialFlags{}
	var save bool
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check that the portal accepts a username and password",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.credentials(creds)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			if err := a.client().Verify(ctx, c); err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, "Credentials verified!")
			if !save {
				return nil
			}
			store, err := a.store()
			if err != nil {
				return err
			}
			if err := store.Save(host.EncodePayload(c)); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "saved to %s\n", store.Path())
			return nil
		},
	}
	addCredentialFlags(cmd, creds)
	cmd.Flags().BoolVar(&save, "save", false, "save the credentials after a successful check")
	return cmd
}

func (a *app) newDoctorCmd() *cobra.Command {
	var (
		jsonOutput bool
		timeout    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run setup and portal checks",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if timeout <= 0 {
				return usageErrorf("--timeout must be > 0")
			}
			store, err := a.store()
			if err != nil {
				return err
			}
			if err := store.EnsureDir(); err != nil {
				fmt.Fprintf(a.stderr, "warning: could not ensure monitor data dir: %v\n", err)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			report := doctor.Run(ctx, doctor.Options{
				Store:     store,
				Source:    a.client(),
				Connector: a.connector(),
			})
			if jsonOutput {
				if err := writeJSON(a.stdout, report); err != nil {
					return err
				}
			} else {
				printDoctorHuman(a.stdout, report)
			}
			if !report.Healthy() {
				return errReported
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output doctor report as JSON")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "doctor timeout")
	return cmd
}

func printDoctorHuman(w io.Writer, report doctor.Report) {
	fmt.Fprintln(w, "campnet monitor doctor")
	fmt.Fprintln(w)
	for _, c := range report.Checks {
		state := "FAIL"
		if c.OK {
			state = "PASS"
		}
		fmt.Fprintf(w, "[%s] %s\n", state, c.Name)
		fmt.Fprintf(w, "  %s\n", c.Details)
	}
}

func (a *app) newConnectCmd() *cobra.Command {
	creds := &credentialFlags{}
	var (
		watch    bool
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Log this device in to the captive portal",
		Long: `Log this device in to the captive portal so it gets network access.

With --watch the command keeps running and logs in again whenever the
captive portal answers but the internet does not. It stops when the
portal rejects the credentials or the data limit is exceeded.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if watch && interval <= 0 {
				return usageErrorf("--interval must be > 0")
			}
			c, err := a.credentials(creds)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			connector := a.connector()
			if !watch {
				status, err := connector.Login(ctx, c)
				fmt.Fprintln(a.stdout, status.Message())
				return err
			}
			err = connector.Watch(ctx, c, interval, func(status portal.ConnectStatus, _ error) {
				fmt.Fprintf(a.stdout, "%s %s\n", time.Now().UTC().Format("15:04:05"), status.Message())
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	addCredentialFlags(cmd, creds)
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep the device logged in")
	cmd.Flags().DurationVar(&interval, "interval", portal.DefaultWatchInterval, "watch check interval")
	return cmd
}

func (a *app) newLogoutCmd() *cobra.Command {
	creds := &credentialFlags{}
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Log this device out of the captive portal",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			username := strings.TrimSpace(creds.username)
			if username == "" {
				c, err := a.credentials(creds)
				if err != nil {
					return err
				}
				username = c.Username
			}
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			status, err := a.connector().Logout(ctx, username)
			fmt.Fprintln(a.stdout, status.Message())
			return err
		},
	}
	cmd.Flags().StringVarP(&creds.username, "username", "u", "", "portal username (default: saved credentials)")
	return cmd
}

func (a *app) newForgetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "forget",
		Short: "Delete saved credentials",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.store()
			if err != nil {
				return err
			}
			if err := store.Delete(); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "removed %s\n", store.Path())
			return nil
		},
	}
}

func (a *app) newAutolaunchCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "autolaunch [on|off|status]",
		Short:     "Start the monitor when you log in",
		Args:      usageArgs(cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs)),
		ValidArgs: []string{"on", "off", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			autostart, err := host.NewAutostart("", "")
			if err != nil {
				return err
			}
			action := "status"
			if len(args) == 1 {
				action = args[0]
			}
			if action != "status" {
				if err := autostart.Set(action == "on"); err != nil {
					return err
				}
			}
			state := "off"
			if autostart.Enabled() {
				state = "on"
			}
			fmt.Fprintf(a.stdout, "start at login: %s (%s)\n", state, autostart.Path())
			return nil
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}
