package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/olliecrow/campnet_monitor/internal/config"
	"github.com/olliecrow/campnet_monitor/internal/host"
	"github.com/olliecrow/campnet_monitor/internal/logging"
	"github.com/olliecrow/campnet_monitor/internal/portal"
)

const binaryName = "campnet-monitor"

// usageError marks failures caused by how the command was invoked (exit 2).
type usageError struct {
	err error
}

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func usageErrorf(format string, args ...any) error {
	return usageError{err: fmt.Errorf(format, args...)}
}

// errReported exits 1 without printing anything more.
var errReported = errors.New("reported")

type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     config.Config
	stdout  io.Writer
	stderr  io.Writer
	closer  io.Closer
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	a := &app{v: config.New(), stdout: stdout, stderr: stderr}
	root := a.newRootCmd()
	root.SetArgs(args)
	err := root.Execute()
	if a.closer != nil {
		_ = a.closer.Close()
	}
	return exitCode(err, stderr)
}

func exitCode(err error, stderr io.Writer) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, errReported) {
		return 1
	}
	fmt.Fprintf(stderr, "error: %v\n", err)
	var ue usageError
	if errors.As(err, &ue) || isCobraUsageError(err) {
		return 2
	}
	return 1
}

func isCobraUsageError(err error) bool {
	msg := err.Error()
	return strings.HasPrefix(msg, "unknown command") ||
		strings.HasPrefix(msg, "unknown flag") ||
		strings.HasPrefix(msg, "unknown shorthand flag") ||
		strings.Contains(msg, "flag needs an argument") ||
		strings.HasPrefix(msg, "invalid argument") ||
		strings.HasPrefix(msg, "accepts ")
}

func (a *app) newRootCmd() *cobra.Command {
	tuiFlags := &tuiOptions{}
	root := &cobra.Command{
		Use:   binaryName,
		Short: "Watch your campus network data balance",
		Long: `campnet monitor

Track the data balance of a Sophos captive-portal (campnet) account in a
terminal user interface (TUI). The monitor signs in to the user portal,
reads the account status page every 15 seconds and shows how much of the
data limit is left.

Run without a command to start the terminal user interface. Print a shell
completion script with "campnet-monitor completion [bash|zsh|fish|powershell]".`,
		Args:              usageArgs(cobra.NoArgs),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runTUI(cmd, tuiFlags)
		},
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err: err}
	})

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default is <config dir>/campnet-monitor/config.yaml)")
	pf.String("base-url", portal.DefaultBaseURL, "user portal base url")
	pf.String("connect-url", portal.DefaultConnectURL, "captive portal login url")
	pf.Bool("insecure", false, "skip TLS certificate verification")
	pf.String("store-dir", "", "directory holding saved credentials")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	a.bindFlag(config.KeyBaseURL, pf.Lookup("base-url"))
	a.bindFlag(config.KeyConnectURL, pf.Lookup("connect-url"))
	a.bindFlag(config.KeyInsecureTLS, pf.Lookup("insecure"))
	a.bindFlag(config.KeyStoreDir, pf.Lookup("store-dir"))
	a.bindFlag(config.KeyLogLevel, pf.Lookup("log-level"))

	addTUIFlags(root, tuiFlags)

	root.AddCommand(
		a.newTUICmd(),
		a.newFetchCmd(),
		a.newVerifyCmd(),
		a.newDoctorCmd(),
		a.newConnectCmd(),
		a.newLogoutCmd(),
		a.newForgetCmd(),
		a.newAutolaunchCmd(),
		newCompletionCmd(root),
	)
	return root
}

func (a *app) bindFlag(key string, flag *pflag.Flag) {
	if err := a.v.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", key, err))
	}
}

// setup loads configuration and routes logs. The TUI owns the terminal, so
// it logs to a rotating file; other commands log to stderr.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return usageError{err: err}
	}
	a.cfg = cfg

	opts := logging.Options{Level: cfg.LogLevel, Stderr: a.stderr}
	if isTUICommand(cmd) {
		store, err := a.store()
		if err != nil {
			return err
		}
		opts.File = logging.FilePath(store.Dir(), cfg.LogFile)
	}
	closer, err := logging.Setup(opts)
	if err != nil {
		return err
	}
	a.closer = closer
	if cfg.Source != "" {
		log.WithField("file", cfg.Source).Debug("loaded config")
	}
	return nil
}

func isTUICommand(cmd *cobra.Command) bool {
	return !cmd.HasParent() || cmd.Name() == "tui"
}

func (a *app) store() (*host.Store, error) {
	return host.NewStore(a.cfg.StoreDir)
}

func (a *app) client() *portal.Client {
	return portal.NewClient(a.cfg.ClientOptions())
}

func (a *app) connector() *portal.Connector {
	return portal.NewConnector(a.cfg.ConnectorOptions())
}

// signalContext ends on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func usageArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return usageError{err: err}
		}
		return nil
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
