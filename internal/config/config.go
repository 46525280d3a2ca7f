// Package config resolves settings from defaults, an optional YAML file,
// a .env file and CAMPNET_* environment variables, in increasing priority.
// Command-line flags bound by the caller win over all of them.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/olliecrow/campnet_monitor/internal/host"
	"github.com/olliecrow/campnet_monitor/internal/portal"
	"github.com/olliecrow/campnet_monitor/internal/scheduler"
)

const (
	EnvPrefix      = "CAMPNET"
	configFileName = "config"
	configFileType = "yaml"
)

const (
	KeyBaseURL        = "portal.base_url"
	KeyConnectURL     = "portal.connect_url"
	KeyProbeURL       = "portal.probe_url"
	KeyInsecureTLS    = "portal.insecure_tls"
	KeyRequestTimeout = "portal.request_timeout"
	KeyPollInterval   = "poll.interval"
	KeyPollTimeout    = "poll.timeout"
	KeyStoreDir       = "store.dir"
	KeyLogLevel       = "log.level"
	KeyLogFile        = "log.file"
)

type Portal struct {
	BaseURL        string
	ConnectURL     string
	ProbeURL       string
	InsecureTLS    bool
	RequestTimeout time.Duration
}

type Poll struct {
	Interval time.Duration
	Timeout  time.Duration
}

type Config struct {
	Portal   Portal
	Poll     Poll
	StoreDir string
	LogLevel string
	LogFile  string
	// Source is the config file that was read, if any.
	Source string
}

// New returns a viper instance with defaults and environment binding set up.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyBaseURL, portal.DefaultBaseURL)
	v.SetDefault(KeyConnectURL, portal.DefaultConnectURL)
	v.SetDefault(KeyProbeURL, portal.DefaultProbeURL)
	v.SetDefault(KeyInsecureTLS, false)
	v.SetDefault(KeyRequestTimeout, portal.DefaultRequestTimeout)
	v.SetDefault(KeyPollInterval, scheduler.DefaultInterval)
	v.SetDefault(KeyPollTimeout, time.Duration(0))
	v.SetDefault(KeyStoreDir, "")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFile, "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads .env and the config file into v and returns the validated result.
// An empty configFile searches the monitor's config directory.
func Load(v *viper.Viper, configFile string) (Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, err
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(configFileName)
		v.SetConfigType(configFileType)
		if dir, err := host.DefaultDir(); err == nil {
			v.AddConfigPath(dir)
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := Config{
		Portal: Portal{
			BaseURL:        strings.TrimSpace(v.GetString(KeyBaseURL)),
			ConnectURL:     strings.TrimSpace(v.GetString(KeyConnectURL)),
			ProbeURL:       strings.TrimSpace(v.GetString(KeyProbeURL)),
			InsecureTLS:    v.GetBool(KeyInsecureTLS),
			RequestTimeout: v.GetDuration(KeyRequestTimeout),
		},
		Poll: Poll{
			Interval: v.GetDuration(KeyPollInterval),
			Timeout:  v.GetDuration(KeyPollTimeout),
		},
		StoreDir: strings.TrimSpace(v.GetString(KeyStoreDir)),
		LogLevel: strings.TrimSpace(v.GetString(KeyLogLevel)),
		LogFile:  strings.TrimSpace(v.GetString(KeyLogFile)),
		Source:   v.ConfigFileUsed(),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	for key, raw := range map[string]string{
		KeyBaseURL:    c.Portal.BaseURL,
		KeyConnectURL: c.Portal.ConnectURL,
		KeyProbeURL:   c.Portal.ProbeURL,
	} {
		if err := validateURL(raw); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	if c.Portal.RequestTimeout <= 0 {
		return fmt.Errorf("%s must be > 0", KeyRequestTimeout)
	}
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("%s must be > 0", KeyPollInterval)
	}
	if c.Poll.Timeout < 0 {
		return fmt.Errorf("%s must be >= 0", KeyPollTimeout)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%s: %w", KeyLogLevel, err)
	}
	return nil
}

func (c Config) ClientOptions() portal.Options {
	return portal.Options{
		BaseURL:        c.Portal.BaseURL,
		RequestTimeout: c.Portal.RequestTimeout,
		InsecureTLS:    c.Portal.InsecureTLS,
	}
}

func (c Config) ConnectorOptions() portal.ConnectorOptions {
	return portal.ConnectorOptions{
		ConnectURL:     c.Portal.ConnectURL,
		ProbeURL:       c.Portal.ProbeURL,
		RequestTimeout: c.Portal.RequestTimeout,
		InsecureTLS:    c.Portal.InsecureTLS,
	}
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid url %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid url %q: missing host", raw)
	}
	return nil
}

// loadDotEnv never overrides variables already set in the environment.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := godotenv.Load(filepath.Clean(path)); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}
