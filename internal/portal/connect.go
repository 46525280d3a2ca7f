package portal

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	DefaultConnectURL = "https://campnet.bits-goa.ac.in:8090"
	DefaultProbeURL   = "https://www.google.com"

	connectLoginPath  = "/login.xml"
	connectLogoutPath = "/logout.xml"
)

type ConnectStatus string

const (
	StatusConnected     ConnectStatus = "connected"
	StatusRejected      ConnectStatus = "rejected"
	StatusLimitExceeded ConnectStatus = "limit_exceeded"
	StatusLoggedOut     ConnectStatus = "logged_out"
	StatusUnrecognised  ConnectStatus = "unrecognised"
)

// Message is the user-facing text for a connect attempt outcome.
func (s ConnectStatus) Message() string {
	switch s {
	case StatusConnected:
		return "Logged in successfully to campus network"
	case StatusRejected:
		return "Incorrect credentials were provided"
	case StatusLimitExceeded:
		return "Daily data limit exceeded on credentials"
	case StatusLoggedOut:
		return "Logged out of campus network"
	default:
		return "There was an issue with the login attempt"
	}
}

// ConnectorOptions configures a Connector. Zero values fall back to defaults.
type ConnectorOptions struct {
	ConnectURL     string
	ProbeURL       string
	RequestTimeout time.Duration
	InsecureTLS    bool
	HTTPClient     *http.Client
	Logger         *log.Entry
	Now            func() time.Time
}

// Connector performs the captive-portal login and logout that grant or revoke
// network access for the device.
type Connector struct {
	connectURL string
	probeURL   string
	timeout    time.Duration
	httpClient *http.Client
	log        *log.Entry
	now        func() time.Time
}

func NewConnector(opts ConnectorOptions) *Connector {
	connectURL := strings.TrimRight(strings.TrimSpace(opts.ConnectURL), "/")
	if connectURL == "" {
		connectURL = DefaultConnectURL
	}
	probeURL := strings.TrimSpace(opts.ProbeURL)
	if probeURL == "" {
		probeURL = DefaultProbeURL
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = newHTTPClient(opts.InsecureTLS)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "connector")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Connector{
		connectURL: connectURL,
		probeURL:   probeURL,
		timeout:    timeout,
		httpClient: httpClient,
		log:        logger,
		now:        now,
	}
}

// Login asks the captive portal to admit this device.
func (c *Connector) Login(ctx context.Context, creds Credentials) (ConnectStatus, error) {
	if !creds.Complete() {
		return StatusRejected, newError(KindInvalidCredentials, "connect", fmt.Errorf("username and password are required"))
	}
	body := "mode=191&username=" + EncodeComponent(creds.Username) +
		"&password=" + EncodeComponent(creds.Password) +
		"&a=" + c.stamp() + "&producttype=1"
	text, err := c.post(ctx, "connect", c.connectURL+connectLoginPath, body)
	if err != nil {
		return StatusUnrecognised, err
	}
	status := classifyLoginBody(text)
	switch status {
	case StatusRejected:
		return status, newError(KindInvalidCredentials, "connect", fmt.Errorf("portal rejected login"))
	case StatusUnrecognised:
		return status, newError(KindUnknown, "connect", fmt.Errorf("unrecognised response: %s", summarizeBody([]byte(text))))
	}
	return status, nil
}

// Logout revokes network access for username.
func (c *Connector) Logout(ctx context.Context, username string) (ConnectStatus, error) {
	if strings.TrimSpace(username) == "" {
		return StatusUnrecognised, newError(KindInvalidCredentials, "disconnect", fmt.Errorf("username is required"))
	}
	body := "mode=193&username=" + EncodeComponent(username) + "&a=" + c.stamp() + "&producttype=1"
	text, err := c.post(ctx, "disconnect", c.connectURL+connectLogoutPath, body)
	if err != nil {
		return StatusUnrecognised, err
	}
	if strings.Contains(text, "LOGIN") {
		return StatusLoggedOut, nil
	}
	return StatusUnrecognised, newError(KindUnknown, "disconnect", fmt.Errorf("unrecognised response: %s", summarizeBody([]byte(text))))
}

// Reachable reports whether the captive portal answers at all.
func (c *Connector) Reachable(ctx context.Context) bool {
	return c.head(ctx, c.connectURL) == nil
}

// Online reports whether the probe URL is reachable, i.e. the device already
// has general network access.
func (c *Connector) Online(ctx context.Context) bool {
	return c.head(ctx, c.probeURL) == nil
}

func (c *Connector) head(ctx context.Context, target string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		return err
	}
	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	return res.Body.Close()
}

func (c *Connector) post(ctx context.Context, op, target, body string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(body))
	if err != nil {
		return "", newError(KindUnknown, op, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return "", classifyTransport(op, err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return "", classifyTransport(op, fmt.Errorf("read response: %w", err))
	}
	if res.StatusCode >= http.StatusBadRequest {
		return "", newError(KindUnknown, op, fmt.Errorf("portal returned HTTP %d: %s", res.StatusCode, summarizeBody(data)))
	}
	c.log.Debugf("%s response (status=%d bytes=%d)", op, res.StatusCode, len(data))
	return string(data), nil
}

func (c *Connector) stamp() string {
	return strconv.FormatInt(c.now().UnixMilli(), 10)
}

func classifyLoginBody(body string) ConnectStatus {
	switch {
	case strings.Contains(body, "LIVE"):
		return StatusConnected
	case strings.Contains(body, "failed"):
		return StatusRejected
	case strings.Contains(body, "exceeded"):
		return StatusLimitExceeded
	default:
		return StatusUnrecognised
	}
}
